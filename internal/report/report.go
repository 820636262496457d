// Package report renders build reports and URL listings for the CLI.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nao1215/markdown"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/staticpub/internal/builder"
)

// Format selects an output encoding.
type Format string

// Supported formats.
const (
	FormatText     Format = "text"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatYAML, FormatMarkdown:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, yaml or markdown)", s)
	}
}

// Write renders a build report.
func Write(w io.Writer, format Format, r builder.Report) error {
	switch format {
	case FormatYAML:
		return writeYAML(w, r)
	case FormatMarkdown:
		return writeMarkdown(w, r)
	default:
		return writeText(w, r)
	}
}

// WriteURLs renders the output of a collection run.
func WriteURLs(w io.Writer, format Format, urls []string) error {
	switch format {
	case FormatYAML:
		return writeYAML(w, map[string][]string{"urls": urls})
	case FormatMarkdown:
		md := markdown.NewMarkdown(w)
		md.H1("Collected URLs")
		md.PlainText("")
		md.PlainText(fmt.Sprintf("%d URLs", len(urls)))
		md.PlainText("")
		md.BulletList(urls...)
		return md.Build()
	default:
		for _, u := range urls {
			if _, err := fmt.Fprintln(w, u); err != nil {
				return err
			}
		}
		return nil
	}
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func writeText(w io.Writer, r builder.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tURL\tSTATUS\tCREATED\tMD5")
	for _, b := range all(r) {
		for i, wr := range b.Writes {
			url, status := readInfo(b, i)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", wr.Name, url, status, wr.Created, wr.MD5)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	read, written, created, failed := r.Totals()
	_, err := fmt.Fprintf(w, "\nread %d, written %d (%d new), failed %d in %s\n",
		read, written, created, failed, elapsed(r))
	if err != nil {
		return err
	}
	for _, b := range all(r) {
		if b.Failed() {
			if _, err := fmt.Fprintf(w, "FAILED %s: %s\n", strings.Join(b.URLs, ", "), b.Error); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeMarkdown(w io.Writer, r builder.Report) error {
	read, written, created, failed := r.Totals()
	md := markdown.NewMarkdown(w)
	md.H1("staticpub build report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Started", r.StartedAt.Format(time.RFC3339)},
			{"Duration", elapsed(r).String()},
			{"Pages read", strconv.Itoa(read)},
			{"Pages written", strconv.Itoa(written)},
			{"New files", strconv.Itoa(created)},
			{"Failed builds", strconv.Itoa(failed)},
		},
	})
	md.PlainText("")

	md.H2("Pages")
	md.PlainText("")
	var rows [][]string
	for _, b := range all(r) {
		for i, wr := range b.Writes {
			url, status := readInfo(b, i)
			rows = append(rows, []string{"`" + wr.Name + "`", url, status, strconv.FormatBool(wr.Created), wr.MD5})
		}
	}
	if len(rows) == 0 {
		md.PlainText("No pages written.")
	} else {
		md.Table(markdown.TableSet{
			Header: []string{"File", "URL", "Status", "Created", "MD5"},
			Rows:   rows,
		})
	}
	md.PlainText("")

	var failures []string
	for _, b := range all(r) {
		if b.Failed() {
			failures = append(failures, fmt.Sprintf("%s: %s", strings.Join(b.URLs, ", "), b.Error))
		}
	}
	if len(failures) > 0 {
		md.H2("Failures")
		md.PlainText("")
		md.BulletList(failures...)
		md.PlainText("")
	}
	return md.Build()
}

func all(r builder.Report) []builder.Build {
	out := append([]builder.Build(nil), r.Builds...)
	if r.ErrorPages != nil {
		out = append(out, *r.ErrorPages)
	}
	return out
}

// readInfo pairs the i-th write with the read it came from; the writer keeps
// reads and writes aligned one to one.
func readInfo(b builder.Build, i int) (url, status string) {
	if i >= len(b.Reads) {
		return "", ""
	}
	rd := b.Reads[i]
	url = rd.URL
	if rd.Status != 0 {
		status = strconv.Itoa(rd.Status)
	}
	return url, status
}

func elapsed(r builder.Report) time.Duration {
	if r.FinishedAt.IsZero() || r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)
}
