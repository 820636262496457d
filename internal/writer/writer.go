// Package writer persists ReadResults into a content store, replacing any
// existing file of the same name.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/JakeFAU/staticpub/internal/clock/system"
	"github.com/JakeFAU/staticpub/internal/events"
	"github.com/JakeFAU/staticpub/internal/hash/md5"
	"github.com/JakeFAU/staticpub/internal/site"
)

// Writer writes pages to a site.ContentStore. It keeps no per-call state;
// concurrent writes of the same name are last-write-wins.
type Writer struct {
	store   site.ContentStore
	hasher  site.Hasher
	emitter events.Emitter
	clock   site.Clock
	logger  *zap.Logger
}

// Option customizes a Writer.
type Option func(*Writer)

// WithHasher overrides the content fingerprint.
func WithHasher(h site.Hasher) Option {
	return func(w *Writer) {
		if h != nil {
			w.hasher = h
		}
	}
}

// WithClock overrides the clock used to stamp events.
func WithClock(c site.Clock) Option {
	return func(w *Writer) {
		if c != nil {
			w.clock = c
		}
	}
}

// New builds a Writer over store.
func New(store site.ContentStore, emitter events.Emitter, logger *zap.Logger, opts ...Option) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{
		store:   store,
		hasher:  md5.New(),
		emitter: events.OrNop(emitter),
		clock:   system.New(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write lazily writes every result of seq. An upstream or store error is
// yielded and ends the sequence.
func (w *Writer) Write(ctx context.Context, seq iter.Seq2[site.ReadResult, error]) iter.Seq2[site.WriteResult, error] {
	return func(yield func(site.WriteResult, error) bool) {
		start := w.clock.Now()
		w.emit(events.Event{Kind: events.WriterStarted})
		written := 0
		var names []string
		for res, err := range seq {
			if err != nil {
				yield(site.WriteResult{}, err)
				return
			}
			out, err := w.WriteOne(ctx, res)
			if err != nil {
				yield(site.WriteResult{}, err)
				return
			}
			if !yield(out, nil) {
				return
			}
			written++
			names = append(names, out.Name)
		}
		w.logger.Info("wrote pages", zap.String("urls", site.Summarize(names)), zap.Int("count", written))
		w.emit(events.Event{Kind: events.WriterFinished, Count: written, Dur: w.clock.Now().Sub(start)})
	}
}

// WriteOne fingerprints and stores a single page: exists, delete, save.
func (w *Writer) WriteOne(ctx context.Context, res site.ReadResult) (site.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return site.WriteResult{}, fmt.Errorf("write %s: %w", res.Filename, err)
	}
	name := res.Filename
	digest, err := w.hasher.Hash(res.Content)
	if err != nil {
		return site.WriteResult{}, fmt.Errorf("hash %s: %w", name, err)
	}
	existed, err := w.store.Exists(ctx, name)
	if err != nil {
		return site.WriteResult{}, fmt.Errorf("check %s: %w", name, err)
	}
	if existed {
		if err := w.store.Delete(ctx, name); err != nil {
			return site.WriteResult{}, fmt.Errorf("delete %s: %w", name, err)
		}
	}
	stored, err := w.store.Save(ctx, name, bytes.NewReader(res.Content))
	if err != nil {
		return site.WriteResult{}, fmt.Errorf("save %s: %w", name, err)
	}
	out := site.WriteResult{
		Name:          name,
		Created:       !existed,
		Modified:      true,
		MD5:           digest,
		StorageResult: stored,
	}
	read := res
	read.Content = nil
	w.emit(events.Event{Kind: events.WritePage, Read: &read, Write: &out})
	return out, nil
}

func (w *Writer) emit(evt events.Event) {
	evt.Sender = events.SenderWriter
	evt.TS = w.clock.Now()
	w.emitter.Emit(evt)
}
