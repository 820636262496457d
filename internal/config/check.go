package config

import (
	"fmt"
	"slices"
)

// Level grades a configuration Issue.
type Level string

// Issue levels.
const (
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Issue is one finding of Check.
type Issue struct {
	ID    string `json:"id" yaml:"id"`
	Level Level  `json:"level" yaml:"level"`
	Msg   string `json:"msg" yaml:"msg"`
	Hint  string `json:"hint" yaml:"hint"`
}

func (i Issue) String() string {
	return fmt.Sprintf("staticpub.%s (%s): %s. HINT: %s", i.ID, i.Level, i.Msg, i.Hint)
}

// Check reports wiring problems in cfg. known lists the producer names the
// registry can resolve.
func Check(cfg Config, known []string) []Issue {
	var issues []Issue
	switch {
	case cfg.producersScalar:
		issues = append(issues, Issue{
			ID:    "E001",
			Level: LevelError,
			Msg:   "producers is a string, not a list",
			Hint:  "write producers as a YAML list, e.g. [sitemap]",
		})
	case len(cfg.Producers) == 0:
		issues = append(issues, Issue{
			ID:    "W001",
			Level: LevelWarning,
			Msg:   "you don't have any producers defined",
			Hint:  "set producers to a list of producer names",
		})
	default:
		for _, name := range cfg.Producers {
			if slices.Contains(known, name) {
				continue
			}
			issues = append(issues, Issue{
				ID:    "E002",
				Level: LevelError,
				Msg:   fmt.Sprintf("unable to resolve producer %q", name),
				Hint:  "define it under producer_defs or use a built-in producer name",
			})
		}
	}

	switch cfg.Storage.Backend {
	case "":
		issues = append(issues, Issue{
			ID:    "E003",
			Level: LevelWarning,
			Msg:   "storage.backend is not set",
			Hint:  "set storage.backend to local, memory, gcs or bolt",
		})
	case StorageLocal, StorageMemory, StorageGCS, StorageBolt:
	default:
		issues = append(issues, Issue{
			ID:    "E004",
			Level: LevelError,
			Msg:   fmt.Sprintf("unknown storage backend %q", cfg.Storage.Backend),
			Hint:  "set storage.backend to local, memory, gcs or bolt",
		})
	}
	return issues
}

// HasErrors reports whether any issue is at error level.
func HasErrors(issues []Issue) bool {
	return slices.ContainsFunc(issues, func(i Issue) bool { return i.Level == LevelError })
}
