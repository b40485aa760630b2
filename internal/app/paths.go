package app

import (
	"strings"

	"github.com/hyperifyio/gosummarize/internal/store"
)

// OutputFile returns the resolved summaries path. A single-function run gets
// its own file so it never disturbs the output of a full run.
func (c Config) OutputFile() string {
	if p := strings.TrimSpace(c.OutputPath); p != "" {
		return c.resolve(p)
	}
	ext := ".jsonl"
	if strings.EqualFold(strings.TrimSpace(c.StoreDriver), store.DriverSQLite) {
		ext = ".db"
	}
	name := "summaries"
	if fn := strings.TrimSpace(c.Function); fn != "" {
		name += "_" + sanitizeFileName(fn)
	}
	return c.resolve(name + ext)
}

// sanitizeFileName replaces path separators and other characters that are
// awkward in file names.
func sanitizeFileName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == 0:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
