package app

import (
	"path/filepath"
	"strings"
	"time"
)

// Defaults for flags and the config file.
const (
	DefaultDecompilations = "decompilations.json"
	DefaultCallGraph      = "call_graph.json"
	DefaultCacheDir       = ".gosummarize-cache"
	DefaultMaxLines       = 100
)

// Config holds runtime configuration for the application.
type Config struct {
	// ProgramDir holds the inputs and, by default, the output of a run.
	ProgramDir string

	// Paths relative to ProgramDir unless absolute.
	DecompilationsPath string
	CallGraphPath      string
	// OutputPath defaults to summaries.jsonl, or summaries_<Function>.jsonl
	// when Function is set.
	OutputPath    string
	OutputPDFPath string

	// Function restricts the run to one function and its transitive callees.
	Function  string
	PrintTree bool
	MaxLines  int

	// LLM
	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string
	// ContextTokens overrides the model's context window. Zero looks the
	// model up in the budget table.
	ContextTokens  int
	PriceCentsPerK float64

	StoreDriver string

	// Behavior
	DryRun           bool
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheMaxBytes    int64
	CacheMaxCount    int
	CacheClear       bool
	CacheStrictPerms bool
	LLMCacheOnly     bool
	Verbose          bool

	// RunID tags log lines and store records of one invocation.
	RunID string
}

// resolve joins p onto ProgramDir unless p is absolute.
func (c Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ProgramDir, p)
}

// DecompilationsFile returns the resolved decompilations path.
func (c Config) DecompilationsFile() string {
	return c.resolve(pickNonEmpty(c.DecompilationsPath, DefaultDecompilations))
}

// CallGraphFile returns the resolved call graph path.
func (c Config) CallGraphFile() string {
	return c.resolve(pickNonEmpty(c.CallGraphPath, DefaultCallGraph))
}

func pickNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
