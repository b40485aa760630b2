package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/gosummarize/internal/store"
	"github.com/hyperifyio/gosummarize/internal/summarize"
)

// FileConfig represents the single-file configuration schema.
// Nested sections map naturally to flags/env.
type FileConfig struct {
	Decompilations string `yaml:"decompilations" json:"decompilations" toml:"decompilations"`
	CallGraph      string `yaml:"callGraph" json:"callGraph" toml:"callGraph"`
	Output         string `yaml:"output" json:"output" toml:"output"`
	OutputPDF      string `yaml:"outputPDF" json:"outputPDF" toml:"outputPDF"`
	MaxLines       int    `yaml:"maxLines" json:"maxLines" toml:"maxLines"`

	LLM struct {
		BaseURL        string  `yaml:"base" json:"base" toml:"base"`
		Model          string  `yaml:"model" json:"model" toml:"model"`
		APIKey         string  `yaml:"key" json:"key" toml:"key"`
		ContextTokens  int     `yaml:"contextTokens" json:"contextTokens" toml:"contextTokens"`
		PriceCentsPerK float64 `yaml:"priceCentsPerK" json:"priceCentsPerK" toml:"priceCentsPerK"`
	} `yaml:"llm" json:"llm" toml:"llm"`

	Store struct {
		Driver string `yaml:"driver" json:"driver" toml:"driver"`
	} `yaml:"store" json:"store" toml:"store"`

	Cache struct {
		Dir         string   `yaml:"dir" json:"dir" toml:"dir"`
		MaxAge      duration `yaml:"maxAge" json:"maxAge" toml:"maxAge"`
		MaxBytes    int64    `yaml:"maxBytes" json:"maxBytes" toml:"maxBytes"`
		MaxCount    int      `yaml:"maxCount" json:"maxCount" toml:"maxCount"`
		Clear       bool     `yaml:"clear" json:"clear" toml:"clear"`
		StrictPerms bool     `yaml:"strictPerms" json:"strictPerms" toml:"strictPerms"`
		Only        bool     `yaml:"only" json:"only" toml:"only"`
	} `yaml:"cache" json:"cache" toml:"cache"`

	DryRun  bool `yaml:"dryRun" json:"dryRun" toml:"dryRun"`
	Verbose bool `yaml:"verbose" json:"verbose" toml:"verbose"`
}

// duration accepts "24h"-style strings in every file format.
type duration time.Duration

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func (d *duration) UnmarshalYAML(n *yaml.Node) error { return d.UnmarshalText([]byte(n.Value)) }

// LoadConfigFile reads YAML, JSON or TOML into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(b), &fc); err != nil {
			return fc, fmt.Errorf("parse toml: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for any fields that
// are currently unset or still at their flag default. Flags should already
// have been parsed; explicit flags keep precedence.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	if (cfg.DecompilationsPath == "" || cfg.DecompilationsPath == DefaultDecompilations) && fc.Decompilations != "" {
		cfg.DecompilationsPath = fc.Decompilations
	}
	if (cfg.CallGraphPath == "" || cfg.CallGraphPath == DefaultCallGraph) && fc.CallGraph != "" {
		cfg.CallGraphPath = fc.CallGraph
	}
	if cfg.OutputPath == "" && fc.Output != "" {
		cfg.OutputPath = fc.Output
	}
	if cfg.OutputPDFPath == "" && fc.OutputPDF != "" {
		cfg.OutputPDFPath = fc.OutputPDF
	}
	if (cfg.MaxLines == 0 || cfg.MaxLines == DefaultMaxLines) && fc.MaxLines > 0 {
		cfg.MaxLines = fc.MaxLines
	}

	if cfg.LLMBaseURL == "" && fc.LLM.BaseURL != "" {
		cfg.LLMBaseURL = fc.LLM.BaseURL
	}
	if cfg.LLMModel == "" && fc.LLM.Model != "" {
		cfg.LLMModel = fc.LLM.Model
	}
	if cfg.LLMAPIKey == "" && fc.LLM.APIKey != "" {
		cfg.LLMAPIKey = fc.LLM.APIKey
	}
	if cfg.ContextTokens == 0 && fc.LLM.ContextTokens > 0 {
		cfg.ContextTokens = fc.LLM.ContextTokens
	}
	if cfg.PriceCentsPerK == 0 && fc.LLM.PriceCentsPerK > 0 {
		cfg.PriceCentsPerK = fc.LLM.PriceCentsPerK
	}

	if (cfg.StoreDriver == "" || cfg.StoreDriver == store.DriverJSONL) && fc.Store.Driver != "" {
		cfg.StoreDriver = fc.Store.Driver
	}

	if (cfg.CacheDir == "" || cfg.CacheDir == DefaultCacheDir) && fc.Cache.Dir != "" {
		cfg.CacheDir = fc.Cache.Dir
	}
	if cfg.CacheMaxAge == 0 && fc.Cache.MaxAge > 0 {
		cfg.CacheMaxAge = time.Duration(fc.Cache.MaxAge)
	}
	if cfg.CacheMaxBytes == 0 && fc.Cache.MaxBytes > 0 {
		cfg.CacheMaxBytes = fc.Cache.MaxBytes
	}
	if cfg.CacheMaxCount == 0 && fc.Cache.MaxCount > 0 {
		cfg.CacheMaxCount = fc.Cache.MaxCount
	}
	if !cfg.CacheClear && fc.Cache.Clear {
		cfg.CacheClear = true
	}
	if !cfg.CacheStrictPerms && fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}
	if !cfg.LLMCacheOnly && fc.Cache.Only {
		cfg.LLMCacheOnly = true
	}
	if !cfg.DryRun && fc.DryRun {
		cfg.DryRun = true
	}
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}
}

// ValidateConfig performs minimal schema validation for required settings.
// For dry-run, LLM settings may be omitted.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.ProgramDir) == "" {
		return errors.New("config: program directory is required")
	}
	if cfg.MaxLines < summarize.MinLines {
		return fmt.Errorf("config: max lines must be at least %d, got %d", summarize.MinLines, cfg.MaxLines)
	}
	if !cfg.DryRun && strings.TrimSpace(cfg.LLMModel) == "" {
		return errors.New("config: llm.model is required (or set LLM_MODEL)")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.StoreDriver)) {
	case "", store.DriverJSONL, store.DriverSQLite:
	default:
		return fmt.Errorf("config: unknown store driver %q (want %s or %s)", cfg.StoreDriver, store.DriverJSONL, store.DriverSQLite)
	}
	if cfg.ContextTokens < 0 || cfg.PriceCentsPerK < 0 || cfg.CacheMaxBytes < 0 || cfg.CacheMaxCount < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	return nil
}
