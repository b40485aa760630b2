// Command gosummarize writes a one-sentence summary for every function of a
// decompiled program, callees before callers, resuming from earlier output.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/gosummarize/internal/app"
)

// Exit codes.
const (
	exitOK        = 0
	exitFatal     = 1
	exitAbandoned = 2
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCommand().ExecuteContext(ctx)
	if err != nil {
		log.Error().Err(err).Msg("run failed")
	}
	os.Exit(exitCode(err))
}

// exitCode maps a run error to the process exit status: 2 when the run
// stopped on a function it could not summarize, 1 on any other failure.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case app.IsAbandoned(err):
		return exitAbandoned
	default:
		return exitFatal
	}
}

type options struct {
	cfg        app.Config
	configFile string
	envFiles   []string
}

func newRootCommand() *cobra.Command { return newOptions().command() }

func newOptions() *options {
	return &options{cfg: app.Config{
		DecompilationsPath: app.DefaultDecompilations,
		CallGraphPath:      app.DefaultCallGraph,
		MaxLines:           app.DefaultMaxLines,
		CacheDir:           app.DefaultCacheDir,
	}}
}

func (o *options) command() *cobra.Command {

	cmd := &cobra.Command{
		Use:   "gosummarize PROGDIR",
		Short: "Summarize every function of a decompiled program, bottom-up",
		Long: `gosummarize reads PROGDIR/call_graph.json and PROGDIR/decompilations.json,
summarizes leaf functions first and feeds their summaries into the prompts of
their callers. Each summary is appended to the output as soon as it exists, so
an interrupted run resumes where it stopped.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.cfg.ProgramDir = args[0]
			cfg, err := o.resolve(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.cfg.Function, "function", "f", "", "Summarize only this function and its dependencies")
	f.StringVarP(&o.cfg.DecompilationsPath, "decompilations", "d", o.cfg.DecompilationsPath, "Decompilations JSON, relative to PROGDIR")
	f.StringVarP(&o.cfg.CallGraphPath, "call-graph", "g", o.cfg.CallGraphPath, "Call graph JSON, relative to PROGDIR")
	f.StringVarP(&o.cfg.OutputPath, "output", "o", "", "Output file (default: PROGDIR/summaries.jsonl)")
	f.StringVar(&o.cfg.OutputPDFPath, "output.pdf", "", "Also render the summaries to this PDF after a complete run")
	f.BoolVarP(&o.cfg.Verbose, "verbose", "v", false, "Enable verbose logging")
	f.BoolVarP(&o.cfg.DryRun, "dry-run", "n", false, "Don't call the model, just estimate usage")
	f.IntVarP(&o.cfg.MaxLines, "max-lines", "l", o.cfg.MaxLines, "Maximum number of lines to summarize at a time")
	f.BoolVar(&o.cfg.PrintTree, "print-tree", false, "Print the call tree and exit")
	f.StringVar(&o.cfg.LLMBaseURL, "llm.base", "", "OpenAI-compatible base URL (env LLM_BASE_URL)")
	f.StringVar(&o.cfg.LLMModel, "llm.model", "", "Model name (env LLM_MODEL)")
	f.StringVar(&o.cfg.LLMAPIKey, "llm.key", "", "API key (env LLM_API_KEY)")
	f.IntVar(&o.cfg.ContextTokens, "llm.context", 0, "Context window in tokens (default: from the model name)")
	f.Float64Var(&o.cfg.PriceCentsPerK, "price", 0, "Price in US cents per 1000 tokens for estimates")
	f.StringVar(&o.cfg.StoreDriver, "store", "", "Summary store: jsonl or sqlite (env STORE_DRIVER)")
	f.StringVar(&o.cfg.CacheDir, "cache.dir", o.cfg.CacheDir, "Completion cache directory; empty disables")
	f.DurationVar(&o.cfg.CacheMaxAge, "cache.maxAge", 0, "Purge cached completions older than this; 0 disables")
	f.Int64Var(&o.cfg.CacheMaxBytes, "cache.maxBytes", 0, "Evict least recently used completions above this many bytes; 0 disables")
	f.IntVar(&o.cfg.CacheMaxCount, "cache.maxCount", 0, "Evict least recently used completions above this many entries; 0 disables")
	f.BoolVar(&o.cfg.CacheClear, "cache.clear", false, "Clear the completion cache before the run")
	f.BoolVar(&o.cfg.CacheStrictPerms, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	f.BoolVar(&o.cfg.LLMCacheOnly, "cache.only", false, "Serve completions from the cache only; fail on a miss")
	f.StringVar(&o.configFile, "config", "", "YAML, JSON or TOML config file")
	f.StringSliceVar(&o.envFiles, "env-file", []string{".env"}, "Dotenv files to load before reading the environment")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), app.VersionString())
		},
	})
	return cmd
}

// resolve layers the configuration: defaults, then the config file, then the
// environment, then flags given explicitly on the command line.
func (o *options) resolve(cmd *cobra.Command) (app.Config, error) {
	flags := o.cfg
	if err := app.LoadEnvFiles(o.envFiles...); err != nil {
		return app.Config{}, fmt.Errorf("load env files: %w", err)
	}

	cfg := app.Config{
		ProgramDir:         flags.ProgramDir,
		DecompilationsPath: app.DefaultDecompilations,
		CallGraphPath:      app.DefaultCallGraph,
		MaxLines:           app.DefaultMaxLines,
		CacheDir:           app.DefaultCacheDir,
	}
	if o.configFile != "" {
		fc, err := app.LoadConfigFile(o.configFile)
		if err != nil {
			return app.Config{}, fmt.Errorf("load config %s: %w", o.configFile, err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)
	applyChangedFlags(cmd, &cfg, flags)

	cfg.RunID = uuid.NewString()
	if err := app.ValidateConfig(cfg); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

// applyChangedFlags copies every flag the user set explicitly from flags into
// cfg.
func applyChangedFlags(cmd *cobra.Command, cfg *app.Config, flags app.Config) {
	set := map[string]func(){
		"function":          func() { cfg.Function = flags.Function },
		"decompilations":    func() { cfg.DecompilationsPath = flags.DecompilationsPath },
		"call-graph":        func() { cfg.CallGraphPath = flags.CallGraphPath },
		"output":            func() { cfg.OutputPath = flags.OutputPath },
		"output.pdf":        func() { cfg.OutputPDFPath = flags.OutputPDFPath },
		"verbose":           func() { cfg.Verbose = flags.Verbose },
		"dry-run":           func() { cfg.DryRun = flags.DryRun },
		"max-lines":         func() { cfg.MaxLines = flags.MaxLines },
		"print-tree":        func() { cfg.PrintTree = flags.PrintTree },
		"llm.base":          func() { cfg.LLMBaseURL = flags.LLMBaseURL },
		"llm.model":         func() { cfg.LLMModel = flags.LLMModel },
		"llm.key":           func() { cfg.LLMAPIKey = flags.LLMAPIKey },
		"llm.context":       func() { cfg.ContextTokens = flags.ContextTokens },
		"price":             func() { cfg.PriceCentsPerK = flags.PriceCentsPerK },
		"store":             func() { cfg.StoreDriver = flags.StoreDriver },
		"cache.dir":         func() { cfg.CacheDir = flags.CacheDir },
		"cache.maxAge":      func() { cfg.CacheMaxAge = flags.CacheMaxAge },
		"cache.maxBytes":    func() { cfg.CacheMaxBytes = flags.CacheMaxBytes },
		"cache.maxCount":    func() { cfg.CacheMaxCount = flags.CacheMaxCount },
		"cache.clear":       func() { cfg.CacheClear = flags.CacheClear },
		"cache.strictPerms": func() { cfg.CacheStrictPerms = flags.CacheStrictPerms },
		"cache.only":        func() { cfg.LLMCacheOnly = flags.LLMCacheOnly },
	}
	for name, apply := range set {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
}

func run(ctx context.Context, cfg app.Config, out io.Writer) error {
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.With().Str("run", cfg.RunID).Logger()

	a, err := app.New(ctx, cfg, app.WithOutput(out))
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	err = a.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Warn().Msg("interrupted; rerun to resume")
	}
	return err
}
