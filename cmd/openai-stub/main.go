// Command openai-stub serves a deterministic OpenAI-compatible API so that
// gosummarize can be exercised end to end without a real model.
package main

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gosummarize/internal/stubserver"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}
	opts := stubserver.Options{
		Model:          model,
		Window:         envInt("STUB_WINDOW"),
		RateLimitEvery: envInt("STUB_RATE_LIMIT_EVERY"),
	}
	if envInt("STUB_VERBOSE") > 0 {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("addr", addr).Str("model", model).Int("window", opts.Window).Msg("openai-stub listening")
	if err := http.ListenAndServe(addr, stubserver.New(opts)); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}

func envInt(key string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	return n
}
