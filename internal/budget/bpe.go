package budget

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/rs/zerolog/log"
)

// EncodingGPT2 is the byte-pair encoding of GPT-2 and the davinci models.
const EncodingGPT2 = "r50k_base"

var (
	loaderOnce sync.Once

	bpeMu    sync.Mutex
	bpeCache = map[string]*BPETokenizer{}
)

// BPETokenizer counts tokens with a tiktoken byte-pair encoding. Encodings
// are read from data compiled into the binary, so counting never touches the
// network.
type BPETokenizer struct {
	Encoding string
	enc      *tiktoken.Tiktoken
}

// NewBPETokenizer loads the named encoding, e.g. "r50k_base" or
// "cl100k_base". Loaded encodings are shared.
func NewBPETokenizer(encoding string) (*BPETokenizer, error) {
	loaderOnce.Do(func() { tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader()) })

	bpeMu.Lock()
	defer bpeMu.Unlock()
	if t, ok := bpeCache[encoding]; ok {
		return t, nil
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	t := &BPETokenizer{Encoding: encoding, enc: enc}
	bpeCache[encoding] = t
	return t, nil
}

// CountTokens implements Tokenizer. Special-token text is counted as
// ordinary text.
func (t *BPETokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// EncodingForModel returns the encoding tiktoken uses for model. Unknown and
// empty names map to EncodingGPT2.
func EncodingForModel(model string) string {
	name := strings.ToLower(strings.TrimSpace(model))
	if name == "" {
		return EncodingGPT2
	}
	if enc, ok := tiktoken.MODEL_TO_ENCODING[name]; ok {
		return enc
	}
	// longest matching prefix
	best, bestLen := "", 0
	for prefix, enc := range tiktoken.MODEL_PREFIX_TO_ENCODING {
		if strings.HasPrefix(name, prefix) && len(prefix) > bestLen {
			best, bestLen = enc, len(prefix)
		}
	}
	if best != "" {
		return best
	}
	return EncodingGPT2
}

// TokenizerForModel returns the BPE tokenizer matching model, falling back to
// the GPT-2 encoding and, if no encoding loads, to CharTokenizer.
func TokenizerForModel(model string) Tokenizer {
	encodings := []string{EncodingForModel(model)}
	if encodings[0] != EncodingGPT2 {
		encodings = append(encodings, EncodingGPT2)
	}
	for _, name := range encodings {
		t, err := NewBPETokenizer(name)
		if err == nil {
			return t
		}
		log.Warn().Err(err).Str("model", model).Msg("tokenizer unavailable")
	}
	log.Warn().Msg("counting tokens as characters / 4")
	return CharTokenizer{}
}
