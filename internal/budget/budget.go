package budget

import (
    "math"
    "strings"
)

// DefaultContextTokens is the context window assumed for unknown models.
const DefaultContextTokens = 4096

// DefaultPriceCentsPerK is the fallback price in US cents per 1000 tokens.
const DefaultPriceCentsPerK = 2.0

// Tokenizer maps text to a token count without contacting any service.
type Tokenizer interface {
    CountTokens(text string) int
}

// CharTokenizer estimates tokens from the character count. CharsPerToken
// defaults to 4 when zero.
type CharTokenizer struct {
    CharsPerToken int
}

// CountTokens implements Tokenizer.
func (t CharTokenizer) CountTokens(text string) int {
    per := t.CharsPerToken
    if per <= 0 {
        return EstimateTokens(text)
    }
    if len(text) == 0 {
        return 0
    }
    return int(math.Ceil(float64(len(text)) / float64(per)))
}

// EstimateTokensFromChars converts a character count into an estimated token
// count using a conservative heuristic (~4 chars per token in English). The
// result is always at least 1 when chars > 0.
func EstimateTokensFromChars(charCount int) int {
    if charCount <= 0 {
        return 0
    }
    // Keep conservative to avoid overruns. Use ceiling for safety.
    return int(math.Ceil(float64(charCount) / 4.0))
}

// EstimateTokens returns the estimated token count of a string.
func EstimateTokens(s string) int {
    return EstimateTokensFromChars(len(s))
}

// ModelContextTokens returns an estimated maximum context window for a given
// model name. Unknown models fall back to DefaultContextTokens.
func ModelContextTokens(modelName string) int {
    name := strings.ToLower(strings.TrimSpace(modelName))
    if name == "" {
        return DefaultContextTokens
    }
    if v, ok := knownModelMax[name]; ok {
        return v
    }
    // Heuristics based on common suffixes present in model names
    switch {
    case strings.HasSuffix(name, "128k"):
        return 128_000
    case strings.HasSuffix(name, "32k"):
        return 32_768
    case strings.HasSuffix(name, "16k"):
        return 16_384
    case strings.HasSuffix(name, "8k"):
        return 8_192
    }
    return DefaultContextTokens
}

// FitsInContext reports whether a prompt of promptTokens plus maxOutput
// generated tokens stays within window.
func FitsInContext(window, maxOutput, promptTokens int) bool {
    return promptTokens+maxOutput <= window
}

// PriceCentsPerK returns the price in cents per 1000 tokens for modelName.
func PriceCentsPerK(modelName string) float64 {
    if v, ok := knownModelPrice[strings.ToLower(strings.TrimSpace(modelName))]; ok {
        return v
    }
    return DefaultPriceCentsPerK
}

// CostDollars converts a token total to dollars at centsPerK.
func CostDollars(tokens int, centsPerK float64) float64 {
    return float64(tokens) * centsPerK / 1000 / 100
}

// knownModelMax contains rough context sizes for common model identifiers.
// These are best-effort and do not need to be exhaustive.
var knownModelMax = map[string]int{
    "text-davinci-003":  4_096,
    "gpt-3.5-turbo":     16_384,
    "gpt-4":             8_192,
    "gpt-4-32k":         32_768,
    "gpt-4-turbo":       128_000,
    "gpt-4o":            128_000,
    "gpt-4o-mini":       128_000,
    "llama-3":           8_192,
    "llama-3.1":         128_000,
    "gpt-oss-20b":       4_096,
}

// knownModelPrice holds blended prices in cents per 1000 tokens.
var knownModelPrice = map[string]float64{
    "text-davinci-003": 2.0,
    "gpt-3.5-turbo":    0.15,
    "gpt-4":            4.5,
    "gpt-4o":           0.75,
    "gpt-4o-mini":      0.0375,
}
