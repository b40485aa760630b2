package budget

import (
    "math"
    "testing"
)

func TestEstimateTokensFromChars(t *testing.T) {
    cases := []struct{
        in int
        want int
    }{
        {0, 0},
        {1, 1},           // ceil(1/4)=1
        {3, 1},           // ceil(3/4)=1
        {4, 1},           // ceil(4/4)=1
        {5, 2},           // ceil(5/4)=2
        {400, 100},
    }
    for _, c := range cases {
        got := EstimateTokensFromChars(c.in)
        if got != c.want {
            t.Fatalf("EstimateTokensFromChars(%d) = %d, want %d", c.in, got, c.want)
        }
    }
}

func TestCharTokenizer(t *testing.T) {
    if got := (CharTokenizer{}).CountTokens("abcdefghi"); got != 3 {
        t.Fatalf("default ratio: got %d, want 3", got)
    }
    if got := (CharTokenizer{CharsPerToken: 3}).CountTokens("abcdefghi"); got != 3 {
        t.Fatalf("ratio 3: got %d, want 3", got)
    }
    if got := (CharTokenizer{CharsPerToken: 3}).CountTokens(""); got != 0 {
        t.Fatalf("empty: got %d", got)
    }
}

func TestModelContextTokens(t *testing.T) {
    if ModelContextTokens("") != DefaultContextTokens {
        t.Fatal("empty model should use the default window")
    }
    if ModelContextTokens("text-davinci-003") != 4096 {
        t.Fatal("davinci window should be 4096")
    }
    if ModelContextTokens("LLAMA-3.1") < 100_000 {
        t.Fatal("case-insensitive match for llama-3.1 should be ~128k")
    }
    if ModelContextTokens("mystery-32k") != 32_768 {
        t.Fatal("32k suffix heuristic")
    }
}

func TestFitsInContext(t *testing.T) {
    if !FitsInContext(4096, 256, 3840) {
        t.Fatal("exactly full window fits")
    }
    if FitsInContext(4096, 256, 3841) {
        t.Fatal("one token over must not fit")
    }
}

func TestCost(t *testing.T) {
    if PriceCentsPerK("unknown-model") != DefaultPriceCentsPerK {
        t.Fatal("unknown model uses default price")
    }
    // 150k tokens at 2 cents per 1K = 300 cents = $3.00
    if got := CostDollars(150_000, 2); math.Abs(got-3.0) > 1e-9 {
        t.Fatalf("CostDollars = %v, want 3.0", got)
    }
}
