package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"
)

// entryExt is the file extension of a cached completion.
const entryExt = ".zst"

var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

// LLMCache stores model completions keyed by a digest of the model name, the
// requested output length and the prompt. Entries are zstd-compressed.
type LLMCache struct {
	Dir string
	// StrictPerms, when true, enforces 0700 on cache directories and 0600 on
	// files.
	StrictPerms bool
}

func (c *LLMCache) ensureDir() error {
	if c == nil || c.Dir == "" {
		return errors.New("cache dir not configured")
	}
	perm := os.FileMode(0o755)
	if c.StrictPerms {
		perm = 0o700
	}
	if err := os.MkdirAll(c.Dir, perm); err != nil {
		return err
	}
	// If directory already existed and StrictPerms is on, tighten perms
	if c.StrictPerms {
		if info, err := os.Stat(c.Dir); err == nil && info.Mode()&0o777 != 0o700 {
			_ = os.Chmod(c.Dir, 0o700)
		}
	}
	return nil
}

// KeyFrom builds a cache key from the model, the output token limit and the
// prompt.
func KeyFrom(model string, maxTokens int, prompt string) string {
	h := sha256.Sum256([]byte(model + "\n" + strconv.Itoa(maxTokens) + "\n\n" + prompt))
	return hex.EncodeToString(h[:])
}

func (c *LLMCache) pathFor(key string) string {
	return filepath.Join(c.Dir, key+entryExt)
}

// Get returns cached bytes if present. A missing entry is not an error.
func (c *LLMCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := c.ensureDir(); err != nil {
		return nil, false, err
	}
	p := c.pathFor(key)
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, false, nil
	}
	b, err := decoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	// Touch file mtime on access for LRU purposes
	now := time.Now()
	_ = os.Chtimes(p, now, now)
	return b, true, nil
}

// Save writes bytes to the cache, replacing any previous entry atomically.
func (c *LLMCache) Save(_ context.Context, key string, data []byte) error {
	if err := c.ensureDir(); err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if c.StrictPerms {
		mode = 0o600
	}
	p := c.pathFor(key)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, encoder.EncodeAll(data, nil), mode); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}
