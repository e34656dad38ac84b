// ABOUTME: On-disk cache of audio files fetched from a timeline server
// ABOUTME: Downloads files by URL, keys them by a URL hash and prunes unused entries
package audiocache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Cache stores downloaded audio files in a directory
type Cache struct {
	dir    string
	client *http.Client
}

// New creates a cache in dir, or in the user cache directory when dir is empty
func New(dir string) (*Cache, error) {
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		dir = filepath.Join(base, "multitrack", "audio")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &Cache{
		dir:    dir,
		client: &http.Client{},
	}, nil
}

// Dir returns the cache directory
func (c *Cache) Dir() string {
	return c.dir
}

// Key returns the cache file name for a URL
func Key(rawURL string) string {
	hash := sha256.Sum256([]byte(rawURL))
	return fmt.Sprintf("%x%s", hash[:8], extension(rawURL))
}

// Fetch returns the local path of rawURL, downloading it on a cache miss
func (c *Cache) Fetch(ctx context.Context, rawURL string) (string, error) {
	cachePath := filepath.Join(c.dir, Key(rawURL))
	if _, err := os.Stat(cachePath); err == nil {
		return cachePath, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid audio URL: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("audio download failed: HTTP %d", resp.StatusCode)
	}

	// partial downloads stay under a temp name
	tmp, err := os.CreateTemp(c.dir, "partial-*")
	if err != nil {
		return "", fmt.Errorf("failed to create cache file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save audio: %w", err)
	}
	if err := os.Rename(tmp.Name(), cachePath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save audio: %w", err)
	}

	log.Printf("Cached %s", rawURL)
	return cachePath, nil
}

// Prune removes cached files other than those for the given URLs
func (c *Cache) Prune(keep []string) error {
	wanted := make(map[string]bool, len(keep))
	for _, u := range keep {
		wanted[Key(u)] = true
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || wanted[e.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
			return fmt.Errorf("failed to prune %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Cleanup removes the cache directory
func (c *Cache) Cleanup() error {
	return os.RemoveAll(c.dir)
}

// extension keeps the file extension so decoders can be picked by name
func extension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}
