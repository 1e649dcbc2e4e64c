// Package cache persists the mapping from a file's content hash to the document id it was ingested as.
//
// The cache is advisory: losing it only causes identical uploads to be ingested again. Each process owns its
// cache file; two processes ingesting the same bytes at the same time can each record their own document id,
// and the last flush wins.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Entry is one cached content hash.
type Entry struct {
	ContentHash string `json:"content_hash"`
	DocumentID  string `json:"document_id"`
}

// ContentCache maps content hashes to document ids, flushing every mutation to a JSON file.
type ContentCache struct {
	path    string
	mu      sync.RWMutex
	entries map[string]string
}

// Load reads the cache file fully into memory. A missing file yields an empty cache; an unreadable or
// corrupt file yields an empty cache and a logged warning.
func Load(path string) *ContentCache {
	c := &ContentCache{path: path, entries: make(map[string]string)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c
	}
	if err != nil {
		log.Printf("warning: cache: failed to read %s, starting empty: %v", path, err)
		return c
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("warning: cache: %s is corrupted, starting empty: %v", path, err)
		return c
	}
	for hash, docID := range entries {
		if hash != "" && docID != "" {
			c.entries[hash] = docID
		}
	}

	return c
}

// Path returns the backing file path.
func (c *ContentCache) Path() string {
	return c.path
}

// Lookup returns the document id recorded for a content hash.
func (c *ContentCache) Lookup(contentHash string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	docID, ok := c.entries[contentHash]
	return docID, ok
}

// Record stores contentHash -> documentID and flushes the file. On flush failure the previous value is restored.
func (c *ContentCache) Record(contentHash, documentID string) error {
	if contentHash == "" || documentID == "" {
		return fmt.Errorf("cache: content hash and document id are required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, had := c.entries[contentHash]
	c.entries[contentHash] = documentID
	if err := c.flushLocked(); err != nil {
		if had {
			c.entries[contentHash] = prev
		} else {
			delete(c.entries, contentHash)
		}
		return err
	}
	return nil
}

// Forget drops every entry pointing at one of the given document ids and returns how many were removed.
func (c *ContentCache) Forget(documentIDs ...string) (int, error) {
	if len(documentIDs) == 0 {
		return 0, nil
	}
	drop := make(map[string]struct{}, len(documentIDs))
	for _, id := range documentIDs {
		drop[id] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := make(map[string]string)
	for hash, docID := range c.entries {
		if _, ok := drop[docID]; ok {
			removed[hash] = docID
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}

	for hash := range removed {
		delete(c.entries, hash)
	}
	if err := c.flushLocked(); err != nil {
		for hash, docID := range removed {
			c.entries[hash] = docID
		}
		return 0, err
	}
	return len(removed), nil
}

// Clear removes every entry.
func (c *ContentCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.entries
	c.entries = make(map[string]string)
	if err := c.flushLocked(); err != nil {
		c.entries = prev
		return err
	}
	return nil
}

// DocumentIndex returns the inverted view: document id -> content hash.
func (c *ContentCache) DocumentIndex() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	index := make(map[string]string, len(c.entries))
	for hash, docID := range c.entries {
		index[docID] = hash
	}
	return index
}

// Entries returns all entries sorted by content hash.
func (c *ContentCache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.entries))
	for hash, docID := range c.entries {
		out = append(out, Entry{ContentHash: hash, DocumentID: docID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentHash < out[j].ContentHash })
	return out
}

// Len returns the number of entries.
func (c *ContentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// flushLocked writes the map to a temp file in the same directory and renames it over the cache file.
func (c *ContentCache) flushLocked() error {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: failed to marshal: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cache: failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("cache: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: failed to write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: failed to sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: failed to close: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("cache: failed to replace %s: %w", c.path, err)
	}
	return nil
}
