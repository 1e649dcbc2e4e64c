package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hashA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	hashB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func TestLoad_MissingFile(t *testing.T) {
	c := Load(filepath.Join(t.TempDir(), "processed_cache.json"))

	assert.Equal(t, 0, c.Len())
	_, ok := c.Lookup(hashA)
	assert.False(t, ok)
}

func TestLoad_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_cache.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"aaa": "doc-1",`), 0644))

	c := Load(path)

	assert.Equal(t, 0, c.Len())
}

func TestLoad_WrongShapeStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_cache.json")
	require.NoError(t, os.WriteFile(path, []byte(`["not", "an", "object"]`), 0644))

	c := Load(path)

	assert.Equal(t, 0, c.Len())
}

func TestRecord_PersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_cache.json")
	c := Load(path)

	require.NoError(t, c.Record(hashA, "doc-1"))
	require.NoError(t, c.Record(hashB, "doc-2"))

	docID, ok := c.Lookup(hashA)
	assert.True(t, ok)
	assert.Equal(t, "doc-1", docID)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]string
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, map[string]string{hashA: "doc-1", hashB: "doc-2"}, onDisk)

	reloaded := Load(path)
	assert.Equal(t, 2, reloaded.Len())
	docID, ok = reloaded.Lookup(hashB)
	assert.True(t, ok)
	assert.Equal(t, "doc-2", docID)
}

func TestRecord_OneEntryPerHash(t *testing.T) {
	c := Load(filepath.Join(t.TempDir(), "processed_cache.json"))

	require.NoError(t, c.Record(hashA, "doc-1"))
	require.NoError(t, c.Record(hashA, "doc-2"))

	assert.Equal(t, 1, c.Len())
	docID, _ := c.Lookup(hashA)
	assert.Equal(t, "doc-2", docID)
}

func TestRecord_RejectsEmpty(t *testing.T) {
	c := Load(filepath.Join(t.TempDir(), "processed_cache.json"))

	assert.Error(t, c.Record("", "doc-1"))
	assert.Error(t, c.Record(hashA, ""))
	assert.Equal(t, 0, c.Len())
}

func TestRecord_FlushFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	c := Load(filepath.Join(blocker, "processed_cache.json"))

	err := c.Record(hashA, "doc-1")
	assert.Error(t, err)
	_, ok := c.Lookup(hashA)
	assert.False(t, ok)
}

func TestForget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_cache.json")
	c := Load(path)
	require.NoError(t, c.Record(hashA, "doc-1"))
	require.NoError(t, c.Record(hashB, "doc-2"))

	removed, err := c.Forget("doc-1", "doc-unknown")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := c.Lookup(hashA)
	assert.False(t, ok)
	assert.Equal(t, 1, Load(path).Len())

	removed, err = c.Forget()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestDocumentIndexAndEntries(t *testing.T) {
	c := Load(filepath.Join(t.TempDir(), "processed_cache.json"))
	require.NoError(t, c.Record(hashB, "doc-2"))
	require.NoError(t, c.Record(hashA, "doc-1"))

	assert.Equal(t, map[string]string{"doc-1": hashA, "doc-2": hashB}, c.DocumentIndex())
	assert.Equal(t, []Entry{
		{ContentHash: hashA, DocumentID: "doc-1"},
		{ContentHash: hashB, DocumentID: "doc-2"},
	}, c.Entries())
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_cache.json")
	c := Load(path)
	require.NoError(t, c.Record(hashA, "doc-1"))

	require.NoError(t, c.Clear())

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, Load(path).Len())
}

func TestFlush_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	c := Load(filepath.Join(dir, "processed_cache.json"))
	require.NoError(t, c.Record(hashA, "doc-1"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "processed_cache.json", entries[0].Name())
}
