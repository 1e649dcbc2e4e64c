package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UnknownFilename is shown for chunks whose document had no filename.
const UnknownFilename = "Unknown Source"

// pointNamespace scopes UUIDv5 point identifiers derived from chunk ids.
var pointNamespace = uuid.MustParse("8f2c6d1e-3b4a-5c7d-9e0f-1a2b3c4d5e6f")

// Document is one uploaded file.
type Document struct {
	ID          string `json:"document_id"`
	ContentHash string `json:"content_hash"`
	Filename    string `json:"filename"`
	NumChunks   int    `json:"num_chunks"`
}

// DocumentRef is the metadata-only view of a stored document.
type DocumentRef struct {
	ID       string `json:"document_id"`
	Filename string `json:"filename"`
}

// Page is one page of extracted text. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// ChunkRecord is the payload stored with every vector point.
type ChunkRecord struct {
	ChunkID    string            `json:"chunk_id"`
	Text       string            `json:"text"`
	DocumentID string            `json:"document_id"`
	Filename   string            `json:"filename"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// ScoredChunk is a search hit: the stored record plus its similarity score.
type ScoredChunk struct {
	ChunkRecord
	Score float32 `json:"score"`
}

// DisplaySource renders the chunk's origin for humans, falling back to a short document id.
func (c ChunkRecord) DisplaySource() string {
	if c.Filename != "" && c.Filename != UnknownFilename {
		return c.Filename
	}
	if c.DocumentID == "" {
		return "Source N/A"
	}
	return fmt.Sprintf("%s (ID: %s...)", UnknownFilename, ShortID(c.DocumentID))
}

// ChunkID builds the deterministic identifier of the index-th chunk of a document.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_%d", documentID, index)
}

// PointID maps a chunk id onto the UUID used as the vector point key, so re-upserting a chunk overwrites it.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// NormalizeFilename trims the name and substitutes the sentinel when it is empty.
func NormalizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return UnknownFilename
	}
	return name
}

// ShortID returns the first eight characters of an id for display.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// UpdateStatus is the completion status a vector store reports for a write.
type UpdateStatus string

const (
	UpdateStatusCompleted    UpdateStatus = "completed"
	UpdateStatusAcknowledged UpdateStatus = "acknowledged"
)

// IsValid checks if the update status is known
func (s UpdateStatus) IsValid() bool {
	switch s {
	case UpdateStatusCompleted, UpdateStatusAcknowledged:
		return true
	}
	return false
}

// Completed reports whether the write is fully applied.
func (s UpdateStatus) Completed() bool {
	return s == UpdateStatusCompleted
}
