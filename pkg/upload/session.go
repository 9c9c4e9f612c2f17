// Package upload implements resumable chunked file transfer.
//
// A client splits a large file into fixed-size chunks and submits them in
// any order, possibly concurrently, possibly more than once. The server
// tracks which indices have arrived and reassembles the artifact strictly
// in index order once all chunks are present. Sessions survive client
// crashes: a resuming client asks Status for the set of received indices
// and sends only what is missing. Server state is the single source of
// truth for resume decisions.
package upload

import (
	"sort"
	"time"
)

// SessionStatus is the lifecycle state of an upload session.
//
// NOTE: These values are persisted in session.json and are part of the
// stable on-disk contract.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
)

// Session is the persistent record written to session.json. ChunkSize is
// fixed for the life of the session; every chunk must be exactly ChunkSize
// bytes except the last, which carries the remainder.
type Session struct {
	UploadID    string        `json:"upload_id"`
	Filename    string        `json:"filename"`
	TotalSize   int64         `json:"total_size"`
	ChunkSize   int64         `json:"chunk_size"`
	TotalChunks int           `json:"total_chunks"`
	Status      SessionStatus `json:"status"`

	// ReceivedChunks is kept sorted and duplicate-free. Membership only
	// grows until the session is consumed or aborted.
	ReceivedChunks []int `json:"received_chunks"`

	// Set on completion.
	ArtifactPath string     `json:"artifact_path,omitempty"`
	ContentHash  string     `json:"content_hash,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TotalChunksFor returns ceil(totalSize / chunkSize).
func TotalChunksFor(totalSize, chunkSize int64) int {
	return int((totalSize + chunkSize - 1) / chunkSize)
}

// ExpectedChunkSize returns the required byte length for a chunk index:
// ChunkSize for all indices except the last, which carries the remainder.
func (s *Session) ExpectedChunkSize(index int) int64 {
	if index == s.TotalChunks-1 {
		last := s.TotalSize - s.ChunkSize*int64(s.TotalChunks-1)
		return last
	}
	return s.ChunkSize
}

// ReceivedCount returns how many distinct chunk indices have arrived.
func (s *Session) ReceivedCount() int {
	return len(s.ReceivedChunks)
}

// Has reports whether a chunk index has already been received.
func (s *Session) Has(index int) bool {
	i := sort.SearchInts(s.ReceivedChunks, index)
	return i < len(s.ReceivedChunks) && s.ReceivedChunks[i] == index
}

// markReceived adds an index to the received set, keeping it sorted.
// Re-adding an existing index is a no-op for membership.
func (s *Session) markReceived(index int) {
	i := sort.SearchInts(s.ReceivedChunks, index)
	if i < len(s.ReceivedChunks) && s.ReceivedChunks[i] == index {
		return
	}
	s.ReceivedChunks = append(s.ReceivedChunks, 0)
	copy(s.ReceivedChunks[i+1:], s.ReceivedChunks[i:])
	s.ReceivedChunks[i] = index
}

// Complete reports whether every chunk index in [0, TotalChunks) arrived.
func (s *Session) IsComplete() bool {
	return len(s.ReceivedChunks) == s.TotalChunks
}

// MissingChunks returns the indices not yet received, ascending.
func (s *Session) MissingChunks() []int {
	missing := make([]int, 0, s.TotalChunks-len(s.ReceivedChunks))
	got := make(map[int]struct{}, len(s.ReceivedChunks))
	for _, i := range s.ReceivedChunks {
		got[i] = struct{}{}
	}
	for i := 0; i < s.TotalChunks; i++ {
		if _, ok := got[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}
