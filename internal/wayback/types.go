package wayback

import (
	"alpinesight-server/internal/tiles"
)

// Mode selects which snapshots the catalog returns for a query.
type Mode string

const (
	// ModeAll returns every snapshot the provider has ever published,
	// independent of location.
	ModeAll Mode = "all"

	// ModeLocalChanges returns only snapshots where the provider detected a
	// pixel change at the queried tile relative to the prior snapshot.
	ModeLocalChanges Mode = "local-changes"
)

// SnapshotDescriptor is one historical catalog entry as published by the
// provider. Catalog order is not chronological; the timeline assembler
// re-sorts downstream.
type SnapshotDescriptor struct {
	ReleaseNum      int
	ReleaseDate     string // label, e.g. "2014-02-20"
	ReleaseDatetime int64  // epoch millis
	Title           string
	URLTemplate     string // contains {level}, {row}, {col} placeholders
	MetadataURL     string // release metadata MapServer, empty when absent
	Provider        string
}

// CandidateTile is a SnapshotDescriptor with its URL template resolved
// against a concrete tile coordinate. Index preserves catalog order for the
// final sort tie-break.
type CandidateTile struct {
	SnapshotDescriptor
	TileURL string
	Index   int
}

// FetchOutcome is the per-candidate download result. Either Data is set or
// Err records why all attempts were exhausted. Consumed only by the
// deduplication pass.
type FetchOutcome struct {
	Candidate CandidateTile
	Data      []byte
	Err       error
}

// TimelineItem is a candidate promoted into the response after surviving
// deduplication. CaptureDate is the acquisition date reported by the
// release's metadata layer for this tile; it falls back to the release date
// when the metadata service has no answer.
type TimelineItem struct {
	ReleaseNum      int    `json:"releaseNum"`
	ReleaseDate     string `json:"releaseDate"`
	ReleaseDatetime int64  `json:"releaseDatetime"`
	CaptureDate     string `json:"captureDate,omitempty"`
	Title           string `json:"title"`
	TileURL         string `json:"tileUrl"`
	Provider        string `json:"provider"`
}

// FetchError reports a tile whose download failed after all retries.
type FetchError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Location echoes the queried point back to the caller.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimelineResponse is the externally visible payload: a chronologically
// ordered, deduplicated timeline plus any per-tile fetch errors.
type TimelineResponse struct {
	Location   Location         `json:"location"`
	Zoom       int              `json:"zoom"`
	TileCoords tiles.Coordinate `json:"tileCoords"`
	Count      int              `json:"count"`
	Timeline   []TimelineItem   `json:"timeline"`
	Errors     []FetchError     `json:"errors"`
}
