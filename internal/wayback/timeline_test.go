package wayback

import (
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpinesight-server/internal/tiles"
)

func outcome(releaseNum int, datetime int64, index int, data string) FetchOutcome {
	return FetchOutcome{
		Candidate: CandidateTile{
			SnapshotDescriptor: SnapshotDescriptor{
				ReleaseNum:      releaseNum,
				ReleaseDatetime: datetime,
				ReleaseDate:     "2020-01-01",
				Provider:        "WB_Test",
			},
			TileURL: "https://tiles.example.com/" + data,
			Index:   index,
		},
		Data: []byte(data),
	}
}

func retainedHashes(entries []timelineEntry, byURL map[string][]byte) map[[sha256.Size]byte]bool {
	hashes := make(map[[sha256.Size]byte]bool)
	for _, e := range entries {
		hashes[sha256.Sum256(byURL[e.item.TileURL])] = true
	}
	return hashes
}

func TestDedupeCollapsesIdenticalBytes(t *testing.T) {
	outcomes := []FetchOutcome{
		outcome(1, 100, 0, "alpha"),
		outcome(2, 200, 1, "beta"),
		outcome(3, 300, 2, "alpha"), // byte-identical to release 1
	}

	entries, errs := dedupe(outcomes)

	require.Len(t, entries, 2)
	assert.Empty(t, errs)
	// First completion wins among duplicates.
	assert.Equal(t, 1, entries[0].item.ReleaseNum)
	assert.Equal(t, 2, entries[1].item.ReleaseNum)
}

func TestDedupeIdempotentAcrossCompletionOrders(t *testing.T) {
	forward := []FetchOutcome{
		outcome(1, 100, 0, "alpha"),
		outcome(2, 200, 1, "beta"),
		outcome(3, 300, 2, "alpha"),
		outcome(4, 400, 3, "gamma"),
	}
	reversed := []FetchOutcome{forward[3], forward[2], forward[1], forward[0]}

	byURL := make(map[string][]byte)
	for _, o := range forward {
		byURL[o.Candidate.TileURL] = o.Data
	}

	a, _ := dedupe(forward)
	b, _ := dedupe(reversed)

	require.Len(t, a, 3)
	require.Len(t, b, 3)
	assert.Equal(t, retainedHashes(a, byURL), retainedHashes(b, byURL))
}

func TestDedupeRoutesFailuresToErrors(t *testing.T) {
	outcomes := []FetchOutcome{
		outcome(1, 100, 0, "alpha"),
		{
			Candidate: CandidateTile{TileURL: "https://tiles.example.com/broken"},
			Err:       errors.New("after 3 attempts: unexpected status: 500"),
		},
	}

	entries, errs := dedupe(outcomes)

	require.Len(t, entries, 1)
	require.Len(t, errs, 1)
	assert.Equal(t, "https://tiles.example.com/broken", errs[0].URL)
	assert.Contains(t, errs[0].Error, "after 3 attempts")
}

func TestAssembleTimelineOrdersByReleaseDatetime(t *testing.T) {
	// Completion order is scrambled relative to chronology.
	outcomes := []FetchOutcome{
		outcome(3, 300, 2, "c"),
		outcome(1, 100, 0, "a"),
		outcome(4, 400, 3, "d"),
		outcome(2, 200, 1, "b"),
	}

	resp := AssembleTimeline(Location{Lat: 48.85, Lng: 2.29}, 15, tiles.Coordinate{X: 1, Y: 2, Z: 15}, outcomes)

	require.Equal(t, 4, resp.Count)
	require.Len(t, resp.Timeline, 4)
	for i := 0; i < len(resp.Timeline)-1; i++ {
		assert.LessOrEqual(t, resp.Timeline[i].ReleaseDatetime, resp.Timeline[i+1].ReleaseDatetime)
	}
	assert.Empty(t, resp.Errors)
}

func TestAssembleTimelineTieBreaksByCatalogOrder(t *testing.T) {
	// Same release timestamp, arriving in reverse catalog order.
	outcomes := []FetchOutcome{
		outcome(9, 500, 4, "later-in-catalog"),
		outcome(7, 500, 1, "earlier-in-catalog"),
	}

	resp := AssembleTimeline(Location{}, 15, tiles.Coordinate{}, outcomes)

	require.Len(t, resp.Timeline, 2)
	assert.Equal(t, 7, resp.Timeline[0].ReleaseNum)
	assert.Equal(t, 9, resp.Timeline[1].ReleaseNum)
}

func TestAssembleTimelineCountMatchesTimeline(t *testing.T) {
	outcomes := []FetchOutcome{
		outcome(1, 100, 0, "a"),
		outcome(2, 200, 1, "a"), // duplicate
		{
			Candidate: CandidateTile{TileURL: "https://tiles.example.com/broken"},
			Err:       errors.New("boom"),
		},
	}

	resp := AssembleTimeline(Location{}, 15, tiles.Coordinate{}, outcomes)

	assert.Equal(t, 1, resp.Count)
	assert.Len(t, resp.Timeline, resp.Count)
	assert.Len(t, resp.Errors, 1)
}

func TestAssembleTimelineEmptyIsWellFormed(t *testing.T) {
	resp := AssembleTimeline(Location{Lat: 1, Lng: 2}, 15, tiles.Coordinate{X: 1, Y: 1, Z: 15}, nil)

	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Timeline)
	assert.NotNil(t, resp.Errors)
}
