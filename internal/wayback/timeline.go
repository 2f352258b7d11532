package wayback

import (
	"crypto/sha256"
	"sort"

	"alpinesight-server/internal/tiles"
)

// timelineEntry pairs a response item with its catalog position, which
// breaks release-timestamp ties during the final sort.
type timelineEntry struct {
	item         TimelineItem
	catalogOrder int
}

// dedupe collapses outcomes whose bytes hash identically, keeping the first
// candidate (in completion order) per distinct image. The provider
// re-publishes unchanged tiles under new release numbers, so duplicates are
// byte-identical and it does not matter which release's metadata survives.
// Failed fetches are routed to the error list instead.
func dedupe(outcomes []FetchOutcome) ([]timelineEntry, []FetchError) {
	seen := make(map[[sha256.Size]byte]bool, len(outcomes))
	entries := make([]timelineEntry, 0, len(outcomes))
	errs := make([]FetchError, 0)

	for _, out := range outcomes {
		if out.Err != nil {
			errs = append(errs, FetchError{
				URL:   out.Candidate.TileURL,
				Error: out.Err.Error(),
			})
			continue
		}

		sum := sha256.Sum256(out.Data)
		if seen[sum] {
			continue
		}
		seen[sum] = true

		entries = append(entries, timelineEntry{
			item: TimelineItem{
				ReleaseNum:      out.Candidate.ReleaseNum,
				ReleaseDate:     out.Candidate.ReleaseDate,
				ReleaseDatetime: out.Candidate.ReleaseDatetime,
				Title:           out.Candidate.Title,
				TileURL:         out.Candidate.TileURL,
				Provider:        out.Candidate.Provider,
			},
			catalogOrder: out.Candidate.Index,
		})
	}

	return entries, errs
}

// AssembleTimeline deduplicates the fetch outcomes and packages them into
// the final response, ordered ascending by release timestamp. This is the
// only place a total order is imposed.
func AssembleTimeline(loc Location, zoom int, coord tiles.Coordinate, outcomes []FetchOutcome) *TimelineResponse {
	entries, errs := dedupe(outcomes)

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].item.ReleaseDatetime != entries[j].item.ReleaseDatetime {
			return entries[i].item.ReleaseDatetime < entries[j].item.ReleaseDatetime
		}
		return entries[i].catalogOrder < entries[j].catalogOrder
	})

	timeline := make([]TimelineItem, 0, len(entries))
	for _, e := range entries {
		timeline = append(timeline, e.item)
	}

	return &TimelineResponse{
		Location:   loc,
		Zoom:       zoom,
		TileCoords: coord,
		Count:      len(timeline),
		Timeline:   timeline,
		Errors:     errs,
	}
}
