package wayback

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"alpinesight-server/internal/tiles"
)

// Service runs the full timeline pipeline: resolve the tile coordinate,
// query the catalog, materialize tile URLs, fetch every candidate under the
// bounded pool, then deduplicate and order the result.
type Service struct {
	catalog *Catalog
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewService creates the timeline service.
func NewService(catalog *Catalog, fetcher *Fetcher, logger *slog.Logger) *Service {
	return &Service{
		catalog: catalog,
		fetcher: fetcher,
		logger:  logger.With("component", "wayback"),
	}
}

// BuildTimeline produces the deduplicated, chronologically ordered timeline
// for a point and zoom level. Catalog failures escalate; per-tile fetch
// failures are isolated into the response's error list.
func (s *Service) BuildTimeline(ctx context.Context, lat, lng float64, zoom int, mode Mode) (*TimelineResponse, error) {
	coord := tiles.Resolve(lat, lng, zoom)

	descriptors, err := s.catalog.Snapshots(ctx, mode, coord)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}

	candidates := make([]CandidateTile, 0, len(descriptors))
	for i, desc := range descriptors {
		candidates = append(candidates, Materialize(desc, coord, i))
	}

	outcomes := s.fetcher.FetchAll(ctx, candidates)
	resp := AssembleTimeline(Location{Lat: lat, Lng: lng}, zoom, coord, outcomes)
	s.annotateCaptureDates(ctx, resp, descriptors, coord)

	s.logger.Info("timeline assembled",
		"mode", mode,
		"tile", fmt.Sprintf("%d/%d/%d", coord.Z, coord.X, coord.Y),
		"snapshots", len(descriptors),
		"unique", resp.Count,
		"failed", len(resp.Errors),
	)

	return resp, nil
}

// annotateCaptureDates fills each timeline item's CaptureDate from the
// release's metadata layer. Lookups fan out under the same concurrency
// ceiling as tile fetches; failures leave the release-date fallback in
// place and never fail the request.
func (s *Service) annotateCaptureDates(ctx context.Context, resp *TimelineResponse, descriptors []SnapshotDescriptor, coord tiles.Coordinate) {
	if len(resp.Timeline) == 0 {
		return
	}

	byNum := make(map[int]SnapshotDescriptor, len(descriptors))
	for _, desc := range descriptors {
		byNum[desc.ReleaseNum] = desc
	}

	var g errgroup.Group
	g.SetLimit(s.fetcher.workers)

	for i := range resp.Timeline {
		item := &resp.Timeline[i]
		desc, ok := byNum[item.ReleaseNum]
		if !ok {
			continue
		}
		g.Go(func() error {
			date, err := s.catalog.TileDate(ctx, desc, coord)
			if err != nil {
				s.logger.Warn("capture date lookup failed",
					"release", item.ReleaseNum,
					"error", err,
				)
			}
			item.CaptureDate = date.Format(ReleaseDateFormat)
			return nil
		})
	}
	_ = g.Wait()
}
