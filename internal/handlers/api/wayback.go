package api

import (
	"context"
	"net/http"
	"strconv"

	"alpinesight-server/internal/wayback"
)

const defaultZoom = 15

// handleWayback serves the historical imagery timeline for a point.
// URL format: /api/wayback?lat={lat}&lng={lng}&zoom={zoom}&mode={all|local}
//
// A lat or lng that is absent, unparseable, or zero is rejected; the front
// end never queries the exact equator or prime meridian, and zero is what a
// missing coordinate serializes to.
func (s *Server) handleWayback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	lat, latErr := strconv.ParseFloat(query.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(query.Get("lng"), 64)
	if latErr != nil || lngErr != nil || lat == 0 || lng == 0 {
		writeError(w, http.StatusBadRequest, "Missing latitude or longitude")
		return
	}

	zoom := defaultZoom
	if z, err := strconv.Atoi(query.Get("zoom")); err == nil {
		zoom = z
	}

	mode := wayback.ModeAll
	if m := query.Get("mode"); m != "" && m != "all" {
		mode = wayback.ModeLocalChanges
	}

	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	resp, err := s.timeline.BuildTimeline(ctx, lat, lng, zoom, mode)
	if err != nil {
		s.logger.Error("timeline request failed",
			"lat", lat,
			"lng", lng,
			"zoom", zoom,
			"mode", mode,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "Failed to fetch imagery")
		return
	}

	s.tracker.Track("timeline_request_complete", map[string]interface{}{
		"mode":   string(mode),
		"zoom":   zoom,
		"count":  resp.Count,
		"failed": len(resp.Errors),
	})

	writeJSON(w, http.StatusOK, resp)
}
