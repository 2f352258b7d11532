package api

import (
	"net/http"
	"strconv"
)

// handleWeather proxies the Open-Meteo forecast API for the assistant's
// weather tool. The upstream JSON is returned verbatim.
func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	lat, latErr := strconv.ParseFloat(query.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(query.Get("lng"), 64)
	if latErr != nil || lngErr != nil {
		writeError(w, http.StatusBadRequest, "Missing latitude or longitude")
		return
	}

	payload, err := s.weather.Current(r.Context(), lat, lng)
	if err != nil {
		s.logger.Error("weather request failed", "lat", lat, "lng", lng, "error", err)
		writeError(w, http.StatusBadGateway, "Failed to fetch weather data")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
