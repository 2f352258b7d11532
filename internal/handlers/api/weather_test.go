package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeatherProxiesUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "48.85", r.URL.Query().Get("latitude"))
		assert.Equal(t, "2.35", r.URL.Query().Get("longitude"))
		assert.Equal(t, "temperature_2m", r.URL.Query().Get("current"))
		assert.Equal(t, "sunrise,sunset", r.URL.Query().Get("daily"))
		assert.Equal(t, "auto", r.URL.Query().Get("timezone"))
		fmt.Fprint(w, `{"current":{"temperature_2m":21.4}}`)
	}))
	t.Cleanup(upstream.Close)

	s := newTestServer(t, "http://invalid.example.com/config.json", upstream.URL)

	rec := doRequest(t, s, "/api/weather?lat=48.85&lng=2.35")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"current":{"temperature_2m":21.4}}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestWeatherMissingCoordinates(t *testing.T) {
	s := newTestServer(t, "http://invalid.example.com/config.json", "http://invalid.example.com")

	rec := doRequest(t, s, "/api/weather?lat=48.85")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error": "Missing latitude or longitude"}`, rec.Body.String())
}

func TestWeatherUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(upstream.Close)

	s := newTestServer(t, "http://invalid.example.com/config.json", upstream.URL)

	rec := doRequest(t, s, "/api/weather?lat=48.85&lng=2.35")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error": "Failed to fetch weather data"}`, rec.Body.String())
}
