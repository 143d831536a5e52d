package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/convocation-rfid-api/internal/dto"
	"github.com/noah-isme/convocation-rfid-api/internal/models"
)

func TestParseStationsDefaultsToSequence(t *testing.T) {
	stations, err := parseStations("")
	require.NoError(t, err)
	assert.Equal(t, models.StationSequence, stations)

	stations, err = parseStations("Packing, registration,")
	require.NoError(t, err)
	assert.Equal(t, []models.Station{models.StationPacking, models.StationRegistration}, stations)

	_, err = parseStations("loading-dock")
	assert.Error(t, err)
}

func TestSweepStationDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rfid/reconciliation/registration", r.URL.Path)
		assert.Equal(t, "sweeper", r.Header.Get("X-Operator"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"station":"registration","position":3,"counts":{"onTrack":2,"notYetArrived":1,"stale":1,"total":3}}}`))
	}))
	defer srv.Close()

	res := sweepStation(srv.Client(), srv.URL+"/api/v1/", "sweeper", models.StationRegistration)
	require.NoError(t, res.Error)
	assert.Equal(t, 3, res.Report.Position)
	assert.Equal(t, 1, res.Report.Counts.Stale)
}

func TestDecodeReportSurfacesAPIError(t *testing.T) {
	_, err := decodeReport(http.StatusServiceUnavailable, strings.NewReader(`{"error":{"code":"BACKEND_UNAVAILABLE","message":"record store unavailable"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKEND_UNAVAILABLE")
}

func TestCountFailing(t *testing.T) {
	results := []sweepResult{
		{Station: models.StationPacking, Report: &dto.StationReconciliation{Counts: dto.ReconciliationCounts{Stale: 0}}},
		{Station: models.StationRegistration, Report: &dto.StationReconciliation{Counts: dto.ReconciliationCounts{Stale: 4}}},
		{Station: models.StationHandover, Error: errors.New("timeout")},
	}
	assert.Equal(t, 2, countFailing(results, 0))
	assert.Equal(t, 1, countFailing(results, 5))
}
