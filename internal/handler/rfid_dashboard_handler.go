package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/convocation-rfid-api/internal/dto"
	"github.com/noah-isme/convocation-rfid-api/internal/middleware"
	appErrors "github.com/noah-isme/convocation-rfid-api/pkg/errors"
	"github.com/noah-isme/convocation-rfid-api/pkg/response"
)

type rfidDashboardService interface {
	Stats(ctx context.Context) (*dto.RfidDashboardStats, bool, error)
	Reconciliation(ctx context.Context, station string) (*dto.StationReconciliation, error)
	ExportReconciliation(ctx context.Context, station, format string) (string, string, []byte, error)
	ClearCache(ctx context.Context) error
}

// RfidDashboardHandler serves station dashboards and reconciliation reports.
type RfidDashboardHandler struct {
	service rfidDashboardService
}

// NewRfidDashboardHandler constructs the handler.
func NewRfidDashboardHandler(service rfidDashboardService) *RfidDashboardHandler {
	return &RfidDashboardHandler{service: service}
}

// Stats godoc
// @Summary Tag population dashboard
// @Tags RFID Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /rfid/dashboard [get]
func (h *RfidDashboardHandler) Stats(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	stats, cacheHit, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// Reconciliation godoc
// @Summary Classify every tag relative to a station
// @Tags RFID Dashboard
// @Produce json
// @Produce text/csv
// @Param station path string true "Station"
// @Param format query string false "csv to download instead of JSON"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /rfid/reconciliation/{station} [get]
func (h *RfidDashboardHandler) Reconciliation(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	station := c.Param("station")
	if format := strings.TrimSpace(c.Query("format")); format != "" && !strings.EqualFold(format, "json") {
		filename, contentType, body, err := h.service.ExportReconciliation(c.Request.Context(), station, format)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Attachment(c, filename, contentType, body)
		return
	}
	report, err := h.service.Reconciliation(c.Request.Context(), station)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ClearCache godoc
// @Summary Drop the tag snapshot and cached dashboard payloads
// @Tags RFID Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /rfid/cache/clear [post]
func (h *RfidDashboardHandler) ClearCache(c *gin.Context) {
	if err := h.service.ClearCache(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"cleared": true}, nil)
}
