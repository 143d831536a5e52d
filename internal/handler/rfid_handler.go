package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/convocation-rfid-api/internal/dto"
	"github.com/noah-isme/convocation-rfid-api/internal/models"
	appErrors "github.com/noah-isme/convocation-rfid-api/pkg/errors"
	"github.com/noah-isme/convocation-rfid-api/pkg/response"
)

// Station devices identify themselves with these headers so scanners can post
// bare EPC payloads.
const (
	headerStation  = "X-Station"
	headerOperator = "X-Operator"
)

type rfidService interface {
	Encode(ctx context.Context, req dto.EncodeTagRequest) (*models.RfidTag, error)
	Scan(ctx context.Context, req dto.ScanRequest) (*dto.ScanResult, error)
	BulkScan(ctx context.Context, req dto.BulkScanRequest) (*dto.BulkScanResult, error)
	Dispatch(ctx context.Context, req dto.DispatchRequest) (*dto.BulkScanResult, error)
	Handover(ctx context.Context, req dto.HandoverRequest) (*dto.BulkScanResult, error)
	Void(ctx context.Context, epc string, req dto.VoidTagRequest) (*models.RfidTag, error)
	BoxContents(ctx context.Context, boxEPC string) (*dto.BoxContentsResponse, error)
	SetBoxContents(ctx context.Context, boxEPC string, req dto.SetBoxContentsRequest) (*models.RfidTag, error)
	Verify(ctx context.Context, raw string) (*dto.VerifyResult, error)
	GetByEPC(ctx context.Context, raw string) (*models.RfidTag, error)
	GetByConvocationNumber(ctx context.Context, convocationNumber string) (*models.RfidTag, error)
	List(ctx context.Context, filter models.RfidTagFilter) ([]models.RfidTag, *models.Pagination, error)
}

// RfidHandler exposes tag lifecycle endpoints.
type RfidHandler struct {
	service rfidService
}

// NewRfidHandler constructs RfidHandler.
func NewRfidHandler(service rfidService) *RfidHandler {
	return &RfidHandler{service: service}
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

func fromHeader(c *gin.Context, value, header string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return strings.TrimSpace(c.GetHeader(header))
}

// List godoc
// @Summary List RFID tags
// @Tags RFID
// @Produce json
// @Param type query string false "graduate or box"
// @Param status query string false "Lifecycle status"
// @Param station query string false "Current station"
// @Param search query string false "EPC, convocation number or name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /rfid/tags [get]
func (h *RfidHandler) List(c *gin.Context) {
	filter := models.RfidTagFilter{
		Type:    models.TagType(strings.ToLower(c.Query("type"))),
		Status:  models.TagStatus(strings.ToLower(c.Query("status"))),
		Station: models.Station(strings.ToLower(c.Query("station"))),
		Search:  strings.TrimSpace(c.Query("search")),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	tags, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tags, pagination)
}

// Encode godoc
// @Summary Register an encoded tag
// @Tags RFID
// @Accept json
// @Produce json
// @Param payload body dto.EncodeTagRequest true "Tag payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /rfid/tags [post]
func (h *RfidHandler) Encode(c *gin.Context) {
	var req dto.EncodeTagRequest
	if !bindJSON(c, &req) {
		return
	}
	req.EncodedBy = fromHeader(c, req.EncodedBy, headerOperator)
	tag, err := h.service.Encode(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tag)
}

// Get godoc
// @Summary Get tag by EPC or raw reader string
// @Tags RFID
// @Produce json
// @Param epc path string true "EPC"
// @Success 200 {object} response.Envelope
// @Router /rfid/tags/{epc} [get]
func (h *RfidHandler) Get(c *gin.Context) {
	tag, err := h.service.GetByEPC(c.Request.Context(), c.Param("epc"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tag, nil)
}

// GetByConvocation godoc
// @Summary Get graduate tag by convocation number
// @Tags RFID
// @Produce json
// @Param number path string true "Convocation number"
// @Success 200 {object} response.Envelope
// @Router /rfid/tags/convocation/{number} [get]
func (h *RfidHandler) GetByConvocation(c *gin.Context) {
	tag, err := h.service.GetByConvocationNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tag, nil)
}

// Verify godoc
// @Summary Resolve a raw read through the EPC fallback chain
// @Tags RFID
// @Accept json
// @Produce json
// @Param payload body dto.VerifyTagRequest true "Raw read"
// @Success 200 {object} response.Envelope
// @Router /rfid/verify [post]
func (h *RfidHandler) Verify(c *gin.Context) {
	var req dto.VerifyTagRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.Verify(c.Request.Context(), req.EPC)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Scan godoc
// @Summary Record a tag at a station
// @Tags RFID
// @Accept json
// @Produce json
// @Param X-Station header string false "Station when omitted from the body"
// @Param X-Operator header string false "Operator when omitted from the body"
// @Param payload body dto.ScanRequest true "Scan payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /rfid/scan [post]
func (h *RfidHandler) Scan(c *gin.Context) {
	var req dto.ScanRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Station = models.Station(fromHeader(c, string(req.Station), headerStation))
	req.ScannedBy = fromHeader(c, req.ScannedBy, headerOperator)
	result, err := h.service.Scan(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// BulkScan godoc
// @Summary Record many tags at a station
// @Tags RFID
// @Accept json
// @Produce json
// @Param payload body dto.BulkScanRequest true "Bulk scan payload"
// @Success 200 {object} response.Envelope
// @Router /rfid/scan/bulk [post]
func (h *RfidHandler) BulkScan(c *gin.Context) {
	var req dto.BulkScanRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Station = models.Station(fromHeader(c, string(req.Station), headerStation))
	req.ScannedBy = fromHeader(c, req.ScannedBy, headerOperator)
	result, err := h.service.BulkScan(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondBatch(c, result)
}

// Dispatch godoc
// @Summary Dispatch tags, expanding boxes
// @Tags RFID
// @Accept json
// @Produce json
// @Param payload body dto.DispatchRequest true "Dispatch payload"
// @Success 200 {object} response.Envelope
// @Router /rfid/dispatch [post]
func (h *RfidHandler) Dispatch(c *gin.Context) {
	var req dto.DispatchRequest
	if !bindJSON(c, &req) {
		return
	}
	req.DispatchedBy = fromHeader(c, req.DispatchedBy, headerOperator)
	result, err := h.service.Dispatch(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondBatch(c, result)
}

// Handover godoc
// @Summary Hand tags over to a recipient, expanding boxes
// @Tags RFID
// @Accept json
// @Produce json
// @Param payload body dto.HandoverRequest true "Handover payload"
// @Success 200 {object} response.Envelope
// @Router /rfid/handover [post]
func (h *RfidHandler) Handover(c *gin.Context) {
	var req dto.HandoverRequest
	if !bindJSON(c, &req) {
		return
	}
	req.HandoverBy = fromHeader(c, req.HandoverBy, headerOperator)
	result, err := h.service.Handover(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondBatch(c, result)
}

// respondBatch answers 200 even when items failed; partial failure is carried
// in the payload and flagged in meta.
func respondBatch(c *gin.Context, result *dto.BulkScanResult) {
	meta := map[string]interface{}{"partial_failure": result.Failed > 0 && result.Successful > 0}
	response.JSON(c, http.StatusOK, result, nil, meta)
}

// Void godoc
// @Summary Void a tag
// @Tags RFID
// @Accept json
// @Produce json
// @Param epc path string true "EPC"
// @Param payload body dto.VoidTagRequest true "Void payload"
// @Success 200 {object} response.Envelope
// @Router /rfid/tags/{epc}/void [post]
func (h *RfidHandler) Void(c *gin.Context) {
	var req dto.VoidTagRequest
	if !bindJSON(c, &req) {
		return
	}
	req.VoidedBy = fromHeader(c, req.VoidedBy, headerOperator)
	tag, err := h.service.Void(c.Request.Context(), c.Param("epc"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tag, nil)
}

// BoxContents godoc
// @Summary Resolve a box's contents
// @Tags RFID
// @Produce json
// @Param epc path string true "Box EPC"
// @Success 200 {object} response.Envelope
// @Router /rfid/boxes/{epc}/contents [get]
func (h *RfidHandler) BoxContents(c *gin.Context) {
	contents, err := h.service.BoxContents(c.Request.Context(), c.Param("epc"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contents, nil)
}

// SetBoxContents godoc
// @Summary Replace a box's contents
// @Tags RFID
// @Accept json
// @Produce json
// @Param epc path string true "Box EPC"
// @Param payload body dto.SetBoxContentsRequest true "Members"
// @Success 200 {object} response.Envelope
// @Router /rfid/boxes/{epc}/contents [put]
func (h *RfidHandler) SetBoxContents(c *gin.Context) {
	var req dto.SetBoxContentsRequest
	if !bindJSON(c, &req) {
		return
	}
	req.UpdatedBy = fromHeader(c, req.UpdatedBy, headerOperator)
	box, err := h.service.SetBoxContents(c.Request.Context(), c.Param("epc"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, box, nil)
}
