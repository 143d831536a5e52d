package dto

import (
	"time"

	"github.com/noah-isme/convocation-rfid-api/internal/models"
)

// EncodeTagRequest registers a freshly written tag.
type EncodeTagRequest struct {
	EPC               string         `json:"epc" validate:"required,min=4"`
	Type              models.TagType `json:"type" validate:"required,oneof=graduate box"`
	ConvocationNumber string         `json:"convocationNumber"`
	BoxID             string         `json:"boxId"`
	BoxLabel          string         `json:"boxLabel"`
	BoxContents       []string       `json:"boxContents"`
	EncodedBy         string         `json:"encodedBy" validate:"required"`
	Notes             string         `json:"notes"`
}

// ScanRequest records a tag passing a station.
type ScanRequest struct {
	EPC       string         `json:"epc" validate:"required"`
	Station   models.Station `json:"station" validate:"required"`
	ScannedBy string         `json:"scannedBy" validate:"required"`
	Notes     string         `json:"notes"`
}

// BulkScanRequest records many tags passing one station.
type BulkScanRequest struct {
	EPCs      []string       `json:"epcs" validate:"required,min=1"`
	Station   models.Station `json:"station" validate:"required"`
	ScannedBy string         `json:"scannedBy" validate:"required"`
	Action    string         `json:"action"`
	Notes     string         `json:"notes"`
}

// DispatchRequest sends tags, boxes expanded, out by courier.
type DispatchRequest struct {
	EPCs           []string              `json:"epcs" validate:"required,min=1"`
	DispatchedBy   string                `json:"dispatchedBy" validate:"required"`
	TrackingNumber string                `json:"trackingNumber"`
	DispatchMethod models.DispatchMethod `json:"dispatchMethod"`
	Notes          string                `json:"notes"`
}

// HandoverRequest hands tags, boxes expanded, to a recipient.
type HandoverRequest struct {
	EPCs       []string `json:"epcs" validate:"required,min=1"`
	HandoverBy string   `json:"handoverBy" validate:"required"`
	HandoverTo string   `json:"handoverTo" validate:"required"`
	Notes      string   `json:"notes"`
}

// VoidTagRequest retires a tag.
type VoidTagRequest struct {
	Reason   string `json:"reason" validate:"required"`
	VoidedBy string `json:"voidedBy" validate:"required"`
}

// VerifyTagRequest carries a raw reader string.
type VerifyTagRequest struct {
	EPC string `json:"epc" validate:"required"`
}

// SetBoxContentsRequest replaces a box's member list.
type SetBoxContentsRequest struct {
	EPCs      []string `json:"epcs"`
	UpdatedBy string   `json:"updatedBy" validate:"required"`
}

// TitoCheckinResult reports the best-effort ticketing side call of a scan.
type TitoCheckinResult struct {
	Attempted bool   `json:"attempted"`
	Success   bool   `json:"success"`
	TicketID  string `json:"ticketId,omitempty"`
	List      string `json:"checkinList,omitempty"`
	Error     string `json:"error,omitempty"`
	Queued    bool   `json:"queued,omitempty"`
}

// ScanResult is the outcome for one EPC.
type ScanResult struct {
	EPC         string             `json:"epc"`
	Success     bool               `json:"success"`
	Error       string             `json:"error,omitempty"`
	Tag         *models.RfidTag    `json:"tag,omitempty"`
	TitoCheckin *TitoCheckinResult `json:"titoCheckin,omitempty"`
}

// BulkScanResult summarises a batch. Failures are data, not errors.
type BulkScanResult struct {
	Total        int          `json:"total"`
	Successful   int          `json:"successful"`
	Failed       int          `json:"failed"`
	TitoCheckins int          `json:"titoCheckins"`
	Results      []ScanResult `json:"results"`
}

// VerifyResult reports the fallback-chain match for a raw read.
type VerifyResult struct {
	Input       string          `json:"input"`
	Found       bool            `json:"found"`
	MatchedEPC  string          `json:"matchedEpc,omitempty"`
	MatchMethod string          `json:"matchMethod,omitempty"`
	DetectedAs  string          `json:"detectedAs,omitempty"`
	Tag         *models.RfidTag `json:"tag,omitempty"`
}

// BoxContentsResponse resolves a box's members.
type BoxContentsResponse struct {
	Box     models.RfidTag   `json:"box"`
	Items   []models.RfidTag `json:"items"`
	Missing []string         `json:"missing,omitempty"`
}

// RecentScan is one flattened scan history entry.
type RecentScan struct {
	EPC               string         `json:"epc"`
	Type              models.TagType `json:"type"`
	ConvocationNumber string         `json:"convocationNumber,omitempty"`
	GraduateName      string         `json:"graduateName,omitempty"`
	Station           models.Station `json:"station"`
	Timestamp         time.Time      `json:"timestamp"`
	ScannedBy         string         `json:"scannedBy"`
	Action            string         `json:"action"`
}

// BoxSummary aggregates box tags.
type BoxSummary struct {
	TotalBoxes   int `json:"totalBoxes"`
	ItemsInBoxes int `json:"itemsInBoxes"`
}

// RfidDashboardStats is the single-pass dashboard view over all tags.
type RfidDashboardStats struct {
	Total       int            `json:"total"`
	ByType      map[string]int `json:"byType"`
	ByStatus    map[string]int `json:"byStatus"`
	ByStation   map[string]int `json:"byStation"`
	RecentScans []RecentScan   `json:"recentScans"`
	BoxSummary  BoxSummary     `json:"boxSummary"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// ReconciliationEntry is one tag as seen from a station.
type ReconciliationEntry struct {
	EPC               string           `json:"epc"`
	Type              models.TagType   `json:"type"`
	ConvocationNumber string           `json:"convocationNumber,omitempty"`
	GraduateName      string           `json:"graduateName,omitempty"`
	Status            models.TagStatus `json:"status"`
	CurrentStation    models.Station   `json:"currentStation"`
	LastScanAt        *time.Time       `json:"lastScanAt,omitempty"`
}

// ReconciliationCounts sizes each bucket.
type ReconciliationCounts struct {
	OnTrack       int `json:"onTrack"`
	Advanced      int `json:"advanced"`
	NotYetArrived int `json:"notYetArrived"`
	Stale         int `json:"stale"`
	Total         int `json:"total"`
}

// StationReconciliation partitions the population relative to one station.
// Stale is a subset of NotYetArrived.
type StationReconciliation struct {
	Station       models.Station        `json:"station"`
	Position      int                   `json:"position"`
	OnTrack       []ReconciliationEntry `json:"onTrack"`
	Advanced      []ReconciliationEntry `json:"advanced"`
	NotYetArrived []ReconciliationEntry `json:"notYetArrived"`
	Stale         []ReconciliationEntry `json:"stale"`
	Counts        ReconciliationCounts  `json:"counts"`
	GeneratedAt   time.Time             `json:"generatedAt"`
}
