package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TagType differentiates graduate certificate tags from box tags.
type TagType string

const (
	TagTypeGraduate TagType = "graduate"
	TagTypeBox      TagType = "box"
)

// Valid reports whether the tag type is known.
func (t TagType) Valid() bool {
	return t == TagTypeGraduate || t == TagTypeBox
}

// TagStatus is the coarse lifecycle phase of a tag.
type TagStatus string

const (
	TagStatusEncoded    TagStatus = "encoded"
	TagStatusScanned    TagStatus = "scanned"
	TagStatusDispatched TagStatus = "dispatched"
	TagStatusDelivered  TagStatus = "delivered"
	TagStatusReturned   TagStatus = "returned"
	TagStatusVoid       TagStatus = "void"
)

// AllTagStatuses lists statuses in reporting order.
var AllTagStatuses = []TagStatus{
	TagStatusEncoded,
	TagStatusScanned,
	TagStatusReturned,
	TagStatusDispatched,
	TagStatusDelivered,
	TagStatusVoid,
}

var statusRank = map[TagStatus]int{
	TagStatusEncoded:    0,
	TagStatusScanned:    1,
	TagStatusReturned:   2,
	TagStatusDispatched: 3,
	TagStatusDelivered:  4,
}

// Advance returns the status a tag moves to when a transition maps to next.
// Status never moves backwards, except that a dispatched tag can come back
// as returned when the courier hands it in. Delivered and void are sticky.
func (s TagStatus) Advance(next TagStatus) TagStatus {
	if s == TagStatusVoid || next == TagStatusVoid {
		return TagStatusVoid
	}
	if s == TagStatusDispatched && next == TagStatusReturned {
		return TagStatusReturned
	}
	if statusRank[next] > statusRank[s] {
		return next
	}
	return s
}

// DispatchMethod enumerates supported courier methods.
type DispatchMethod string

const (
	DispatchMethodDTDC         DispatchMethod = "DTDC"
	DispatchMethodIndiaPost    DispatchMethod = "India Post"
	DispatchMethodHandDelivery DispatchMethod = "Hand Delivery"
)

// Valid reports whether the dispatch method is supported.
func (m DispatchMethod) Valid() bool {
	switch m {
	case DispatchMethodDTDC, DispatchMethodIndiaPost, DispatchMethodHandDelivery:
		return true
	}
	return false
}

// ScanRecord is one entry of a tag's audit trail.
type ScanRecord struct {
	Station   Station   `json:"station"`
	Timestamp time.Time `json:"timestamp"`
	ScannedBy string    `json:"scannedBy"`
	Action    string    `json:"action"`
	Notes     string    `json:"notes,omitempty"`
}

// ScanHistory is the append-only audit trail persisted as JSONB.
type ScanHistory []ScanRecord

// Value marshals the history for persistence.
func (h ScanHistory) Value() (driver.Value, error) {
	if h == nil {
		h = ScanHistory{}
	}
	data, err := json.Marshal([]ScanRecord(h))
	if err != nil {
		return nil, fmt.Errorf("marshal scan history: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB history column.
func (h *ScanHistory) Scan(value interface{}) error {
	data, err := jsonBytes(value, "ScanHistory")
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*h = ScanHistory{}
		return nil
	}
	var records []ScanRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("unmarshal scan history: %w", err)
	}
	*h = records
	return nil
}

// EPCList is an ordered list of member EPCs persisted as JSONB.
type EPCList []string

// Value marshals the list for persistence.
func (l EPCList) Value() (driver.Value, error) {
	if l == nil {
		l = EPCList{}
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, fmt.Errorf("marshal epc list: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB list column.
func (l *EPCList) Scan(value interface{}) error {
	data, err := jsonBytes(value, "EPCList")
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*l = EPCList{}
		return nil
	}
	var epcs []string
	if err := json.Unmarshal(data, &epcs); err != nil {
		return fmt.Errorf("unmarshal epc list: %w", err)
	}
	*l = epcs
	return nil
}

func jsonBytes(value interface{}, name string) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type %T for %s", value, name)
	}
}

// RfidTag is one physical tag ever encoded.
type RfidTag struct {
	ID                string      `db:"id" json:"id"`
	EPC               string      `db:"epc" json:"epc"`
	Type              TagType     `db:"type" json:"type"`
	ConvocationNumber *string     `db:"convocation_number" json:"convocationNumber,omitempty"`
	BoxID             *string     `db:"box_id" json:"boxId,omitempty"`
	BoxLabel          *string     `db:"box_label" json:"boxLabel,omitempty"`
	BoxContents       EPCList     `db:"box_contents" json:"boxContents,omitempty"`
	GraduateName      *string     `db:"graduate_name" json:"graduateName,omitempty"`
	TitoTicketID      *string     `db:"tito_ticket_id" json:"titoTicketId,omitempty"`
	TitoTicketSlug    *string     `db:"tito_ticket_slug" json:"titoTicketSlug,omitempty"`
	Status            TagStatus   `db:"status" json:"status"`
	CurrentStation    Station     `db:"current_station" json:"currentStation"`
	EncodedAt         time.Time   `db:"encoded_at" json:"encodedAt"`
	EncodedBy         string      `db:"encoded_by" json:"encodedBy"`
	LastScanAt        *time.Time  `db:"last_scan_at" json:"lastScanAt,omitempty"`
	LastScanBy        *string     `db:"last_scan_by" json:"lastScanBy,omitempty"`
	LastScanStation   *Station    `db:"last_scan_station" json:"lastScanStation,omitempty"`
	ScanHistory       ScanHistory `db:"scan_history" json:"scanHistory"`
	Version           int         `db:"version" json:"version"`
	CreatedAt         time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updatedAt"`
}

// IsVoid reports whether the tag has been voided.
func (t *RfidTag) IsVoid() bool {
	return t != nil && t.Status == TagStatusVoid
}

// IsBox reports whether the tag is a container.
func (t *RfidTag) IsBox() bool {
	return t != nil && t.Type == TagTypeBox
}

// Clone returns a deep copy so callers can mutate history without aliasing.
func (t RfidTag) Clone() RfidTag {
	clone := t
	if t.BoxContents != nil {
		clone.BoxContents = append(EPCList(nil), t.BoxContents...)
	}
	if t.ScanHistory != nil {
		clone.ScanHistory = append(ScanHistory(nil), t.ScanHistory...)
	}
	return clone
}

// Record appends a scan entry and moves the tag to the entry's station.
// The status is advanced with the station mapping unless an explicit status is given.
func (t *RfidTag) Record(entry ScanRecord, status *TagStatus) {
	t.ScanHistory = append(t.ScanHistory, entry)
	t.CurrentStation = entry.Station
	at := entry.Timestamp
	by := entry.ScannedBy
	station := entry.Station
	t.LastScanAt = &at
	t.LastScanBy = &by
	t.LastScanStation = &station
	if status != nil {
		t.Status = t.Status.Advance(*status)
		return
	}
	t.Status = t.Status.Advance(StatusForStation(entry.Station))
}

// StringValue dereferences optional string fields.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns nil for blank strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// RfidTagFilter narrows tag listings.
type RfidTagFilter struct {
	Type     TagType
	Status   TagStatus
	Station  Station
	Search   string
	Page     int
	PageSize int
}
