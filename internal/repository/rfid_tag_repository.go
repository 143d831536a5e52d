package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/convocation-rfid-api/internal/models"
	appErrors "github.com/noah-isme/convocation-rfid-api/pkg/errors"
)

const rfidTagColumns = `id, epc, type, convocation_number, box_id, box_label, box_contents, graduate_name,
        tito_ticket_id, tito_ticket_slug, status, current_station, encoded_at, encoded_by,
        last_scan_at, last_scan_by, last_scan_station, scan_history, version, created_at, updated_at`

// uniqueViolation is the Postgres code raised by the live-EPC partial index.
const uniqueViolation = "23505"

// Live records win over void ones when an EPC has been re-encoded.
const liveFirstOrder = `ORDER BY (status = 'void') ASC, created_at DESC LIMIT 1`

// RfidTagRepository persists tag records in the rfid_tags table.
type RfidTagRepository struct {
	db       *sqlx.DB
	pageSize int
}

// NewRfidTagRepository constructs a tag repository. pageSize bounds each page
// read while building the population map.
func NewRfidTagRepository(db *sqlx.DB, pageSize int) *RfidTagRepository {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &RfidTagRepository{db: db, pageSize: pageSize}
}

// FindByEPC returns the record for an exact, already-normalised EPC.
func (r *RfidTagRepository) FindByEPC(ctx context.Context, epc string) (*models.RfidTag, error) {
	query := fmt.Sprintf("SELECT %s FROM rfid_tags WHERE epc = $1 %s", rfidTagColumns, liveFirstOrder)
	var tag models.RfidTag
	if err := r.db.GetContext(ctx, &tag, query, epc); err != nil {
		return nil, err
	}
	return &tag, nil
}

// FindByConvocationNumber returns the graduate tag for a convocation number.
func (r *RfidTagRepository) FindByConvocationNumber(ctx context.Context, convocationNumber string) (*models.RfidTag, error) {
	query := fmt.Sprintf("SELECT %s FROM rfid_tags WHERE convocation_number = $1 %s", rfidTagColumns, liveFirstOrder)
	var tag models.RfidTag
	if err := r.db.GetContext(ctx, &tag, query, convocationNumber); err != nil {
		return nil, err
	}
	return &tag, nil
}

// Create inserts a new tag record.
func (r *RfidTagRepository) Create(ctx context.Context, tag *models.RfidTag) error {
	if tag.ID == "" {
		tag.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = now
	}
	tag.UpdatedAt = now
	if tag.Version == 0 {
		tag.Version = 1
	}
	const query = `INSERT INTO rfid_tags (id, epc, type, convocation_number, box_id, box_label, box_contents, graduate_name,
        tito_ticket_id, tito_ticket_slug, status, current_station, encoded_at, encoded_by,
        last_scan_at, last_scan_by, last_scan_station, scan_history, version, created_at, updated_at)
        VALUES (:id, :epc, :type, :convocation_number, :box_id, :box_label, :box_contents, :graduate_name,
        :tito_ticket_id, :tito_ticket_slug, :status, :current_station, :encoded_at, :encoded_by,
        :last_scan_at, :last_scan_by, :last_scan_station, :scan_history, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, tag); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return appErrors.Clone(appErrors.ErrConflict, "epc already registered")
		}
		return fmt.Errorf("create rfid tag: %w", err)
	}
	return nil
}

// Update writes the mutable fields of a tag using tag.Version as a
// compare-and-swap token. On success tag.Version is incremented; when another
// writer got there first ErrVersionConflict is returned and nothing changes.
func (r *RfidTagRepository) Update(ctx context.Context, tag *models.RfidTag) error {
	next := *tag
	next.Version = tag.Version + 1
	next.UpdatedAt = time.Now().UTC()
	params := map[string]interface{}{
		"id":                next.ID,
		"status":            next.Status,
		"current_station":   next.CurrentStation,
		"box_label":         next.BoxLabel,
		"box_contents":      next.BoxContents,
		"last_scan_at":      next.LastScanAt,
		"last_scan_by":      next.LastScanBy,
		"last_scan_station": next.LastScanStation,
		"scan_history":      next.ScanHistory,
		"version":           next.Version,
		"expected_version":  tag.Version,
		"updated_at":        next.UpdatedAt,
	}
	const query = `UPDATE rfid_tags SET status = :status, current_station = :current_station, box_label = :box_label,
        box_contents = :box_contents, last_scan_at = :last_scan_at, last_scan_by = :last_scan_by,
        last_scan_station = :last_scan_station, scan_history = :scan_history, version = :version, updated_at = :updated_at
        WHERE id = :id AND version = :expected_version`
	result, err := r.db.NamedExecContext(ctx, query, params)
	if err != nil {
		return fmt.Errorf("update rfid tag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rfid tag rows: %w", err)
	}
	if affected == 0 {
		return appErrors.ErrVersionConflict
	}
	*tag = next
	return nil
}

// List returns a filtered page of tags for browsing.
func (r *RfidTagRepository) List(ctx context.Context, filter models.RfidTagFilter) ([]models.RfidTag, int, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Station != "" {
		args = append(args, filter.Station)
		conditions = append(conditions, fmt.Sprintf("current_station = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToUpper(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(epc LIKE $%d OR UPPER(COALESCE(convocation_number, '')) LIKE $%d OR UPPER(COALESCE(graduate_name, '')) LIKE $%d)", len(args), len(args), len(args)))
	}
	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM rfid_tags WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d", rfidTagColumns, where, size, offset)
	var tags []models.RfidTag
	if err := r.db.SelectContext(ctx, &tags, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list rfid tags: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM rfid_tags WHERE %s", where), args...); err != nil {
		return nil, 0, fmt.Errorf("count rfid tags: %w", err)
	}
	return tags, total, nil
}

// TagMap reads the whole population page by page (keyset on id) and merges it
// into one EPC-keyed map. Where an EPC has a void and a live record the live
// one is kept.
func (r *RfidTagRepository) TagMap(ctx context.Context) (map[string]models.RfidTag, error) {
	query := fmt.Sprintf("SELECT %s FROM rfid_tags WHERE id > $1 ORDER BY id ASC LIMIT %d", rfidTagColumns, r.pageSize)
	result := make(map[string]models.RfidTag)
	cursor := ""
	for {
		var page []models.RfidTag
		if err := r.db.SelectContext(ctx, &page, query, cursor); err != nil {
			return nil, fmt.Errorf("load rfid tag page: %w", err)
		}
		for _, tag := range page {
			if existing, ok := result[tag.EPC]; ok && preferExisting(existing, tag) {
				continue
			}
			result[tag.EPC] = tag
		}
		if len(page) < r.pageSize {
			return result, nil
		}
		cursor = page[len(page)-1].ID
	}
}

func preferExisting(existing, candidate models.RfidTag) bool {
	if existing.IsVoid() != candidate.IsVoid() {
		return !existing.IsVoid()
	}
	return existing.CreatedAt.After(candidate.CreatedAt)
}
