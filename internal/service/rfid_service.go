package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/convocation-rfid-api/internal/dto"
	"github.com/noah-isme/convocation-rfid-api/internal/models"
	"github.com/noah-isme/convocation-rfid-api/pkg/epc"
	appErrors "github.com/noah-isme/convocation-rfid-api/pkg/errors"
	"github.com/noah-isme/convocation-rfid-api/pkg/jobs"
	"github.com/noah-isme/convocation-rfid-api/pkg/tito"
)

type rfidTagStore interface {
	FindByEPC(ctx context.Context, epc string) (*models.RfidTag, error)
	FindByConvocationNumber(ctx context.Context, convocationNumber string) (*models.RfidTag, error)
	Create(ctx context.Context, tag *models.RfidTag) error
	Update(ctx context.Context, tag *models.RfidTag) error
	List(ctx context.Context, filter models.RfidTagFilter) ([]models.RfidTag, int, error)
}

type graduateDirectory interface {
	FindByConvocationNumber(ctx context.Context, convocationNumber string) (*models.GraduateIdentity, error)
}

type ticketingClient interface {
	FindByTag(ctx context.Context, tag string) (*tito.Ticket, error)
	CheckIn(ctx context.Context, checkinList, ticketID string) error
}

type tagSnapshot interface {
	Get(ctx context.Context) (map[string]models.RfidTag, error)
	Apply(tag models.RfidTag)
	Clear()
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

type checkinQueue interface {
	Enqueue(job jobs.Job) error
}

var errTagUnavailable = appErrors.Clone(appErrors.ErrNotFound, "tag not found or void")

// RfidServiceConfig tunes the lifecycle engine.
type RfidServiceConfig struct {
	BulkMax           int
	AllowReencodeVoid bool
	UpdateRetries     int
	// CheckinLists maps a station name to the ticketing check-in list scanned there.
	CheckinLists map[string]string
}

// RfidService implements the tag lifecycle: encode, station scans, dispatch,
// handover, void and box membership.
type RfidService struct {
	tags      rfidTagStore
	graduates graduateDirectory
	tickets   ticketingClient
	snapshot  tagSnapshot
	dashboard cacheInvalidator
	checkins  checkinQueue
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       RfidServiceConfig
	locks     *keyedMutex
	now       func() time.Time
}

// RfidServiceDeps groups the optional collaborators of RfidService.
type RfidServiceDeps struct {
	Graduates graduateDirectory
	Tickets   ticketingClient
	Dashboard cacheInvalidator
	Checkins  checkinQueue
	Metrics   *MetricsService
}

// NewRfidService constructs the lifecycle engine.
func NewRfidService(tags rfidTagStore, snapshot tagSnapshot, deps RfidServiceDeps, cfg RfidServiceConfig, validate *validator.Validate, logger *zap.Logger) *RfidService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BulkMax <= 0 {
		cfg.BulkMax = 100
	}
	if cfg.UpdateRetries <= 0 {
		cfg.UpdateRetries = 3
	}
	return &RfidService{
		tags:      tags,
		graduates: deps.Graduates,
		tickets:   deps.Tickets,
		snapshot:  snapshot,
		dashboard: deps.Dashboard,
		checkins:  deps.Checkins,
		metrics:   deps.Metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

// Encode registers a newly written tag.
func (s *RfidService) Encode(ctx context.Context, req dto.EncodeTagRequest) (*models.RfidTag, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	code := epc.Normalize(req.EPC)
	if len(code) < 4 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "epc must be at least 4 characters")
	}

	now := s.now().UTC()
	tag := &models.RfidTag{
		EPC:            code,
		Type:           req.Type,
		Status:         models.TagStatusEncoded,
		CurrentStation: models.StationEncoding,
		EncodedAt:      now,
		EncodedBy:      strings.TrimSpace(req.EncodedBy),
		BoxContents:    models.EPCList{},
	}

	switch req.Type {
	case models.TagTypeGraduate:
		convocation := strings.ToUpper(strings.TrimSpace(req.ConvocationNumber))
		if convocation == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "convocationNumber is required for graduate tags")
		}
		tag.ConvocationNumber = &convocation
	case models.TagTypeBox:
		boxID := strings.TrimSpace(req.BoxID)
		if boxID == "" {
			boxID = epc.BoxID(code)
		}
		if boxID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "boxId or a BOX- prefixed epc is required for box tags")
		}
		tag.BoxID = &boxID
		tag.BoxLabel = models.StringPtr(strings.TrimSpace(req.BoxLabel))
		members, err := s.boxMembers(ctx, code, req.BoxContents)
		if err != nil {
			return nil, err
		}
		tag.BoxContents = members
	}

	unlock := s.locks.Lock(code)
	defer unlock()

	existing, err := s.tags.FindByEPC(ctx, code)
	switch {
	case err == nil:
		if !existing.IsVoid() {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("epc %s is already registered", code))
		}
		if !s.cfg.AllowReencodeVoid {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("epc %s belongs to a voided tag", code))
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, storeError(err, "failed to check existing tag")
	}

	if tag.Type == models.TagTypeGraduate {
		s.enrich(ctx, tag)
	}

	tag.Record(models.ScanRecord{
		Station:   models.StationEncoding,
		Timestamp: now,
		ScannedBy: tag.EncodedBy,
		Action:    fmt.Sprintf("Encoded as %s tag", tag.Type),
		Notes:     strings.TrimSpace(req.Notes),
	}, nil)

	if err := s.tags.Create(ctx, tag); err != nil {
		return nil, storeError(err, "failed to create rfid tag")
	}
	s.snapshot.Apply(*tag)
	s.invalidateDashboard(ctx)
	s.logger.Info("rfid tag encoded", zap.String("epc", tag.EPC), zap.String("type", string(tag.Type)), zap.String("by", tag.EncodedBy))
	return tag, nil
}

// enrich fills denormalised graduate details. Lookups are best effort: a
// failing directory or ticketing call leaves the fields empty.
func (s *RfidService) enrich(ctx context.Context, tag *models.RfidTag) {
	convocation := models.StringValue(tag.ConvocationNumber)
	var ticketName string
	if s.tickets != nil {
		ticket, err := s.tickets.FindByTag(ctx, convocation)
		switch {
		case err != nil:
			s.logger.Warn("ticket lookup failed", zap.String("convocation_number", convocation), zap.Error(err))
		case ticket != nil:
			tag.TitoTicketID = models.StringPtr(ticket.ID)
			tag.TitoTicketSlug = models.StringPtr(ticket.Slug)
			ticketName = ticket.Name
		}
	}
	if s.graduates != nil {
		identity, err := s.graduates.FindByConvocationNumber(ctx, convocation)
		switch {
		case err == nil && strings.TrimSpace(identity.Name) != "":
			tag.GraduateName = models.StringPtr(strings.TrimSpace(identity.Name))
			return
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			s.logger.Warn("graduate lookup failed", zap.String("convocation_number", convocation), zap.Error(err))
		}
	}
	tag.GraduateName = models.StringPtr(strings.TrimSpace(ticketName))
}

// Scan records a single tag at a station.
func (s *RfidService) Scan(ctx context.Context, req dto.ScanRequest) (*dto.ScanResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	station, ok := models.ParseStation(string(req.Station))
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown station %q", req.Station))
	}
	entry := models.ScanRecord{
		Station:   station,
		ScannedBy: strings.TrimSpace(req.ScannedBy),
		Action:    fmt.Sprintf("Scanned at %s", station),
		Notes:     strings.TrimSpace(req.Notes),
	}
	tag, err := s.recordAt(ctx, req.EPC, entry, nil)
	s.metrics.RecordScan(string(station), err == nil)
	if err != nil {
		return nil, err
	}
	s.invalidateDashboard(ctx)
	return &dto.ScanResult{EPC: tag.EPC, Success: true, Tag: tag, TitoCheckin: s.checkin(ctx, tag, station)}, nil
}

// BulkScan records many tags at one station. Items are processed in order and
// independently; failures are reported per item.
func (s *RfidService) BulkScan(ctx context.Context, req dto.BulkScanRequest) (*dto.BulkScanResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if len(req.EPCs) > s.cfg.BulkMax {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d epcs per batch", s.cfg.BulkMax))
	}
	station, ok := models.ParseStation(string(req.Station))
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown station %q", req.Station))
	}
	action := strings.TrimSpace(req.Action)
	if action == "" {
		action = fmt.Sprintf("Scanned at %s", station)
	}
	entry := models.ScanRecord{
		Station:   station,
		ScannedBy: strings.TrimSpace(req.ScannedBy),
		Action:    action,
		Notes:     strings.TrimSpace(req.Notes),
	}
	return s.applyBatch(ctx, req.EPCs, entry, nil), nil
}

// Dispatch sends tags out through final dispatch. Box EPCs are expanded into
// the box and its recorded contents.
func (s *RfidService) Dispatch(ctx context.Context, req dto.DispatchRequest) (*dto.BulkScanResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if len(req.EPCs) > s.cfg.BulkMax {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d epcs per batch", s.cfg.BulkMax))
	}
	action := "Dispatched"
	if req.DispatchMethod != "" {
		if !req.DispatchMethod.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported dispatch method %q", req.DispatchMethod))
		}
		action = fmt.Sprintf("Dispatched via %s", req.DispatchMethod)
	}
	notes := strings.TrimSpace(req.Notes)
	if tracking := strings.TrimSpace(req.TrackingNumber); tracking != "" {
		notes = strings.TrimSpace(fmt.Sprintf("Tracking: %s. %s", tracking, notes))
	}
	expanded, err := s.expandBoxes(ctx, req.EPCs)
	if err != nil {
		return nil, err
	}
	entry := models.ScanRecord{
		Station:   models.StationFinalDispatch,
		ScannedBy: strings.TrimSpace(req.DispatchedBy),
		Action:    action,
		Notes:     notes,
	}
	status := models.TagStatusDispatched
	return s.applyBatch(ctx, expanded, entry, &status), nil
}

// Handover delivers tags to a recipient. Box EPCs are expanded like Dispatch.
func (s *RfidService) Handover(ctx context.Context, req dto.HandoverRequest) (*dto.BulkScanResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if len(req.EPCs) > s.cfg.BulkMax {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d epcs per batch", s.cfg.BulkMax))
	}
	expanded, err := s.expandBoxes(ctx, req.EPCs)
	if err != nil {
		return nil, err
	}
	entry := models.ScanRecord{
		Station:   models.StationHandover,
		ScannedBy: strings.TrimSpace(req.HandoverBy),
		Action:    fmt.Sprintf("Handed over to %s", strings.TrimSpace(req.HandoverTo)),
		Notes:     strings.TrimSpace(req.Notes),
	}
	status := models.TagStatusDelivered
	return s.applyBatch(ctx, expanded, entry, &status), nil
}

// Void retires a tag. The entry is recorded at the tag's current station so
// the station view stays consistent with the history.
func (s *RfidService) Void(ctx context.Context, raw string, req dto.VoidTagRequest) (*models.RfidTag, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	reason := strings.TrimSpace(req.Reason)
	voided := models.TagStatusVoid
	tag, err := s.mutate(ctx, raw, func(tag *models.RfidTag) error {
		tag.Record(models.ScanRecord{
			Station:   tag.CurrentStation,
			Timestamp: s.now().UTC(),
			ScannedBy: strings.TrimSpace(req.VoidedBy),
			Action:    fmt.Sprintf("Voided: %s", reason),
		}, &voided)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateDashboard(ctx)
	s.logger.Info("rfid tag voided", zap.String("epc", tag.EPC), zap.String("reason", reason), zap.String("by", req.VoidedBy))
	return tag, nil
}

// BoxContents resolves a box's member EPCs from the population snapshot.
// Members that no longer resolve are reported as missing, not as an error.
func (s *RfidService) BoxContents(ctx context.Context, boxEPC string) (*dto.BoxContentsResponse, error) {
	code := epc.Normalize(boxEPC)
	population, err := s.snapshot.Get(ctx)
	if err != nil {
		return nil, err
	}
	box, ok := population[code]
	if !ok {
		stored, err := s.tags.FindByEPC(ctx, code)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "box not found")
			}
			return nil, storeError(err, "failed to load box")
		}
		box = *stored
	}
	if !box.IsBox() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s is not a box tag", code))
	}
	resp := &dto.BoxContentsResponse{Box: box, Items: make([]models.RfidTag, 0, len(box.BoxContents))}
	for _, member := range box.BoxContents {
		if item, ok := population[member]; ok && !item.IsVoid() {
			resp.Items = append(resp.Items, item)
			continue
		}
		resp.Missing = append(resp.Missing, member)
	}
	return resp, nil
}

// SetBoxContents replaces the member list of a box and logs it as a packing event.
func (s *RfidService) SetBoxContents(ctx context.Context, boxEPC string, req dto.SetBoxContentsRequest) (*models.RfidTag, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	code := epc.Normalize(boxEPC)
	members, err := s.boxMembers(ctx, code, req.EPCs)
	if err != nil {
		return nil, err
	}
	tag, err := s.mutate(ctx, code, func(tag *models.RfidTag) error {
		if !tag.IsBox() {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s is not a box tag", code))
		}
		tag.BoxContents = append(models.EPCList(nil), members...)
		tag.Record(models.ScanRecord{
			Station:   models.StationPacking,
			Timestamp: s.now().UTC(),
			ScannedBy: strings.TrimSpace(req.UpdatedBy),
			Action:    fmt.Sprintf("Box contents set to %d items", len(members)),
		}, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateDashboard(ctx)
	return tag, nil
}

// Verify runs a raw reader string through the lookup fallback chain. A miss is
// reported with Found=false.
func (s *RfidService) Verify(ctx context.Context, raw string) (*dto.VerifyResult, error) {
	input := epc.Normalize(raw)
	if input == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "epc is required")
	}
	result := &dto.VerifyResult{Input: input, DetectedAs: detectedAs(input)}
	tag, method, err := s.resolve(ctx, input)
	if err != nil {
		return nil, err
	}
	if tag != nil {
		result.Found = true
		result.MatchedEPC = tag.EPC
		result.MatchMethod = method
		result.Tag = tag
	}
	return result, nil
}

func detectedAs(input string) string {
	if epc.IsWD01Format(input) {
		return "wd01"
	}
	return string(epc.DetectKind(input))
}

// GetByEPC returns the tag a raw read resolves to.
func (s *RfidService) GetByEPC(ctx context.Context, raw string) (*models.RfidTag, error) {
	tag, _, err := s.resolve(ctx, raw)
	if err != nil {
		return nil, err
	}
	if tag == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "tag not found")
	}
	return tag, nil
}

// GetByConvocationNumber returns the graduate tag for a convocation number.
func (s *RfidService) GetByConvocationNumber(ctx context.Context, convocationNumber string) (*models.RfidTag, error) {
	number := strings.ToUpper(strings.TrimSpace(convocationNumber))
	if number == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "convocation number is required")
	}
	tag, err := s.tags.FindByConvocationNumber(ctx, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no tag for convocation number")
		}
		return nil, storeError(err, "failed to load tag")
	}
	return tag, nil
}

// List returns a filtered page of tags.
func (s *RfidService) List(ctx context.Context, filter models.RfidTagFilter) ([]models.RfidTag, *models.Pagination, error) {
	tags, total, err := s.tags.List(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, "failed to list rfid tags")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return tags, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// IsBoxEPC reports whether the EPC names a box.
func (s *RfidService) IsBoxEPC(code string) bool {
	return epc.IsBoxEPC(code)
}

// resolve walks the fallback chain and returns the first stored tag.
func (s *RfidService) resolve(ctx context.Context, raw string) (*models.RfidTag, string, error) {
	for _, candidate := range epc.Candidates(raw) {
		tag, err := s.tags.FindByEPC(ctx, candidate.EPC)
		if err == nil {
			return tag, candidate.Method, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, "", storeError(err, "failed to look up tag")
		}
	}
	return nil, "", nil
}

// recordAt appends entry to the tag raw resolves to.
func (s *RfidService) recordAt(ctx context.Context, raw string, entry models.ScanRecord, status *models.TagStatus) (*models.RfidTag, error) {
	return s.mutate(ctx, raw, func(tag *models.RfidTag) error {
		e := entry
		e.Timestamp = s.now().UTC()
		tag.Record(e, status)
		return nil
	})
}

// mutate applies change to the live tag raw resolves to. The EPC is locked for
// the read-modify-write and the write is a version compare-and-swap, re-read
// and re-applied when another writer got in first. An error from change
// aborts without writing.
func (s *RfidService) mutate(ctx context.Context, raw string, change func(tag *models.RfidTag) error) (*models.RfidTag, error) {
	resolved, _, err := s.resolve(ctx, raw)
	if err != nil {
		return nil, err
	}
	if resolved == nil || resolved.IsVoid() {
		return nil, errTagUnavailable
	}
	code := resolved.EPC

	unlock := s.locks.Lock(code)
	defer unlock()

	current := resolved
	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			current, err = s.tags.FindByEPC(ctx, code)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, errTagUnavailable
				}
				return nil, storeError(err, "failed to reload tag")
			}
		}
		if current.IsVoid() {
			return nil, errTagUnavailable
		}
		next := current.Clone()
		if err := change(&next); err != nil {
			return nil, err
		}
		err = s.tags.Update(ctx, &next)
		if err == nil {
			s.snapshot.Apply(next)
			return &next, nil
		}
		if !errors.Is(err, appErrors.ErrVersionConflict) {
			return nil, storeError(err, "failed to update tag")
		}
		if attempt >= s.cfg.UpdateRetries {
			return nil, appErrors.Clone(appErrors.ErrVersionConflict, fmt.Sprintf("tag %s kept changing, giving up after %d attempts", code, attempt))
		}
		s.logger.Debug("rfid tag version conflict, retrying", zap.String("epc", code), zap.Int("attempt", attempt))
	}
}

// applyBatch records entry against each EPC in order.
func (s *RfidService) applyBatch(ctx context.Context, epcs []string, entry models.ScanRecord, status *models.TagStatus) *dto.BulkScanResult {
	result := &dto.BulkScanResult{Total: len(epcs), Results: make([]dto.ScanResult, 0, len(epcs))}
	for _, raw := range epcs {
		item := dto.ScanResult{EPC: epc.Normalize(raw)}
		tag, err := s.recordAt(ctx, raw, entry, status)
		s.metrics.RecordScan(string(entry.Station), err == nil)
		if err != nil {
			item.Error = appErrors.FromError(err).Message
			result.Failed++
			result.Results = append(result.Results, item)
			continue
		}
		item.EPC = tag.EPC
		item.Success = true
		item.Tag = tag
		item.TitoCheckin = s.checkin(ctx, tag, entry.Station)
		if item.TitoCheckin != nil && item.TitoCheckin.Success {
			result.TitoCheckins++
		}
		result.Successful++
		result.Results = append(result.Results, item)
	}
	if result.Successful > 0 {
		s.invalidateDashboard(ctx)
	}
	if result.Failed > 0 {
		s.logger.Warn("rfid batch partially failed", zap.String("station", string(entry.Station)),
			zap.Int("total", result.Total), zap.Int("failed", result.Failed))
	}
	return result
}

// expandBoxes returns the input EPCs with each live box followed by its
// members, in first-seen order without duplicates.
func (s *RfidService) expandBoxes(ctx context.Context, epcs []string) ([]string, error) {
	seen := make(map[string]struct{}, len(epcs))
	out := make([]string, 0, len(epcs))
	add := func(code string) {
		if code == "" {
			return
		}
		if _, ok := seen[code]; ok {
			return
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	for _, raw := range epcs {
		code := epc.Normalize(raw)
		add(code)
		box, err := s.tags.FindByEPC(ctx, code)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, storeError(err, "failed to expand box")
		}
		if !box.IsBox() || box.IsVoid() {
			continue
		}
		for _, member := range box.BoxContents {
			add(epc.Normalize(member))
		}
	}
	return out, nil
}

// boxMembers normalises and validates a member list. Members must be encoded,
// must not be boxes themselves and must not be the box, which keeps
// containment one level deep.
func (s *RfidService) boxMembers(ctx context.Context, boxCode string, raw []string) (models.EPCList, error) {
	members := models.EPCList{}
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		code := epc.Normalize(r)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		if code == boxCode || epc.IsBoxEPC(code) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("box %s cannot contain box %s", boxCode, code))
		}
		member, err := s.tags.FindByEPC(ctx, code)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("member %s is not encoded", code))
			}
			return nil, storeError(err, "failed to check box member")
		}
		if member.IsBox() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("box %s cannot contain box %s", boxCode, code))
		}
		if member.IsVoid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("member %s is void", code))
		}
		members = append(members, code)
	}
	return members, nil
}

// checkin performs the ticketing check-in mapped to station, if any. Failure
// never fails the scan; it is reported and handed to the retry queue.
func (s *RfidService) checkin(ctx context.Context, tag *models.RfidTag, station models.Station) *dto.TitoCheckinResult {
	if s.tickets == nil || tag.Type != models.TagTypeGraduate {
		return nil
	}
	list := s.cfg.CheckinLists[string(station)]
	if list == "" {
		return nil
	}
	ticketID := models.StringValue(tag.TitoTicketID)
	result := &dto.TitoCheckinResult{List: list, TicketID: ticketID}
	if ticketID == "" {
		result.Error = "tag has no linked ticket"
		s.metrics.RecordCheckin("skipped")
		return result
	}
	result.Attempted = true
	err := s.tickets.CheckIn(ctx, list, ticketID)
	if err == nil {
		result.Success = true
		s.metrics.RecordCheckin("success")
		return result
	}
	result.Error = err.Error()
	s.metrics.RecordCheckin("failure")
	s.logger.Warn("ticket check-in failed", zap.String("epc", tag.EPC), zap.String("list", list), zap.Error(err))
	if s.checkins != nil && retryableCheckin(err) {
		job := newCheckinJob(tag.EPC, list, ticketID)
		if qErr := s.checkins.Enqueue(job); qErr != nil {
			s.metrics.RecordCheckin("abandoned")
			s.logger.Warn("failed to queue check-in retry", zap.String("epc", tag.EPC), zap.Error(qErr))
		} else {
			result.Queued = true
		}
	}
	return result
}

func (s *RfidService) invalidateDashboard(ctx context.Context) {
	if s.dashboard == nil {
		return
	}
	_ = s.dashboard.Invalidate(ctx, dashboardCachePattern)
}

func storeError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrBackendUnavailable.Code, appErrors.ErrBackendUnavailable.Status, message)
}
