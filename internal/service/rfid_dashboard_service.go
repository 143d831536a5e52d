package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/convocation-rfid-api/internal/dto"
	"github.com/noah-isme/convocation-rfid-api/internal/models"
	appErrors "github.com/noah-isme/convocation-rfid-api/pkg/errors"
	"github.com/noah-isme/convocation-rfid-api/pkg/export"
)

const dashboardStatsKey = dashboardCachePrefix + "stats"

// FormatCSV is the only export format for reconciliation reports.
const FormatCSV = "csv"

var reconciliationHeaders = []string{"EPC", "Type", "Convocation Number", "Graduate", "Status", "Current Station", "Last Scan", "Classification"}

type populationSnapshot interface {
	Get(ctx context.Context) (map[string]models.RfidTag, error)
	Clear()
}

type dashboardPayloadCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// RfidDashboardConfig tunes the read side.
type RfidDashboardConfig struct {
	RecentScanLimit int
	StaleAfter      time.Duration
	CacheTTL        time.Duration
}

// RfidDashboardService aggregates the tag population for station screens.
type RfidDashboardService struct {
	snapshot populationSnapshot
	cache    dashboardPayloadCache
	csv      csvRenderer
	cfg      RfidDashboardConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewRfidDashboardService constructs the aggregator. cache may be nil.
func NewRfidDashboardService(snapshot populationSnapshot, cache dashboardPayloadCache, csv csvRenderer, cfg RfidDashboardConfig, logger *zap.Logger) *RfidDashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RecentScanLimit <= 0 {
		cfg.RecentScanLimit = 50
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	return &RfidDashboardService{snapshot: snapshot, cache: cache, csv: csv, cfg: cfg, logger: logger, now: time.Now}
}

// Stats returns dashboard counters and whether they came from the payload cache.
func (s *RfidDashboardService) Stats(ctx context.Context) (*dto.RfidDashboardStats, bool, error) {
	if s.cache != nil {
		var cached dto.RfidDashboardStats
		if hit, err := s.cache.Get(ctx, dashboardStatsKey, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}
	tags, err := s.snapshot.Get(ctx)
	if err != nil {
		return nil, false, err
	}
	stats := buildDashboardStats(tags, s.cfg.RecentScanLimit, s.now().UTC())
	if s.cache != nil {
		_ = s.cache.Set(ctx, dashboardStatsKey, stats, s.cfg.CacheTTL)
	}
	return stats, false, nil
}

func buildDashboardStats(tags map[string]models.RfidTag, recentLimit int, now time.Time) *dto.RfidDashboardStats {
	stats := &dto.RfidDashboardStats{
		Total:       len(tags),
		ByType:      map[string]int{string(models.TagTypeGraduate): 0, string(models.TagTypeBox): 0},
		ByStatus:    make(map[string]int, len(models.AllTagStatuses)),
		ByStation:   make(map[string]int, len(models.StationSequence)),
		RecentScans: []dto.RecentScan{},
		GeneratedAt: now,
	}
	for _, status := range models.AllTagStatuses {
		stats.ByStatus[string(status)] = 0
	}
	for _, station := range models.StationSequence {
		stats.ByStation[string(station)] = 0
	}

	var scans []dto.RecentScan
	for _, tag := range tags {
		stats.ByType[string(tag.Type)]++
		stats.ByStatus[string(tag.Status)]++
		stats.ByStation[string(tag.CurrentStation)]++
		if tag.IsBox() {
			stats.BoxSummary.TotalBoxes++
			stats.BoxSummary.ItemsInBoxes += len(tag.BoxContents)
		}
		for _, record := range tag.ScanHistory {
			scans = append(scans, dto.RecentScan{
				EPC:               tag.EPC,
				Type:              tag.Type,
				ConvocationNumber: models.StringValue(tag.ConvocationNumber),
				GraduateName:      models.StringValue(tag.GraduateName),
				Station:           record.Station,
				Timestamp:         record.Timestamp,
				ScannedBy:         record.ScannedBy,
				Action:            record.Action,
			})
		}
	}
	sort.SliceStable(scans, func(i, j int) bool {
		if !scans[i].Timestamp.Equal(scans[j].Timestamp) {
			return scans[i].Timestamp.After(scans[j].Timestamp)
		}
		return scans[i].EPC < scans[j].EPC
	})
	if len(scans) > recentLimit {
		scans = scans[:recentLimit]
	}
	if scans != nil {
		stats.RecentScans = scans
	}
	return stats
}

// Reconciliation classifies every tag relative to station. Each tag lands in
// exactly one of on-track, advanced or not-yet-arrived; stale is the subset of
// not-yet-arrived tags that have not moved within the stale window.
func (s *RfidDashboardService) Reconciliation(ctx context.Context, station string) (*dto.StationReconciliation, error) {
	target, ok := models.ParseStation(station)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown station %q", station))
	}
	tags, err := s.snapshot.Get(ctx)
	if err != nil {
		return nil, err
	}
	return reconcile(tags, target, s.cfg.StaleAfter, s.now().UTC()), nil
}

func reconcile(tags map[string]models.RfidTag, target models.Station, staleAfter time.Duration, now time.Time) *dto.StationReconciliation {
	result := &dto.StationReconciliation{
		Station:       target,
		Position:      target.Position(),
		OnTrack:       []dto.ReconciliationEntry{},
		Advanced:      []dto.ReconciliationEntry{},
		NotYetArrived: []dto.ReconciliationEntry{},
		Stale:         []dto.ReconciliationEntry{},
		GeneratedAt:   now,
	}
	epcs := make([]string, 0, len(tags))
	for code := range tags {
		epcs = append(epcs, code)
	}
	sort.Strings(epcs)

	for _, code := range epcs {
		tag := tags[code]
		entry := reconciliationEntry(tag)
		switch models.ClassifyForStation(tag.Status, tag.CurrentStation, target) {
		case models.ClassOnTrackHere:
			result.OnTrack = append(result.OnTrack, entry)
		case models.ClassAdvanced:
			result.Advanced = append(result.Advanced, entry)
		default:
			result.NotYetArrived = append(result.NotYetArrived, entry)
			if staleAfter > 0 && now.Sub(lastMovement(tag)) > staleAfter {
				result.Stale = append(result.Stale, entry)
			}
		}
	}
	result.Counts = dto.ReconciliationCounts{
		OnTrack:       len(result.OnTrack),
		Advanced:      len(result.Advanced),
		NotYetArrived: len(result.NotYetArrived),
		Stale:         len(result.Stale),
		Total:         len(tags),
	}
	return result
}

func reconciliationEntry(tag models.RfidTag) dto.ReconciliationEntry {
	return dto.ReconciliationEntry{
		EPC:               tag.EPC,
		Type:              tag.Type,
		ConvocationNumber: models.StringValue(tag.ConvocationNumber),
		GraduateName:      models.StringValue(tag.GraduateName),
		Status:            tag.Status,
		CurrentStation:    tag.CurrentStation,
		LastScanAt:        tag.LastScanAt,
	}
}

func lastMovement(tag models.RfidTag) time.Time {
	if tag.LastScanAt != nil {
		return *tag.LastScanAt
	}
	return tag.EncodedAt
}

// ExportReconciliation renders a station reconciliation as CSV and returns
// the file name, content type and body.
func (s *RfidDashboardService) ExportReconciliation(ctx context.Context, station, format string) (string, string, []byte, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != FormatCSV {
		return "", "", nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv")
	}
	report, err := s.Reconciliation(ctx, station)
	if err != nil {
		return "", "", nil, err
	}
	dataset := reconciliationDataset(report)
	filename := fmt.Sprintf("reconciliation-%s-%s.%s", report.Station, report.GeneratedAt.Format("20060102-1504"), format)

	body, err := s.csv.Render(dataset)
	if err != nil {
		return "", "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return filename, "text/csv", body, nil
}

func reconciliationDataset(report *dto.StationReconciliation) export.Dataset {
	stale := make(map[string]struct{}, len(report.Stale))
	for _, entry := range report.Stale {
		stale[entry.EPC] = struct{}{}
	}
	rows := make([]map[string]string, 0, report.Counts.Total)
	add := func(entries []dto.ReconciliationEntry, class models.Classification) {
		for _, entry := range entries {
			label := string(class)
			if _, ok := stale[entry.EPC]; ok && class == models.ClassNotYetArrived {
				label += " (stale)"
			}
			lastScan := ""
			if entry.LastScanAt != nil {
				lastScan = entry.LastScanAt.UTC().Format(time.RFC3339)
			}
			rows = append(rows, map[string]string{
				"EPC":                entry.EPC,
				"Type":               string(entry.Type),
				"Convocation Number": entry.ConvocationNumber,
				"Graduate":           entry.GraduateName,
				"Status":             string(entry.Status),
				"Current Station":    string(entry.CurrentStation),
				"Last Scan":          lastScan,
				"Classification":     label,
			})
		}
	}
	add(report.NotYetArrived, models.ClassNotYetArrived)
	add(report.OnTrack, models.ClassOnTrackHere)
	add(report.Advanced, models.ClassAdvanced)
	return export.Dataset{Headers: reconciliationHeaders, Rows: rows}
}

// ClearCache drops the population snapshot and cached dashboard payloads.
func (s *RfidDashboardService) ClearCache(ctx context.Context) error {
	s.snapshot.Clear()
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, dashboardCachePattern); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear dashboard cache")
		}
	}
	s.logger.Info("rfid caches cleared")
	return nil
}
