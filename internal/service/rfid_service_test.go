package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/convocation-rfid-api/internal/dto"
	"github.com/noah-isme/convocation-rfid-api/internal/models"
	"github.com/noah-isme/convocation-rfid-api/pkg/epc"
	appErrors "github.com/noah-isme/convocation-rfid-api/pkg/errors"
	"github.com/noah-isme/convocation-rfid-api/pkg/jobs"
	"github.com/noah-isme/convocation-rfid-api/pkg/tito"
)

type memoryTagStore struct {
	mu        sync.Mutex
	records   []models.RfidTag
	seq       int
	conflicts int
	updates   int
	findErr   error
}

func (m *memoryTagStore) live(code string) (int, bool) {
	found := -1
	for i, rec := range m.records {
		if rec.EPC != code {
			continue
		}
		if found == -1 || (m.records[found].IsVoid() && !rec.IsVoid()) ||
			(m.records[found].IsVoid() == rec.IsVoid() && rec.CreatedAt.After(m.records[found].CreatedAt)) {
			found = i
		}
	}
	return found, found >= 0
}

func (m *memoryTagStore) FindByEPC(_ context.Context, code string) (*models.RfidTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	i, ok := m.live(code)
	if !ok {
		return nil, sql.ErrNoRows
	}
	tag := m.records[i].Clone()
	return &tag, nil
}

func (m *memoryTagStore) FindByConvocationNumber(_ context.Context, number string) (*models.RfidTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if models.StringValue(rec.ConvocationNumber) == number && !rec.IsVoid() {
			tag := rec.Clone()
			return &tag, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryTagStore) Create(_ context.Context, tag *models.RfidTag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.live(tag.EPC); ok && !m.records[i].IsVoid() {
		return appErrors.Clone(appErrors.ErrConflict, "epc already registered")
	}
	m.seq++
	tag.ID = fmt.Sprintf("tag-%03d", m.seq)
	tag.Version = 1
	tag.CreatedAt = time.Now().Add(time.Duration(m.seq) * time.Millisecond)
	m.records = append(m.records, tag.Clone())
	return nil
}

func (m *memoryTagStore) Update(_ context.Context, tag *models.RfidTag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rec := range m.records {
		if rec.ID != tag.ID {
			continue
		}
		if m.conflicts > 0 {
			// Another writer bumped the row first.
			m.conflicts--
			m.records[i].Version++
			return appErrors.ErrVersionConflict
		}
		if rec.Version != tag.Version {
			return appErrors.ErrVersionConflict
		}
		tag.Version++
		m.records[i] = tag.Clone()
		m.updates++
		return nil
	}
	return sql.ErrNoRows
}

func (m *memoryTagStore) List(context.Context, models.RfidTagFilter) ([]models.RfidTag, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.RfidTag(nil), m.records...)
	return out, len(out), nil
}

func (m *memoryTagStore) TagMap(context.Context) (map[string]models.RfidTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.RfidTag)
	for _, rec := range m.records {
		if i, ok := m.live(rec.EPC); ok {
			out[rec.EPC] = m.records[i].Clone()
		}
	}
	return out, nil
}

type fakeDirectory struct {
	identities map[string]models.GraduateIdentity
	err        error
}

func (f *fakeDirectory) FindByConvocationNumber(_ context.Context, number string) (*models.GraduateIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	identity, ok := f.identities[number]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &identity, nil
}

type fakeTickets struct {
	mu         sync.Mutex
	tickets    map[string]tito.Ticket
	findErr    error
	checkinErr error
	checkins   []string
}

func (f *fakeTickets) FindByTag(_ context.Context, tag string) (*tito.Ticket, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	ticket, ok := f.tickets[tag]
	if !ok {
		return nil, nil
	}
	return &ticket, nil
}

func (f *fakeTickets) CheckIn(_ context.Context, list, ticketID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkins = append(f.checkins, list+":"+ticketID)
	return f.checkinErr
}

type fakeQueue struct {
	jobs []jobs.Job
	err  error
}

func (f *fakeQueue) Enqueue(job jobs.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type rfidFixture struct {
	svc     *RfidService
	store   *memoryTagStore
	tickets *fakeTickets
	dir     *fakeDirectory
	queue   *fakeQueue
	cache   *TagSnapshotCache
	metrics *MetricsService
}

func newRfidFixture(t *testing.T, mutate ...func(*RfidServiceConfig)) *rfidFixture {
	t.Helper()
	store := &memoryTagStore{}
	tickets := &fakeTickets{tickets: map[string]tito.Ticket{
		"120AEC1001": {ID: "501", Slug: "ti_asha", Name: "Asha R."},
		"120AEC1002": {ID: "502", Slug: "ti_ben", Name: "Ben Okafor"},
	}}
	dir := &fakeDirectory{identities: map[string]models.GraduateIdentity{
		"120AEC1001": {ConvocationNumber: "120AEC1001", Name: "Asha Rao"},
	}}
	queue := &fakeQueue{}
	cfg := RfidServiceConfig{
		BulkMax:       5,
		UpdateRetries: 3,
		CheckinLists:  map[string]string{"registration": "chk_reg"},
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	metrics := NewMetricsService()
	cache := NewTagSnapshotCache(store, time.Minute, nil, nil)
	svc := NewRfidService(store, cache, RfidServiceDeps{
		Graduates: dir,
		Tickets:   tickets,
		Checkins:  queue,
		Metrics:   metrics,
	}, cfg, nil, nil)
	return &rfidFixture{svc: svc, store: store, tickets: tickets, dir: dir, queue: queue, cache: cache, metrics: metrics}
}

func (f *rfidFixture) encodeGraduate(t *testing.T, number string) *models.RfidTag {
	t.Helper()
	tag, err := f.svc.Encode(context.Background(), dto.EncodeTagRequest{
		EPC: number, Type: models.TagTypeGraduate, ConvocationNumber: number, EncodedBy: "enc-1",
	})
	require.NoError(t, err)
	return tag
}

func (f *rfidFixture) encodeBox(t *testing.T, code string, members ...string) *models.RfidTag {
	t.Helper()
	tag, err := f.svc.Encode(context.Background(), dto.EncodeTagRequest{
		EPC: code, Type: models.TagTypeBox, BoxContents: members, EncodedBy: "enc-1",
	})
	require.NoError(t, err)
	return tag
}

func (f *rfidFixture) scan(t *testing.T, code string, station models.Station) *dto.ScanResult {
	t.Helper()
	result, err := f.svc.Scan(context.Background(), dto.ScanRequest{EPC: code, Station: station, ScannedBy: "desk-1"})
	require.NoError(t, err)
	return result
}

func (f *rfidFixture) stored(t *testing.T, code string) *models.RfidTag {
	t.Helper()
	tag, err := f.store.FindByEPC(context.Background(), code)
	require.NoError(t, err)
	return tag
}

func TestRfidServiceEncodeGraduate(t *testing.T) {
	f := newRfidFixture(t)

	tag := f.encodeGraduate(t, "120aec1001")

	assert.Equal(t, "120AEC1001", tag.EPC)
	assert.Equal(t, models.TagStatusEncoded, tag.Status)
	assert.Equal(t, models.StationEncoding, tag.CurrentStation)
	assert.Equal(t, "Asha Rao", models.StringValue(tag.GraduateName))
	assert.Equal(t, "501", models.StringValue(tag.TitoTicketID))
	assert.Equal(t, "ti_asha", models.StringValue(tag.TitoTicketSlug))
	require.Len(t, tag.ScanHistory, 1)
	assert.Equal(t, "Encoded as graduate tag", tag.ScanHistory[0].Action)
	assert.Equal(t, "enc-1", tag.ScanHistory[0].ScannedBy)
}

func TestRfidServiceEncodeFallsBackToTicketName(t *testing.T) {
	f := newRfidFixture(t)
	f.dir.err = errors.New("directory offline")

	tag := f.encodeGraduate(t, "120AEC1002")
	assert.Equal(t, "Ben Okafor", models.StringValue(tag.GraduateName))
}

func TestRfidServiceEncodeSurvivesEnrichmentFailure(t *testing.T) {
	f := newRfidFixture(t)
	f.dir.err = errors.New("directory offline")
	f.tickets.findErr = errors.New("tito timeout")

	tag := f.encodeGraduate(t, "120AEC1001")
	assert.Nil(t, tag.GraduateName)
	assert.Nil(t, tag.TitoTicketID)
}

func TestRfidServiceEncodeValidation(t *testing.T) {
	f := newRfidFixture(t)
	ctx := context.Background()

	cases := []dto.EncodeTagRequest{
		{EPC: "12", Type: models.TagTypeGraduate, ConvocationNumber: "120AEC1001", EncodedBy: "enc"},
		{EPC: "120AEC1001", Type: models.TagTypeGraduate, EncodedBy: "enc"},
		{EPC: "E2801160", Type: models.TagTypeBox, EncodedBy: "enc"},
		{EPC: "120AEC1001", Type: "pallet", ConvocationNumber: "120AEC1001", EncodedBy: "enc"},
		{EPC: "120AEC1001", Type: models.TagTypeGraduate, ConvocationNumber: "120AEC1001"},
	}
	for _, req := range cases {
		_, err := f.svc.Encode(ctx, req)
		assert.ErrorIs(t, err, appErrors.ErrValidation, "request %+v", req)
	}
	assert.Empty(t, f.store.records)
}

func TestRfidServiceEncodeBoxUsesPrefixAsBoxID(t *testing.T) {
	f := newRfidFixture(t)
	box := f.encodeBox(t, "box-07")
	assert.Equal(t, "BOX-07", box.EPC)
	assert.Equal(t, "07", models.StringValue(box.BoxID))
	assert.Equal(t, "Encoded as box tag", box.ScanHistory[0].Action)
}

func TestRfidServiceEncodeDuplicate(t *testing.T) {
	f := newRfidFixture(t)
	f.encodeGraduate(t, "120AEC1001")

	_, err := f.svc.Encode(context.Background(), dto.EncodeTagRequest{
		EPC: "120AEC1001", Type: models.TagTypeGraduate, ConvocationNumber: "120AEC1001", EncodedBy: "enc-2",
	})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestRfidServiceReencodeVoidBlockedByDefault(t *testing.T) {
	f := newRfidFixture(t)
	f.encodeGraduate(t, "120AEC1001")
	_, err := f.svc.Void(context.Background(), "120AEC1001", dto.VoidTagRequest{Reason: "damaged", VoidedBy: "sup"})
	require.NoError(t, err)

	_, err = f.svc.Encode(context.Background(), dto.EncodeTagRequest{
		EPC: "120AEC1001", Type: models.TagTypeGraduate, ConvocationNumber: "120AEC1001", EncodedBy: "enc-2",
	})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestRfidServiceReencodeVoidAllowedByPolicy(t *testing.T) {
	f := newRfidFixture(t, func(cfg *RfidServiceConfig) { cfg.AllowReencodeVoid = true })
	first := f.encodeGraduate(t, "120AEC1001")
	_, err := f.svc.Void(context.Background(), "120AEC1001", dto.VoidTagRequest{Reason: "damaged", VoidedBy: "sup"})
	require.NoError(t, err)

	second := f.encodeGraduate(t, "120AEC1001")
	assert.NotEqual(t, first.ID, second.ID)

	current, err := f.svc.GetByEPC(context.Background(), "120AEC1001")
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)
	assert.Equal(t, models.TagStatusEncoded, current.Status)

	// A second live encode is still a duplicate.
	_, err = f.svc.Encode(context.Background(), dto.EncodeTagRequest{
		EPC: "120AEC1001", Type: models.TagTypeGraduate, ConvocationNumber: "120AEC1001", EncodedBy: "enc-3",
	})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestRfidServiceScanAdvancesStatus(t *testing.T) {
	f := newRfidFixture(t)
	f.encodeGraduate(t, "120AEC1001")

	result := f.scan(t, "120AEC1001", models.StationPacking)
	assert.True(t, result.Success)
	assert.Equal(t, models.TagStatusScanned, result.Tag.Status)
	assert.Equal(t, models.StationPacking, result.Tag.CurrentStation)
	assert.Equal(t, models.StationPacking, *result.Tag.LastScanStation)
	assert.Equal(t, "desk-1", models.StringValue(result.Tag.LastScanBy))
	assert.Equal(t, "Scanned at packing", result.Tag.ScanHistory[1].Action)
	assert.Nil(t, result.TitoCheckin)

	result = f.scan(t, "120AEC1001", models.StationReturnHO)
	assert.Equal(t, models.TagStatusReturned, result.Tag.Status)
}

func TestRfidServiceStatusNeverRegresses(t *testing.T) {
	f := newRfidFixture(t)
	f.encodeGraduate(t, "120AEC1001")
	_, err := f.svc.Dispatch(context.Background(), dto.DispatchRequest{EPCs: []string{"120AEC1001"}, DispatchedBy: "courier"})
	require.NoError(t, err)

	result := f.scan(t, "120AEC1001", models.StationPacking)
	assert.Equal(t, models.TagStatusDispatched, result.Tag.Status)
	assert.Equal(t, models.StationPacking, result.Tag.CurrentStation)
}

func TestRfidServiceCourierReturnAfterDispatch(t *testing.T) {
	f := newRfidFixture(t)
	f.encodeGraduate(t, "120AEC1001")
	_, err := f.svc.Dispatch(context.Background(), dto.DispatchRequest{EPCs: []string{"120AEC1001"}, DispatchedBy: "courier"})
	require.NoError(t, err)

	result := f.scan(t, "120AEC1001", models.StationReturnHO)
	assert.Equal(t, models.TagStatusReturned, result.Tag.Status)
	assert.Equal(t, models.StationReturnHO, result.Tag.CurrentStation)

	result = f.scan(t, "120AEC1001", models.StationFinalDispatch)
	assert.Equal(t, models.TagStatusDispatched, result.Tag.Status)
}

func TestRfidServiceScanRejectsUnknownStation(t *testing.T) {
	f := newRfidFixture(t)
	f.encodeGraduate(t, "120AEC1001")
	_, err := f.svc.Scan(context.Background(), dto.ScanRequest{EPC: "120AEC1001", Station: "cafeteria", ScannedBy: "x"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, 0, f.store.updates)
}

func TestRfidServiceScanUnknownTag(t *testing.T) {
	f := newRfidFixture(t)
	_, err := f.svc.Scan(context.Background(), dto.ScanRequest{EPC: "120AEC9999", Station: models.StationPacking, ScannedBy: "x"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestRfidServiceScanResolvesWD01Read(t *testing.T) {
	f := newRfidFixture(t)
	uhf := "E28011700000020F1A2B3C4D"
	_, err := f.svc.Encode(context.Background(), dto.EncodeTagRequest{
		EPC: uhf, Type: models.TagTypeGraduate, ConvocationNumber: "120AEC1003", EncodedBy: "enc",
	})
	require.NoError(t, err)

	wd01 := "ABCD" + epc.UHFToReversedHex(uhf) + "0030"
	result := f.scan(t, wd01, models.StationPacking)
	assert.Equal(t, uhf, result.EPC)
	assert.Len(t, result.Tag.ScanHistory, 2)
}

func TestRfidServiceScanBackendFailure(t *testing.T) {
	f := newRfidFixture(t)
	f.store.findErr = errors.New("connection reset")
	_, err := f.svc.Scan(context.Background(), dto.ScanRequest{EPC: "120AEC1001", Station: models.StationPacking, ScannedBy: "x"})
	assert.ErrorIs(t, err, appErrors.ErrBackendUnavailable)
}

func TestRfidServiceScanChecksInAtMappedStation(t *testing.T) {
	f := newRfidFixture(t)
	f.encodeGraduate(t, "120AEC1001")

	result := f.scan(t, "120AEC1001", models.StationRegistration)
	require.NotNil(t, result.TitoCheckin)
	assert.True(t, result.TitoCheckin.Success)
	assert.Equal(t, []string{"chk_reg:501"}, f.tickets.checkins)
	assert.Empty(t, f.queue.jobs)
}

func TestRfidServiceCheckinFailureDoesNotFailScan(t *testing.T) {
	f := newRfidFixture(t)
	f.encodeGraduate(t, "120AEC1001")
	f.tickets.checkinErr = &tito.StatusError{Op: "check in", StatusCode: http.StatusBadGateway}

	result := f.scan(t, "120AEC1001", models.StationRegistration)
	assert.True(t, result.Success)
	require.NotNil(t, result.TitoCheckin)
	assert.False(t, result.TitoCheckin.Success)
	assert.True(t, result.TitoCheckin.Queued)
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, CheckinJobType, f.queue.jobs[0].Type)
	assert.Equal(t, CheckinJob{EPC: "120AEC1001", List: "chk_reg", TicketID: "501"}, f.queue.jobs[0].Payload)
	assert.Equal(t, models.StationRegistration, f.stored(t, "120AEC1001").CurrentStation)
}

func TestRfidServiceCheckinRetryDroppedWhenQueueFull(t *testing.T) {
	f := newRfidFixture(t)
	f.encodeGraduate(t, "120AEC1001")
	f.tickets.checkinErr = &tito.StatusError{Op: "check in", StatusCode: http.StatusServiceUnavailable}
	f.queue.err = jobs.ErrQueueFull

	result := f.scan(t, "120AEC1001", models.StationRegistration)
	assert.True(t, result.Success)
	assert.False(t, result.TitoCheckin.Queued)

	snap := f.metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.CheckinFailures)
	assert.Equal(t, uint64(1), snap.CheckinsAbandoned)
}

func TestRfidServiceCheckinClientErrorNotQueued(t *testing.T) {
	f := newRfidFixture(t)
	f.encodeGraduate(t, "120AEC1001")
	f.tickets.checkinErr = &tito.StatusError{Op: "check in", StatusCode: http.StatusUnprocessableEntity}

	result := f.scan(t, "120AEC1001", models.StationRegistration)
	assert.False(t, result.TitoCheckin.Success)
	assert.False(t, result.TitoCheckin.Queued)
	assert.Empty(t, f.queue.jobs)
}

func TestRfidServiceBulkScanPartialFailure(t *testing.T) {
	f := newRfidFixture(t)
	f.encodeGraduate(t, "120AEC1001")
	f.encodeGraduate(t, "120AEC1002")
	f.encodeGraduate(t, "120AEC1004")

	result, err := f.svc.BulkScan(context.Background(), dto.BulkScanRequest{
		EPCs:      []string{"120AEC1001", "120AEC9999", "120AEC1002", "120AEC1004"},
		Station:   models.StationRegistration,
		ScannedBy: "desk-2",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 3, result.Successful)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.TitoCheckins)
	require.Len(t, result.Results, 4)
	assert.False(t, result.Results[1].Success)
	assert.Equal(t, "tag not found or void", result.Results[1].Error)
	assert.True(t, result.Results[3].Success)
	assert.Equal(t, models.StationRegistration, f.stored(t, "120AEC1004").CurrentStation)
}

func TestRfidServiceBulkScanCap(t *testing.T) {
	f := newRfidFixture(t)
	_, err := f.svc.BulkScan(context.Background(), dto.BulkScanRequest{
		EPCs:      []string{"A1", "A2", "A3", "A4", "A5", "A6"},
		Station:   models.StationPacking,
		ScannedBy: "desk",
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestRfidServiceBulkScanCustomAction(t *testing.T) {
	f := newRfidFixture(t)
	f.encodeGraduate(t, "120AEC1001")
	_, err := f.svc.BulkScan(context.Background(), dto.BulkScanRequest{
		EPCs: []string{"120AEC1001"}, Station: models.StationGownIssue, ScannedBy: "desk", Action: "Gown issued", Notes: "size M",
	})
	require.NoError(t, err)
	history := f.stored(t, "120AEC1001").ScanHistory
	assert.Equal(t, "Gown issued", history[1].Action)
	assert.Equal(t, "size M", history[1].Notes)
}

func TestRfidServiceDispatchExpandsBoxesWithoutDuplicates(t *testing.T) {
	f := newRfidFixture(t)
	f.encodeGraduate(t, "120AEC1001")
	f.encodeGraduate(t, "120AEC1002")
	f.encodeBox(t, "BOX-07", "120AEC1001", "120AEC1002")

	result, err := f.svc.Dispatch(context.Background(), dto.DispatchRequest{
		EPCs:           []string{"120AEC1001", "BOX-07"},
		DispatchedBy:   "courier-desk",
		TrackingNumber: "DT123",
		DispatchMethod: models.DispatchMethodDTDC,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Successful)
	epcs := make([]string, 0, len(result.Results))
	for _, r := range result.Results {
		epcs = append(epcs, r.EPC)
	}
	assert.Equal(t, []string{"120AEC1001", "BOX-07", "120AEC1002"}, epcs)

	tag := f.stored(t, "120AEC1001")
	assert.Len(t, tag.ScanHistory, 2)
	last := tag.ScanHistory[1]
	assert.Equal(t, "Dispatched via DTDC", last.Action)
	assert.Contains(t, last.Notes, "DT123")
	assert.Equal(t, models.TagStatusDispatched, f.stored(t, "BOX-07").Status)
}

func TestRfidServiceDispatchRejectsUnknownMethod(t *testing.T) {
	f := newRfidFixture(t)
	_, err := f.svc.Dispatch(context.Background(), dto.DispatchRequest{EPCs: []string{"X1"}, DispatchedBy: "c", DispatchMethod: "Pigeon"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestRfidServiceConvocationScenario(t *testing.T) {
	f := newRfidFixture(t)
	ctx := context.Background()
	f.encodeGraduate(t, "120AEC1001")
	f.scan(t, "120AEC1001", models.StationPacking)
	f.encodeBox(t, "BOX-07", "120AEC1001")
	f.scan(t, "120AEC1001", models.StationDispatchVenue)

	_, err := f.svc.Dispatch(ctx, dto.DispatchRequest{EPCs: []string{"BOX-07"}, DispatchedBy: "courier", DispatchMethod: models.DispatchMethodIndiaPost})
	require.NoError(t, err)

	tag, err := f.svc.GetByConvocationNumber(ctx, "120aec1001")
	require.NoError(t, err)
	assert.Equal(t, models.TagStatusDispatched, tag.Status)
	assert.Equal(t, models.StationFinalDispatch, tag.CurrentStation)
	require.Len(t, tag.ScanHistory, 4)
	stations := []models.Station{}
	for _, entry := range tag.ScanHistory {
		stations = append(stations, entry.Station)
	}
	assert.Equal(t, []models.Station{models.StationEncoding, models.StationPacking, models.StationDispatchVenue, models.StationFinalDispatch}, stations)
}

func TestRfidServiceHandoverDelivers(t *testing.T) {
	f := newRfidFixture(t)
	f.encodeGraduate(t, "120AEC1001")

	result, err := f.svc.Handover(context.Background(), dto.HandoverRequest{
		EPCs: []string{"120AEC1001"}, HandoverBy: "desk-9", HandoverTo: "Asha Rao (self)",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
	tag := f.stored(t, "120AEC1001")
	assert.Equal(t, models.TagStatusDelivered, tag.Status)
	assert.Equal(t, models.StationHandover, tag.CurrentStation)
	assert.Equal(t, "Handed over to Asha Rao (self)", tag.ScanHistory[1].Action)
}

func TestRfidServiceHistoryMonotonicAndVoidTerminal(t *testing.T) {
	f := newRfidFixture(t)
	ctx := context.Background()
	f.encodeGraduate(t, "120AEC1001")

	f.scan(t, "120AEC1001", models.StationPacking)
	f.scan(t, "120AEC1001", models.StationRegistration)
	f.scan(t, "120AEC1001", models.StationGownIssue)
	voided, err := f.svc.Void(ctx, "120AEC1001", dto.VoidTagRequest{Reason: "tag cracked", VoidedBy: "sup"})
	require.NoError(t, err)

	require.Len(t, voided.ScanHistory, 5)
	assert.Equal(t, models.TagStatusVoid, voided.Status)
	assert.Equal(t, models.StationGownIssue, voided.CurrentStation)
	assert.Equal(t, "Voided: tag cracked", voided.ScanHistory[4].Action)
	for i := 1; i < len(voided.ScanHistory); i++ {
		assert.False(t, voided.ScanHistory[i].Timestamp.Before(voided.ScanHistory[i-1].Timestamp))
	}

	_, err = f.svc.Scan(ctx, dto.ScanRequest{EPC: "120AEC1001", Station: models.StationPacking, ScannedBy: "x"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	result, err := f.svc.Dispatch(ctx, dto.DispatchRequest{EPCs: []string{"120AEC1001"}, DispatchedBy: "c"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	_, err = f.svc.Handover(ctx, dto.HandoverRequest{EPCs: []string{"120AEC1001"}, HandoverBy: "d", HandoverTo: "x"})
	require.NoError(t, err)

	_, err = f.svc.Void(ctx, "120AEC1001", dto.VoidTagRequest{Reason: "again", VoidedBy: "sup"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	assert.Len(t, f.stored(t, "120AEC1001").ScanHistory, 5)
}

func TestRfidServiceRetriesVersionConflict(t *testing.T) {
	f := newRfidFixture(t)
	f.encodeGraduate(t, "120AEC1001")
	f.store.conflicts = 2

	result := f.scan(t, "120AEC1001", models.StationPacking)
	assert.Len(t, result.Tag.ScanHistory, 2)
	assert.Equal(t, 0, f.store.conflicts)
}

func TestRfidServiceGivesUpAfterRetries(t *testing.T) {
	f := newRfidFixture(t)
	f.encodeGraduate(t, "120AEC1001")
	f.store.conflicts = 10

	_, err := f.svc.Scan(context.Background(), dto.ScanRequest{EPC: "120AEC1001", Station: models.StationPacking, ScannedBy: "x"})
	assert.ErrorIs(t, err, appErrors.ErrVersionConflict)
}

func TestRfidServiceConcurrentScansKeepEveryEntry(t *testing.T) {
	f := newRfidFixture(t)
	f.encodeGraduate(t, "120AEC1001")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Scan(context.Background(), dto.ScanRequest{EPC: "120AEC1001", Station: models.StationGownIssue, ScannedBy: "desk"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, f.stored(t, "120AEC1001").ScanHistory, 21)
}

func TestRfidServiceSetBoxContents(t *testing.T) {
	f := newRfidFixture(t)
	ctx := context.Background()
	f.encodeGraduate(t, "120AEC1001")
	f.encodeGraduate(t, "120AEC1002")
	f.encodeBox(t, "BOX-07")
	f.encodeBox(t, "BOX-08")

	_, err := f.svc.SetBoxContents(ctx, "BOX-07", dto.SetBoxContentsRequest{EPCs: []string{"BOX-08"}, UpdatedBy: "packer"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = f.svc.SetBoxContents(ctx, "BOX-07", dto.SetBoxContentsRequest{EPCs: []string{"box-07"}, UpdatedBy: "packer"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = f.svc.SetBoxContents(ctx, "BOX-07", dto.SetBoxContentsRequest{EPCs: []string{"120AEC7777"}, UpdatedBy: "packer"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = f.svc.SetBoxContents(ctx, "120AEC1001", dto.SetBoxContentsRequest{EPCs: []string{"120AEC1002"}, UpdatedBy: "packer"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Len(t, f.stored(t, "120AEC1001").ScanHistory, 1)

	f.encodeGraduate(t, "120AEC1003")
	_, err = f.svc.Void(ctx, "120AEC1003", dto.VoidTagRequest{Reason: "cracked", VoidedBy: "sup"})
	require.NoError(t, err)
	_, err = f.svc.SetBoxContents(ctx, "BOX-07", dto.SetBoxContentsRequest{EPCs: []string{"120AEC1003"}, UpdatedBy: "packer"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	box, err := f.svc.SetBoxContents(ctx, "BOX-07", dto.SetBoxContentsRequest{
		EPCs: []string{"120aec1001", "120AEC1002", "120AEC1001"}, UpdatedBy: "packer",
	})
	require.NoError(t, err)
	assert.Equal(t, models.EPCList{"120AEC1001", "120AEC1002"}, box.BoxContents)
	assert.Equal(t, models.StationPacking, box.CurrentStation)
	assert.Len(t, box.ScanHistory, 2)
}

func TestRfidServiceBoxContentsDropsStaleMembers(t *testing.T) {
	f := newRfidFixture(t)
	ctx := context.Background()
	f.encodeGraduate(t, "120AEC1001")
	f.encodeGraduate(t, "120AEC1002")
	f.encodeBox(t, "BOX-07", "120AEC1001", "120AEC1002")

	// Simulate a member record disappearing from the store.
	f.store.mu.Lock()
	kept := f.store.records[:0]
	for _, rec := range f.store.records {
		if rec.EPC != "120AEC1002" {
			kept = append(kept, rec)
		}
	}
	f.store.records = kept
	f.store.mu.Unlock()
	f.cache.Clear()

	contents, err := f.svc.BoxContents(ctx, "box-07")
	require.NoError(t, err)
	require.Len(t, contents.Items, 1)
	assert.Equal(t, "120AEC1001", contents.Items[0].EPC)
	assert.Equal(t, []string{"120AEC1002"}, contents.Missing)

	_, err = f.svc.BoxContents(ctx, "120AEC1001")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = f.svc.BoxContents(ctx, "BOX-99")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestRfidServiceBoxContentsReportsVoidedMembersMissing(t *testing.T) {
	f := newRfidFixture(t)
	ctx := context.Background()
	f.encodeGraduate(t, "120AEC1001")
	f.encodeGraduate(t, "120AEC1002")
	f.encodeBox(t, "BOX-07", "120AEC1001", "120AEC1002")

	_, err := f.svc.Void(ctx, "120AEC1002", dto.VoidTagRequest{Reason: "tag cracked", VoidedBy: "sup"})
	require.NoError(t, err)

	contents, err := f.svc.BoxContents(ctx, "BOX-07")
	require.NoError(t, err)
	require.Len(t, contents.Items, 1)
	assert.Equal(t, "120AEC1001", contents.Items[0].EPC)
	assert.Equal(t, []string{"120AEC1002"}, contents.Missing)

	f.cache.Clear()
	contents, err = f.svc.BoxContents(ctx, "BOX-07")
	require.NoError(t, err)
	assert.Len(t, contents.Items, 1)
	assert.Equal(t, []string{"120AEC1002"}, contents.Missing)
}

func TestRfidServiceBoxContentsSeesWritesWithinWindow(t *testing.T) {
	f := newRfidFixture(t)
	ctx := context.Background()
	f.encodeGraduate(t, "120AEC1001")
	f.encodeBox(t, "BOX-07")

	_, err := f.svc.BoxContents(ctx, "BOX-07")
	require.NoError(t, err)

	_, err = f.svc.SetBoxContents(ctx, "BOX-07", dto.SetBoxContentsRequest{EPCs: []string{"120AEC1001"}, UpdatedBy: "packer"})
	require.NoError(t, err)

	contents, err := f.svc.BoxContents(ctx, "BOX-07")
	require.NoError(t, err)
	require.Len(t, contents.Items, 1)
}

func TestRfidServiceVerify(t *testing.T) {
	f := newRfidFixture(t)
	ctx := context.Background()
	uhf := "E28011700000020F1A2B3C4D"
	_, err := f.svc.Encode(ctx, dto.EncodeTagRequest{EPC: uhf, Type: models.TagTypeGraduate, ConvocationNumber: "120AEC1003", EncodedBy: "e"})
	require.NoError(t, err)

	exact, err := f.svc.Verify(ctx, uhf)
	require.NoError(t, err)
	assert.True(t, exact.Found)
	assert.Equal(t, epc.MatchExact, exact.MatchMethod)

	truncated, err := f.svc.Verify(ctx, uhf+"E2003412")
	require.NoError(t, err)
	assert.True(t, truncated.Found)
	assert.Equal(t, epc.MatchTruncated, truncated.MatchMethod)
	assert.Equal(t, uhf, truncated.MatchedEPC)

	wd01, err := f.svc.Verify(ctx, "ABCD"+epc.UHFToReversedHex(uhf)+"0030")
	require.NoError(t, err)
	assert.True(t, wd01.Found)
	assert.Equal(t, epc.MatchWD01, wd01.MatchMethod)
	assert.Equal(t, "wd01", wd01.DetectedAs)

	missing, err := f.svc.Verify(ctx, "120AEC4040")
	require.NoError(t, err)
	assert.False(t, missing.Found)
	assert.Equal(t, "graduate", missing.DetectedAs)

	_, err = f.svc.Verify(ctx, "  ")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestRfidServiceGetByEPCNotFound(t *testing.T) {
	f := newRfidFixture(t)
	_, err := f.svc.GetByEPC(context.Background(), "BOX-404")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = f.svc.GetByConvocationNumber(context.Background(), "120AEC4040")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestRfidServiceListPagination(t *testing.T) {
	f := newRfidFixture(t)
	f.encodeGraduate(t, "120AEC1001")
	tags, pagination, err := f.svc.List(context.Background(), models.RfidTagFilter{Page: 0, PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, tags, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}
