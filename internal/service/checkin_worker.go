package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/convocation-rfid-api/pkg/jobs"
	"github.com/noah-isme/convocation-rfid-api/pkg/tito"
)

// CheckinJobType tags queued ticketing check-in retries.
const CheckinJobType = "tito.checkin"

// CheckinJob is the payload of a queued check-in retry.
type CheckinJob struct {
	EPC      string
	List     string
	TicketID string
}

func newCheckinJob(epcCode, list, ticketID string) jobs.Job {
	return jobs.Job{
		ID:      uuid.NewString(),
		Type:    CheckinJobType,
		Payload: CheckinJob{EPC: epcCode, List: list, TicketID: ticketID},
	}
}

// retryableCheckin reports whether a failed check-in is worth repeating.
// Client errors such as an already checked-in ticket or a malformed ticket
// id will fail the same way.
func retryableCheckin(err error) bool {
	if errors.Is(err, tito.ErrInvalidCheckin) {
		return false
	}
	var statusErr *tito.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError || statusErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

type ticketCheckin interface {
	CheckIn(ctx context.Context, checkinList, ticketID string) error
}

// CheckinWorker replays queued check-ins against the ticketing API.
type CheckinWorker struct {
	tickets ticketCheckin
	metrics *MetricsService
	logger  *zap.Logger
}

// NewCheckinWorker constructs a worker.
func NewCheckinWorker(tickets ticketCheckin, metrics *MetricsService, logger *zap.Logger) *CheckinWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckinWorker{tickets: tickets, metrics: metrics, logger: logger}
}

// Handle processes a queue job. Returning an error lets the queue retry it.
func (w *CheckinWorker) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(CheckinJob)
	if !ok {
		w.logger.Error("unexpected check-in job payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	err := w.tickets.CheckIn(ctx, payload.List, payload.TicketID)
	if err == nil {
		w.metrics.RecordCheckin("retry_success")
		w.logger.Info("queued check-in succeeded", zap.String("epc", payload.EPC), zap.String("list", payload.List), zap.Int("attempt", job.Attempt))
		return nil
	}
	w.metrics.RecordCheckin("retry_failure")
	if !retryableCheckin(err) {
		w.logger.Warn("queued check-in rejected", zap.String("epc", payload.EPC), zap.Error(err))
		return nil
	}
	return fmt.Errorf("check-in %s on %s: %w", payload.EPC, payload.List, err)
}
