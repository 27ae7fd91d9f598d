package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/training-roster-api/internal/models"
	"github.com/noah-isme/training-roster-api/pkg/jobs"
)

const auditJobType = "audit_log"

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// auditRecorder is what the domain services depend on.
type auditRecorder interface {
	Record(ctx context.Context, entry models.AuditLog)
}

type noopAuditor struct{}

func (noopAuditor) Record(context.Context, models.AuditLog) {}

// AuditConfig sizes the background writer.
type AuditConfig = jobs.QueueConfig

// AuditService persists audit entries through a background queue. Until Start
// is called, or once the queue rejects an entry, entries are written inline.
type AuditService struct {
	writer  auditWriter
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAuditService builds the service and its queue. The queue is not started.
func NewAuditService(writer auditWriter, metrics *MetricsService, logger *zap.Logger, cfg AuditConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AuditService{writer: writer, metrics: metrics, logger: logger}
	cfg.Logger = logger
	svc.queue = jobs.NewQueue("audit", svc.handle, cfg)
	return svc
}

// Start launches the background writers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop flushes queued entries and stops the writers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Record stores entry asynchronously when possible. Failures are logged and
// never reach the caller.
func (s *AuditService) Record(ctx context.Context, entry models.AuditLog) {
	if s == nil || s.writer == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := s.queue.Enqueue(jobs.Job{ID: entry.ID, Type: auditJobType, Payload: entry}); err == nil {
		s.metrics.RecordAuditWrite("queued")
		return
	}
	if err := s.writer.CreateAuditLog(context.WithoutCancel(ctx), &entry); err != nil {
		s.metrics.RecordAuditWrite("failed")
		s.logger.Warn("failed to record audit log", zap.String("action", entry.Action), zap.Error(err))
		return
	}
	s.metrics.RecordAuditWrite("inline")
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(models.AuditLog)
	if !ok {
		s.logger.Error("unexpected audit payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.writer.CreateAuditLog(ctx, &entry); err != nil {
		return fmt.Errorf("write audit log %s: %w", entry.ID, err)
	}
	return nil
}

// newAuditEntry builds an entry for actor acting on resource/resourceID.
// Values are JSON encoded; nil values are omitted.
func newAuditEntry(actor models.Actor, action, resource, resourceID string, oldValues, newValues interface{}) models.AuditLog {
	entry := models.AuditLog{
		Action:    action,
		Resource:  resource,
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
	}
	if actor.ID != "" {
		id := actor.ID
		entry.UserID = &id
	}
	if resourceID != "" {
		rid := resourceID
		entry.ResourceID = &rid
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	return entry
}
