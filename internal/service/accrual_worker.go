package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lendbook/lendbook-backend/internal/domain"
	"github.com/lendbook/lendbook-backend/internal/util"
	"github.com/lendbook/lendbook-backend/internal/websocket"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultAccrualSchedule runs the accrual shortly after midnight UTC
const DefaultAccrualSchedule = "@daily"

// AccrualWorker runs overdue accrual followed by overdue notification on a cron schedule
type AccrualWorker struct {
	accrualService  *AccrualService
	overdueNotifier *OverdueNotifier
	audit           domain.AuditSink
	eventPublisher  websocket.EventPublisher
	logger          zerolog.Logger
	schedule        string
	cron            *cron.Cron
	runMu           sync.Mutex
	mu              sync.Mutex
	running         bool
}

// AccrualWorkerConfig holds configuration for the accrual worker
type AccrualWorkerConfig struct {
	Schedule string // cron spec or descriptor such as "@daily"
}

// RunResult is the outcome of one accrual plus notification run
type RunResult struct {
	Accrual       *domain.AccrualResult       `json:"accrual"`
	Notifications *domain.OverdueNotifyResult `json:"notifications"`
}

// NewAccrualWorker creates a new accrual worker
func NewAccrualWorker(
	accrualService *AccrualService,
	overdueNotifier *OverdueNotifier,
	audit domain.AuditSink,
	logger zerolog.Logger,
	config AccrualWorkerConfig,
) *AccrualWorker {
	if config.Schedule == "" {
		config.Schedule = DefaultAccrualSchedule
	}

	componentLogger := logger.With().Str("component", "accrual_worker").Logger()
	return &AccrualWorker{
		accrualService:  accrualService,
		overdueNotifier: overdueNotifier,
		audit:           audit,
		logger:          componentLogger,
		schedule:        config.Schedule,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{componentLogger})),
		),
	}
}

// SetEventPublisher sets the publisher that announces finished runs to staff
func (w *AccrualWorker) SetEventPublisher(publisher websocket.EventPublisher) {
	w.eventPublisher = publisher
}

// Start registers the schedule and starts the cron runner. ctx bounds every scheduled run.
func (w *AccrualWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if _, err := w.cron.AddFunc(w.schedule, func() {
		if _, err := w.RunNow(ctx, time.Time{}, nil); err != nil {
			w.logger.Error().Err(err).Msg("Scheduled accrual run failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid accrual schedule %q: %w", w.schedule, err)
	}

	w.cron.Start()
	w.running = true
	w.logger.Info().Str("schedule", w.schedule).Msg("Starting accrual worker")
	return nil
}

// Stop halts the scheduler and waits for an in-flight run to finish
func (w *AccrualWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.logger.Info().Msg("Stopping accrual worker")
	<-w.cron.Stop().Done()
	w.logger.Info().Msg("Accrual worker stopped")
}

// IsRunning returns whether the scheduler is active
func (w *AccrualWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunNow accrues overdue interest as of asOf and then sends overdue alerts. Runs never
// overlap. actorID is nil for scheduled runs. A zero asOf means today.
func (w *AccrualWorker) RunNow(ctx context.Context, asOf time.Time, actorID *uuid.UUID) (*RunResult, error) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	if asOf.IsZero() {
		asOf = util.Today()
	}
	startTime := time.Now()

	accrual, err := w.accrualService.AccrueOverdue(ctx, asOf)
	if err != nil {
		return nil, err
	}
	notifications, err := w.overdueNotifier.NotifyOverdue(ctx, asOf)
	if err != nil {
		return nil, err
	}

	w.audit.LogAudit(ctx, domain.AuditEntry{
		ActorID:   actorID,
		Action:    domain.AuditAccrualRun,
		TableName: domain.AuditTableInstallments,
		RecordID:  util.FormatDate(accrual.AsOf),
		NewValues: map[string]any{
			"loansScanned":  accrual.LoansScanned,
			"updatedCount":  accrual.UpdatedCount,
			"errors":        accrual.Errors,
			"loansOverdue":  notifications.LoansOverdue,
			"notifications": notifications.Notifications,
		},
	})

	result := &RunResult{Accrual: accrual, Notifications: notifications}
	if w.eventPublisher != nil {
		w.eventPublisher.PublishToStaff(websocket.AccrualCompleted(result))
	}

	w.logger.Info().
		Str("as_of", util.FormatDate(accrual.AsOf)).
		Int("updated_count", accrual.UpdatedCount).
		Int("notifications", notifications.Notifications).
		Dur("elapsed", time.Since(startTime)).
		Msg("Completed accrual run")
	return result, nil
}

// cronLogger routes cron's internal logging to zerolog
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
