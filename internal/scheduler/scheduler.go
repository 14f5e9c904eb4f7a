package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/avicontrol/internal/config"
	"github.com/mamadbah2/avicontrol/internal/replication"
	"github.com/mamadbah2/avicontrol/internal/store"
)

const jobTimeout = 2 * time.Minute

// Pusher re-uploads every collection to the mirror.
type Pusher interface {
	PushAllCollections(ctx context.Context) error
}

// Exporter sends batch reports to the spreadsheet.
type Exporter interface {
	ExportActiveBatches(ctx context.Context) (int, error)
}

// Archiver stores a named snapshot document.
type Archiver interface {
	Archive(ctx context.Context, name string, payload []byte) (string, error)
}

// Jobs groups the optional job dependencies. A nil field disables its job.
type Jobs struct {
	Pusher   Pusher
	Exporter Exporter
	Archiver Archiver
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron   *cron.Cron
	cfg    config.SchedulerConfig
	store  *store.Store
	jobs   Jobs
	logger *zap.Logger
	now    func() time.Time
}

// NewScheduler creates a new scheduler instance. Schedules use the standard
// five-field cron syntax evaluated in cfg.Timezone.
func NewScheduler(cfg config.SchedulerConfig, st *store.Store, jobs Jobs, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", cfg.Timezone, err)
	}

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		cfg:    cfg,
		store:  st,
		jobs:   jobs,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Start registers the configured jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler")

	if s.cfg.BackupSchedule != "" && (s.jobs.Pusher != nil || s.jobs.Archiver != nil) {
		if _, err := s.cron.AddFunc(s.cfg.BackupSchedule, s.runBackup); err != nil {
			return fmt.Errorf("schedule backup %q: %w", s.cfg.BackupSchedule, err)
		}
		s.logger.Info("backup job scheduled", zap.String("schedule", s.cfg.BackupSchedule))
	}

	if s.cfg.ExportSchedule != "" && s.jobs.Exporter != nil {
		if _, err := s.cron.AddFunc(s.cfg.ExportSchedule, s.runExport); err != nil {
			return fmt.Errorf("schedule export %q: %w", s.cfg.ExportSchedule, err)
		}
		s.logger.Info("export job scheduled", zap.String("schedule", s.cfg.ExportSchedule))
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runBackup() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := s.Backup(ctx); err != nil {
		s.logger.Error("backup job failed", zap.Error(err))
	}
}

func (s *Scheduler) runExport() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := s.Export(ctx); err != nil {
		s.logger.Error("export job failed", zap.Error(err))
	}
}

// Backup pushes every collection to the mirror when replication is enabled
// and archives a full snapshot when an archiver is configured.
func (s *Scheduler) Backup(ctx context.Context) error {
	var errs []error

	if s.jobs.Pusher != nil {
		err := s.jobs.Pusher.PushAllCollections(ctx)
		switch {
		case errors.Is(err, replication.ErrDisabled):
			s.logger.Debug("replication disabled, skipping mirror push")
		case err != nil:
			errs = append(errs, err)
		default:
			s.logger.Info("mirror push completed")
		}
	}

	if s.jobs.Archiver != nil {
		if err := s.Archive(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Export sends every active batch to the spreadsheet.
func (s *Scheduler) Export(ctx context.Context) error {
	if s.jobs.Exporter == nil {
		return nil
	}
	n, err := s.jobs.Exporter.ExportActiveBatches(ctx)
	s.logger.Info("export completed", zap.Int("batches", n))
	return err
}

type snapshotDocument struct {
	TakenAt time.Time                  `json:"takenAt"`
	Data    map[string]json.RawMessage `json:"data"`
}

// Archive stores every replicated collection as one JSON document.
func (s *Scheduler) Archive(ctx context.Context) error {
	if s.jobs.Archiver == nil {
		return nil
	}
	doc := snapshotDocument{TakenAt: s.now().UTC(), Data: make(map[string]json.RawMessage, len(store.Replicated))}
	for _, c := range store.Replicated {
		raw, err := s.store.Snapshot(c)
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", c, err)
		}
		doc.Data[string(c)] = raw
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := s.jobs.Archiver.Archive(ctx, "snapshot", payload); err != nil {
		return fmt.Errorf("archive snapshot: %w", err)
	}
	return nil
}
