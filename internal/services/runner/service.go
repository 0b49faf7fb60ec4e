// Package runner orchestrates the backup and restore workflows.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fgeck/afterchive/internal/apperr"
	"github.com/fgeck/afterchive/internal/models"
	"github.com/fgeck/afterchive/internal/services/telegram"
	"github.com/fgeck/afterchive/internal/strategy"
	"github.com/fgeck/afterchive/internal/util"
)

const notifyTimeout = 30 * time.Second

// Phase is a step of a run.
type Phase string

// Run phases. Backup goes resolving, dumping, uploading, cleaning_up, done;
// restore goes resolving, downloading, restoring, cleaning_up, done.
const (
	PhaseResolving   Phase = "resolving"
	PhaseDumping     Phase = "dumping"
	PhaseUploading   Phase = "uploading"
	PhaseDownloading Phase = "downloading"
	PhaseRestoring   Phase = "restoring"
	PhaseCleaningUp  Phase = "cleaning_up"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// Service defines the interface for the backup runner.
type Service interface {
	Backup(ctx context.Context, job models.Job) (*models.RunResult, error)
	Restore(ctx context.Context, job models.Job) (*models.RunResult, error)
}

// Strategies resolves type tokens to adapters. *strategy.Registry satisfies it.
type Strategies interface {
	Database(token string) (strategy.DatabaseAdapter, error)
	Storage(token string) (strategy.StorageAdapter, error)
}

// Impl implements the runner Service interface.
type Impl struct {
	strategies  Strategies
	telegramSvc telegram.Service
	newRunID    func() string
	logger      zerolog.Logger
}

// New creates a new runner service.
func New(logger zerolog.Logger, strategies Strategies) *Impl {
	return &Impl{
		strategies:  strategies,
		telegramSvc: telegram.New(logger),
		newRunID:    uuid.NewString,
		logger:      logger,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	strategies Strategies,
	telegramSvc telegram.Service,
	newRunID func() string,
) *Impl {
	return &Impl{
		strategies:  strategies,
		telegramSvc: telegramSvc,
		newRunID:    newRunID,
		logger:      logger,
	}
}

// run tracks the state shared by the backup and restore workflows.
type run struct {
	job    models.Job
	start  time.Time
	phase  Phase
	result *models.RunResult
	logger zerolog.Logger
}

func (s *Impl) newRun(job models.Job) *run {
	runID := s.newRunID()
	return &run{
		job:   job,
		start: time.Now(),
		phase: PhaseResolving,
		result: &models.RunResult{
			RunID:   runID,
			Command: job.Command,
		},
		logger: s.logger.With().
			Str("run_id", runID).
			Str("command", string(job.Command)).
			Logger(),
	}
}

func (r *run) enter(phase Phase) {
	r.phase = phase
	r.logger.Debug().Str("phase", string(phase)).Msg("entering phase")
}

// cleanup removes the artifact. Failures are logged and never change the outcome.
func (r *run) cleanup(artifact *models.Artifact) {
	prev := r.phase
	r.enter(PhaseCleaningUp)
	if err := artifact.Remove(); err != nil {
		r.logger.Warn().Err(err).Str("path", artifact.Path).Msg("failed to remove local artifact")
	}
	r.phase = prev
}

// finish records the outcome, logs it and sends the notification if configured.
func (s *Impl) finish(ctx context.Context, r *run, runErr error) {
	r.result.Duration = time.Since(r.start)

	if runErr != nil {
		r.result.FailedPhase = string(r.phase)
		r.logger.Error().
			Err(runErr).
			Str("phase", string(PhaseFailed)).
			Str("failed_phase", r.result.FailedPhase).
			Str("kind", string(apperr.KindOf(runErr))).
			Str("reason", string(apperr.ReasonOf(runErr))).
			Dur("duration", r.result.Duration).
			Msgf("%s failed", r.job.Command)
	} else {
		r.enter(PhaseDone)
		r.logger.Info().
			Str("artifact", r.result.ArtifactName).
			Str("location", r.result.Location).
			Int64("size_bytes", r.result.SizeBytes).
			Str("sha256", r.result.SHA256).
			Dur("duration", r.result.Duration).
			Msgf("%s completed successfully", r.job.Command)
	}

	if r.job.Telegram != nil {
		s.sendNotification(ctx, r, runErr)
	}
}

// Backup dumps the database and stores the artifact. A failed dump is
// never uploaded, and the local artifact is removed on every path.
func (s *Impl) Backup(ctx context.Context, job models.Job) (result *models.RunResult, err error) {
	r := s.newRun(job)
	defer func() { s.finish(ctx, r, err) }()

	r.logger.Info().
		Str("database_type", job.Database.Type).
		Str("database", job.Database.Name).
		Str("storage_type", job.Storage.Type).
		Msg("starting backup run")

	db, err := s.strategies.Database(job.Database.Type)
	if err != nil {
		return r.result, err
	}
	store, err := s.strategies.Storage(job.Storage.Type)
	if err != nil {
		return r.result, err
	}

	r.enter(PhaseDumping)
	artifact, err := db.Dump(ctx, job.Database)
	if err != nil {
		return r.result, err
	}
	defer r.cleanup(artifact)

	r.result.ArtifactName = artifact.Name()
	if err := s.measure(r, artifact.Path); err != nil {
		return r.result, err
	}

	r.enter(PhaseUploading)
	location, err := store.Store(ctx, artifact.Path, job.Storage)
	if err != nil {
		return r.result, err
	}
	r.result.Location = location

	return r.result, nil
}

// Restore retrieves the named artifact and applies it to the database.
func (s *Impl) Restore(ctx context.Context, job models.Job) (result *models.RunResult, err error) {
	r := s.newRun(job)
	defer func() { s.finish(ctx, r, err) }()

	r.logger.Info().
		Str("database_type", job.Database.Type).
		Str("database", job.Database.Name).
		Str("storage_type", job.Storage.Type).
		Str("backup_file", job.BackupFile).
		Msg("starting restore run")

	db, err := s.strategies.Database(job.Database.Type)
	if err != nil {
		return r.result, err
	}
	store, err := s.strategies.Storage(job.Storage.Type)
	if err != nil {
		return r.result, err
	}

	r.enter(PhaseDownloading)
	artifact, err := store.Retrieve(ctx, job.BackupFile, job.Storage)
	if err != nil {
		return r.result, err
	}
	defer r.cleanup(artifact)

	r.result.ArtifactName = artifact.Name()
	if err := s.measure(r, artifact.Path); err != nil {
		return r.result, err
	}

	r.enter(PhaseRestoring)
	if err := db.Restore(ctx, job.Database, artifact.Path); err != nil {
		return r.result, err
	}

	return r.result, nil
}

func (s *Impl) measure(r *run, path string) error {
	sum, size, err := util.SHA256File(path)
	if err != nil {
		return fmt.Errorf("failed to checksum %s: %w", path, err)
	}
	r.result.SHA256 = sum
	r.result.SizeBytes = size
	r.logger.Debug().Int64("size_bytes", size).Str("sha256", sum).Msg("artifact measured")
	return nil
}

func (s *Impl) sendNotification(ctx context.Context, r *run, runErr error) {
	// A cancelled run still reports its outcome.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	msg := models.TelegramMessage{
		Success:      runErr == nil,
		Command:      r.job.Command,
		RunID:        r.result.RunID,
		Database:     fmt.Sprintf("%s/%s", r.job.Database.Type, r.job.Database.Name),
		Storage:      r.job.Storage.Type,
		StartTime:    r.start,
		Duration:     r.result.Duration,
		ArtifactName: r.result.ArtifactName,
		Location:     r.result.Location,
		SizeBytes:    r.result.SizeBytes,
		SHA256:       r.result.SHA256,
	}
	if runErr != nil {
		msg.FailedPhase = r.result.FailedPhase
		msg.ErrorMessage = runErr.Error()
	}

	result, err := s.telegramSvc.SendNotification(notifyCtx, *r.job.Telegram, msg)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		r.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	r.logger.Info().Msg("Telegram notification sent")
}
