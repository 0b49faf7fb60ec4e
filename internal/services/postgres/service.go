// Package postgres provides PostgreSQL dump and restore operations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/rs/zerolog"

	"github.com/fgeck/afterchive/internal/apperr"
	"github.com/fgeck/afterchive/internal/dbversion"
	"github.com/fgeck/afterchive/internal/models"
	"github.com/fgeck/afterchive/internal/shell"
)

const (
	maintenanceDatabase = "postgres"
	connectTimeout      = 10 * time.Second
)

// Service defines the interface for PostgreSQL dump and restore operations.
type Service interface {
	Dump(ctx context.Context, cfg models.DatabaseConfig) (*models.Artifact, error)
	Restore(ctx context.Context, cfg models.DatabaseConfig, backupFile string) error
}

// Opener opens a database handle for a DSN. Replaced with sqlmock in tests.
type Opener func(dsn string) (*sql.DB, error)

// DefaultOpener opens a connection pool through pgx.
func DefaultOpener(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// Impl implements the PostgreSQL Service interface.
type Impl struct {
	executor shell.Executor
	open     Opener
	tempRoot string
	now      func() time.Time
	logger   zerolog.Logger
}

// New creates a new PostgreSQL service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &shell.DefaultExecutor{},
		open:     DefaultOpener,
		tempRoot: os.TempDir(),
		now:      time.Now,
		logger:   logger,
	}
}

// NewWithExecutor creates a new PostgreSQL service with custom seams (for testing).
func NewWithExecutor(logger zerolog.Logger, executor shell.Executor, open Opener, tempRoot string) *Impl {
	return &Impl{
		executor: executor,
		open:     open,
		tempRoot: tempRoot,
		now:      time.Now,
		logger:   logger,
	}
}

// Dump checks connectivity and tool compatibility, then runs pg_dump into a
// fresh artifact. Nothing is written to disk until both checks pass.
func (s *Impl) Dump(ctx context.Context, cfg models.DatabaseConfig) (*models.Artifact, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Msg("starting PostgreSQL dump")

	start := time.Now()

	db, err := s.connect(ctx, cfg, cfg.Name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	if err := s.checkVersion(ctx, db); err != nil {
		return nil, err
	}

	artifact, err := models.NewArtifact(s.tempRoot, models.ArtifactName(cfg.Name, s.now(), "sql"))
	if err != nil {
		return nil, err
	}

	_, err = s.executor.Run(ctx, shell.Command{
		Name:       "pg_dump",
		Args:       connArgs(cfg, cfg.Name),
		Env:        passwordEnv(cfg),
		StdoutPath: artifact.Path,
	})
	if err != nil {
		// Clean up partial file
		_ = artifact.Remove()
		return nil, apperr.ToolExecution("pg_dump", shell.StderrOf(err), err)
	}

	var size int64
	if info, err := os.Stat(artifact.Path); err == nil {
		size = info.Size()
	}

	s.logger.Info().
		Str("output", artifact.Path).
		Int64("size_bytes", size).
		Dur("duration", time.Since(start)).
		Msg("PostgreSQL dump completed")

	return artifact, nil
}

// Restore applies a plain SQL dump with psql, creating the target database first if needed.
func (s *Impl) Restore(ctx context.Context, cfg models.DatabaseConfig, backupFile string) error {
	if err := validate(cfg); err != nil {
		return err
	}
	if _, err := os.Stat(backupFile); err != nil {
		return apperr.Config(apperr.ReasonInvalidFile, fmt.Sprintf("backup file %s is not readable", backupFile), err)
	}

	s.logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Str("input", backupFile).
		Msg("starting PostgreSQL restore")

	start := time.Now()

	db, err := s.connect(ctx, cfg, maintenanceDatabase)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	exists, err := databaseExists(ctx, db, cfg.Name)
	if err != nil {
		return classify(err, cfg)
	}
	if !exists {
		s.logger.Info().Str("database", cfg.Name).Msg("target database does not exist, creating it")
		if _, err := db.ExecContext(ctx, "CREATE DATABASE "+pgx.Identifier{cfg.Name}.Sanitize()); err != nil {
			return classify(err, cfg)
		}
	}

	args := append(connArgs(cfg, cfg.Name), "--quiet", "-v", "ON_ERROR_STOP=1", "-f", backupFile)
	if _, err := s.executor.Run(ctx, shell.Command{
		Name: "psql",
		Args: args,
		Env:  passwordEnv(cfg),
	}); err != nil {
		return apperr.ToolExecution("psql", shell.StderrOf(err), err)
	}

	s.logger.Info().
		Str("database", cfg.Name).
		Bool("created", !exists).
		Dur("duration", time.Since(start)).
		Msg("PostgreSQL restore completed")

	return nil
}

func (s *Impl) connect(ctx context.Context, cfg models.DatabaseConfig, database string) (*sql.DB, error) {
	db, err := s.open(DSN(cfg, database))
	if err != nil {
		return nil, classify(err, cfg)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, classify(err, cfg)
	}

	s.logger.Debug().Str("database", database).Msg("connectivity check passed")
	return db, nil
}

func (s *Impl) checkVersion(ctx context.Context, db *sql.DB) error {
	var server string
	if err := db.QueryRowContext(ctx, "SHOW server_version").Scan(&server); err != nil {
		s.logger.Debug().Err(err).Msg("could not read server version, skipping compatibility check")
		return nil
	}

	out, err := s.executor.Run(ctx, shell.Command{Name: "pg_dump", Args: []string{"--version"}})
	if err != nil {
		s.logger.Debug().Err(err).Msg("could not read pg_dump version, skipping compatibility check")
		return nil
	}

	skipped, err := dbversion.Check("pg_dump", string(out), server, dbversion.PostgresRelease)
	if skipped {
		s.logger.Debug().Str("server", server).Str("local", string(out)).Msg("unrecognised version string, skipping compatibility check")
	}
	return err
}

func databaseExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, "SELECT 1 FROM pg_database WHERE datname = $1", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DSN builds a pgx connection URL for the given database.
func DSN(cfg models.DatabaseConfig, database string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + database,
	}
	if cfg.HasPassword() {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}
	q := url.Values{}
	q.Set("connect_timeout", strconv.Itoa(int(connectTimeout.Seconds())))
	u.RawQuery = q.Encode()
	return u.String()
}

func connArgs(cfg models.DatabaseConfig, database string) []string {
	return []string{
		"-h", cfg.Host,
		"-p", strconv.Itoa(cfg.Port),
		"-U", cfg.User,
		"-d", database,
		"--no-password",
	}
}

func passwordEnv(cfg models.DatabaseConfig) []string {
	if !cfg.HasPassword() {
		return nil
	}
	return []string{"PGPASSWORD=" + cfg.Password}
}

func validate(cfg models.DatabaseConfig) error {
	var missing []string
	if cfg.Host == "" {
		missing = append(missing, "database.host")
	}
	if cfg.Port == 0 {
		missing = append(missing, "database.port")
	}
	if cfg.Name == "" {
		missing = append(missing, "database.name")
	}
	if cfg.User == "" {
		missing = append(missing, "database.user")
	}
	if len(missing) > 0 {
		return apperr.MissingFields(missing...)
	}
	return nil
}
