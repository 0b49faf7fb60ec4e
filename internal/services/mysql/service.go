// Package mysql provides MySQL and MariaDB dump and restore operations.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/fgeck/afterchive/internal/apperr"
	"github.com/fgeck/afterchive/internal/dbversion"
	"github.com/fgeck/afterchive/internal/models"
	"github.com/fgeck/afterchive/internal/shell"
)

const connectTimeout = 10 * time.Second

// Server error numbers that get their own message.
const (
	erDBAccessDenied    = 1044
	erAccessDenied      = 1045
	erBadDB             = 1049
	erHostNotPrivileged = 1130
	erPasswordNoMatch   = 1133
)

// Service defines the interface for MySQL dump and restore operations.
type Service interface {
	Dump(ctx context.Context, cfg models.DatabaseConfig) (*models.Artifact, error)
	Restore(ctx context.Context, cfg models.DatabaseConfig, backupFile string) error
}

// Opener opens a database handle for a DSN. Replaced with sqlmock in tests.
type Opener func(dsn string) (*sql.DB, error)

// DefaultOpener opens a connection pool through go-sql-driver/mysql.
func DefaultOpener(dsn string) (*sql.DB, error) {
	return sql.Open("mysql", dsn)
}

// Impl implements the MySQL Service interface.
type Impl struct {
	executor shell.Executor
	open     Opener
	tempRoot string
	logger   zerolog.Logger
}

// New creates a new MySQL service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &shell.DefaultExecutor{},
		open:     DefaultOpener,
		tempRoot: os.TempDir(),
		logger:   logger,
	}
}

// NewWithExecutor creates a new MySQL service with custom seams (for testing).
func NewWithExecutor(logger zerolog.Logger, executor shell.Executor, open Opener, tempRoot string) *Impl {
	return &Impl{
		executor: executor,
		open:     open,
		tempRoot: tempRoot,
		logger:   logger,
	}
}

// Dump runs mysqldump into a fresh artifact after the connectivity and version checks pass.
func (s *Impl) Dump(ctx context.Context, cfg models.DatabaseConfig) (*models.Artifact, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Msg("starting MySQL dump")

	start := time.Now()

	db, err := s.connect(ctx, cfg, cfg.Name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	if err := s.checkVersion(ctx, db); err != nil {
		return nil, err
	}

	artifact, err := models.NewArtifact(s.tempRoot, models.ArtifactName(cfg.Name, time.Now(), "sql"))
	if err != nil {
		return nil, err
	}

	args := append(connArgs(cfg), "--single-transaction", "--routines", "--triggers", cfg.Name)
	if _, err := s.executor.Run(ctx, shell.Command{
		Name:       "mysqldump",
		Args:       args,
		Env:        passwordEnv(cfg),
		StdoutPath: artifact.Path,
	}); err != nil {
		_ = artifact.Remove()
		return nil, apperr.ToolExecution("mysqldump", shell.StderrOf(err), err)
	}

	s.logger.Info().
		Str("output", artifact.Path).
		Dur("duration", time.Since(start)).
		Msg("MySQL dump completed")

	return artifact, nil
}

// Restore feeds a SQL dump to the mysql client, creating the target schema first if needed.
func (s *Impl) Restore(ctx context.Context, cfg models.DatabaseConfig, backupFile string) error {
	if err := validate(cfg); err != nil {
		return err
	}
	if _, err := os.Stat(backupFile); err != nil {
		return apperr.Config(apperr.ReasonInvalidFile, fmt.Sprintf("backup file %s is not readable", backupFile), err)
	}

	s.logger.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Name).
		Str("input", backupFile).
		Msg("starting MySQL restore")

	start := time.Now()

	// No default schema: the target may not exist yet.
	db, err := s.connect(ctx, cfg, "")
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	exists, err := schemaExists(ctx, db, cfg.Name)
	if err != nil {
		return classify(err, cfg)
	}
	if !exists {
		s.logger.Info().Str("database", cfg.Name).Msg("target database does not exist, creating it")
		if _, err := db.ExecContext(ctx, "CREATE DATABASE "+quoteIdentifier(cfg.Name)); err != nil {
			return classify(err, cfg)
		}
	}

	if _, err := s.executor.Run(ctx, shell.Command{
		Name:      "mysql",
		Args:      append(connArgs(cfg), cfg.Name),
		Env:       passwordEnv(cfg),
		StdinPath: backupFile,
	}); err != nil {
		return apperr.ToolExecution("mysql", shell.StderrOf(err), err)
	}

	s.logger.Info().
		Str("database", cfg.Name).
		Bool("created", !exists).
		Dur("duration", time.Since(start)).
		Msg("MySQL restore completed")

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
	return db, nil
}

func (s *Impl) checkVersion(ctx context.Context, db *sql.DB) error {
	var server string
	if err := db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&server); err != nil {
		s.logger.Debug().Err(err).Msg("could not read server version, skipping compatibility check")
		return nil
	}

	out, err := s.executor.Run(ctx, shell.Command{Name: "mysqldump", Args: []string{"--version"}})
	if err != nil {
		s.logger.Debug().Err(err).Msg("could not read mysqldump version, skipping compatibility check")
		return nil
	}

	skipped, err := dbversion.Check("mysqldump", string(out), server, dbversion.MajorRelease)
	if skipped {
		s.logger.Debug().
			Str("server", server).
			Str("tool", strings.TrimSpace(string(out))).
			Msg("tool and server versions are not comparable, skipping compatibility check")
	}
	return err
}

func schemaExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var schema string
	err := db.QueryRowContext(ctx,
		"SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?", name).Scan(&schema)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DSN builds a go-sql-driver/mysql DSN for the given schema.
func DSN(cfg models.DatabaseConfig, database string) string {
	c := mysql.NewConfig()
	c.User = cfg.User
	if cfg.HasPassword() {
		c.Passwd = cfg.Password
	}
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c.DBName = database
	c.Timeout = connectTimeout
	return c.FormatDSN()
}

func classify(err error, cfg models.DatabaseConfig) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case erAccessDenied, erPasswordNoMatch:
			// The server reports unknown users and wrong passwords alike.
			return apperr.Connectivity(apperr.ReasonAuthentication,
				fmt.Sprintf("access denied for user %q on %s; check the user name and password", cfg.User, addr), err)
		case erHostNotPrivileged:
			return apperr.Connectivity(apperr.ReasonRoleMissing,
				fmt.Sprintf("user %q is not allowed to connect to %s from this host", cfg.User, addr), err)
		case erDBAccessDenied:
			return apperr.Connectivity(apperr.ReasonAuthentication,
				fmt.Sprintf("user %q has no access to database %q", cfg.User, cfg.Name), err)
		case erBadDB:
			return apperr.Connectivity(apperr.ReasonDatabaseMissing,
				fmt.Sprintf("database %q does not exist on %s", cfg.Name, addr), err)
		}
		return apperr.Connectivity(apperr.ReasonUnknown,
			fmt.Sprintf("database error from %s: %s", addr, myErr.Message), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Connectivity(apperr.ReasonUnreachable,
			fmt.Sprintf("cannot reach MySQL at %s; check the host and port", addr), err)
	}

	return apperr.Connectivity(apperr.ReasonUnknown, fmt.Sprintf("cannot connect to MySQL at %s", addr), err)
}

func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func connArgs(cfg models.DatabaseConfig) []string {
	return []string{
		"--host=" + cfg.Host,
		"--port=" + strconv.Itoa(cfg.Port),
		"--user=" + cfg.User,
		"--protocol=tcp",
	}
}

// MYSQL_PWD keeps the password off the command line.
func passwordEnv(cfg models.DatabaseConfig) []string {
	if !cfg.HasPassword() {
		return nil
	}
	return []string{"MYSQL_PWD=" + cfg.Password}
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
