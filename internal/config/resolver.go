package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fgeck/afterchive/internal/apperr"
	"github.com/fgeck/afterchive/internal/models"
)

// PasswordEnv is read when no password was given on the command line or in the config file.
const PasswordEnv = "AFTERCHIVE_DB_PASSWORD"

const defaultBroadcastIP = "255.255.255.255"

var defaultPorts = map[string]int{
	"postgres":   5432,
	"postgresql": 5432,
	"pg":         5432,
	"mysql":      3306,
	"mariadb":    3306,
}

// Overrides holds values given on the command line. Zero values mean "not set".
type Overrides struct {
	ConfigFile string

	DBType     string
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	StorageType string
	Bucket      string
	Path        string
	Region      string
	Credentials string
	Project     string
	Endpoint    string
	Account     string
	SSHHost     string
	SSHPort     int
	SSHUser     string

	BackupFile string
}

// Resolver turns overrides, the config file and the environment into a job.
type Resolver struct {
	lookupEnv func(string) (string, bool)
	prompter  Prompter
	logger    zerolog.Logger
}

// NewResolver creates a resolver that reads the process environment and
// prompts on the terminal when one is attached.
func NewResolver(logger zerolog.Logger) *Resolver {
	return &Resolver{
		lookupEnv: os.LookupEnv,
		prompter:  NewTerminalPrompter(),
		logger:    logger,
	}
}

// NewResolverWithDeps creates a resolver with custom seams (for testing and validate).
func NewResolverWithDeps(logger zerolog.Logger, lookupEnv func(string) (string, bool), prompter Prompter) *Resolver {
	return &Resolver{
		lookupEnv: lookupEnv,
		prompter:  prompter,
		logger:    logger,
	}
}

// Resolve builds the job for command. CLI overrides win over the config
// file; the password is resolved last.
func (r *Resolver) Resolve(ctx context.Context, command models.Command, o Overrides) (*models.Job, error) {
	job := &models.Job{Command: command}

	if o.ConfigFile != "" {
		parsed, err := NewParserWithEnv(r.lookupEnv).LoadFile(o.ConfigFile, command)
		if err != nil {
			return nil, err
		}
		job = parsed
		r.logger.Debug().Str("file", o.ConfigFile).Msg("loaded config file")
	}

	merge(job, o)
	applyDefaults(job)

	if err := validate(job); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := r.resolvePassword(&job.Database); err != nil {
		return nil, err
	}

	return job, nil
}

func merge(job *models.Job, o Overrides) {
	db := &job.Database
	setString(&db.Type, o.DBType)
	setString(&db.Host, o.DBHost)
	setInt(&db.Port, o.DBPort)
	setString(&db.Name, o.DBName)
	setString(&db.User, o.DBUser)
	setString(&db.Password, o.DBPassword)

	st := &job.Storage
	setString(&st.Type, o.StorageType)
	setString(&st.Bucket, o.Bucket)
	setString(&st.Path, o.Path)
	setString(&st.Region, o.Region)
	setString(&st.Credentials, o.Credentials)
	setString(&st.Project, o.Project)
	setString(&st.Endpoint, o.Endpoint)
	setString(&st.Account, o.Account)
	setString(&st.Host, o.SSHHost)
	setInt(&st.Port, o.SSHPort)
	setString(&st.User, o.SSHUser)

	setString(&job.BackupFile, o.BackupFile)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func applyDefaults(job *models.Job) {
	if job.Database.Port == 0 {
		job.Database.Port = defaultPorts[job.Database.Type]
	}
	if w := job.Storage.Wake; w != nil && w.BroadcastIP == "" {
		w.BroadcastIP = defaultBroadcastIP
	}
}

func validate(job *models.Job) error {
	var missing []string
	require := func(value, field, flag string) {
		if value == "" {
			missing = append(missing, fmt.Sprintf("%s (%s)", field, flag))
		}
	}

	require(job.Database.Type, "database.type", "--db-type")
	require(job.Database.Host, "database.host", "--db-host")
	require(job.Database.Name, "database.name", "--db-name")
	require(job.Storage.Type, "storage.type", "--storage")
	if job.Command == models.CommandRestore {
		require(job.BackupFile, "backup_file", "--backup-file")
	}
	if job.Storage.Wake != nil {
		require(job.Storage.Wake.MACAddress, "storage.wake.mac_address", "config file")
	}
	if job.Telegram != nil {
		require(job.Telegram.BotToken, "notify.telegram.bot_token", "config file")
		require(job.Telegram.ChatID, "notify.telegram.chat_id", "config file")
	}

	if len(missing) > 0 {
		return apperr.MissingFields(missing...)
	}

	if job.Database.Port < 0 || job.Database.Port > 65535 {
		return apperr.Config(apperr.ReasonInvalidValue,
			fmt.Sprintf("database.port %d is out of range", job.Database.Port), nil)
	}
	if job.BackupFile != "" && strings.ContainsAny(job.BackupFile, `/\`) {
		return apperr.Config(apperr.ReasonInvalidValue,
			fmt.Sprintf("backup_file %q must be a file name, not a path", job.BackupFile), nil)
	}
	return nil
}

// resolvePassword picks the password source in order: provided, environment,
// interactive prompt, none.
func (r *Resolver) resolvePassword(db *models.DatabaseConfig) error {
	if db.Password != "" {
		db.PasswordSource = models.SecretProvided
		return nil
	}

	if v, ok := r.lookupEnv(PasswordEnv); ok && v != "" {
		db.Password = v
		db.PasswordSource = models.SecretEnv
		r.logger.Debug().Str("variable", PasswordEnv).Msg("using database password from environment")
		return nil
	}

	if r.prompter.IsInteractive() {
		secret, err := r.prompter.ReadPassword(fmt.Sprintf("Password for %s@%s/%s: ", db.User, db.Host, db.Name))
		if err != nil {
			return apperr.Config(apperr.ReasonInvalidValue, "cannot read database password", err)
		}
		if secret != "" {
			db.Password = secret
			db.PasswordSource = models.SecretPrompt
			return nil
		}
	}

	db.PasswordSource = models.SecretNone
	r.logger.Warn().
		Str("database", db.Name).
		Msgf("no database password given; set %s or use the engine's own credentials file", PasswordEnv)
	return nil
}
