// Package config resolves CLI flags, the YAML config file and the
// environment into a validated job.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fgeck/afterchive/internal/apperr"
	"github.com/fgeck/afterchive/internal/models"
)

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Parser handles configuration file parsing.
type Parser struct {
	v         *viper.Viper
	lookupEnv func(string) (string, bool)
}

// NewParser creates a new configuration parser that expands placeholders
// from the process environment.
func NewParser() *Parser {
	return NewParserWithEnv(os.LookupEnv)
}

// NewParserWithEnv creates a parser with a custom environment lookup (for testing).
func NewParserWithEnv(lookupEnv func(string) (string, bool)) *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v, lookupEnv: lookupEnv}
}

// LoadFile loads the section for command from a config file.
func (p *Parser) LoadFile(path string, command models.Command) (*models.Job, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, apperr.Config(apperr.ReasonInvalidFile, fmt.Sprintf("cannot read config file %s", path), err)
	}

	return p.parse(command)
}

// LoadReader loads the section for command from YAML content (useful for testing).
func (p *Parser) LoadReader(content string, command models.Command) (*models.Job, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, apperr.Config(apperr.ReasonInvalidFile, "cannot parse config", err)
	}

	return p.parse(command)
}

// parse reads backup.* or restore.* plus the shared notify section.
// Required fields are checked later, after CLI overrides are merged.
func (p *Parser) parse(command models.Command) (*models.Job, error) {
	job := &models.Job{Command: command}
	r := &reader{p: p, prefix: string(command) + "."}

	job.Database = models.DatabaseConfig{
		Type:     r.str("database.type"),
		Host:     r.str("database.host"),
		Port:     r.integer("database.port"),
		Name:     r.str("database.name"),
		User:     r.str("database.user"),
		Password: r.str("database.password"),
	}
	if job.Database.Name == "" {
		job.Database.Name = r.str("database.dbname")
	}

	job.Storage = models.StorageConfig{
		Type:        r.str("storage.type"),
		Bucket:      r.str("storage.bucket"),
		Path:        r.str("storage.path"),
		Region:      r.str("storage.region"),
		Credentials: r.str("storage.credentials"),
		Project:     r.str("storage.project"),
		Endpoint:    r.str("storage.endpoint"),
		Account:     r.str("storage.account"),
		Host:        r.str("storage.host"),
		Port:        r.integer("storage.port"),
		User:        r.str("storage.user"),
		KnownHosts:  r.str("storage.known_hosts"),
	}

	if p.v.IsSet(r.prefix + "storage.wake") {
		job.Storage.Wake = &models.WakeConfig{
			MACAddress:    r.str("storage.wake.mac_address"),
			BroadcastIP:   r.str("storage.wake.broadcast_ip"),
			TargetAddr:    r.str("storage.wake.target"),
			Timeout:       r.duration("storage.wake.timeout"),
			PollInterval:  r.duration("storage.wake.poll_interval"),
			StabilizeWait: r.duration("storage.wake.stabilize_wait"),
		}
	}

	if command == models.CommandRestore {
		job.BackupFile = r.str("backup_file")
	}

	if p.v.IsSet("notify.telegram") {
		shared := &reader{p: p}
		job.Telegram = &models.TelegramConfig{
			BotToken: shared.str("notify.telegram.bot_token"),
			ChatID:   shared.str("notify.telegram.chat_id"),
		}
		if shared.err != nil {
			r.fail(shared.err)
		}
	}

	if r.err != nil {
		return nil, r.err
	}
	return job, nil
}

// reader reads keys under a prefix and remembers the first error.
type reader struct {
	p      *Parser
	prefix string
	err    error
}

func (r *reader) str(key string) string {
	full := r.prefix + key
	value, err := r.p.expand(full, r.p.v.GetString(full))
	if err != nil {
		r.fail(err)
	}
	return value
}

func (r *reader) integer(key string) int {
	raw := r.str(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(apperr.Config(apperr.ReasonInvalidValue,
			fmt.Sprintf("%s%s must be a number, got %q", r.prefix, key, raw), err))
		return 0
	}
	return n
}

func (r *reader) duration(key string) time.Duration {
	raw := r.str(key)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		r.fail(apperr.Config(apperr.ReasonInvalidValue,
			fmt.Sprintf("%s%s must be a duration such as 30s or 5m, got %q", r.prefix, key, raw), err))
		return 0
	}
	return d
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// expand substitutes ${NAME} placeholders. An unset variable is an error;
// other forms such as $NAME are left alone.
func (p *Parser) expand(key, value string) (string, error) {
	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		v, ok := p.lookupEnv(name)
		if !ok && missing == "" {
			missing = name
		}
		return v
	})
	if missing != "" {
		return "", apperr.UnresolvedPlaceholder(missing, key)
	}
	return out, nil
}
