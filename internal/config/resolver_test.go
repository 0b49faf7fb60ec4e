package config

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fgeck/afterchive/internal/apperr"
	"github.com/fgeck/afterchive/internal/models"
)

type mockPrompter struct {
	interactive bool
	password    string
	err         error
	prompts     []string
}

func (m *mockPrompter) IsInteractive() bool { return m.interactive }

func (m *mockPrompter) ReadPassword(prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return m.password, m.err
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "afterchive.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func flagsOnly() Overrides {
	return Overrides{
		DBType:      "postgres",
		DBHost:      "localhost",
		DBName:      "shop",
		DBUser:      "app",
		StorageType: "local",
		Path:        "/backups",
	}
}

func TestResolve_FlagsOnlyWithDefaultPort(t *testing.T) {
	resolver := NewResolverWithDeps(testLogger(), envOf(nil), NonInteractive{})

	job, err := resolver.Resolve(context.Background(), models.CommandBackup, flagsOnly())

	require.NoError(t, err)
	assert.Equal(t, 5432, job.Database.Port)
	assert.Equal(t, "/backups", job.Storage.Path)
	assert.Equal(t, models.SecretNone, job.Database.PasswordSource)
	assert.False(t, job.Database.HasPassword())
}

func TestResolve_MySQLDefaultPort(t *testing.T) {
	o := flagsOnly()
	o.DBType = "mariadb"
	resolver := NewResolverWithDeps(testLogger(), envOf(nil), NonInteractive{})

	job, err := resolver.Resolve(context.Background(), models.CommandBackup, o)

	require.NoError(t, err)
	assert.Equal(t, 3306, job.Database.Port)
}

func TestResolve_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
backup:
  database:
    type: postgres
    host: file-host
    port: 5433
    name: file-db
    user: file-user
    password: file-pass
  storage:
    type: gcs
    bucket: file-bucket
`)
	resolver := NewResolverWithDeps(testLogger(), envOf(nil), NonInteractive{})

	job, err := resolver.Resolve(context.Background(), models.CommandBackup, Overrides{
		ConfigFile: path,
		DBHost:     "flag-host",
		Bucket:     "flag-bucket",
	})

	require.NoError(t, err)
	assert.Equal(t, "flag-host", job.Database.Host)
	assert.Equal(t, 5433, job.Database.Port)
	assert.Equal(t, "file-db", job.Database.Name)
	assert.Equal(t, "flag-bucket", job.Storage.Bucket)
	assert.Equal(t, "file-pass", job.Database.Password)
	assert.Equal(t, models.SecretProvided, job.Database.PasswordSource)
}

func TestResolve_MissingRequiredFields(t *testing.T) {
	resolver := NewResolverWithDeps(testLogger(), envOf(nil), NonInteractive{})

	_, err := resolver.Resolve(context.Background(), models.CommandBackup, Overrides{DBType: "postgres"})

	require.Error(t, err)
	assert.True(t, apperr.HasReason(err, apperr.ReasonMissingField))
	assert.Contains(t, err.Error(), "database.host (--db-host)")
	assert.Contains(t, err.Error(), "database.name (--db-name)")
	assert.Contains(t, err.Error(), "storage.type (--storage)")
	assert.NotContains(t, err.Error(), "database.type")
}

func TestResolve_RestoreRequiresBackupFile(t *testing.T) {
	resolver := NewResolverWithDeps(testLogger(), envOf(nil), NonInteractive{})

	_, err := resolver.Resolve(context.Background(), models.CommandRestore, flagsOnly())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup_file (--backup-file)")
}

func TestResolve_RejectsBackupFilePath(t *testing.T) {
	o := flagsOnly()
	o.BackupFile = "../etc/passwd"
	resolver := NewResolverWithDeps(testLogger(), envOf(nil), NonInteractive{})

	_, err := resolver.Resolve(context.Background(), models.CommandRestore, o)

	require.Error(t, err)
	assert.True(t, apperr.HasReason(err, apperr.ReasonInvalidValue))
}

func TestResolve_PasswordFromEnvironment(t *testing.T) {
	prompter := &mockPrompter{interactive: true, password: "typed"}
	resolver := NewResolverWithDeps(testLogger(), envOf(map[string]string{PasswordEnv: "from-env"}), prompter)

	job, err := resolver.Resolve(context.Background(), models.CommandBackup, flagsOnly())

	require.NoError(t, err)
	assert.Equal(t, "from-env", job.Database.Password)
	assert.Equal(t, models.SecretEnv, job.Database.PasswordSource)
	assert.Empty(t, prompter.prompts)
}

func TestResolve_PasswordFlagWinsOverEnvironment(t *testing.T) {
	o := flagsOnly()
	o.DBPassword = "from-flag"
	resolver := NewResolverWithDeps(testLogger(), envOf(map[string]string{PasswordEnv: "from-env"}), NonInteractive{})

	job, err := resolver.Resolve(context.Background(), models.CommandBackup, o)

	require.NoError(t, err)
	assert.Equal(t, "from-flag", job.Database.Password)
	assert.Equal(t, models.SecretProvided, job.Database.PasswordSource)
}

func TestResolve_PasswordPrompt(t *testing.T) {
	prompter := &mockPrompter{interactive: true, password: "typed"}
	resolver := NewResolverWithDeps(testLogger(), envOf(nil), prompter)

	job, err := resolver.Resolve(context.Background(), models.CommandBackup, flagsOnly())

	require.NoError(t, err)
	assert.Equal(t, "typed", job.Database.Password)
	assert.Equal(t, models.SecretPrompt, job.Database.PasswordSource)
	require.Len(t, prompter.prompts, 1)
	assert.Equal(t, "Password for app@localhost/shop: ", prompter.prompts[0])
}

func TestResolve_PromptFailure(t *testing.T) {
	prompter := &mockPrompter{interactive: true, err: errors.New("inappropriate ioctl")}
	resolver := NewResolverWithDeps(testLogger(), envOf(nil), prompter)

	_, err := resolver.Resolve(context.Background(), models.CommandBackup, flagsOnly())

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
}

func TestResolve_WakeDefaults(t *testing.T) {
	path := writeConfig(t, `
backup:
  database: {type: postgres, host: db, name: shop}
  storage:
    type: ssh
    wake:
      mac_address: "AA:BB:CC:DD:EE:FF"
`)
	resolver := NewResolverWithDeps(testLogger(), envOf(nil), NonInteractive{})

	job, err := resolver.Resolve(context.Background(), models.CommandBackup, Overrides{ConfigFile: path})

	require.NoError(t, err)
	require.NotNil(t, job.Storage.Wake)
	assert.Equal(t, "255.255.255.255", job.Storage.Wake.BroadcastIP)
}

func TestResolve_TelegramRequiresChatID(t *testing.T) {
	path := writeConfig(t, `
backup:
  database: {type: postgres, host: db, name: shop}
  storage: {type: local, path: /tmp}
notify:
  telegram:
    bot_token: abc
`)
	resolver := NewResolverWithDeps(testLogger(), envOf(nil), NonInteractive{})

	_, err := resolver.Resolve(context.Background(), models.CommandBackup, Overrides{ConfigFile: path})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify.telegram.chat_id")
}

func TestResolve_DoesNotTouchProcessEnvironment(t *testing.T) {
	t.Setenv("AFTERCHIVE_PROBE", "")
	path := writeConfig(t, `
backup:
  database: {type: postgres, host: "${AFTERCHIVE_PROBE}db", name: shop}
  storage: {type: local, path: /tmp}
`)
	before := os.Environ()
	resolver := NewResolverWithDeps(testLogger(), os.LookupEnv, NonInteractive{})

	job, err := resolver.Resolve(context.Background(), models.CommandBackup, Overrides{ConfigFile: path})

	require.NoError(t, err)
	assert.Equal(t, "db", job.Database.Host)
	assert.ElementsMatch(t, before, os.Environ())
}
