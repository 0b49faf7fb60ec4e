// Package models contains the data structures used throughout afterchive.
package models

// Command names a top-level operation.
type Command string

// Supported commands.
const (
	CommandBackup  Command = "backup"
	CommandRestore Command = "restore"
)

// Job holds the fully resolved configuration for one invocation.
type Job struct {
	Command    Command
	Database   DatabaseConfig
	Storage    StorageConfig
	Telegram   *TelegramConfig // nil if not configured
	BackupFile string          // restore only: name of the stored artifact
}

// DatabaseConfig holds the connection settings for the source or target database.
type DatabaseConfig struct {
	Type           string
	Host           string
	Port           int
	Name           string
	User           string
	Password       string
	PasswordSource SecretKind
}

// HasPassword reports whether a password should be handed to the database tools.
func (c DatabaseConfig) HasPassword() bool {
	return c.PasswordSource != SecretNone && c.Password != ""
}

// SecretKind describes where the database password came from.
type SecretKind string

// Secret sources, in resolution order.
const (
	SecretProvided SecretKind = "provided"
	SecretEnv      SecretKind = "env"
	SecretPrompt   SecretKind = "prompt"
	SecretNone     SecretKind = "none"
)
