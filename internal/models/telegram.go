package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a run notification.
type TelegramMessage struct {
	Success   bool
	Command   Command
	RunID     string
	Database  string
	Storage   string
	StartTime time.Time
	Duration  time.Duration

	// Artifact info (if successful).
	ArtifactName string
	Location     string
	SizeBytes    int64
	SHA256       string

	// Error info (if failed).
	ErrorMessage string
	FailedPhase  string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
