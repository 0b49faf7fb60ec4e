package models

import "time"

// RunResult summarises one backup or restore run.
type RunResult struct {
	RunID        string
	Command      Command
	Location     string // where the artifact was stored (backup only)
	ArtifactName string
	SizeBytes    int64
	SHA256       string
	Duration     time.Duration
	FailedPhase  string
}
