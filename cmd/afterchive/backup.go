package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fgeck/afterchive/internal/config"
	"github.com/fgeck/afterchive/internal/models"
	"github.com/fgeck/afterchive/internal/services/runner"
)

var backupOverrides config.Overrides

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Dump a database and store the dump",
	Long: `Execute the backup workflow:
1. Resolve configuration and pick the database and storage adapters
2. Check connectivity and dump tool compatibility
3. Dump the database into a temporary file
4. Store the dump on the storage backend
5. Remove the temporary file
6. Send Telegram notification (if configured)`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

func init() {
	addJobFlags(backupCmd, &backupOverrides)
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	backupOverrides.ConfigFile = configFile
	job, err := config.NewResolver(log.Logger).Resolve(ctx, models.CommandBackup, backupOverrides)
	if err != nil {
		return err
	}

	logJob(job)

	runnerSvc := runner.New(log.Logger, newRegistry(log.Logger))
	result, err := runnerSvc.Backup(ctx, *job)
	if err != nil {
		return err
	}

	log.Info().
		Str("location", result.Location).
		Str("sha256", result.SHA256).
		Msg("backup completed successfully")
	return nil
}

func logJob(job *models.Job) {
	log.Info().
		Str("database_type", job.Database.Type).
		Str("host", job.Database.Host).
		Str("database", job.Database.Name).
		Str("storage_type", job.Storage.Type).
		Msg("configuration loaded")
}
