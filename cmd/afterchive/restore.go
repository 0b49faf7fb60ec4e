package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fgeck/afterchive/internal/config"
	"github.com/fgeck/afterchive/internal/models"
	"github.com/fgeck/afterchive/internal/services/runner"
)

var restoreOverrides config.Overrides

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Fetch a stored dump and restore it into a database",
	Long: `Execute the restore workflow:
1. Resolve configuration and pick the database and storage adapters
2. Download the named dump into a temporary file
3. Create the target database if it does not exist
4. Feed the dump to the database's restore tool
5. Remove the temporary file
6. Send Telegram notification (if configured)`,
	Args: cobra.NoArgs,
	RunE: runRestore,
}

func init() {
	addJobFlags(restoreCmd, &restoreOverrides)
	restoreCmd.Flags().StringVar(&restoreOverrides.BackupFile, "backup-file", "", "name of the stored dump to restore")
}

func runRestore(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	restoreOverrides.ConfigFile = configFile
	job, err := config.NewResolver(log.Logger).Resolve(ctx, models.CommandRestore, restoreOverrides)
	if err != nil {
		return err
	}

	logJob(job)

	runnerSvc := runner.New(log.Logger, newRegistry(log.Logger))
	if _, err := runnerSvc.Restore(ctx, *job); err != nil {
		return err
	}

	log.Info().
		Str("backup_file", job.BackupFile).
		Str("database", job.Database.Name).
		Msg("restore completed successfully")
	return nil
}
