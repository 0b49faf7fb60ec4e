package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fgeck/afterchive/internal/config"
	"github.com/fgeck/afterchive/internal/models"
	"github.com/fgeck/afterchive/internal/strategy"
)

var validateOverrides config.Overrides

var validateCmd = &cobra.Command{
	Use:       "validate backup|restore",
	Short:     "Validate configuration",
	Long:      `Resolve the configuration for a backup or restore without connecting to anything, and print a summary with secrets masked.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(models.CommandBackup), string(models.CommandRestore)},
	RunE:      validateConfig,
}

func init() {
	addJobFlags(validateCmd, &validateOverrides)
	validateCmd.Flags().StringVar(&validateOverrides.BackupFile, "backup-file", "", "name of the stored dump to restore")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	command := models.Command(args[0])
	validateOverrides.ConfigFile = configFile

	// Never prompt: validate must work unattended.
	resolver := config.NewResolverWithDeps(log.Logger, os.LookupEnv, config.NonInteractive{})
	job, err := resolver.Resolve(cmd.Context(), command, validateOverrides)
	if err != nil {
		return err
	}

	if err := checkStrategies(newRegistry(log.Logger), job); err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), job)
	return nil
}

// checkStrategies makes sure both type tokens resolve, without using the adapters.
func checkStrategies(r *strategy.Registry, job *models.Job) error {
	if _, err := r.Database(job.Database.Type); err != nil {
		return err
	}
	_, err := r.Storage(job.Storage.Type)
	return err
}

func printSummary(w io.Writer, job *models.Job) {
	p := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }
	heading := color.New(color.Bold)
	h := func(title string) { _, _ = heading.Fprintf(w, "\n%s:\n", title) }

	_, _ = color.New(color.FgGreen).Fprintln(w, "Configuration is valid!")
	p("\n")
	p("Command: %s\n", job.Command)

	db := job.Database
	h("Database")
	p("  Type: %s\n", db.Type)
	p("  Host: %s\n", db.Host)
	p("  Port: %d\n", db.Port)
	p("  Name: %s\n", db.Name)
	p("  User: %s\n", db.User)
	p("  Password: %s\n", maskedPassword(db))

	st := job.Storage
	h("Storage")
	p("  Type: %s\n", st.Type)
	for _, f := range []struct{ label, value string }{
		{"Bucket", st.Bucket},
		{"Path", st.Path},
		{"Region", st.Region},
		{"Project", st.Project},
		{"Account", st.Account},
		{"Endpoint", st.Endpoint},
		{"Host", st.Host},
		{"User", st.User},
		{"Known hosts", st.KnownHosts},
	} {
		if f.value != "" {
			p("  %s: %s\n", f.label, f.value)
		}
	}
	if st.Port != 0 {
		p("  Port: %d\n", st.Port)
	}
	if st.Credentials != "" {
		p("  Credentials: %s\n", st.Credentials)
	}

	if job.BackupFile != "" {
		p("\nBackup file: %s\n", job.BackupFile)
	}

	h("Optional Features")
	p("  Wake-on-LAN: %v\n", st.Wake != nil)
	p("  Telegram: %v\n", job.Telegram != nil)

	if st.Wake != nil {
		h("WOL Configuration")
		p("  MAC Address: %s\n", st.Wake.MACAddress)
		p("  Broadcast IP: %s\n", st.Wake.BroadcastIP)
		if st.Wake.TargetAddr != "" {
			p("  Target: %s\n", st.Wake.TargetAddr)
		}
	}

	if job.Telegram != nil {
		h("Telegram Configuration")
		p("  Chat ID: %s\n", job.Telegram.ChatID)
		p("  Bot Token: (configured)\n")
	}
}

func maskedPassword(db models.DatabaseConfig) string {
	if !db.HasPassword() {
		return "(none)"
	}
	return fmt.Sprintf("(set, from %s)", db.PasswordSource)
}
