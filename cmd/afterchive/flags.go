package main

import (
	"github.com/spf13/cobra"

	"github.com/fgeck/afterchive/internal/config"
)

// addJobFlags binds the database and storage flags of a command to o.
func addJobFlags(cmd *cobra.Command, o *config.Overrides) {
	fs := cmd.Flags()

	fs.StringVar(&o.DBType, "db-type", "", "database type (postgres, mysql)")
	fs.StringVar(&o.DBHost, "db-host", "", "database host")
	fs.IntVar(&o.DBPort, "db-port", 0, "database port (default depends on --db-type)")
	fs.StringVar(&o.DBName, "db-name", "", "database name")
	fs.StringVar(&o.DBUser, "db-user", "", "database user")
	fs.StringVar(&o.DBPassword, "db-pass", "", "database password (prefer "+config.PasswordEnv+")")

	fs.StringVar(&o.StorageType, "storage", "", "storage backend (local, gcs, s3, azure, ssh)")
	fs.StringVar(&o.Bucket, "bucket", "", "bucket (gcs, s3) or container (azure)")
	fs.StringVar(&o.Path, "path", "", "directory (local, ssh) or key prefix (gcs, s3, azure)")
	fs.StringVar(&o.Region, "region", "", "s3 region")
	fs.StringVar(&o.Credentials, "credentials", "", "credentials file (gcs, s3) or private key (ssh)")
	fs.StringVar(&o.Project, "project", "", "gcs project")
	fs.StringVar(&o.Endpoint, "endpoint", "", "endpoint override for emulators and S3-compatible stores")
	fs.StringVar(&o.Account, "account", "", "azure storage account")
	fs.StringVar(&o.SSHHost, "ssh-host", "", "ssh storage host")
	fs.IntVar(&o.SSHPort, "ssh-port", 0, "ssh storage port (default 22)")
	fs.StringVar(&o.SSHUser, "ssh-user", "", "ssh storage user")
}
