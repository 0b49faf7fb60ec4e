//go:build integration

package integration

import (
	"os"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fgeck/afterchive/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// databaseConfig reads TEST_<PREFIX>_* variables, skipping the test when
// the host or database is not set.
func databaseConfig(t *testing.T, prefix, dbType, defaultPort, defaultUser string) models.DatabaseConfig {
	t.Helper()

	host := os.Getenv("TEST_" + prefix + "_HOST")
	if host == "" {
		t.Skipf("TEST_%s_HOST not set", prefix)
	}

	portStr := os.Getenv("TEST_" + prefix + "_PORT")
	if portStr == "" {
		portStr = defaultPort
	}
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	database := os.Getenv("TEST_" + prefix + "_DB")
	if database == "" {
		t.Skipf("TEST_%s_DB not set", prefix)
	}

	user := os.Getenv("TEST_" + prefix + "_USER")
	if user == "" {
		user = defaultUser
	}

	password := os.Getenv("TEST_" + prefix + "_PASSWORD")
	source := models.SecretProvided
	if password == "" {
		source = models.SecretNone
	}

	return models.DatabaseConfig{
		Type:           dbType,
		Host:           host,
		Port:           port,
		Name:           database,
		User:           user,
		Password:       password,
		PasswordSource: source,
	}
}
