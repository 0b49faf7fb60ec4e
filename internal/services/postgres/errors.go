package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fgeck/afterchive/internal/apperr"
	"github.com/fgeck/afterchive/internal/models"
)

// SQLSTATE codes that get their own message.
const (
	codeInvalidPassword      = "28P01"
	codeInvalidAuthorization = "28000"
	codeInvalidCatalogName   = "3D000"
	codeInsufficientPrivs    = "42501"
)

// classify maps a driver error to a connectivity error with a message
// that tells the user what to fix.
func classify(err error, cfg models.DatabaseConfig) error {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeInvalidPassword:
			return apperr.Connectivity(apperr.ReasonAuthentication,
				fmt.Sprintf("authentication failed for user %q on %s; check the password", cfg.User, addr), err)
		case codeInvalidAuthorization:
			if strings.Contains(pgErr.Message, "does not exist") {
				return apperr.Connectivity(apperr.ReasonRoleMissing,
					fmt.Sprintf("role %q does not exist on %s", cfg.User, addr), err)
			}
			return apperr.Connectivity(apperr.ReasonAuthentication,
				fmt.Sprintf("user %q is not allowed to connect to %s: %s", cfg.User, addr, pgErr.Message), err)
		case codeInvalidCatalogName:
			return apperr.Connectivity(apperr.ReasonDatabaseMissing,
				fmt.Sprintf("database %q does not exist on %s", cfg.Name, addr), err)
		case codeInsufficientPrivs:
			return apperr.Connectivity(apperr.ReasonAuthentication,
				fmt.Sprintf("user %q lacks the privileges required on %s: %s", cfg.User, addr, pgErr.Message), err)
		}
		return apperr.Connectivity(apperr.ReasonUnknown,
			fmt.Sprintf("database error from %s: %s", addr, pgErr.Message), err)
	}

	var netErr net.Error
	var connectErr *pgconn.ConnectError
	if errors.As(err, &netErr) || errors.As(err, &connectErr) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Connectivity(apperr.ReasonUnreachable,
			fmt.Sprintf("cannot reach PostgreSQL at %s; check the host and port", addr), err)
	}

	return apperr.Connectivity(apperr.ReasonUnknown,
		fmt.Sprintf("cannot connect to PostgreSQL at %s", addr), err)
}
