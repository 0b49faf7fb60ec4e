// Package dbversion compares dump tool versions against database server versions.
package dbversion

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/fgeck/afterchive/internal/apperr"
)

var numeric = regexp.MustCompile(`\d+(\.\d+){0,2}`)

// Parse extracts the first dotted version number from raw tool or server
// output, e.g. "pg_dump (PostgreSQL) 16.2 (Debian 16.2-1)" yields 16.2.0.
// For MySQL client output the version after "Distrib" wins, since
// "Ver" there is the client protocol revision.
func Parse(raw string) (*semver.Version, error) {
	s := raw
	if i := strings.Index(s, "Distrib"); i >= 0 {
		s = s[i+len("Distrib"):]
	} else if i := strings.Index(s, "Ver "); i >= 0 {
		s = s[i+len("Ver "):]
	}

	m := numeric.FindString(s)
	if m == "" {
		return nil, fmt.Errorf("no version number in %q", strings.TrimSpace(raw))
	}
	return semver.NewVersion(m)
}

// Release is the part of a version that has to match for a dump to be safe.
type Release struct {
	Major uint64
	Minor uint64
}

func (r Release) less(o Release) bool {
	if r.Major != o.Major {
		return r.Major < o.Major
	}
	return r.Minor < o.Minor
}

// ReleaseFunc maps a full version to its release line.
type ReleaseFunc func(*semver.Version) Release

// PostgresRelease: from 10 on the major number alone names a release,
// before that it was major.minor (9.6, 9.5, ...).
func PostgresRelease(v *semver.Version) Release {
	if v.Major() < 10 {
		return Release{Major: v.Major(), Minor: v.Minor()}
	}
	return Release{Major: v.Major()}
}

// MajorRelease compares major numbers only.
func MajorRelease(v *semver.Version) Release {
	return Release{Major: v.Major()}
}

// Vendor names the product line a version string belongs to: "mariadb" when
// the string mentions MariaDB, "" otherwise. MySQL tools report MariaDB
// builds as e.g. "Distrib 10.11.6-MariaDB" or "from 11.4.2-MariaDB", and
// MariaDB servers answer SELECT VERSION() with "10.11.6-MariaDB-...".
func Vendor(raw string) string {
	if strings.Contains(strings.ToLower(raw), "mariadb") {
		return "mariadb"
	}
	return ""
}

// Check returns a VersionIncompatible error when the local tool's release is
// older than the server's. skipped is true when either version could not be
// parsed or tool and server come from different product lines, in which
// case no error is returned.
func Check(tool, localRaw, serverRaw string, release ReleaseFunc) (skipped bool, err error) {
	if Vendor(localRaw) != Vendor(serverRaw) {
		return true, nil
	}

	local, lerr := Parse(localRaw)
	server, serr := Parse(serverRaw)
	if lerr != nil || serr != nil {
		return true, nil
	}

	if release(local).less(release(server)) {
		return false, apperr.VersionIncompatible(tool, local.Original(), server.Original())
	}
	return false, nil
}
