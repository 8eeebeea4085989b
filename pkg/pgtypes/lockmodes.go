// SPDX-License-Identifier: Apache-2.0

// Package pgtypes models the parts of the Postgres type system that lock
// analysis cares about: lock modes and their conflict matrix, relation
// kinds, and constraint kinds.
package pgtypes

import "fmt"

// LockMode is one of the eight table-level lock modes in Postgres.
// See https://www.postgresql.org/docs/current/explicit-locking.html
type LockMode int

const (
	AccessShare LockMode = iota
	RowShare
	RowExclusive
	ShareUpdateExclusive
	Share
	ShareRowExclusive
	Exclusive
	AccessExclusive
)

// LockModes lists all lock modes, weakest first.
var LockModes = []LockMode{
	AccessShare,
	RowShare,
	RowExclusive,
	ShareUpdateExclusive,
	Share,
	ShareRowExclusive,
	Exclusive,
	AccessExclusive,
}

// String returns the name used in the `pg_locks.mode` column.
func (m LockMode) String() string {
	switch m {
	case AccessShare:
		return "AccessShareLock"
	case RowShare:
		return "RowShareLock"
	case RowExclusive:
		return "RowExclusiveLock"
	case ShareUpdateExclusive:
		return "ShareUpdateExclusiveLock"
	case Share:
		return "ShareLock"
	case ShareRowExclusive:
		return "ShareRowExclusiveLock"
	case Exclusive:
		return "ExclusiveLock"
	case AccessExclusive:
		return "AccessExclusiveLock"
	default:
		return fmt.Sprintf("LockMode(%d)", int(m))
	}
}

// ParseLockMode converts a `pg_locks.mode` value back to a LockMode.
func ParseLockMode(s string) (LockMode, error) {
	for _, m := range LockModes {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("invalid lock mode: %q", s)
}

// QueryCapabilities are the operations that oltp applications commonly rely
// on. A lock mode that blocks any of these is considered dangerous.
var QueryCapabilities = []string{
	"SELECT",
	"FOR UPDATE",
	"FOR NO KEY UPDATE",
	"FOR SHARE",
	"FOR KEY SHARE",
	"UPDATE",
	"DELETE",
	"INSERT",
	"MERGE",
}

// The SQL operations each lock mode is acquired for. ALTER TABLE shows up
// under several modes because different forms of the statement take
// different locks, e.g. SET STATISTICS takes ShareUpdateExclusive while
// most other forms need AccessExclusive.
var capabilities = map[LockMode][]string{
	AccessShare: {"SELECT"},
	RowShare:    {"FOR UPDATE", "FOR NO KEY UPDATE", "FOR SHARE", "FOR KEY SHARE"},
	RowExclusive: {
		"UPDATE", "DELETE", "INSERT", "MERGE",
	},
	ShareUpdateExclusive: {
		"VACUUM",
		"ANALYZE",
		"CREATE INDEX CONCURRENTLY",
		"CREATE STATISTICS",
		"REINDEX CONCURRENTLY",
		"ALTER INDEX",
		"ALTER TABLE",
	},
	Share:             {"CREATE INDEX"},
	ShareRowExclusive: {"CREATE TRIGGER", "ALTER TABLE"},
	Exclusive:         {"REFRESH MATERIALIZED VIEW CONCURRENTLY"},
	AccessExclusive: {
		"ALTER TABLE",
		"DROP TABLE",
		"TRUNCATE",
		"REINDEX",
		"CLUSTER",
		"VACUUM FULL",
		"REFRESH MATERIALIZED VIEW",
	},
}

var conflicts = map[LockMode][]LockMode{
	AccessShare:  {AccessExclusive},
	RowShare:     {Exclusive, AccessExclusive},
	RowExclusive: {Share, ShareRowExclusive, Exclusive, AccessExclusive},
	ShareUpdateExclusive: {
		ShareUpdateExclusive, Share, ShareRowExclusive, Exclusive, AccessExclusive,
	},
	Share: {
		RowExclusive, ShareUpdateExclusive, ShareRowExclusive, Exclusive, AccessExclusive,
	},
	ShareRowExclusive: {
		RowExclusive, ShareUpdateExclusive, Share, ShareRowExclusive, Exclusive, AccessExclusive,
	},
	Exclusive: {
		RowShare, RowExclusive, ShareUpdateExclusive, Share, ShareRowExclusive, Exclusive, AccessExclusive,
	},
	AccessExclusive: LockModes,
}

// Capabilities returns the SQL operations this lock mode is acquired for.
func (m LockMode) Capabilities() []string {
	return capabilities[m]
}

// ConflictsWith returns the lock modes this mode conflicts with.
func (m LockMode) ConflictsWith() []LockMode {
	return conflicts[m]
}

func isQueryCapability(cap string) bool {
	for _, q := range QueryCapabilities {
		if q == cap {
			return true
		}
	}
	return false
}

// BlockedQueries returns the query capabilities that are blocked while this
// lock mode is held.
func (m LockMode) BlockedQueries() []string {
	var blocked []string
	for _, other := range m.ConflictsWith() {
		for _, cap := range other.Capabilities() {
			if isQueryCapability(cap) && !contains(blocked, cap) {
				blocked = append(blocked, cap)
			}
		}
	}
	return blocked
}

// BlockedDDL returns the non-query operations that are blocked while this
// lock mode is held.
func (m LockMode) BlockedDDL() []string {
	var blocked []string
	for _, other := range m.ConflictsWith() {
		for _, cap := range other.Capabilities() {
			if !isQueryCapability(cap) && !contains(blocked, cap) {
				blocked = append(blocked, cap)
			}
		}
	}
	return blocked
}

// Dangerous reports whether holding this lock mode blocks any common query
// capability.
func (m LockMode) Dangerous() bool {
	return len(m.BlockedQueries()) > 0
}

func contains(xs []string, x string) bool {
	for _, s := range xs {
		if s == x {
			return true
		}
	}
	return false
}
