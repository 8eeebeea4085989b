// SPDX-License-Identifier: Apache-2.0

package pgtypes

// LockableTarget is a schema object that can be locked, such as a table or
// an index.
type LockableTarget struct {
	Schema string
	Name   string
	Kind   RelKind
	OID    uint32
}

// Lock is a lock mode held on a target object.
type Lock struct {
	Target LockableTarget
	Mode   LockMode
}

// NewLock builds a Lock from the raw values of a `pg_locks` row.
func NewLock(schema, name, mode string, relkind byte, oid uint32) (Lock, error) {
	m, err := ParseLockMode(mode)
	if err != nil {
		return Lock{}, err
	}
	k, err := ParseRelKind(relkind)
	if err != nil {
		return Lock{}, err
	}
	return Lock{
		Target: LockableTarget{Schema: schema, Name: name, Kind: k, OID: oid},
		Mode:   m,
	}, nil
}

// Key identifies a lock for equality purposes: two locks are the same lock
// iff they target the same object with the same mode.
type LockKey struct {
	Schema string
	Name   string
	Kind   RelKind
	Mode   LockMode
}

func (l Lock) Key() LockKey {
	return LockKey{Schema: l.Target.Schema, Name: l.Target.Name, Kind: l.Target.Kind, Mode: l.Mode}
}

// BlockedQueries returns the query capabilities blocked while this lock is
// held.
func (l Lock) BlockedQueries() []string {
	return l.Mode.BlockedQueries()
}

// Dangerous reports whether this lock blocks common queries.
func (l Lock) Dangerous() bool {
	return l.Mode.Dangerous()
}
