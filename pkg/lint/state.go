// SPDX-License-Identifier: Apache-2.0

package lint

import "strings"

// TransactionState is the running state of a script under linting. It keeps
// track of objects the script has created so far, so rules can tell which
// lock targets are visible to concurrent transactions.
type TransactionState struct {
	createdObjects  []ObjectRef
	alteredTables   []ObjectRef
	lockTimeoutSet  bool
	accessExclusive bool
}

func sameObject(a, b ObjectRef) bool {
	return strings.EqualFold(a.Schema, b.Schema) && strings.EqualFold(a.Name, b.Name)
}

// HasCreated reports whether the script created the object earlier, matched
// case-insensitively.
func (s *TransactionState) HasCreated(obj ObjectRef) bool {
	for _, c := range s.createdObjects {
		if sameObject(c, obj) {
			return true
		}
	}
	return false
}

// IsVisible reports whether the object exists outside this transaction.
func (s *TransactionState) IsVisible(obj ObjectRef) bool {
	return !s.HasCreated(obj)
}

// HasLockTimeout reports whether the script has set a lock_timeout.
func (s *TransactionState) HasLockTimeout() bool {
	return s.lockTimeoutSet
}

// HoldsAccessExclusive reports whether an earlier statement took an
// AccessExclusiveLock on a visible table.
func (s *TransactionState) HoldsAccessExclusive() bool {
	return s.accessExclusive
}

// HasAlteredTable reports whether the script already altered the table.
func (s *TransactionState) HasAlteredTable(obj ObjectRef) bool {
	for _, a := range s.alteredTables {
		if sameObject(a, obj) {
			return true
		}
	}
	return false
}

// Update records the effects of a statement after its rules have run.
func (s *TransactionState) Update(summary StatementSummary) {
	if _, ok := summary.(LockTimeout); ok {
		s.lockTimeoutSet = true
	}
	if alter, ok := summary.(AlterTable); ok {
		target := ObjectRef{Schema: alter.Schema, Name: alter.Name}
		if !s.HasCreated(target) {
			s.accessExclusive = true
		}
		if !s.HasAlteredTable(target) {
			s.alteredTables = append(s.alteredTables, target)
		}
	}
	s.createdObjects = append(s.createdObjects, summary.CreatedObjects()...)
}
