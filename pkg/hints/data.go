// SPDX-License-Identifier: Apache-2.0

package hints

import (
	"embed"
	"strings"
)

//go:embed examples
var exampleFS embed.FS

func example(path string) string {
	b, err := exampleFS.ReadFile("examples/" + path)
	if err != nil {
		panic("missing hint example: " + path)
	}
	return strings.TrimRight(string(b), "\n") + "\n"
}

var (
	ValidatingNewConstraint = Hint{
		ID:          "E1",
		Name:        "Validating table with a new constraint",
		Condition:   "A new constraint was added and it is already `VALID`",
		Effect:      "This blocks all table access until all rows are validated",
		Workaround:  "Add the constraint as `NOT VALID` and validate it with `ALTER TABLE ... VALIDATE CONSTRAINT` later",
		BadExample:  example("E1/bad.sql"),
		GoodExample: example("E1/good.sql"),
	}
	NewNotNullColumn = Hint{
		ID:          "E2",
		Name:        "Validating table with a new `NOT NULL` column",
		Condition:   "A column was changed from `NULL` to `NOT NULL`",
		Effect:      "This blocks all table access until all rows are validated",
		Workaround:  "Add a `CHECK` constraint as `NOT VALID`, validate it later, then make the column `NOT NULL`",
		BadExample:  example("E2/bad.sql"),
		GoodExample: example("E2/good.sql"),
	}
	AddedJSONColumn = Hint{
		ID:          "E3",
		Name:        "Add a new JSON column",
		Condition:   "A new column of type `json` was added to a table",
		Effect:      "This breaks `SELECT DISTINCT` queries or other operations that need equality checks on the column",
		Workaround:  "Use the `jsonb` type instead, it supports all use-cases of `json` and is more robust and compact",
		BadExample:  example("E3/bad.sql"),
		GoodExample: example("E3/good.sql"),
	}
	HoldingAccessExclusive = Hint{
		ID:          "E4",
		Name:        "Running more statements after taking `AccessExclusiveLock`",
		Condition:   "A transaction that holds an `AccessExclusiveLock` started a new statement",
		Effect:      "This blocks all access to the table for the duration of this statement",
		Workaround:  "Run this statement in a new transaction",
		BadExample:  example("E4/bad.sql"),
		GoodExample: example("E4/good.sql"),
	}
	TypeChangeRewrite = Hint{
		ID:          "E5",
		Name:        "Type change requiring table rewrite",
		Condition:   "A column was changed to a data type that isn't binary compatible",
		Effect:      "This causes a full table rewrite while holding a lock that prevents all other use of the table",
		Workaround:  "Add a new column, update it in batches, and drop the old column",
		BadExample:  example("E5/bad.sql"),
		GoodExample: example("E5/good.sql"),
	}
	NonconcurrentIndex = Hint{
		ID:          "E6",
		Name:        "Creating a new index on an existing table",
		Condition:   "A new index was created on an existing table without the `CONCURRENTLY` keyword",
		Effect:      "This blocks all writes to the table while the index is being created",
		Workaround:  "Run `CREATE INDEX CONCURRENTLY` instead of `CREATE INDEX`",
		BadExample:  example("E6/bad.sql"),
		GoodExample: example("E6/good.sql"),
	}
	UniqueConstraintIndex = Hint{
		ID:          "E7",
		Name:        "Creating a new unique constraint",
		Condition:   "Adding a new unique constraint implicitly creates index",
		Effect:      "This blocks all writes to the table while the index is being created and validated",
		Workaround:  "`CREATE UNIQUE INDEX CONCURRENTLY`, then add the constraint using the index",
		BadExample:  example("E7/bad.sql"),
		GoodExample: example("E7/good.sql"),
	}
	ExclusionConstraint = Hint{
		ID:         "E8",
		Name:       "Creating a new exclusion constraint",
		Condition:  "Found a new exclusion constraint",
		Effect:     "This blocks all reads and writes to the table while the constraint index is being created",
		Workaround: "There is no safe way to add an exclusion constraint to an existing table",
		BadExample: example("E8/bad.sql"),
	}
	DangerousLockNoTimeout = Hint{
		ID:        "E9",
		Name:      "Taking dangerous lock without timeout",
		Condition: "A lock that would block many common operations was taken without a timeout",
		Effect: "This can block all other operations on the table indefinitely if any other transaction " +
			"holds a conflicting lock while `idle in transaction` or `active`",
		Workaround:  "Run `SET LOCAL lock_timeout = '2s';` before the statement and retry the migration if necessary",
		BadExample:  example("E9/bad.sql"),
		GoodExample: example("E9/good.sql"),
	}
	RewriteWithDangerousLock = Hint{
		ID:          "E10",
		Name:        "Rewrote table or index while holding dangerous lock",
		Condition:   "A table or index was rewritten while holding a lock that blocks many operations",
		Effect:      "This blocks many operations on the table or index while the rewrite is in progress",
		Workaround:  "Build a new table or index, write to both, then swap them",
		BadExample:  example("E10/bad.sql"),
		GoodExample: example("E10/good.sql"),
	}
	SerialOrStoredColumn = Hint{
		ID:         "E11",
		Name:       "Adding a `SERIAL` or `GENERATED ... STORED` column",
		Condition:  "A new column was added with a `SERIAL` or `GENERATED` type",
		Effect:     "This blocks all table access until the table is rewritten",
		Workaround: "Can not be done without a table rewrite",
		BadExample: example("E11/bad.sql"),
	}
	RepeatedAlterTable = Hint{
		ID:          "W12",
		Name:        "Multiple `ALTER TABLE` statements where one will do",
		Condition:   "Multiple `ALTER TABLE` statements targets the same table",
		Effect:      "If the statements require table scans, there will be more scans than necessary",
		Workaround:  "Combine the statements into one, separating the action with commas",
		BadExample:  example("W12/bad.sql"),
		GoodExample: example("W12/good.sql"),
	}
	CreatingEnum = Hint{
		ID:          "W13",
		Name:        "Creating an enum",
		Condition:   "A new enum was created",
		Effect:      "Removing values from an enum requires difficult migrations, and associating more data with an enum value is difficult",
		Workaround:  "Use a foreign key to a lookup table instead",
		BadExample:  example("W13/bad.sql"),
		GoodExample: example("W13/good.sql"),
	}
	PrimaryKeyUsingIndex = Hint{
		ID:          "W14",
		Name:        "Adding a primary key using an index",
		Condition:   "A primary key was added using an index on the table",
		Effect:      "This can cause postgres to alter the index columns to be `NOT NULL`",
		Workaround:  "Make sure that all the columns in the index are already `NOT NULL`",
		BadExample:  example("W14/bad.sql"),
		GoodExample: example("W14/good.sql"),
	}
	ForeignKeyMissingIndex = Hint{
		ID:          "E15",
		Name:        "Missing index",
		Condition:   "A foreign key is missing a complete index on the referencing side",
		Effect:      "Updates and deletes on the referenced table may cause table scan on referencing table",
		Workaround:  "Create the missing index",
		BadExample:  example("E15/bad.sql"),
		GoodExample: example("E15/good.sql"),
	}
)

// All is the complete hint catalog, in catalog order.
var All = []Hint{
	ValidatingNewConstraint,
	NewNotNullColumn,
	AddedJSONColumn,
	HoldingAccessExclusive,
	TypeChangeRewrite,
	NonconcurrentIndex,
	UniqueConstraintIndex,
	ExclusionConstraint,
	DangerousLockNoTimeout,
	RewriteWithDangerousLock,
	SerialOrStoredColumn,
	RepeatedAlterTable,
	CreatingEnum,
	PrimaryKeyUsingIndex,
	ForeignKeyMissingIndex,
}
