// SPDX-License-Identifier: Apache-2.0

package pgtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRelKind(t *testing.T) {
	t.Parallel()

	codes := map[byte]RelKind{
		'r': Table,
		'i': Index,
		'S': Sequence,
		't': Toast,
		'v': View,
		'm': MaterializedView,
		'c': CompositeType,
		'f': ForeignTable,
		'p': PartitionedTable,
		'I': PartitionedIndex,
	}
	for code, want := range codes {
		got, err := ParseRelKind(code)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseRelKind('x')
	assert.Error(t, err)
}

func TestRelKindIsIndex(t *testing.T) {
	t.Parallel()

	assert.True(t, Index.IsIndex())
	assert.True(t, PartitionedIndex.IsIndex())
	assert.False(t, Table.IsIndex())
	assert.False(t, MaterializedView.IsIndex())
}

func TestParseConstraintKind(t *testing.T) {
	t.Parallel()

	codes := map[byte]ConstraintKind{
		'c': Check,
		'f': ForeignKey,
		'p': PrimaryKey,
		'u': Unique,
		'x': Exclusion,
		't': ConstraintTrigger,
	}
	for code, want := range codes {
		got, err := ParseConstraintKind(code)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseConstraintKind('z')
	assert.Error(t, err)
	assert.Equal(t, "FOREIGN KEY", ForeignKey.String())
}
