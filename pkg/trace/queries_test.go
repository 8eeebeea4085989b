// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLockTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		setting string
		want    int64
	}{
		{"0", 0},
		{"1500", 1500},
		{"250ms", 250},
		{"2s", 2000},
		{"3min", 180000},
		{"1h", 3600000},
		{"1d", 86400000},
	}
	for _, tt := range tests {
		t.Run(tt.setting, func(t *testing.T) {
			got, err := parseLockTimeout(tt.setting)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "ms", "2weeks", "2us"} {
		_, err := parseLockTimeout(bad)
		assert.Error(t, err, "expected error for %q", bad)
	}
}

func TestHasCompleteIndex(t *testing.T) {
	t.Parallel()

	indexes := [][]int64{
		{1},
		{2, 3},
	}
	assert.True(t, hasCompleteIndex(indexes, []int64{1}))
	assert.True(t, hasCompleteIndex(indexes, []int64{2}), "fk columns may be a prefix of the index")
	assert.True(t, hasCompleteIndex(indexes, []int64{2, 3}))
	assert.False(t, hasCompleteIndex(indexes, []int64{3}), "index columns out of order do not count")
	assert.False(t, hasCompleteIndex(indexes, []int64{3, 2}))
	assert.False(t, hasCompleteIndex(indexes, []int64{1, 2}))
	assert.False(t, hasCompleteIndex(nil, []int64{1}))
}
