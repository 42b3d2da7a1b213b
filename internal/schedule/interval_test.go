package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMergeIntervals(t *testing.T) {
	at := func(hour int) time.Time {
		return time.Date(2025, time.June, 16, hour, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name string
		in   []interval
		want []interval
	}{
		{
			name: "empty",
		},
		{
			name: "disjoint stay separate",
			in:   []interval{{at(14), at(16)}, {at(9), at(12)}},
			want: []interval{{at(9), at(12)}, {at(14), at(16)}},
		},
		{
			name: "overlapping merge",
			in:   []interval{{at(9), at(12)}, {at(11), at(14)}},
			want: []interval{{at(9), at(14)}},
		},
		{
			name: "touching merge",
			in:   []interval{{at(9), at(12)}, {at(12), at(14)}},
			want: []interval{{at(9), at(14)}},
		},
		{
			name: "contained absorbed",
			in:   []interval{{at(9), at(18)}, {at(10), at(11)}},
			want: []interval{{at(9), at(18)}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeIntervals(tt.in)
			assert.Equal(t, tt.want, got)
			// merging is idempotent
			assert.Equal(t, tt.want, mergeIntervals(got))
		})
	}
}
