package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeSpec(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    TimeSpec
		wantErr bool
	}{
		{name: "clock time", expr: "06:30", want: TimeSpec{Hour: 6, Minute: 30}},
		{name: "midnight", expr: "00:00", want: TimeSpec{}},
		{name: "last minute", expr: "23:59", want: TimeSpec{Hour: 23, Minute: 59}},
		{name: "sunrise with negative offset", expr: "sunrise-01:00", want: TimeSpec{Event: Sunrise, Offset: -time.Hour}},
		{name: "sunset with positive offset", expr: "sunset+00:30", want: TimeSpec{Event: Sunset, Offset: 30 * time.Minute}},
		{name: "bare event", expr: "dusk", want: TimeSpec{Event: Dusk}},
		{name: "mixed case event", expr: "Dawn+02:15", want: TimeSpec{Event: Dawn, Offset: 2*time.Hour + 15*time.Minute}},
		{name: "surrounding whitespace", expr: " 12:00 ", want: TimeSpec{Hour: 12}},
		{name: "empty", expr: "", wantErr: true},
		{name: "hour out of range", expr: "24:00", wantErr: true},
		{name: "minute out of range", expr: "09:60", wantErr: true},
		{name: "unknown event", expr: "noon", wantErr: true},
		{name: "unknown event with offset", expr: "moonrise+01:00", wantErr: true},
		{name: "malformed offset", expr: "sunrise+1", wantErr: true},
		{name: "missing offset after sign", expr: "sunset-", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeSpec(tt.expr)
			if tt.wantErr {
				var parseErr *ParseError
				require.ErrorAs(t, err, &parseErr)
				assert.Equal(t, tt.expr, parseErr.Expr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeSpec_String(t *testing.T) {
	for _, expr := range []string{"06:30", "sunrise-01:00", "sunset+00:30", "dusk+00:00"} {
		ts, err := ParseTimeSpec(expr)
		require.NoError(t, err)
		assert.Equal(t, expr, ts.String())
	}
}
