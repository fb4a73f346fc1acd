package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpression(t *testing.T) {
	tests := []struct {
		name        string
		expr        string
		wantOK      bool
		wantRecur   int
		wantInterval time.Duration
	}{
		{"bounded", "R5/2020-01-01T00:00:00Z/PT24H", true, 5, 24 * time.Hour},
		{"unbounded", "R/2024-01-01T00:00:00Z/PT1M", true, Unbounded, time.Minute},
		{"exhausted", "R0/2024-01-01T00:01:00Z/PT1M", true, 0, time.Minute},
		{"malformed missing parts", "R5/2020-01-01T00:00:00Z", false, 0, 0},
		{"malformed duration", "R5/2020-01-01T00:00:00Z/bogus", false, 0, 0},
		{"malformed start", "R5/not-a-time/PT1M", false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := ParseExpression(tt.expr, "")
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantRecur, p.Recurrences)
				assert.Equal(t, tt.wantInterval, p.Interval)
			}
		})
	}
}

func TestFormatExpressionRoundTrip(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	expr := FormatExpression(5, start, time.Minute)
	assert.Equal(t, "R5/2024-01-01T00:00:00Z/PT1M", expr)

	parsed, ok := ParseExpression(expr, "")
	require.True(t, ok)
	assert.Equal(t, 5, parsed.Recurrences)
	assert.True(t, parsed.Start.Equal(start))
	assert.Equal(t, time.Minute, parsed.Interval)
}

func TestFormatExpressionUnbounded(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	expr := FormatExpression(Unbounded, start, time.Hour)
	assert.Equal(t, "R/2024-01-01T00:00:00Z/PT1H", expr)
}

func TestParseExpressionWithTimeZone(t *testing.T) {
	_, ok := ParseExpression("R1/2024-01-01T00:00:00Z/PT1M", "not/a/zone")
	assert.False(t, ok)

	p, ok := ParseExpression("R1/2024-01-01T00:00:00-05:00/PT1M", "America/New_York")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC), p.Start)
}
