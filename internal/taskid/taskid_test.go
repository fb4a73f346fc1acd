package taskid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewAndParseRoundTrip(t *testing.T) {
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	id := New("my-job", due, 0)
	assert.Equal(t, "v1:my-job:1704067200000:0", id)

	parsed, ok := Parse(id)
	assert.True(t, ok)
	assert.Equal(t, "my-job", parsed.JobName)
	assert.Equal(t, 0, parsed.Attempt)
	assert.True(t, parsed.Due.Equal(due))
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []string{
		"",
		"v1:only:three",
		"v2:job:1704067200000:0",
		"v1::1704067200000:0",
		"v1:job:not-a-number:0",
		"v1:job:1704067200000:-1",
		"v1:job:1704067200000:not-a-number",
	}
	for _, tt := range tests {
		t.Run(tt, func(t *testing.T) {
			_, ok := Parse(tt)
			assert.False(t, ok)
			assert.False(t, Validate(tt))
		})
	}
}

func TestParseAttemptIncrement(t *testing.T) {
	due := time.Now()
	id := New("job", due, 3)
	parsed, ok := Parse(id)
	assert.True(t, ok)
	assert.Equal(t, 3, parsed.Attempt)
}
