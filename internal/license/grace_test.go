package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGraceOpen(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		lastValidated time.Time
		now           time.Time
		failure       FailureKind
		want          bool
	}{
		{
			name:          "transient failure within window",
			lastValidated: base,
			now:           base.Add(12 * time.Hour),
			failure:       FailureTransient,
			want:          true,
		},
		{
			name:          "transient failure at exact boundary",
			lastValidated: base,
			now:           base.Add(GraceDuration),
			failure:       FailureTransient,
			want:          true,
		},
		{
			name:          "transient failure past window",
			lastValidated: base,
			now:           base.Add(GraceDuration + time.Second),
			failure:       FailureTransient,
			want:          false,
		},
		{
			name:          "authoritative failure gets no grace",
			lastValidated: base,
			now:           base.Add(time.Hour),
			failure:       FailureAuthoritative,
			want:          false,
		},
		{
			name:          "no failure recorded",
			lastValidated: base,
			now:           base.Add(time.Hour),
			failure:       FailureNone,
			want:          false,
		},
		{
			name:          "never validated",
			lastValidated: time.Time{},
			now:           base,
			failure:       FailureTransient,
			want:          false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GraceOpen(tt.lastValidated, tt.now, tt.failure))
		})
	}
}

func TestGraceRemaining(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	remaining := GraceRemaining(base, base.Add(40*time.Hour), FailureTransient)
	assert.Equal(t, 8*time.Hour, remaining)

	assert.Zero(t, GraceRemaining(base, base.Add(50*time.Hour), FailureTransient))
	assert.Zero(t, GraceRemaining(base, base.Add(time.Hour), FailureAuthoritative))
}
