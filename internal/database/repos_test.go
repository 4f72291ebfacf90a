package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"repo-leaderboard/internal/model"
)

func TestShouldRecordSnapshot(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	prev := &model.StarSnapshot{Stars: 1200, Forks: 30, RecordedAt: now.Add(-2 * time.Hour)}

	tests := []struct {
		name  string
		prev  *model.StarSnapshot
		stars int
		forks int
		now   time.Time
		want  bool
	}{
		{"first snapshot", nil, 1200, 30, now, true},
		{"unchanged within six hours", prev, 1200, 30, now, false},
		{"stars changed", prev, 1201, 30, now, true},
		{"forks changed", prev, 1200, 31, now, true},
		{"unchanged after six hours", prev, 1200, 30, prev.RecordedAt.Add(6 * time.Hour), true},
		{"unchanged just before six hours", prev, 1200, 30, prev.RecordedAt.Add(6*time.Hour - time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRecordSnapshot(tt.prev, tt.stars, tt.forks, tt.now))
		})
	}
}

func TestPageOffset(t *testing.T) {
	limit, offset := pageOffset(3, 10)
	assert.Equal(t, 10, limit)
	assert.Equal(t, 20, offset)

	limit, offset = pageOffset(0, 0)
	assert.Equal(t, 24, limit)
	assert.Equal(t, 0, offset)
}
