package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTable struct {
	mu      sync.Mutex
	cutoffs []time.Time
	remove  int
}

func (f *fakeTable) Sweep(cutoff time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.remove
}

func (f *fakeTable) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"@every 1m", false},
		{"*/5 * * * *", false},
		{"0 */5 * * * *", false},
		{"@hourly", false},
		{"not a schedule", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			_, err := ParseSchedule(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunOnceUsesRetentionCutoff(t *testing.T) {
	table := &fakeTable{remove: 3}
	s, err := NewSweeper(table, "@every 1m", 5*time.Minute, nil, nil)
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	assert.Equal(t, 3, s.RunOnce())
	require.Len(t, table.cutoffs, 1)
	assert.Equal(t, now.Add(-5*time.Minute), table.cutoffs[0])
	assert.Equal(t, now.Add(time.Minute), s.NextRun())
}

func TestSweeperRunsOnSchedule(t *testing.T) {
	table := &fakeTable{}
	s, err := NewSweeper(table, "@every 1s", time.Minute, nil, nil)
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return table.calls() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestNewSweeperRejectsBadSchedule(t *testing.T) {
	_, err := NewSweeper(&fakeTable{}, "every minute", time.Minute, nil, nil)
	assert.Error(t, err)
}
