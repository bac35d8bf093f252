package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liminal/internal/types"
)

func rec(i int) types.SpinRecord {
	return types.SpinRecord{ID: fmt.Sprintf("spin-%d", i), Options: []string{"a", "b"}, Result: "a"}
}

func TestRecentNewestFirst(t *testing.T) {
	s := NewStore(DefaultCapacity)
	for i := 0; i < 5; i++ {
		s.Append(rec(i))
	}

	got := s.Recent(3)
	require.Len(t, got, 3)
	assert.Equal(t, "spin-4", got[0].ID)
	assert.Equal(t, "spin-3", got[1].ID)
	assert.Equal(t, "spin-2", got[2].ID)
}

func TestRecentMoreThanStored(t *testing.T) {
	s := NewStore(DefaultCapacity)
	s.Append(rec(0))

	assert.Len(t, s.Recent(20), 1)
	assert.Empty(t, s.Recent(0))
	assert.NotNil(t, NewStore(10).Recent(20))
}

func TestFIFOEviction(t *testing.T) {
	s := NewStore(DefaultCapacity)
	for i := 0; i < 101; i++ {
		s.Append(rec(i))
	}

	assert.Equal(t, 100, s.Len())

	all := s.Recent(1000)
	require.Len(t, all, 100)
	assert.Equal(t, "spin-100", all[0].ID)
	assert.Equal(t, "spin-1", all[99].ID)
	for _, r := range all {
		assert.NotEqual(t, "spin-0", r.ID)
	}
}

func TestRecentIsPrefixOfHistory(t *testing.T) {
	s := NewStore(7)
	for i := 0; i < 30; i++ {
		s.Append(rec(i))
		got := s.Recent(20)
		for j, r := range got {
			assert.Equal(t, fmt.Sprintf("spin-%d", i-j), r.ID)
		}
	}
}

func TestRecentReturnsCopies(t *testing.T) {
	s := NewStore(4)
	s.Append(rec(0))

	got := s.Recent(1)
	got[0].Options[0] = "mutated"

	assert.Equal(t, "a", s.Recent(1)[0].Options[0])
}

func TestConcurrentAppend(t *testing.T) {
	s := NewStore(DefaultCapacity)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Append(rec(g*1000 + i))
				_ = s.Recent(20)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 100, s.Len())
}
