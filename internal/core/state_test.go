package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestStateStartsEmpty(t *testing.T) {
	s := NewState()
	snap := s.Status()
	assert.Nil(t, snap.Status)
	assert.Nil(t, snap.Description)
	_, ok := s.Pinned()
	assert.False(t, ok)
}

func TestSetStatusReplacesBothFields(t *testing.T) {
	s := NewState()
	require.NoError(t, s.SetStatus(strp("running"), strp("x")))
	snap := s.Status()
	require.NotNil(t, snap.Status)
	assert.Equal(t, "running", *snap.Status)
	assert.Equal(t, "x", *snap.Description)

	require.NoError(t, s.SetStatus(strp("done"), nil))
	snap = s.Status()
	assert.Equal(t, "done", *snap.Status)
	assert.Nil(t, snap.Description, "description must be cleared, not merged")
}

func TestSetStatusRequiresStatus(t *testing.T) {
	s := NewState()
	require.NoError(t, s.SetStatus(strp("init"), strp("d")))

	err := s.SetStatus(nil, strp("ignored"))
	require.Error(t, err)
	assert.Equal(t, KindClient, KindOf(err))

	snap := s.Status()
	assert.Equal(t, "init", *snap.Status)
	assert.Equal(t, "d", *snap.Description)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewState()
	v := "a"
	require.NoError(t, s.SetStatus(&v, nil))
	v = "b"
	snap := s.Status()
	*snap.Status = "c"
	assert.Equal(t, "a", *s.Status().Status)
}

func TestPinIsOneShot(t *testing.T) {
	s := NewState()
	addr, err := s.Pin("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", addr)

	for _, again := range []string{"10.0.0.2", "10.0.0.1"} {
		_, err := s.Pin(again)
		require.Error(t, err)
		assert.Equal(t, KindConflict, KindOf(err))
		assert.Contains(t, err.Error(), "10.0.0.1")
	}

	pinned, ok := s.Pinned()
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.1", pinned)
}

func TestPinRejectsEmptyAddress(t *testing.T) {
	s := NewState()
	_, err := s.Pin("")
	assert.Equal(t, KindClient, KindOf(err))
	_, ok := s.Pinned()
	assert.False(t, ok)
}

func TestConcurrentPinHasSingleWinner(t *testing.T) {
	s := NewState()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []string
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := fmt.Sprintf("10.0.0.%d", i)
			if got, err := s.Pin(addr); err == nil {
				mu.Lock()
				wins = append(wins, got)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	require.Len(t, wins, 1)
	pinned, _ := s.Pinned()
	assert.Equal(t, wins[0], pinned)
}
