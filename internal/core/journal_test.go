package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()
	require.NoError(t, j.Ping(ctx))

	code := 3
	base := time.Now()
	first, err := j.Record(ctx, JournalEntry{Directive: "execute", Target: "whoami", Remote: "10.0.0.1", Blocking: true, Launched: true, ExitCode: &code, CreatedAt: base})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	_, err = j.Record(ctx, JournalEntry{Directive: "execpy", Target: "/tmp/x.py", Error: "launch failed", CreatedAt: base.Add(time.Second)})
	require.NoError(t, err)

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "execpy", entries[0].Directive)
	assert.Nil(t, entries[0].ExitCode)
	assert.False(t, entries[0].Launched)
	assert.Equal(t, first.ID, entries[1].ID)
	require.NotNil(t, entries[1].ExitCode)
	assert.Equal(t, 3, *entries[1].ExitCode)
	assert.True(t, entries[1].Blocking)

	entries, err = j.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNilJournalIsNoop(t *testing.T) {
	var j *Journal
	e, err := j.Record(context.Background(), JournalEntry{Directive: "execute", Target: "ls"})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	entries, err := j.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Error(t, j.Ping(context.Background()))
	assert.NoError(t, j.Close())
}
