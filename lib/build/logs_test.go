package build

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilnproject/kiln/lib/recipe"
)

func bakeWithOutput(t *testing.T, output string) (Manager, string, string) {
	t.Helper()
	fake := matchingFake()
	fake.BuildOutput = output
	m, p := newTestManager(t, fake, Config{})

	b, err := m.Run(context.Background(), Request{
		Recipe:     recipe.Default(),
		ContextDir: writePayload(t),
		Offline:    true,
		SkipVerify: true,
	})
	require.NoError(t, err)
	return m, b.ID, p.BuildLog(b.ID)
}

func collect(lines <-chan string) []string {
	var got []string
	for line := range lines {
		got = append(got, line)
	}
	return got
}

func TestFollowWholeLog(t *testing.T) {
	m, id, _ := bakeWithOutput(t, "one\ntwo\nthree\n")

	lines, err := m.Follow(context.Background(), id, 0, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, collect(lines))
}

func TestFollowTail(t *testing.T) {
	m, id, _ := bakeWithOutput(t, "one\ntwo\nthree\n")

	lines, err := m.Follow(context.Background(), id, 2, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, collect(lines))
}

func TestFollowMissingBuild(t *testing.T) {
	m, _ := newTestManager(t, matchingFake(), Config{})

	_, err := m.Follow(context.Background(), "b-nope", 0, false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFollowWithoutLogFile(t *testing.T) {
	m, p := newTestManager(t, matchingFake(), Config{})

	require.NoError(t, p.EnsureBase())
	require.NoError(t, writeRecord(p, &Build{ID: "b-bare", Status: StatusFailed, CreatedAt: time.Now().UTC()}))

	lines, err := m.Follow(context.Background(), "b-bare", 0, false)
	require.NoError(t, err)
	assert.Empty(t, collect(lines))
}

func TestFollowStreamsAppendedLines(t *testing.T) {
	m, id, logPath := bakeWithOutput(t, "one\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lines, err := m.Follow(ctx, id, 0, true)
	require.NoError(t, err)

	select {
	case line := <-lines:
		assert.Equal(t, "one", line)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the existing line")
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("two\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case line := <-lines:
		assert.Equal(t, "two", line)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the appended line")
	}

	cancel()
	for range lines {
	}
}
