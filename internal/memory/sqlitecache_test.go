package memory_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/oversight/internal/memory"
	"github.com/kadirpekel/oversight/internal/message"
)

func TestSQLiteSummaryCache_SaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summaries.db")
	cache, err := memory.OpenSQLiteSummaryCache(path)
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	_, ok, err := cache.Load(ctx, "session-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Save(ctx, "session-1", "user asked about billing"))
	content, ok, err := cache.Load(ctx, "session-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "user asked about billing", content)

	require.NoError(t, cache.Save(ctx, "session-1", "updated summary"))
	content, ok, err = cache.Load(ctx, "session-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "updated summary", content)
}

type stubSummarizer struct{ calls int }

func (s *stubSummarizer) Summarize(ctx context.Context, messages []message.Message) (string, error) {
	s.calls++
	return "a summary", nil
}

func TestPersistingSummarizer_MirrorsSummaryToCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summaries.db")
	cache, err := memory.OpenSQLiteSummaryCache(path)
	require.NoError(t, err)
	defer cache.Close()

	stub := &stubSummarizer{}
	p := &memory.PersistingSummarizer{Next: stub, Cache: cache, SessionID: "session-2"}

	summary, err := p.Summarize(context.Background(), []message.Message{{Role: message.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "a summary", summary)
	assert.Equal(t, 1, stub.calls)

	persisted, ok, err := cache.Load(context.Background(), "session-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a summary", persisted)
}

func TestWithPersistentSummaryCache_PreloadsExistingSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summaries.db")
	cache, err := memory.OpenSQLiteSummaryCache(path)
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Save(context.Background(), "session-3", "earlier session summary"))

	m := memory.New(
		memory.WithSummarizer(&stubSummarizer{}),
		memory.WithPersistentSummaryCache(context.Background(), cache, "session-3"),
	)

	ctx := m.GetContext()
	require.Len(t, ctx, 1)
	assert.Equal(t, message.RoleSystem, ctx[0].Role)
	assert.Equal(t, "earlier session summary", ctx[0].Content)
}
