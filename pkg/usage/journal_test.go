package usage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJournalRecordAndSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.db")
	j, err := OpenJournal(path)
	require.NoError(t, err)
	defer func() { _ = j.Close() }()

	ctx := context.Background()
	require.NoError(t, j.Record(ctx, Entry{
		Model:            "gpt-4",
		Kind:             KindTranslation,
		PromptTokens:     50,
		CompletionTokens: 30,
		TotalTokens:      80,
	}))
	require.NoError(t, j.Record(ctx, Entry{
		Model:            "gpt-4",
		Kind:             KindConversation,
		PromptTokens:     10,
		CompletionTokens: 5,
		TotalTokens:      15,
	}))

	sum, err := j.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, sum.Entries)
	require.Equal(t, int64(60), sum.PromptTokens)
	require.Equal(t, int64(35), sum.CompletionTokens)
	require.Equal(t, int64(95), sum.TotalTokens)
}

func TestOpenJournalEmptyPath(t *testing.T) {
	_, err := OpenJournal("  ")
	require.Error(t, err)
}
