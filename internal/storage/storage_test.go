package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindItemsStaleFiltersByThresholdAndRespectsLimit(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.SeedItem(Item{Title: "fresh", UpdatedAt: now}, 0)
	m.SeedItem(Item{Title: "stale-a", UpdatedAt: now.Add(-2 * time.Hour)}, 1)
	m.SeedItem(Item{Title: "stale-b", UpdatedAt: now.Add(-3 * time.Hour)}, 2)

	out, err := m.FindItemsStale(context.Background(), now.Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	limited, err := m.FindItemsStale(context.Background(), now.Add(-time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestInsertChaptersIgnoreConflictDedupsByURL(t *testing.T) {
	m := NewMemory()
	itemID := m.SeedItem(Item{Title: "item"}, 0)

	err := m.InsertChaptersIgnoreConflict(context.Background(), []ChapterInsert{
		{ItemID: itemID, URL: "https://example/1"},
		{ItemID: itemID, URL: "https://example/2"},
	})
	require.NoError(t, err)

	err = m.InsertChaptersIgnoreConflict(context.Background(), []ChapterInsert{
		{ItemID: itemID, URL: "https://example/2"},
		{ItemID: itemID, URL: "https://example/3"},
	})
	require.NoError(t, err)

	chapters, err := m.FindChaptersByURLs(context.Background(), itemID, nil)
	require.NoError(t, err)
	assert.Len(t, chapters, 3, "re-inserting an existing URL must not duplicate the chapter")
}

func TestFindChaptersByURLsNilMeansNoFilter(t *testing.T) {
	m := NewMemory()
	itemID := m.SeedItem(Item{Title: "item"}, 0)
	require.NoError(t, m.InsertChaptersIgnoreConflict(context.Background(), []ChapterInsert{
		{ItemID: itemID, URL: "https://example/1"},
		{ItemID: itemID, URL: "https://example/2"},
	}))

	all, err := m.FindChaptersByURLs(context.Background(), itemID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := m.FindChaptersByURLs(context.Background(), itemID, []string{"https://example/1"})
	require.NoError(t, err)
	assert.Len(t, filtered, 1)

	none, err := m.FindChaptersByURLs(context.Background(), itemID, []string{})
	require.NoError(t, err)
	assert.Len(t, none, 0, "an empty, non-nil slice still means match nothing")
}

func TestTxRollbackDiscardsPendingMutations(t *testing.T) {
	m := NewMemory()
	itemID := m.SeedItem(Item{URL: "https://old.example/x"}, 0)

	tx, err := m.BeginTx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.UpdateItemURL(context.Background(), itemID, "https://new.example/x"))
	require.NoError(t, tx.Rollback())

	item, err := m.FindItemByID(context.Background(), itemID)
	require.NoError(t, err)
	assert.Equal(t, "https://old.example/x", item.URL, "rolled-back tx must not mutate the store")
}

func TestTxCommitAppliesPendingMutations(t *testing.T) {
	m := NewMemory()
	itemID := m.SeedItem(Item{URL: "https://old.example/x"}, 0)

	tx, err := m.BeginTx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.UpdateItemURL(context.Background(), itemID, "https://new.example/x"))
	require.NoError(t, tx.Commit())

	item, err := m.FindItemByID(context.Background(), itemID)
	require.NoError(t, err)
	assert.Equal(t, "https://new.example/x", item.URL)
}

func TestUpsertItemUnknownIDReturnsNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.UpsertItem(context.Background(), ItemUpdates{ID: 999})
	assert.ErrorIs(t, err, ErrItemNotFound)
}
