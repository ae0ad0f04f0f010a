package syncengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramkansal/mangavault/internal/storage"
	"github.com/ramkansal/mangavault/pkg/scraper"
)

// fakePlugin returns a fixed page/info pair regardless of call count,
// letting tests assert idempotence (property #8).
type fakePlugin struct {
	info *scraper.ScraperInfo
	page *scraper.Page
}

func (f *fakePlugin) ScrapeLatest(ctx context.Context, page uint32) ([]scraper.Item, error) { return nil, nil }
func (f *fakePlugin) ScrapeTrending(ctx context.Context, page uint32) ([]scraper.Item, error) { return nil, nil }
func (f *fakePlugin) ScrapeSearch(ctx context.Context, q string, page uint32) ([]scraper.Item, error) { return nil, nil }
func (f *fakePlugin) Scrape(ctx context.Context, url string) (*scraper.Page, error) { return f.page, nil }
func (f *fakePlugin) ScrapeChapter(ctx context.Context, url string) ([]string, error) { return nil, nil }
func (f *fakePlugin) ScrapeGenresList(ctx context.Context) ([]scraper.Genre, error) { return nil, nil }
func (f *fakePlugin) GetInfo(ctx context.Context) (*scraper.ScraperInfo, error) { return f.info, nil }
func (f *fakePlugin) Kind() scraper.Kind { return scraper.KindComponent }
func (f *fakePlugin) Close() error { return nil }

func TestSyncItemNotFound(t *testing.T) {
	store := storage.NewMemory()
	plugin := &fakePlugin{info: &scraper.ScraperInfo{Name: "example"}}

	err := SyncItem(context.Background(), store, plugin, 999, "example")
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestSyncItemIdempotent(t *testing.T) {
	store := storage.NewMemory()
	itemID := store.SeedItem(storage.Item{
		Title: "old title", URL: "https://example.com/series/1", ScraperID: "example", Type: storage.MediaManga,
		UpdatedAt: time.Now().Add(-2 * time.Hour),
	}, 0)

	plugin := &fakePlugin{
		info: &scraper.ScraperInfo{Name: "example"},
		page: &scraper.Page{
			Title: "New Title",
			Chapters: []scraper.Chapter{
				{Title: "Ch 1", URL: "https://example.com/series/1/ch-1"},
				{Title: "Ch 2", URL: "https://example.com/series/1/ch-2"},
				{Title: "Ch 3", URL: "https://example.com/series/1/ch-3"},
			},
		},
	}

	ctx := context.Background()
	require.NoError(t, SyncItem(ctx, store, plugin, itemID, "example"))

	item, err := store.FindItemByID(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, "New Title", item.Title)
	require.NotNil(t, item.CreatedAt)

	chapters, err := store.FindChaptersByURLs(ctx, itemID, []string{
		"https://example.com/series/1/ch-1",
		"https://example.com/series/1/ch-2",
		"https://example.com/series/1/ch-3",
	})
	require.NoError(t, err)
	assert.Len(t, chapters, 3)

	// Rerun with identical plugin output: no duplicate chapters.
	require.NoError(t, SyncItem(ctx, store, plugin, itemID, "example"))
	chapters, err = store.FindChaptersByURLs(ctx, itemID, []string{
		"https://example.com/series/1/ch-1",
		"https://example.com/series/1/ch-2",
		"https://example.com/series/1/ch-3",
	})
	require.NoError(t, err)
	assert.Len(t, chapters, 3, "rerunning sync must not duplicate chapters")
}

func TestSyncItemMigratesLegacyHost(t *testing.T) {
	store := storage.NewMemory()
	itemID := store.SeedItem(storage.Item{
		Title: "old", URL: "https://old.example/series/1?x=1", ScraperID: "example", Type: storage.MediaManga,
		UpdatedAt: time.Now(),
	}, 0)

	plugin := &fakePlugin{
		info: &scraper.ScraperInfo{
			Name:       "example",
			BaseURL:    "https://new.example",
			LegacyURLs: []string{"https://old.example/"},
		},
		page: &scraper.Page{Title: "migrated"},
	}

	ctx := context.Background()
	require.NoError(t, SyncItem(ctx, store, plugin, itemID, "example"))

	item, err := store.FindItemByID(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, "https://new.example/series/1?x=1", item.URL)
}

func TestReplaceHostPreservePathWithPort(t *testing.T) {
	out, err := replaceHostPreservePath("https://old.example/series/1", "new.example:8443")
	require.NoError(t, err)
	assert.Equal(t, "https://new.example:8443/series/1", out)
}

func TestReplaceHostPreservePathInvalidPort(t *testing.T) {
	_, err := replaceHostPreservePath("https://old.example/series/1", "new.example:notaport")
	require.Error(t, err)
	se, ok := err.(*SyncError)
	require.True(t, ok)
	assert.Equal(t, KindInvalidPort, se.Kind)
}
