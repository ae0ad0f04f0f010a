// Package storage defines the data model and repository interface
// consumed by the scheduler (C6) and sync engine (C7), plus an
// in-memory implementation used by tests. Per spec.md's non-goals, no
// production database backend is implemented here — the interface is
// the contract a real ORM-backed store would satisfy.
package storage

import (
	"context"
	"errors"
	"sync"
	"time"
)

type MediaType string

const (
	MediaManga MediaType = "manga"
	MediaNovel MediaType = "novel"
)

// Item is a work tracked in the catalog. (scraper_id, url) is unique.
type Item struct {
	ID              int64
	Title           string
	URL             string
	ImgURL          string
	ScraperID       string
	Type            MediaType
	AlternateNames  string
	Authors         string
	Artists         string
	Status          string
	Description     string
	Genres          string
	ReleaseDate     *time.Time
	CreatedAt       *time.Time
	UpdatedAt       time.Time
}

// Chapter belongs to exactly one Item; URL is globally unique.
type Chapter struct {
	ID              int64
	ItemID          int64
	Title           string
	URL             string
	ScanlationGroup string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ChapterInsert is the shape used for bulk chapter inserts, before ids
// are assigned by the backing store.
type ChapterInsert struct {
	ItemID          int64
	Title           string
	URL             string
	ScanlationGroup string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ItemUpdates carries the fields the sync engine writes back onto an
// item after a successful scrape; URL is included only when the
// legacy-host migration step rewrites it.
type ItemUpdates struct {
	ID             int64
	URL            *string
	Title          string
	ImgURL         string
	Description    string
	AlternateNames string
	Authors        string
	Artists        string
	Status         string
	Type           string
	ReleaseDate    *time.Time
	Genres         string
	CreatedAt      *time.Time
	UpdatedAt      time.Time
}

// StaleItem pairs an item with its favorite count, the shape the
// scheduler buckets and prioritizes by.
type StaleItem struct {
	Item     Item
	FavCount int
}

var ErrItemNotFound = errors.New("item not found")

// Tx is the transaction bracket for the URL-migration step in C7;
// Commit or Rollback must always be called to release it.
type Tx interface {
	UpdateItemURL(ctx context.Context, itemID int64, newURL string) error
	UpdateChapterURL(ctx context.Context, chapterID int64, newURL string) error
	Commit() error
	Rollback() error
}

// Storage is the repository interface consumed by C6/C7, matching
// spec.md §6 exactly.
type Storage interface {
	FindItemByID(ctx context.Context, id int64) (*Item, error)
	FindItemsStale(ctx context.Context, threshold time.Time, limit int) ([]StaleItem, error)
	UpsertItem(ctx context.Context, updates ItemUpdates) (*Item, error)
	FindChaptersByURLs(ctx context.Context, itemID int64, urls []string) ([]Chapter, error)
	InsertChaptersIgnoreConflict(ctx context.Context, chapters []ChapterInsert) error
	UpdateChapterURL(ctx context.Context, chapterID int64, newURL string) error
	BeginTx(ctx context.Context) (Tx, error)
}

// Memory is an in-memory Storage implementation for tests: no
// connection pool, no migrations, plain maps guarded by a mutex.
type Memory struct {
	mu           sync.Mutex
	items        map[int64]*Item
	chapters     map[int64]*Chapter
	favoriteCnt  map[int64]int
	nextItemID   int64
	nextChapID   int64
}

func NewMemory() *Memory {
	return &Memory{
		items:       make(map[int64]*Item),
		chapters:    make(map[int64]*Chapter),
		favoriteCnt: make(map[int64]int),
	}
}

// SeedItem installs an item directly, bypassing UpsertItem, for test
// setup. Returns the assigned id.
func (m *Memory) SeedItem(item Item, favCount int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextItemID++
	item.ID = m.nextItemID
	m.items[item.ID] = &item
	m.favoriteCnt[item.ID] = favCount
	return item.ID
}

func (m *Memory) FindItemByID(ctx context.Context, id int64) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	copied := *item
	return &copied, nil
}

func (m *Memory) FindItemsStale(ctx context.Context, threshold time.Time, limit int) ([]StaleItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []StaleItem
	for _, item := range m.items {
		if item.UpdatedAt.Before(threshold) {
			out = append(out, StaleItem{Item: *item, FavCount: m.favoriteCnt[item.ID]})
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) UpsertItem(ctx context.Context, updates ItemUpdates) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[updates.ID]
	if !ok {
		return nil, ErrItemNotFound
	}
	if updates.URL != nil {
		item.URL = *updates.URL
	}
	item.Title = updates.Title
	item.ImgURL = updates.ImgURL
	item.Description = updates.Description
	item.AlternateNames = updates.AlternateNames
	item.Authors = updates.Authors
	item.Artists = updates.Artists
	item.Status = updates.Status
	if updates.Type != "" {
		item.Type = MediaType(updates.Type)
	}
	item.ReleaseDate = updates.ReleaseDate
	item.Genres = updates.Genres
	if updates.CreatedAt != nil {
		item.CreatedAt = updates.CreatedAt
	}
	item.UpdatedAt = updates.UpdatedAt

	copied := *item
	return &copied, nil
}

// FindChaptersByURLs returns itemID's chapters whose URL is in urls.
// A nil urls (as opposed to an empty, non-nil slice) is treated as
// "no filter", returning every chapter of the item; the sync engine's
// legacy-host migration step relies on this to scan all of an item's
// chapters without first knowing their URLs.
func (m *Memory) FindChaptersByURLs(ctx context.Context, itemID int64, urls []string) ([]Chapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var set map[string]bool
	if urls != nil {
		set = make(map[string]bool, len(urls))
		for _, u := range urls {
			set[u] = true
		}
	}

	var out []Chapter
	for _, ch := range m.chapters {
		if ch.ItemID == itemID && (set == nil || set[ch.URL]) {
			out = append(out, *ch)
		}
	}
	return out, nil
}

func (m *Memory) InsertChaptersIgnoreConflict(ctx context.Context, chapters []ChapterInsert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existingURLs := make(map[string]bool, len(m.chapters))
	for _, ch := range m.chapters {
		existingURLs[ch.URL] = true
	}

	for _, c := range chapters {
		if existingURLs[c.URL] {
			continue
		}
		m.nextChapID++
		m.chapters[m.nextChapID] = &Chapter{
			ID:              m.nextChapID,
			ItemID:          c.ItemID,
			Title:           c.Title,
			URL:             c.URL,
			ScanlationGroup: c.ScanlationGroup,
			CreatedAt:       c.CreatedAt,
			UpdatedAt:       c.UpdatedAt,
		}
		existingURLs[c.URL] = true
	}
	return nil
}

func (m *Memory) UpdateChapterURL(ctx context.Context, chapterID int64, newURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.chapters[chapterID]
	if !ok {
		return ErrItemNotFound
	}
	ch.URL = newURL
	return nil
}

// memoryTx buffers mutations and applies them only on Commit, giving
// the in-memory store the same atomicity-on-failure contract the real
// backend's transaction bracket provides.
type memoryTx struct {
	store   *Memory
	itemOps []func()
}

func (m *Memory) BeginTx(ctx context.Context) (Tx, error) {
	return &memoryTx{store: m}, nil
}

func (tx *memoryTx) UpdateItemURL(ctx context.Context, itemID int64, newURL string) error {
	tx.store.mu.Lock()
	_, ok := tx.store.items[itemID]
	tx.store.mu.Unlock()
	if !ok {
		return ErrItemNotFound
	}
	tx.itemOps = append(tx.itemOps, func() {
		tx.store.items[itemID].URL = newURL
	})
	return nil
}

func (tx *memoryTx) UpdateChapterURL(ctx context.Context, chapterID int64, newURL string) error {
	tx.store.mu.Lock()
	_, ok := tx.store.chapters[chapterID]
	tx.store.mu.Unlock()
	if !ok {
		return ErrItemNotFound
	}
	tx.itemOps = append(tx.itemOps, func() {
		tx.store.chapters[chapterID].URL = newURL
	})
	return nil
}

func (tx *memoryTx) Commit() error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for _, op := range tx.itemOps {
		op()
	}
	return nil
}

func (tx *memoryTx) Rollback() error {
	tx.itemOps = nil
	return nil
}
