// Package syncengine implements the sync engine (C7): scraping a
// single item via its plugin and reconciling the result into storage,
// including the legacy-host URL migration step.
//
// Grounded on original_source/apps/manga_sync/src/lib.rs's
// sync_manga_with_scraper, generalized from manga-only to the
// scheduler/on-demand-collapsed sync_item function spec.md mandates
// (see SPEC_FULL.md Part E).
package syncengine

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ramkansal/mangavault/internal/storage"
	"github.com/ramkansal/mangavault/pkg/scraper"
)

// SyncItem loads item itemID, migrates its URL (and its chapters') off
// any legacy host the plugin declares, scrapes the current page, and
// reconciles the result into storage. Running it twice in succession
// on the same (item, plugin-returning-same-page) leaves storage
// logically unchanged (property #8).
func SyncItem(ctx context.Context, store storage.Storage, plugin scraper.Plugin, itemID int64, scraperID string) error {
	item, err := store.FindItemByID(ctx, itemID)
	if err != nil {
		if err == storage.ErrItemNotFound {
			return itemNotFound(itemID)
		}
		return storageErr(err)
	}

	info, err := plugin.GetInfo(ctx)
	if err != nil {
		return scraperErr(err)
	}

	if len(info.LegacyURLs) > 0 {
		if err := migrateLegacyHost(ctx, store, item, info); err != nil {
			return err
		}
		// Re-read so the in-memory item reflects the migrated URL.
		item, err = store.FindItemByID(ctx, itemID)
		if err != nil {
			return storageErr(err)
		}
	}

	page, err := plugin.Scrape(ctx, item.URL)
	if err != nil {
		return scraperErr(err)
	}

	now := time.Now()
	var createdAt *time.Time
	if item.CreatedAt == nil {
		createdAt = &now
	}

	var releaseDate *time.Time
	if page.ReleaseDate != "" {
		if parsed, err := time.Parse("2006-01-02", page.ReleaseDate); err == nil {
			releaseDate = &parsed
		}
	}

	_, err = store.UpsertItem(ctx, storage.ItemUpdates{
		ID:             itemID,
		Title:          page.Title,
		ImgURL:         page.ImgURL,
		Description:    page.Description,
		AlternateNames: strings.Join(page.AlternativeNames, ", "),
		Authors:        strings.Join(page.Authors, ", "),
		Artists:        strings.Join(page.Artists, ", "),
		Status:         page.Status,
		Type:           page.PageType,
		ReleaseDate:    releaseDate,
		Genres:         strings.Join(page.Genres, ", "),
		CreatedAt:      createdAt,
		UpdatedAt:      now,
	})
	if err != nil {
		return storageErr(err)
	}

	return reconcileChapters(ctx, store, itemID, page.Chapters, now)
}

// reconcileChapters inserts every scraped chapter whose URL is not
// already present for this item, ignoring conflicts on the globally
// unique URL. Each new chapter's timestamps increment by one second
// to preserve scraped order (property #8/#9's "modulo timestamps").
func reconcileChapters(ctx context.Context, store storage.Storage, itemID int64, chapters []scraper.Chapter, now time.Time) error {
	if len(chapters) == 0 {
		return nil
	}

	urls := make([]string, len(chapters))
	for i, ch := range chapters {
		urls[i] = ch.URL
	}

	existing, err := store.FindChaptersByURLs(ctx, itemID, urls)
	if err != nil {
		return storageErr(err)
	}
	existingURLs := make(map[string]bool, len(existing))
	for _, ch := range existing {
		existingURLs[ch.URL] = true
	}

	var inserts []storage.ChapterInsert
	for i, ch := range chapters {
		if existingURLs[ch.URL] {
			continue
		}
		stamp := now.Add(time.Duration(i) * time.Second)
		inserts = append(inserts, storage.ChapterInsert{
			ItemID:          itemID,
			Title:           ch.Title,
			URL:             ch.URL,
			ScanlationGroup: ch.ScanlationGroup,
			CreatedAt:       stamp,
			UpdatedAt:       stamp,
		})
	}

	if len(inserts) == 0 {
		return nil
	}
	if err := store.InsertChaptersIgnoreConflict(ctx, inserts); err != nil {
		return storageErr(err)
	}
	return nil
}

// migrateLegacyHost rewrites item.URL (and any of its chapters) off a
// legacy host onto the plugin's declared canonical host, atomically.
// No-op if the item's current host isn't one of the legacy hosts.
func migrateLegacyHost(ctx context.Context, store storage.Storage, item *storage.Item, info *scraper.ScraperInfo) error {
	if info.BaseURL == "" {
		return scraperMissingBaseURL(info.Name)
	}

	canonicalHost, err := hostFromBase(info.BaseURL)
	if err != nil {
		return invalidBaseURL(info.BaseURL)
	}
	canonicalHost = strings.ToLower(canonicalHost)

	legacyHosts := make(map[string]bool, len(info.LegacyURLs))
	for _, raw := range info.LegacyURLs {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			legacyHosts[strings.ToLower(u.Hostname())] = true
		}
	}

	itemURL, err := url.Parse(item.URL)
	if err != nil {
		return urlParseErr(err)
	}
	itemHost := itemURL.Hostname()
	if itemHost == "" {
		return invalidItemURL(item.URL)
	}
	itemHost = strings.ToLower(itemHost)

	if !legacyHosts[itemHost] {
		return nil
	}

	tx, err := store.BeginTx(ctx)
	if err != nil {
		return storageErr(err)
	}

	newItemURL, err := replaceHostPreservePath(item.URL, canonicalHost)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.UpdateItemURL(ctx, item.ID, newItemURL); err != nil {
		_ = tx.Rollback()
		return storageErr(err)
	}

	chapters, err := store.FindChaptersByURLs(ctx, item.ID, nil)
	if err == nil {
		for _, ch := range chapters {
			chURL, err := url.Parse(ch.URL)
			if err != nil {
				continue
			}
			if !legacyHosts[strings.ToLower(chURL.Hostname())] {
				continue
			}
			newChURL, err := replaceHostPreservePath(ch.URL, canonicalHost)
			if err != nil {
				_ = tx.Rollback()
				return err
			}
			if err := tx.UpdateChapterURL(ctx, ch.ID, newChURL); err != nil {
				_ = tx.Rollback()
				return storageErr(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr(err)
	}
	return nil
}

func hostFromBase(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("invalid base url")
	}
	return u.Hostname(), nil
}

// replaceHostPreservePath rewrites oldURL's host (and port, if
// newHost carries one) while leaving path/query untouched.
func replaceHostPreservePath(oldURL, newHost string) (string, error) {
	u, err := url.Parse(oldURL)
	if err != nil {
		return "", urlParseErr(err)
	}

	if idx := strings.IndexByte(newHost, ':'); idx >= 0 {
		host := newHost[:idx]
		port := newHost[idx+1:]
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return "", invalidPort(port, err)
		}
		u.Host = host + ":" + port
	} else {
		u.Host = newHost
	}

	return u.String(), nil
}
