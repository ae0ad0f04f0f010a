// Package repoindex implements repository sync (C3): fetching a
// plugin repository manifest, filtering it against an allow/deny
// list, reconciling the result against what is already on disk, and
// downloading whatever is missing or out of date.
//
// Grounded on original_source/scrapers/scraper_core/src/repository.rs,
// re-expressed with net/http and encoding/json in place of reqwest and
// serde, since nothing in the corpus brings a typed HTTP client for
// one-shot JSON manifest fetches (the teacher's own colly is a
// crawling-oriented tool, not a fit for a single GET+decode).
package repoindex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// pluginFileExtensions mirrors original_source's PLUGIN_FILE_EXTENSIONS
// constant: every extension cleanup must probe for, since a plugin may
// have been re-downloaded under a different kind across repo updates.
var pluginFileExtensions = []string{"wasm", "component", "lua"}

type BuildState string

const (
	BuildAlpha  BuildState = "alpha"
	BuildBeta   BuildState = "beta"
	BuildStable BuildState = "stable"
)

type PluginState string

const (
	PluginOutdated PluginState = "outdated"
	PluginUpdated  PluginState = "updated"
	PluginObsolete PluginState = "obsolete"
)

// DownloadOptions carries the manifest's per-kind download URLs. Lua
// is preferred over wasm when both are present, since an embedded
// script needs no sandboxed module instantiation on the consuming
// side.
type DownloadOptions struct {
	Wasm string `json:"wasm,omitempty"`
	Lua  string `json:"lua,omitempty"`
}

type ManifestPlugin struct {
	Name       string          `json:"name"`
	URLs       DownloadOptions `json:"urls"`
	Version    string          `json:"version"`
	State      PluginState     `json:"state"`
	BuildState BuildState      `json:"build_state"`
}

type Manifest struct {
	Name    string           `json:"name"`
	Plugins []ManifestPlugin `json:"plugins"`
}

// installedPlugin is one line of a repo directory's plugins.json,
// tracking what was already downloaded and at which version.
type installedPlugin struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RepoConfig is one configured plugin repository, matching spec.md
// §6's repositories list entry.
type RepoConfig struct {
	URL       string
	Whitelist []string
	Blacklist []string
}

// Syncer fetches and reconciles configured plugin repositories against
// a local plugins folder.
type Syncer struct {
	client       *http.Client
	pluginsDir   string
	log          zerolog.Logger
}

func NewSyncer(pluginsDir string, timeout time.Duration, log zerolog.Logger) *Syncer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Syncer{
		client:     &http.Client{Timeout: timeout},
		pluginsDir: pluginsDir,
		log:        log,
	}
}

// SyncAll runs repository sync for every configured repository,
// continuing past a single repository's failure so one bad manifest
// doesn't block the others.
func (s *Syncer) SyncAll(ctx context.Context, repos []RepoConfig) {
	for _, repo := range repos {
		if err := s.syncOne(ctx, repo); err != nil {
			s.log.Error().Err(err).Str("url", repo.URL).Msg("repository sync failed")
		}
	}
}

func (s *Syncer) syncOne(ctx context.Context, repo RepoConfig) error {
	s.log.Debug().Str("url", repo.URL).Msg("loading repository")

	manifest, err := s.fetchManifest(ctx, repo.URL)
	if err != nil {
		return fmt.Errorf("fetch repository: %w", err)
	}

	filtered := filterPlugins(manifest.Plugins, repo.Whitelist, repo.Blacklist)
	if len(filtered) == 0 {
		s.log.Warn().Str("repo", manifest.Name).Msg("no plugins remaining after filtering for repository")
	}

	repoDir := filepath.Join(s.pluginsDir, manifest.Name)
	if err := os.MkdirAll(repoDir, 0o755); err != nil {
		return fmt.Errorf("create repository directory: %w", err)
	}

	installed, err := loadInstalled(repoDir)
	if err != nil {
		return fmt.Errorf("load installed plugins: %w", err)
	}

	if err := s.cleanupObsolete(repoDir, installed, filtered); err != nil {
		return fmt.Errorf("cleanup obsolete plugins: %w", err)
	}

	if err := s.downloadNew(ctx, repoDir, manifest.Name, filtered, installed); err != nil {
		return fmt.Errorf("download new plugins: %w", err)
	}

	return nil
}

func (s *Syncer) fetchManifest(ctx context.Context, url string) (*Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching manifest", resp.StatusCode)
	}

	var manifest Manifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("parse repository data: %w", err)
	}
	return &manifest, nil
}

// filterPlugins applies an allowlist (if any) then a denylist,
// matching original_source's filter_plugins: present on the
// whitelist (or no whitelist at all) and absent from the blacklist.
func filterPlugins(plugins []ManifestPlugin, whitelist, blacklist []string) []ManifestPlugin {
	allow := toSet(whitelist)
	deny := toSet(blacklist)

	var out []ManifestPlugin
	for _, p := range plugins {
		inWhitelist := len(allow) == 0 || allow[p.Name]
		inBlacklist := deny[p.Name]
		if inWhitelist && !inBlacklist {
			out = append(out, p)
		}
	}
	return out
}

func toSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func loadInstalled(repoDir string) ([]installedPlugin, error) {
	path := filepath.Join(repoDir, "plugins.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var installed []installedPlugin
	if err := json.Unmarshal(data, &installed); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return installed, nil
}

// cleanupObsolete removes every file previously tracked under
// plugins.json whose plugin no longer appears in the filtered
// manifest, probing all known plugin extensions since the kind a
// plugin was last downloaded as isn't recorded.
func (s *Syncer) cleanupObsolete(repoDir string, installed []installedPlugin, manifestPlugins []ManifestPlugin) error {
	stillPresent := make(map[string]bool, len(manifestPlugins))
	for _, p := range manifestPlugins {
		stillPresent[p.Name] = true
	}

	for _, ip := range installed {
		if stillPresent[ip.Name] {
			continue
		}
		for _, ext := range pluginFileExtensions {
			path := filepath.Join(repoDir, fmt.Sprintf("%s.%s", ip.Name, ext))
			if _, err := os.Stat(path); err == nil {
				s.log.Debug().Str("path", path).Msg("removing obsolete plugin")
				if err := os.Remove(path); err != nil {
					return fmt.Errorf("remove %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// downloadNew downloads every plugin whose version differs from (or
// is absent from) the installed set, preferring a lua download URL
// over a wasm one, and rewrites plugins.json to reflect the new
// installed set.
func (s *Syncer) downloadNew(ctx context.Context, repoDir, repoName string, manifestPlugins []ManifestPlugin, installed []installedPlugin) error {
	installedByName := make(map[string]installedPlugin, len(installed))
	for _, ip := range installed {
		installedByName[ip.Name] = ip
	}

	newInstalled := make([]installedPlugin, 0, len(manifestPlugins))

	for _, plugin := range manifestPlugins {
		if existing, ok := installedByName[plugin.Name]; ok && existing.Version == plugin.Version {
			newInstalled = append(newInstalled, installedPlugin{Name: plugin.Name, Version: plugin.Version})
			continue
		}

		url, ext, err := downloadInfo(plugin)
		if err != nil {
			s.log.Warn().Err(err).Str("plugin", plugin.Name).Msg("skipping plugin with no usable download URL")
			continue
		}

		s.log.Info().Str("repo", repoName).Str("plugin", plugin.Name).Msg("downloading plugin")

		data, err := s.download(ctx, url)
		if err != nil {
			return fmt.Errorf("download plugin %s: %w", plugin.Name, err)
		}

		path := filepath.Join(repoDir, fmt.Sprintf("%s.%s", plugin.Name, ext))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}

		newInstalled = append(newInstalled, installedPlugin{Name: plugin.Name, Version: plugin.Version})
	}

	content, err := json.MarshalIndent(newInstalled, "", "  ")
	if err != nil {
		return err
	}
	manifestPath := filepath.Join(repoDir, "plugins.json")
	if err := os.WriteFile(manifestPath, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", manifestPath, err)
	}
	return nil
}

func (s *Syncer) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d downloading %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

// downloadInfo picks the download URL/extension pair for a plugin,
// preferring lua over wasm when both are offered.
func downloadInfo(plugin ManifestPlugin) (url, extension string, err error) {
	if plugin.URLs.Lua != "" {
		return plugin.URLs.Lua, "lua", nil
	}
	if plugin.URLs.Wasm != "" {
		return plugin.URLs.Wasm, "wasm", nil
	}
	return "", "", fmt.Errorf("no valid download URL found for plugin: %s", plugin.Name)
}
