package capability

import (
	"regexp"
	"strings"
)

// cfScriptPattern matches a <script src="...cdn-cgi/...|cf-...">
// tag, ported verbatim from
// original_source/scrapers/scraper_core/src/plugins/wasm/http.rs.
var cfScriptPattern = regexp.MustCompile(`<script[^>]+src=["'][^"']*(cdn-cgi|cf-)[^"']*["']`)

// cfLiteralMarkers are the literal banner strings spec.md §4.1 lists.
var cfLiteralMarkers = []string{
	"Attention Required! | Cloudflare",
	"Just a moment...",
	"cf-browser-verification",
	"/cdn-cgi/l/chk_jschl",
}

// HasCloudflareProtection implements http.has_cloudflare_protection:
// true iff the body matches any literal marker, or a cf-style script
// tag, or (status == 503 AND a "server" header contains "cloudflare").
func HasCloudflareProtection(body string, status int, headers [][2]string) bool {
	for _, marker := range cfLiteralMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}

	if cfScriptPattern.MatchString(body) {
		return true
	}

	if status == 503 {
		for _, kv := range headers {
			if strings.EqualFold(kv[0], "server") && strings.Contains(strings.ToLower(kv[1]), "cloudflare") {
				return true
			}
		}
	}

	return false
}
