package capability

import "testing"

func TestHasCloudflareProtection(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		status  int
		headers [][2]string
		want    bool
	}{
		{"literal banner", "Attention Required! | Cloudflare", 200, nil, true},
		{"just a moment", "Just a moment...", 200, nil, true},
		{"verification marker", "please wait cf-browser-verification in progress", 200, nil, true},
		{"chk_jschl path", "redirecting to /cdn-cgi/l/chk_jschl", 200, nil, true},
		{"cf script tag", `<script src="/cdn-cgi/challenge-platform/h/b/orchestrate/jsch/v1"></script>`, 200, nil, true},
		{"503 with cloudflare server header", "internal error", 503, [][2]string{{"Server", "cloudflare"}}, true},
		{"unrelated 503", "internal error", 503, [][2]string{{"Server", "nginx"}}, false},
		{"clean page", "<html><body>hello</body></html>", 200, nil, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := HasCloudflareProtection(c.body, c.status, c.headers)
			if got != c.want {
				t.Errorf("HasCloudflareProtection(%q, %d, %v) = %v, want %v", c.body, c.status, c.headers, got, c.want)
			}
		})
	}
}
