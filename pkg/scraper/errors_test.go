package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindStringRoundtrip(t *testing.T) {
	kinds := []ErrorKind{KindNetwork, KindCloudflare, KindRateLimit, KindNotFound, KindParse, KindValidation, KindInternal}
	want := []string{"network", "cloudflare", "rate_limit", "not_found", "parse", "validation", "internal"}
	for i, k := range kinds {
		assert.Equal(t, want[i], k.String())
	}
}

func TestFromHTTPStatus(t *testing.T) {
	cases := []struct {
		status        int
		wantKind      ErrorKind
		wantRetryable bool
	}{
		{404, KindNotFound, false},
		{429, KindRateLimit, true},
		{403, KindCloudflare, true},
		{500, KindNetwork, true},
		{503, KindNetwork, true},
		{400, KindNetwork, false},
	}
	for _, c := range cases {
		err := FromHTTPStatus(c.status, "boom")
		assert.Equal(t, c.wantKind, err.Kind)
		assert.Equal(t, c.wantRetryable, err.Retryable)
		assert.Equal(t, c.status, err.StatusCode)
	}
}

func TestDefaultRetryable(t *testing.T) {
	assert.True(t, New(KindNetwork, "x").Retryable)
	assert.True(t, New(KindRateLimit, "x").Retryable)
	assert.True(t, New(KindCloudflare, "x").Retryable)
	assert.False(t, New(KindNotFound, "x").Retryable)
	assert.False(t, New(KindParse, "x").Retryable)
	assert.False(t, New(KindValidation, "x").Retryable)
	assert.False(t, New(KindInternal, "x").Retryable)
}
