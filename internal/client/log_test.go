package client

import (
	"bytes"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 2, "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.in, tt.maxLen))
		})
	}
}

func TestLogRequestLevels(t *testing.T) {
	var buf bytes.Buffer
	c := &Client{logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))}

	c.logRequest("GET", "/api/projects", nil, 200, 10*time.Millisecond)
	assert.Empty(t, buf.String(), "fast requests log at debug")

	query := url.Values{"filter": {strings.Repeat("x", 500)}}
	c.logRequest("GET", "/api/projects", query, 200, slowRequestThreshold+time.Second)
	out := buf.String()
	assert.Contains(t, out, "slow api request")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, strings.Repeat("x", 300))
}
