package geo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAnonymize(t *testing.T) {
	a := NewAnonymizer("pepper")

	first := a.Anonymize("203.0.113.7")
	assert.Len(t, first, TokenLength)
	assert.Equal(t, first, a.Anonymize("203.0.113.7"))
	assert.Equal(t, first, NewAnonymizer("pepper").Anonymize("203.0.113.7"))
	assert.NotEqual(t, first, a.Anonymize("203.0.113.8"))
	assert.NotEqual(t, first, NewAnonymizer("salt").Anonymize("203.0.113.7"))
	assert.Empty(t, a.Anonymize(""))

	long := NewAnonymizer(strings.Repeat("k", 200))
	assert.Len(t, long.Anonymize("::1"), TokenLength)
}

func TestAnonymizeNeverReturnsInput(t *testing.T) {
	a := NewAnonymizer("")
	seen := make(map[string]string)
	for i := 0; i < 256; i++ {
		ip := fmt.Sprintf("198.51.100.%d", i)
		token := a.Anonymize(ip)
		assert.NotEqual(t, ip, token)
		assert.NotContains(t, token, ".")
		if other, ok := seen[token]; ok {
			assert.Equal(t, other, ip, "token collision")
		}
		seen[token] = ip
	}
}

func TestRoutable(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"8.8.8.8", true},
		{"2001:4860:4860::8888", true},
		{"::ffff:8.8.4.4", true},
		{"127.0.0.1", false},
		{"::1", false},
		{"10.1.2.3", false},
		{"192.168.0.10", false},
		{"169.254.1.1", false},
		{"0.0.0.0", false},
		{"", false},
		{"not-an-ip", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, Routable(tt.ip))
		})
	}
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]Location
	ttls    map[string]time.Duration
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]Location{}, ttls: map[string]time.Duration{}}
}

func (c *mapCache) Get(_ context.Context, ip string) (Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loc, ok := c.entries[ip]
	return loc, ok
}

func (c *mapCache) Set(_ context.Context, ip string, loc Location, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ip] = loc
	c.ttls[ip] = ttl
}

func newIPInfoServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Empty(t, r.URL.RawQuery)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestIPInfoLookup(t *testing.T) {
	srv, hits := newIPInfoServer(t, http.StatusOK,
		`{"ip":"8.8.8.8","city":"Mountain View","region":"California","country":"US","loc":"37.4,-122.1","org":"AS15169 Google LLC","postal":"94043","timezone":"America/Los_Angeles"}`)
	cache := newMapCache()
	g := NewIPInfo(IPInfoConfig{Token: "tok", BaseURL: srv.URL, Cache: cache, TTL: time.Hour})

	loc := g.Lookup(context.Background(), "8.8.8.8")
	assert.Equal(t, Location{
		Country:  "US",
		Region:   "California",
		City:     "Mountain View",
		Org:      "AS15169 Google LLC",
		Postal:   "94043",
		Loc:      "37.4,-122.1",
		Timezone: "America/Los_Angeles",
	}, loc)

	assert.Equal(t, loc, g.Lookup(context.Background(), "8.8.8.8"))
	assert.EqualValues(t, 1, hits.Load(), "second lookup is served from cache")
	assert.Equal(t, time.Hour, cache.ttls["8.8.8.8"])
}

func TestIPInfoShortCircuits(t *testing.T) {
	srv, hits := newIPInfoServer(t, http.StatusOK, `{"country":"US"}`)

	noToken := NewIPInfo(IPInfoConfig{BaseURL: srv.URL})
	assert.True(t, noToken.Lookup(context.Background(), "8.8.8.8").IsZero())

	g := NewIPInfo(IPInfoConfig{Token: "tok", BaseURL: srv.URL})
	for _, ip := range []string{"", "garbage", "127.0.0.1", "::1", "10.0.0.1"} {
		assert.True(t, g.Lookup(context.Background(), ip).IsZero(), ip)
	}
	assert.EqualValues(t, 0, hits.Load())
}

func TestIPInfoUpstreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"rate limit"}`},
		{"server error", http.StatusInternalServerError, ``},
		{"bad json", http.StatusOK, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newIPInfoServer(t, tt.status, tt.body)
			cache := newMapCache()
			g := NewIPInfo(IPInfoConfig{Token: "tok", BaseURL: srv.URL, Cache: cache, NegativeTTL: time.Minute})

			assert.True(t, g.Lookup(context.Background(), "1.1.1.1").IsZero())
			assert.Equal(t, time.Minute, cache.ttls["1.1.1.1"], "failures are cached briefly")
		})
	}
}

func TestIPInfoTransportErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	g := NewIPInfo(IPInfoConfig{Token: "secret-token", BaseURL: baseURL, Logger: zap.New(core)})

	_, err := g.fetch(context.Background(), "1.1.1.1")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")

	assert.True(t, g.Lookup(context.Background(), "1.1.1.1").IsZero())
	require.Equal(t, 1, logs.FilterMessage("geo lookup failed").Len())
	for _, entry := range logs.All() {
		for _, field := range entry.Context {
			if field.Interface != nil {
				assert.NotContains(t, fmt.Sprint(field.Interface), "secret-token")
			}
			assert.NotContains(t, field.String, "secret-token")
		}
	}
}

func TestIPInfoTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	g := NewIPInfo(IPInfoConfig{Token: "tok", BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	start := time.Now()
	assert.True(t, g.Lookup(context.Background(), "1.1.1.1").IsZero())
	assert.Less(t, time.Since(start), time.Second)
}

func TestMemoryCache(t *testing.T) {
	cache, err := NewMemoryCache(100)
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	_, ok := cache.Get(ctx, "8.8.8.8")
	assert.False(t, ok)

	cache.Set(ctx, "8.8.8.8", Location{Country: "US"}, time.Hour)
	cache.Wait()

	loc, ok := cache.Get(ctx, "8.8.8.8")
	require.True(t, ok)
	assert.Equal(t, "US", loc.Country)

	_, err = NewMemoryCache(0)
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var l Lookup = Nop{}
	assert.True(t, l.Lookup(context.Background(), "8.8.8.8").IsZero())
}
