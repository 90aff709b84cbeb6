package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Thegreatsura/better-analytics-sub000/pkg/config"
)

// DefaultIPInfoURL is the ipinfo.io API root.
const DefaultIPInfoURL = "https://ipinfo.io"

// IPInfoConfig configures an IPInfo lookup.
type IPInfoConfig struct {
	Token   string
	BaseURL string
	Timeout time.Duration

	// Cache is optional. Successful lookups are kept for TTL, failed ones
	// for NegativeTTL so a rate-limited upstream is not hammered.
	Cache       Cache
	TTL         time.Duration
	NegativeTTL time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// IPInfo looks addresses up with the ipinfo.io API.
type IPInfo struct {
	cfg IPInfoConfig
}

// NewIPInfo returns an ipinfo.io lookup. Without a token every lookup is
// empty.
func NewIPInfo(cfg IPInfoConfig) *IPInfo {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultIPInfoURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.GeoLookupTimeout
	}
	if cfg.TTL <= 0 {
		cfg.TTL = config.GeoCacheTTL
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = config.GeoNegativeCacheTTL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &IPInfo{cfg: cfg}
}

type ipinfoResponse struct {
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Loc      string `json:"loc"`
	Org      string `json:"org"`
	Postal   string `json:"postal"`
	Timezone string `json:"timezone"`
	Bogon    bool   `json:"bogon"`
}

// Lookup implements Lookup.
func (g *IPInfo) Lookup(ctx context.Context, ip string) Location {
	if g.cfg.Token == "" || !Routable(ip) {
		return Location{}
	}

	if g.cfg.Cache != nil {
		if loc, ok := g.cfg.Cache.Get(ctx, ip); ok {
			return loc
		}
	}

	loc, err := g.fetch(ctx, ip)
	ttl := g.cfg.TTL
	if err != nil {
		g.cfg.Logger.Debug("geo lookup failed", zap.Error(err))
		ttl = g.cfg.NegativeTTL
	}
	if g.cfg.Cache != nil {
		g.cfg.Cache.Set(ctx, ip, loc, ttl)
	}
	return loc
}

func (g *IPInfo) fetch(ctx context.Context, ip string) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	// The token goes in a header so it never shows up in a *url.Error.
	url := fmt.Sprintf("%s/%s/json", g.cfg.BaseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Location{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.Token)

	resp, err := g.cfg.HTTPClient.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("failed to query ipinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("ipinfo returned status %d", resp.StatusCode)
	}

	var body ipinfoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return Location{}, fmt.Errorf("failed to decode ipinfo response: %w", err)
	}
	if body.Bogon {
		return Location{}, nil
	}
	return Location{
		Country:  body.Country,
		Region:   body.Region,
		City:     body.City,
		Org:      body.Org,
		Postal:   body.Postal,
		Loc:      body.Loc,
		Timezone: body.Timezone,
	}, nil
}
