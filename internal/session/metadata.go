package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hassan7865/Hailouchat-Widget/internal/config"
	"github.com/hassan7865/Hailouchat-Widget/internal/domain"
)

const userAgent = "hailouchat-widget-go/1.0"

// Enricher collects best-effort visitor metadata. Every lookup is
// bounded by a short timeout and degrades to defaults silently; it
// must never delay session start beyond its budget.
type Enricher struct {
	cfg    config.MetadataConfig
	logger *zap.Logger
	client *http.Client
}

// NewEnricher creates an enricher with a dedicated short-timeout client
func NewEnricher(cfg config.MetadataConfig, logger *zap.Logger) *Enricher {
	return &Enricher{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: cfg.LookupTimeout},
	}
}

// Enrich returns visitor metadata: static device info plus whatever
// the location and IP lookups produced before their deadlines.
func (e *Enricher) Enrich(ctx context.Context) domain.VisitorMetadata {
	meta := deviceInfo()
	meta.Name = fmt.Sprintf("Visitor %d", time.Now().UnixMilli())

	if loc, ok := e.lookupLocation(ctx); ok {
		meta.City = loc.City
		meta.Region = loc.Region
		meta.Country = loc.Country
		if loc.Timezone != "" {
			meta.Timezone = loc.Timezone
		}
	}
	if meta.Timezone == "" {
		meta.Timezone = time.Now().Location().String()
	}
	if ip, ok := e.lookupIP(ctx); ok {
		meta.IPAddress = ip
	}
	return meta
}

type locationResult struct {
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	// Some providers use country_name instead of country.
	CountryName string `json:"country_name"`
	Timezone    string `json:"timezone"`
}

func (e *Enricher) lookupLocation(ctx context.Context) (locationResult, bool) {
	for _, url := range e.cfg.LocationURLs {
		body, err := e.get(ctx, url)
		if err != nil {
			e.logger.Debug("location lookup failed", zap.String("url", url), zap.Error(err))
			continue
		}
		var loc locationResult
		if err := json.Unmarshal(body, &loc); err != nil {
			continue
		}
		if loc.Country == "" {
			loc.Country = loc.CountryName
		}
		if loc.City != "" || loc.Country != "" {
			return loc, true
		}
	}
	return locationResult{}, false
}

func (e *Enricher) lookupIP(ctx context.Context) (string, bool) {
	for _, url := range e.cfg.IPURLs {
		body, err := e.get(ctx, url)
		if err != nil {
			e.logger.Debug("ip lookup failed", zap.String("url", url), zap.Error(err))
			continue
		}
		ip := strings.TrimSpace(string(body))
		var parsed struct {
			IP    string `json:"ip"`
			Query string `json:"query"`
		}
		if err := json.Unmarshal(body, &parsed); err == nil {
			if parsed.IP != "" {
				ip = parsed.IP
			} else if parsed.Query != "" {
				ip = parsed.Query
			}
		}
		if net.ParseIP(ip) != nil {
			return ip, true
		}
	}
	return "", false
}

func (e *Enricher) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.LookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lookup returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<16))
}

// deviceInfo reports the static environment of this client
func deviceInfo() domain.VisitorMetadata {
	osName := runtime.GOOS
	switch osName {
	case "darwin":
		osName = "macOS"
	case "windows":
		osName = "Windows"
	case "linux":
		osName = "Linux"
	}
	return domain.VisitorMetadata{
		DeviceType: "desktop",
		OS:         osName,
		Browser:    "hailouchat-go",
		UserAgent:  userAgent,
	}
}
