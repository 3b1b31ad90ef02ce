package util

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/oschwald/geoip2-golang"
	cache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// IPLocation is the coarse location resolved for an address.
type IPLocation struct {
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

// String renders the location as "City/Country", or whichever part is known.
func (l IPLocation) String() string {
	switch {
	case l.City != "" && l.Country != "":
		return l.City + "/" + l.Country
	case l.Country != "":
		return l.Country
	default:
		return l.City
	}
}

// GeoLocator resolves IP addresses against a local GeoIP2/GeoLite2 database with an in-memory cache.
// A nil *GeoLocator, or one without a database, resolves every address to an empty location.
type GeoLocator struct {
	db     *geoip2.Reader
	cache  *cache.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

// OpenGeoLocator opens the .mmdb file at dbPath. An empty path yields a locator that resolves nothing.
func OpenGeoLocator(dbPath string) (*GeoLocator, error) {
	l := &GeoLocator{cache: cache.New(24*time.Hour, time.Hour)}
	if dbPath == "" {
		return l, nil
	}
	r, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open geoip db %s: %w", dbPath, err)
	}
	l.db = r
	return l, nil
}

// Close releases the database file.
func (l *GeoLocator) Close() {
	if l != nil && l.db != nil {
		_ = l.db.Close()
		l.db = nil
	}
}

// Locate returns the location for ip. Private, loopback and unparsable addresses are never looked up.
func (l *GeoLocator) Locate(ip string) IPLocation {
	if l == nil || ip == "" {
		return IPLocation{}
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil || addr.IsPrivate() || addr.IsLoopback() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		return IPLocation{}
	}

	if v, ok := l.cache.Get(ip); ok {
		l.hits.Add(1)
		if loc, ok := v.(IPLocation); ok {
			return loc
		}
	}
	l.misses.Add(1)

	if l.db == nil {
		return IPLocation{}
	}
	rec, err := l.db.City(net.IP(addr.AsSlice()))
	if err != nil {
		Logger().Debug("geoip lookup failed", zap.String("ip", ip), zap.Error(err))
		return IPLocation{}
	}

	loc := IPLocation{City: rec.City.Names["en"], Country: rec.Country.Names["en"]}
	if loc.Country == "" {
		loc.Country = rec.Country.IsoCode
	}
	l.cache.Set(ip, loc, cache.DefaultExpiration)
	return loc
}

// CacheMetrics returns the cache hits and misses and current cache size.
func (l *GeoLocator) CacheMetrics() (hits int64, misses int64, size int) {
	if l == nil {
		return 0, 0, 0
	}
	return l.hits.Load(), l.misses.Load(), l.cache.ItemCount()
}

// DownloadRequest describes where to fetch a GeoIP database from and where to put it.
type DownloadRequest struct {
	URL      string
	DestPath string
}

// DownloadGeoIPWithRequest downloads a GeoIP MMDB file and atomically moves it to req.DestPath.
// Gzip-compressed content (URL ending in .gz) is decompressed on the fly. Returns the final path written.
func DownloadGeoIPWithRequest(ctx context.Context, req DownloadRequest) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return "", err
	}
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download, status: %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(req.DestPath), 0o755); err != nil {
		return "", err
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(req.DestPath), "geoip-*.tmp")
	if err != nil {
		return "", err
	}
	committed := false
	defer func() {
		_ = tmpFile.Close()
		if !committed {
			_ = os.Remove(tmpFile.Name())
		}
	}()

	var body io.Reader = resp.Body
	if filepath.Ext(req.URL) == ".gz" {
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", err
		}
		defer gzReader.Close()
		body = gzReader
	}
	if _, err := io.Copy(tmpFile, body); err != nil {
		return "", err
	}
	if err := tmpFile.Sync(); err != nil {
		return "", err
	}
	if err := tmpFile.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpFile.Name(), req.DestPath); err != nil {
		return "", err
	}
	committed = true
	return req.DestPath, nil
}

// ValidateGeoIP attempts to open the MMDB file to ensure it's a valid DB.
func ValidateGeoIP(path string) error {
	r, err := geoip2.Open(path)
	if err != nil {
		return err
	}
	_ = r.Close()
	return nil
}
