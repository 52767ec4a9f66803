// Package enrich resolves optional geography and hostname for logged
// addresses. Everything is best-effort: no mmdb file or a failed lookup
// leaves the fields empty and the action log write proceeds regardless.
package enrich

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/oschwald/geoip2-golang"
)

const (
	cacheTTL   = time.Hour
	cacheSize  = 4096 // bounds memory in a long-lived daemon
	dnsTimeout = time.Second
)

// Result holds the resolved attributes for one address.
type Result struct {
	Country  string // ISO country code
	Hostname string // first PTR name
}

// Enricher answers country/hostname lookups through a bounded TTL cache.
type Enricher struct {
	cache   *expirable.LRU[string, Result]
	countDB *geoip2.Reader
}

// New looks for GeoLite2-Country.mmdb (then GeoLite2-City.mmdb) in dirs and
// enables country resolution when one is found. Absent databases are not an
// error; lookups then return PTR names only.
func New(dirs ...string) *Enricher {
	e := &Enricher{cache: expirable.NewLRU[string, Result](cacheSize, nil, cacheTTL)}
	for _, d := range dirs {
		if d == "" {
			continue
		}
		for _, base := range []string{"GeoLite2-Country.mmdb", "GeoLite2-City.mmdb"} {
			p := filepath.Join(d, base)
			if _, err := os.Stat(p); err != nil {
				continue
			}
			if db, err := geoip2.Open(p); err == nil {
				e.countDB = db
				return e
			}
		}
	}
	return e
}

// Close releases the mmdb reader.
func (e *Enricher) Close() {
	if e.countDB != nil {
		_ = e.countDB.Close()
	}
}

// Lookup resolves ipStr, consulting the cache first.
func (e *Enricher) Lookup(ctx context.Context, ipStr string) Result {
	if r, ok := e.cache.Get(ipStr); ok {
		return r
	}

	var r Result
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return r
	}

	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	names, _ := net.DefaultResolver.LookupAddr(dnsCtx, ipStr)
	cancel()
	if len(names) > 0 {
		r.Hostname = names[0]
	}

	if e.countDB != nil {
		if rec, err := e.countDB.Country(ip); err == nil && rec != nil {
			r.Country = rec.Country.IsoCode
		}
	}

	e.cache.Add(ipStr, r)
	return r
}
