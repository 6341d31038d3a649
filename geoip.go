package vigil

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// GeoIPReader provides IP geolocation using a MaxMind GeoLite2 database.
// It is optional: without one, notifications and reports simply carry no
// location detail.
type GeoIPReader struct {
	db   *geoip2.Reader
	path string
}

// NewGeoIPReader opens a MaxMind GeoLite2-City database.
func NewGeoIPReader(dbPath string) (*GeoIPReader, error) {
	if dbPath == "" {
		return nil, ErrGeoIPDatabaseNotConfigured
	}

	db, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("geoip: failed to open database: %w", err)
	}

	return &GeoIPReader{
		db:   db,
		path: dbPath,
	}, nil
}

// Lookup returns location information for an IP address.
func (r *GeoIPReader) Lookup(ip string) (*Location, error) {
	if r == nil || r.db == nil {
		return nil, ErrGeoIPDatabaseNotConfigured
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidIP, ip)
	}

	record, err := r.db.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeoIPLookupFailed, err)
	}

	return &Location{
		IP:        ip,
		City:      localizedName(record.City.Names),
		Country:   localizedName(record.Country.Names),
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
	}, nil
}

// localizedName prefers the English name, falling back to any available.
func localizedName(names map[string]string) string {
	if name, ok := names["en"]; ok {
		return name
	}
	for _, name := range names {
		return name
	}
	return ""
}

// LookupWithFallback attempts IP geolocation, returning a partial result
// with just the IP if lookup fails.
func (r *GeoIPReader) LookupWithFallback(ip string) Location {
	loc, err := r.Lookup(ip)
	if err != nil || loc == nil {
		return Location{IP: ip}
	}
	return *loc
}

// Close closes the GeoIP database.
func (r *GeoIPReader) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
