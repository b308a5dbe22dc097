package main

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// countryLookup resolves client IPs to country names with a MaxMind
// GeoLite2 database. A nil *countryLookup resolves nothing.
type countryLookup struct {
	db *geoip2.Reader
}

// openCountryLookup opens the database at path. An empty path returns nil.
func openCountryLookup(path string) (*countryLookup, error) {
	if path == "" {
		return nil, nil
	}

	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: failed to open database: %w", err)
	}
	return &countryLookup{db: db}, nil
}

// country returns the English country name for ip, or "" when unknown.
func (c *countryLookup) country(ip string) string {
	if c == nil || isPrivateIP(ip) {
		return ""
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}

	record, err := c.db.Country(parsed)
	if err != nil {
		return ""
	}
	if name, ok := record.Country.Names["en"]; ok {
		return name
	}
	return record.Country.IsoCode
}

func (c *countryLookup) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}
