// Package geo resolves approximate locations for client addresses.
package geo

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"identity/internal/domain"
	"identity/internal/netutil"

	"github.com/oschwald/geoip2-golang"
)

// Geolocator returns nil when the address is private, loopback, or cannot be
// resolved. It never fails.
type Geolocator interface {
	Lookup(ctx context.Context, ip string) *domain.GeoLocation
}

// None is used when no database is configured.
type None struct{}

func (None) Lookup(context.Context, string) *domain.GeoLocation { return nil }

// MaxMind reads a GeoLite2/GeoIP2 City database. The file is opened on first
// use and shared for the life of the process.
type MaxMind struct {
	path string

	once    sync.Once
	reader  *geoip2.Reader
	openErr error
}

func NewMaxMind(path string) *MaxMind { return &MaxMind{path: path} }

func (m *MaxMind) open() (*geoip2.Reader, error) {
	m.once.Do(func() {
		m.reader, m.openErr = geoip2.Open(m.path)
		if m.openErr != nil {
			slog.Warn("geoip database unavailable", "path", m.path, "error", m.openErr)
		}
	})
	return m.reader, m.openErr
}

func (m *MaxMind) Lookup(ctx context.Context, ip string) *domain.GeoLocation {
	if !netutil.IsPublic(ip) {
		return nil
	}
	reader, err := m.open()
	if err != nil {
		return nil
	}
	rec, err := reader.City(net.ParseIP(ip))
	if err != nil {
		slog.DebugContext(ctx, "geoip lookup failed", "error", err)
		return nil
	}
	loc := &domain.GeoLocation{
		Country: name(rec.Country.Names),
		City:    name(rec.City.Names),
	}
	if len(rec.Subdivisions) > 0 {
		loc.Region = name(rec.Subdivisions[0].Names)
	}
	if rec.Location.Latitude != 0 || rec.Location.Longitude != 0 {
		lat, lon := rec.Location.Latitude, rec.Location.Longitude
		loc.Latitude, loc.Longitude = &lat, &lon
	}
	if loc.Country == nil && loc.City == nil && loc.Region == nil && loc.Latitude == nil {
		return nil
	}
	return loc
}

func (m *MaxMind) Close() error {
	if m.reader == nil {
		return nil
	}
	return m.reader.Close()
}

func name(names map[string]string) *string {
	if v, ok := names["en"]; ok && v != "" {
		return &v
	}
	return nil
}
