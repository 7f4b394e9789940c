package directory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultLookupTimeout bounds a shared lookup when no timeout is configured.
const DefaultLookupTimeout = 30 * time.Second

// Lookuper performs one uncached directory search.
type Lookuper interface {
	Lookup(ctx context.Context, token, email string) (DeviceRecord, error)
}

// Directory is the cached device directory.
type Directory struct {
	lookup        Lookuper
	cache         Cache
	group         singleflight.Group
	lookupTimeout time.Duration
	logger        *slog.Logger
}

// Option configures a Directory.
type Option func(*Directory)

// WithLookupTimeout bounds each shared upstream lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(dir *Directory) {
		if d > 0 {
			dir.lookupTimeout = d
		}
	}
}

// New returns a Directory reading through cache to lookup.
func New(lookup Lookuper, cache Cache, logger *slog.Logger, opts ...Option) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Directory{lookup: lookup, cache: cache, lookupTimeout: DefaultLookupTimeout, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Resolve returns the device registered for email. NotFound answers are
// not cached so a newly enrolled device is recognized immediately.
//
// Concurrent misses for one email share a single lookup. That lookup is
// detached from every caller's deadline and bounded by the lookup timeout;
// each caller stops waiting when its own ctx ends.
func (d *Directory) Resolve(ctx context.Context, token, email string) (DeviceRecord, error) {
	key := NormalizeEmail(email)
	if rec, ok := d.cache.Get(ctx, key); ok {
		d.logger.Debug("device cache hit", "device_id", rec.ID)
		return rec, nil
	}

	// The directory may match case-sensitively; send the address as given.
	query := strings.TrimSpace(email)
	ch := d.group.DoChan(key, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.lookupTimeout)
		defer cancel()

		// A concurrent flight may have filled the cache since our miss.
		if rec, ok := d.cache.Get(flightCtx, key); ok {
			return rec, nil
		}
		rec, err := d.lookup.Lookup(flightCtx, token, query)
		if err != nil {
			return DeviceRecord{}, err
		}
		d.cache.Set(flightCtx, key, rec)
		return rec, nil
	})

	select {
	case <-ctx.Done():
		return DeviceRecord{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return DeviceRecord{}, res.Err
		}
		d.logger.Debug("device resolved", "shared", res.Shared)
		return res.Val.(DeviceRecord).clone(), nil
	}
}
