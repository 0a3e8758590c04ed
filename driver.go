package dlite

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Driver writes storables to a location. The meaning of location depends on
// the driver: a file path, a database file, a broker address or a bucket URL.
type Driver interface {
	Save(ctx context.Context, s Storable, location string, opts Options) error
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(ctx context.Context, s Storable, location string, opts Options) error

// Save implements Driver.
func (f DriverFunc) Save(ctx context.Context, s Storable, location string, opts Options) error {
	return f(ctx, s, location, opts)
}

var (
	driversMu  sync.RWMutex
	drivers    = make(map[string]Driver)
	mediaTypes = make(map[string]string)
)

// RegisterDriver makes d available by name and by each of mediaTypes. It
// panics if name is registered twice.
func RegisterDriver(name string, d Driver, mediaTypes ...string) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[name]; dup {
		panic("dlite: RegisterDriver called twice for driver " + name)
	}
	drivers[name] = d
	for _, mt := range mediaTypes {
		registerMediaType(mt, name)
	}
}

func registerMediaType(mt, name string) {
	mediaTypes[strings.ToLower(mt)] = name
}

// Drivers returns the names of the registered drivers, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LookupDriver returns the driver registered under name.
func LookupDriver(name string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return nil, ConfigError(errors.Errorf("unknown driver %q", name), "lookup driver")
	}
	return d, nil
}

// DriverForMediaType returns the name of the driver registered for mediaType.
// Parameters such as "; charset=utf-8" are ignored, and a vendor media type
// like "application/vnd.dlite-json" falls back to its suffix after the last
// "-" or "+".
func DriverForMediaType(mediaType string) (string, error) {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	driversMu.RLock()
	defer driversMu.RUnlock()
	if name, ok := mediaTypes[mt]; ok {
		return name, nil
	}
	if i := strings.LastIndexAny(mt, "-+"); i >= 0 {
		if _, ok := drivers[mt[i+1:]]; ok {
			return mt[i+1:], nil
		}
	}
	if i := strings.LastIndexByte(mt, '/'); i >= 0 {
		if _, ok := drivers[mt[i+1:]]; ok {
			return mt[i+1:], nil
		}
	}
	return "", ConfigError(errors.Errorf("no driver for media type %q", mediaType), "driver for media type")
}

// Options are driver options, parsed from strings like "mode=w,single".
type Options map[string]string

// ParseOptions parses a comma (or semicolon) separated list of key=value
// pairs. A key without a value is set to "true".
func ParseOptions(s string) Options {
	opts := Options{}
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if i := strings.IndexByte(f, '='); i >= 0 {
			opts[strings.TrimSpace(f[:i])] = strings.TrimSpace(f[i+1:])
		} else {
			opts[f] = "true"
		}
	}
	return opts
}

// Get returns the option value or def if it isn't set.
func (o Options) Get(key, def string) string {
	if v, ok := o[key]; ok {
		return v
	}
	return def
}

// Bool reports whether the option is set to a true value.
func (o Options) Bool(key string) bool {
	switch strings.ToLower(o[key]) {
	case "true", "yes", "1", "on":
		return true
	}
	return false
}
