package mock

import (
	"context"
	"sync"

	dlite "github.com/pilosa/oteapi-dlite"
)

// Saved is one call to Driver.Save.
type Saved struct {
	Record   *dlite.Record
	Location string
	Options  dlite.Options
}

// Driver records what it is asked to save. If Err is set it is returned
// from every Save.
type Driver struct {
	mu    sync.Mutex
	Saved []Saved
	Err   error
}

// Save implements dlite.Driver.
func (d *Driver) Save(ctx context.Context, s dlite.Storable, location string, opts dlite.Options) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.Saved = append(d.Saved, Saved{Record: s.Record(), Location: location, Options: opts})
	return nil
}

// Last returns the most recent save.
func (d *Driver) Last() (Saved, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Saved) == 0 {
		return Saved{}, false
	}
	return d.Saved[len(d.Saved)-1], true
}
