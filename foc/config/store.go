package config

import "sync/atomic"

// Store is a double-buffered configuration holder.
//
// Publish writes the inactive slot and makes it current with one atomic
// store, so a tick that took its snapshot with Current keeps reading a
// consistent Config. Publishing twice while one tick is still running would
// overwrite the slot that tick reads; the caller serialises publishes
// against ticks (core.Drive does this with interrupts masked).
type Store struct {
	slots  [2]Config
	active atomic.Uint32
}

// NewStore returns a store holding initial, which must be valid
func NewStore(initial Config) (*Store, error) {
	s := &Store{}
	if err := s.Publish(&initial); err != nil {
		return nil, err
	}
	return s, nil
}

// Publish validates c and makes it current. An invalid c is rejected and
// the previous configuration stays in effect.
func (s *Store) Publish(c *Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	next := 1 - s.active.Load()
	s.slots[next] = *c
	s.active.Store(next)
	return nil
}

// Current returns the active configuration snapshot.
// The pointer must not be written through.
func (s *Store) Current() *Config {
	return &s.slots[s.active.Load()]
}
