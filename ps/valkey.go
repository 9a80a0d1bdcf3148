package ps

import (
	"context"
	"fmt"
	"math/bits"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/jamiealquiza/lxucache"
)

// heartbeatInterval is how often the store pings its own idle
// connection. A failed ping triggers a reconnect; callers never retry,
// the store only repairs itself.
const heartbeatInterval = 15 * time.Second

// ValkeyStore is the BackingStore implementation against a Valkey (or
// Redis-protocol-compatible) server. Pipelining is DoMulti, one
// GET/SET per key, issued as a single round trip.
type ValkeyStore struct {
	opt valkey.ClientOption

	mu     sync.RWMutex
	client valkey.Client

	stop     chan struct{}
	stopOnce sync.Once
}

// NewValkeyStore dials addr (host:port) and selects db.
func NewValkeyStore(addr string, db int) (*ValkeyStore, error) {
	return newValkeyStore(valkey.ClientOption{
		InitAddress: []string{addr},
		SelectDB:    db,
	})
}

// NewValkeyStoreFromURL dials the address parsed from a backing-store
// URL of the form "[user[:pass]@]host[:port][/param]", honoring the
// recognized db and num_threads parameters and the auth userinfo.
func NewValkeyStoreFromURL(raw string) (*ValkeyStore, error) {
	u, err := ParseURL(raw)
	if err != nil {
		return nil, err
	}
	opt, err := optionFromURL(u)
	if err != nil {
		return nil, err
	}
	return newValkeyStore(opt)
}

// optionFromURL maps a parsed backing-store URL onto client options:
// userinfo becomes AUTH credentials, db selects the logical database,
// and num_threads sets the pipelining connection count.
func optionFromURL(u URL) (valkey.ClientOption, error) {
	addr := u.Host
	if u.Port != 0 {
		addr = fmt.Sprintf("%s:%d", u.Host, u.Port)
	}

	opt := valkey.ClientOption{InitAddress: []string{addr}}

	if u.Auth != nil {
		opt.Username = u.Auth.User
		opt.Password = u.Auth.Password
	}
	if v, ok := u.Param("db"); ok {
		if _, err := fmt.Sscanf(v, "%d", &opt.SelectDB); err != nil {
			return valkey.ClientOption{}, fmt.Errorf("ps: invalid db param %q: %w", v, err)
		}
	}
	if v, ok := u.Param("num_threads"); ok {
		var threads int
		if _, err := fmt.Sscanf(v, "%d", &threads); err != nil || threads < 1 {
			return valkey.ClientOption{}, fmt.Errorf("ps: invalid num_threads param %q", v)
		}
		// DoMulti spreads over 2^PipelineMultiplex connections.
		opt.PipelineMultiplex = bits.Len(uint(threads - 1))
	}

	return opt, nil
}

func newValkeyStore(opt valkey.ClientOption) (*ValkeyStore, error) {
	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, &lxucache.Error{
			Kind:    lxucache.BackingStoreUnavailable,
			Message: fmt.Sprintf("connect to backing store at %v", opt.InitAddress),
			Cause:   err,
		}
	}

	s := &ValkeyStore{opt: opt, client: client, stop: make(chan struct{})}
	go s.heartbeat()
	return s, nil
}

// heartbeat pings the connection on an interval and replaces it when a
// ping fails.
func (s *ValkeyStore) heartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c := s.get()
			if err := c.Do(context.Background(), c.B().Ping().Build()).Error(); err != nil {
				s.reconnect()
			}
		case <-s.stop:
			return
		}
	}
}

func (s *ValkeyStore) get() valkey.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

func (s *ValkeyStore) reconnect() {
	next, err := valkey.NewClient(s.opt)
	if err != nil {
		return
	}
	s.mu.Lock()
	old := s.client
	s.client = next
	s.mu.Unlock()
	old.Close()
}

// GetMulti pipelines a GET per key and returns nil for any key absent
// from the store.
func (s *ValkeyStore) GetMulti(keys []string) ([][]byte, error) {
	ctx := context.Background()
	c := s.get()

	cmds := make([]valkey.Completed, len(keys))
	for i, k := range keys {
		cmds[i] = c.B().Get().Key(k).Build()
	}

	results := c.DoMulti(ctx, cmds...)
	out := make([][]byte, len(keys))
	for i, r := range results {
		b, err := r.AsBytes()
		if err != nil {
			if valkey.IsValkeyNil(err) {
				continue
			}
			return nil, &lxucache.Error{
				Kind:    lxucache.BackingStoreUnavailable,
				Message: fmt.Sprintf("get %q", keys[i]),
				Cause:   err,
			}
		}
		out[i] = b
	}
	return out, nil
}

// SetMulti pipelines a SET per (key, value) pair.
func (s *ValkeyStore) SetMulti(keys []string, values [][]byte) error {
	if len(keys) != len(values) {
		return fmt.Errorf("ps: keys/values length mismatch: %d vs %d", len(keys), len(values))
	}

	ctx := context.Background()
	c := s.get()

	cmds := make([]valkey.Completed, len(keys))
	for i, k := range keys {
		cmds[i] = c.B().Set().Key(k).Value(string(values[i])).Build()
	}

	for i, r := range c.DoMulti(ctx, cmds...) {
		if err := r.Error(); err != nil {
			return &lxucache.Error{
				Kind:    lxucache.BackingStoreUnavailable,
				Message: fmt.Sprintf("set %q", keys[i]),
				Cause:   err,
			}
		}
	}
	return nil
}

// Close stops the heartbeat and releases the underlying connection
// pool.
func (s *ValkeyStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.get().Close()
	return nil
}
