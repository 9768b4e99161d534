// Package registry resolves logical service names to reachable addresses.
//
// Resolution order: local cache (30s TTL) → live registry query (healthy
// instances only, uniform-random pick) → static fallback table. There are no
// retries here; retry and backoff semantics belong to the circuit breaker
// that wraps every downstream call.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"
)

// ErrUnresolvable is returned only when both the live registry and the
// static fallback table lack an entry for the requested service.
var ErrUnresolvable = errors.New("registry: service unresolvable")

// Address is a resolved, ephemeral service endpoint. It is never persisted.
type Address struct {
	Service string
	Host    string
	Port    int
}

// HostPort formats the address for dialing.
func (a Address) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Backend is a live service registry (Consul in production, a fake in tests).
type Backend interface {
	// Lookup returns the healthy instances of a service. An empty slice with
	// a nil error means the registry answered but knows no healthy instance.
	Lookup(ctx context.Context, service string) ([]Address, error)
}

type cacheEntry struct {
	addr      Address
	expiresAt time.Time
}

// Client caches resolutions and falls back to a static table.
type Client struct {
	backend  Backend
	fallback map[string]Address
	ttl      time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry

	now  func() time.Time
	pick func(n int) int
}

// Option configures the client.
type Option func(*Client)

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithPicker substitutes the random instance picker, for tests.
func WithPicker(pick func(n int) int) Option {
	return func(c *Client) { c.pick = pick }
}

// New builds a client. backend may be nil, in which case only the fallback
// table is consulted (useful for local single-host runs without Consul).
func New(backend Backend, fallback map[string]Address, ttl time.Duration, opts ...Option) *Client {
	c := &Client{
		backend:  backend,
		fallback: fallback,
		ttl:      ttl,
		cache:    make(map[string]cacheEntry),
		now:      time.Now,
		pick:     rand.Intn,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns an address for the service. Fails with ErrUnresolvable
// only if the registry query and the fallback table both come up empty.
func (c *Client) Resolve(ctx context.Context, service string) (Address, error) {
	if addr, ok := c.cached(service); ok {
		return addr, nil
	}

	if c.backend != nil {
		instances, err := c.backend.Lookup(ctx, service)
		if err != nil {
			slog.WarnContext(ctx, "registry query failed, using fallback table",
				"service", service, "error", err)
		} else if len(instances) > 0 {
			// Uniform-random pick among healthy instances is the whole
			// load-balancing policy.
			addr := instances[c.pick(len(instances))]
			c.store(service, addr)
			return addr, nil
		}
	}

	if addr, ok := c.fallback[service]; ok {
		addr.Service = service
		c.store(service, addr)
		return addr, nil
	}

	return Address{}, fmt.Errorf("%w: %s", ErrUnresolvable, service)
}

// Invalidate drops the cached address for a service. Called by the resilient
// client when a connection-level error suggests the instance is gone, so the
// next call re-resolves.
func (c *Client) Invalidate(service string) {
	c.mu.Lock()
	delete(c.cache, service)
	c.mu.Unlock()
}

func (c *Client) cached(service string) (Address, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[service]
	if !ok || c.now().After(entry.expiresAt) {
		return Address{}, false
	}
	return entry.addr, true
}

func (c *Client) store(service string, addr Address) {
	c.mu.Lock()
	c.cache[service] = cacheEntry{addr: addr, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
