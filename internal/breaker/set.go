package breaker

import (
	"sort"
	"sync"
)

// Set owns one breaker per downstream service name, created lazily on first
// use and shared by every in-flight saga for the process lifetime.
type Set struct {
	template Config

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewSet builds a set whose breakers share the template config.
func NewSet(template Config) *Set {
	return &Set{
		template: template,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for a service, creating it on first use.
func (s *Set) Get(service string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[service]; ok {
		return b
	}
	cfg := s.template
	cfg.Name = service
	b := New(cfg)
	s.breakers[service] = b
	return b
}

// Health is the per-service view exposed on the health endpoint.
type Health struct {
	Service   string `json:"service"`
	State     string `json:"state"`
	IsHealthy bool   `json:"isHealthy"`
	Stats     Stats  `json:"stats"`
}

// Snapshot reports every known breaker, sorted by service name.
func (s *Set) Snapshot() []Health {
	s.mu.Lock()
	names := make([]string, 0, len(s.breakers))
	for name := range s.breakers {
		names = append(names, name)
	}
	breakers := make([]*Breaker, 0, len(names))
	sort.Strings(names)
	for _, name := range names {
		breakers = append(breakers, s.breakers[name])
	}
	s.mu.Unlock()

	out := make([]Health, 0, len(breakers))
	for _, b := range breakers {
		state := b.State()
		out = append(out, Health{
			Service:   b.Name(),
			State:     state.String(),
			IsHealthy: state != StateOpen,
			Stats:     b.Stats(),
		})
	}
	return out
}
