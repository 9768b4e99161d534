package registry

import (
	"context"
	"fmt"

	"github.com/hashicorp/consul/api"
)

// ConsulBackend queries Consul's health API so only passing instances are
// ever handed out.
type ConsulBackend struct {
	health *api.Health
}

// NewConsulBackend connects to the Consul agent at addr.
func NewConsulBackend(addr string) (*ConsulBackend, error) {
	client, err := api.NewClient(&api.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("registry: consul client for %q: %w", addr, err)
	}
	return &ConsulBackend{health: client.Health()}, nil
}

// Lookup returns the healthy instances registered for service.
func (b *ConsulBackend) Lookup(ctx context.Context, service string) ([]Address, error) {
	entries, _, err := b.health.Service(service, "", true, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("registry: consul health query for %q: %w", service, err)
	}

	addrs := make([]Address, 0, len(entries))
	for _, entry := range entries {
		host := entry.Service.Address
		if host == "" {
			host = entry.Node.Address
		}
		addrs = append(addrs, Address{
			Service: service,
			Host:    host,
			Port:    entry.Service.Port,
		})
	}
	return addrs, nil
}
