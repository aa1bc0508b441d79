package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/consul/api"
)

// ErrRemoteConfigNotFound is returned when the remote store has no document for a name.
var ErrRemoteConfigNotFound = errors.New("remote config not found")

// RemoteSource fetches a YAML document for a configuration name.
type RemoteSource interface {
	Fetch(ctx context.Context, configName string) ([]byte, error)
}

// ConsulSource reads configuration documents from the Consul KV store.
// The key for a name is <prefix>/<name>.
type ConsulSource struct {
	kv     *api.KV
	prefix string
}

// NewConsulSource creates a source talking to the Consul agent at address.
// An empty address uses the client defaults (CONSUL_HTTP_ADDR or 127.0.0.1:8500).
func NewConsulSource(address, prefix string) (*ConsulSource, error) {
	cfg := api.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create consul client failed: %w", err)
	}

	return &ConsulSource{
		kv:     client.KV(),
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// Key returns the KV key used for configName.
func (s *ConsulSource) Key(configName string) string {
	if s.prefix == "" {
		return configName
	}
	return s.prefix + "/" + configName
}

// Fetch implements RemoteSource.
func (s *ConsulSource) Fetch(ctx context.Context, configName string) ([]byte, error) {
	opts := (&api.QueryOptions{}).WithContext(ctx)
	pair, _, err := s.kv.Get(s.Key(configName), opts)
	if err != nil {
		return nil, fmt.Errorf("consul get %s failed: %w", s.Key(configName), err)
	}
	if pair == nil {
		return nil, fmt.Errorf("%s: %w", s.Key(configName), ErrRemoteConfigNotFound)
	}
	return pair.Value, nil
}
