package config

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConsul serves the subset of the KV HTTP API used by ConsulSource.
type fakeConsul struct {
	mu   sync.Mutex
	keys map[string]string
}

func (f *fakeConsul) set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key] = value
}

func (f *fakeConsul) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.URL.Path[len("/v1/kv/"):]
	value, ok := f.keys[key]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Consul-Index", "7")
	fmt.Fprintf(w, `[{"LockIndex":0,"Key":%q,"Flags":0,"Value":%q,"CreateIndex":7,"ModifyIndex":7}]`,
		key, base64.StdEncoding.EncodeToString([]byte(value)))
}

func newFakeConsul(t *testing.T) (*fakeConsul, *ConsulSource) {
	t.Helper()
	fake := &fakeConsul{keys: make(map[string]string)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	src, err := NewConsulSource(srv.URL, "/iast/")
	require.NoError(t, err)
	return fake, src
}

func TestConsulSource_Key(t *testing.T) {
	_, src := newFakeConsul(t)
	assert.Equal(t, "iast/telemetry", src.Key("telemetry"))

	bare := &ConsulSource{}
	assert.Equal(t, "telemetry", bare.Key("telemetry"))
}

func TestConsulSource_Fetch(t *testing.T) {
	fake, src := newFakeConsul(t)
	fake.set("iast/telemetry", "verbosity: DEBUG\n")

	data, err := src.Fetch(context.Background(), "telemetry")
	require.NoError(t, err)
	assert.Equal(t, "verbosity: DEBUG\n", string(data))

	_, err = src.Fetch(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrRemoteConfigNotFound))
}

func TestLoadRemoteConfig(t *testing.T) {
	fake, src := newFakeConsul(t)
	fake.set("iast/telemetry", "enabled: true\nverbosity: MANDATORY\nlimit: 4\n")

	cm := NewConfigManager()
	defer cm.Close()

	listener := &TestChangeListener{}
	cm.AddChangeListener(listener)

	cfg := &TestConfig{}
	require.NoError(t, cm.LoadRemoteConfig(context.Background(), "telemetry", src, cfg))
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "MANDATORY", cfg.Verbosity)
	assert.Equal(t, 4, cfg.Limit)
	assert.Zero(t, listener.ChangeCount, "first load is not a change")

	fake.set("iast/telemetry", "verbosity: DEBUG\n")
	require.NoError(t, cm.LoadRemoteConfig(context.Background(), "telemetry", src, &TestConfig{}))
	assert.Equal(t, int32(1), listener.ChangeCount)

	fake.set("iast/telemetry", "limit: -3\n")
	assert.Error(t, cm.LoadRemoteConfig(context.Background(), "telemetry", src, &TestConfig{}))

	assert.Error(t, cm.LoadRemoteConfig(context.Background(), "telemetry", nil, &TestConfig{}))
}
