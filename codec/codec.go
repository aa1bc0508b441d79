// Package codec encodes telemetry envelopes for the reporter senders.
package codec

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Names of the built-in codecs.
const (
	JSON  = "json"
	YAML  = "yaml"
	Proto = "proto"
)

var (
	errCodecNotInit = errors.New("codec not init")

	// ErrUnknownCodec is returned by Get for an unregistered name.
	ErrUnknownCodec = errors.New("unknown codec")
)

// Codec converts values to and from one wire format.
type Codec interface {
	Name() string
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(b []byte, v any) error
}

var (
	_mu     sync.RWMutex
	_codecs = map[string]Codec{}
	_codec  Codec
)

func init() {
	Register(&JSONCodec{})
	Register(&YAMLCodec{})
	Register(&ProtoCodec{})
	_codec = _codecs[JSON]
}

// Register adds c under c.Name(), replacing any codec of the same name.
func Register(c Codec) {
	_mu.Lock()
	defer _mu.Unlock()
	_codecs[c.Name()] = c
}

// Get returns the codec registered under name.
func Get(name string) (Codec, error) {
	_mu.RLock()
	defer _mu.RUnlock()
	c, ok := _codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return c, nil
}

// Names returns the registered codec names, sorted.
func Names() []string {
	_mu.RLock()
	defer _mu.RUnlock()
	names := make([]string, 0, len(_codecs))
	for name := range _codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Encode marshals v with the default codec.
func Encode(v any) ([]byte, error) {
	c := Default()
	if c == nil {
		return nil, errCodecNotInit
	}
	return c.Marshal(v)
}

// Default returns the codec used by Encode and by senders built without an explicit codec.
func Default() Codec {
	_mu.RLock()
	defer _mu.RUnlock()
	return _codec
}

// SetCodec sets the default codec.
func SetCodec(c Codec) {
	_mu.Lock()
	defer _mu.Unlock()
	_codec = c
}
