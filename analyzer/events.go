// Package analyzer holds the built-in IAST analyzers: an HTTP request source,
// a string propagation tracker and an SQL injection sink.
package analyzer

import (
	"context"
	"strings"
	"sync"
)

// Runtime event channels the built-in analyzers observe.
const (
	ChannelHTTPRequest  = "datadog:http:request"
	ChannelStringConcat = "datadog:string:concat"
	ChannelPGQuery      = "apm:pg:query:start"
	ChannelMySQLQuery   = "apm:mysql2:query:start"
)

// HTTPRequest is published on ChannelHTTPRequest.
type HTTPRequest struct {
	Params map[string]string
	Body   string
}

// Concat is published on ChannelStringConcat after a concatenation.
type Concat struct {
	Parts  []string
	Result string
}

// Query is published on the database query channels.
type Query struct {
	SQL string
}

// Taint is the set of attacker-controlled values seen during one request.
type Taint struct {
	mu     sync.RWMutex
	values map[string]struct{}
}

type taintKey struct{}

// WithTaint returns ctx carrying an empty taint set.
func WithTaint(ctx context.Context) context.Context {
	return context.WithValue(ctx, taintKey{}, &Taint{values: make(map[string]struct{})})
}

// TaintFromContext returns the taint set of ctx, or nil.
func TaintFromContext(ctx context.Context) *Taint {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(taintKey{}).(*Taint)
	return t
}

// Add marks v as tainted. Empty values are ignored.
func (t *Taint) Add(v string) bool {
	if t == nil || v == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.values[v]; ok {
		return false
	}
	t.values[v] = struct{}{}
	return true
}

// IsTainted reports whether v is a tainted value.
func (t *Taint) IsTainted(v string) bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.values[v]
	return ok
}

// Find returns the first tainted value contained in s.
func (t *Taint) Find(s string) (string, bool) {
	if t == nil {
		return "", false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for v := range t.values {
		if strings.Contains(s, v) {
			return v, true
		}
	}
	return "", false
}

// Len returns the number of tainted values.
func (t *Taint) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.values)
}
