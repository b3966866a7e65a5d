package core

import (
	"strings"
	"time"
)

// Inline capacity hints for the per-request key/value collections. Most
// requests fit inside these, so the backing arrays are sized once.
const (
	HeaderInline = 8
	ParamInline  = 4
	QueryInline  = 4
)

// Pair is a single ordered key/value entry.
type Pair struct {
	Key   string
	Value string
}

// Pairs is an ordered key/value collection. Duplicate keys are allowed and
// insertion order is preserved.
type Pairs []Pair

// NewPairs returns an empty collection with room for n entries before the
// slice has to grow.
func NewPairs(n int) Pairs {
	return make(Pairs, 0, n)
}

// NewHeaders returns an empty header collection sized for HeaderInline entries.
func NewHeaders() Pairs { return NewPairs(HeaderInline) }

// NewParams returns an empty route parameter collection.
func NewParams() Pairs { return NewPairs(ParamInline) }

// NewQuery returns an empty query parameter collection.
func NewQuery() Pairs { return NewPairs(QueryInline) }

// Add appends a key/value entry.
func (p *Pairs) Add(key, value string) {
	*p = append(*p, Pair{Key: key, Value: value})
}

// Len returns the number of entries.
func (p Pairs) Len() int { return len(p) }

// Get returns the first value stored under key.
func (p Pairs) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// GetFold is Get with case-insensitive key matching, for HTTP headers.
func (p Pairs) GetFold(key string) (string, bool) {
	for _, kv := range p {
		if strings.EqualFold(kv.Key, key) {
			return kv.Value, true
		}
	}
	return "", false
}

// Map flattens the collection into a map. Later duplicates win.
func (p Pairs) Map() map[string]string {
	m := make(map[string]string, len(p))
	for _, kv := range p {
		m[kv.Key] = kv.Value
	}
	return m
}

// Clone returns an independent copy with the same order.
func (p Pairs) Clone() Pairs {
	if p == nil {
		return nil
	}
	out := make(Pairs, len(p), cap(p))
	copy(out, p)
	return out
}

// Invocation is what a caller hands to the pool: one action call with its
// request metadata. Body is shared with the caller, not copied, and must not
// be modified until the submission returns.
type Invocation struct {
	Action  string
	Method  string
	Path    string
	Body    []byte // nil when the request has no body
	Headers Pairs
	Params  Pairs
	Query   Pairs
}

// Request is the read-only view of an invocation that an engine receives.
type Request struct {
	Action  string
	Method  string
	Path    string
	Body    []byte
	Headers Pairs
	Params  Pairs
	Query   Pairs
}

// HasBody reports whether a body was supplied.
func (r *Request) HasBody() bool { return r.Body != nil }

// Result is the structured value produced by an action: a JSON-shaped tree
// of map[string]any, []any, string, float64, bool and nil.
type Result struct {
	Value any

	// Worker is the index of the worker that executed the action.
	Worker int
	// Duration is the wall time spent inside the engine.
	Duration time.Duration
}

// ErrorResult wraps an execution failure as ordinary result data. Engines use
// it so that action errors never surface as transport failures.
func ErrorResult(msg string) Result {
	return Result{Value: map[string]any{"error": msg}}
}

// IsError reports whether the result is an ErrorResult-shaped value and
// returns its message.
func (r Result) IsError() (string, bool) {
	m, ok := r.Value.(map[string]any)
	if !ok || len(m) != 1 {
		return "", false
	}
	msg, ok := m["error"].(string)
	return msg, ok
}
