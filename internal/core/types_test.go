package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairs_PreservesOrderAndDuplicates(t *testing.T) {
	p := NewParams()
	p.Add("b", "1")
	p.Add("a", "2")
	p.Add("b", "3")

	want := Pairs{{"b", "1"}, {"a", "2"}, {"b", "3"}}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("pairs mismatch (-want +got):\n%s", diff)
	}

	v, ok := p.Get("b")
	require.True(t, ok)
	assert.Equal(t, "1", v, "Get returns the first match")
	assert.Equal(t, "3", p.Map()["b"], "Map keeps the last duplicate")
}

func TestPairs_GrowsPastInlineCapacity(t *testing.T) {
	h := NewHeaders()
	assert.Equal(t, HeaderInline, cap(h))

	for i := 0; i < HeaderInline+2; i++ {
		h.Add(string(rune('a'+i)), string(rune('A'+i)))
	}
	require.Equal(t, 10, h.Len())
	for i, kv := range h {
		assert.Equal(t, string(rune('a'+i)), kv.Key)
		assert.Equal(t, string(rune('A'+i)), kv.Value)
	}
}

func TestPairs_GetFold(t *testing.T) {
	h := NewHeaders()
	h.Add("Content-Type", "application/json")

	_, ok := h.Get("content-type")
	assert.False(t, ok)
	v, ok := h.GetFold("content-type")
	require.True(t, ok)
	assert.Equal(t, "application/json", v)
}

func TestPairs_CloneIsIndependent(t *testing.T) {
	p := NewQuery()
	p.Add("q", "1")
	c := p.Clone()
	c[0].Value = "2"
	assert.Equal(t, "1", p[0].Value)

	var empty Pairs
	assert.Nil(t, empty.Clone())
}

func TestErrorResult(t *testing.T) {
	r := ErrorResult("boom")
	msg, ok := r.IsError()
	require.True(t, ok)
	assert.Equal(t, "boom", msg)

	_, ok = Result{Value: map[string]any{"error": "x", "other": 1}}.IsError()
	assert.False(t, ok)
	_, ok = Result{Value: "error"}.IsError()
	assert.False(t, ok)
}

func TestWorkerState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "terminated", StateTerminated.String())
	assert.Equal(t, "unknown", WorkerState(42).String())
}

func TestEngineConfig_Deadline(t *testing.T) {
	assert.Equal(t, DefaultExecTimeout, EngineConfig{}.Deadline())
	assert.Equal(t, int64(5), int64(EngineConfig{ExecTimeout: 5}.Deadline()))
}
