package jsbridge

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/funcr"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/titan/internal/core"
)

func TestPairList_KeepsOrderAndDuplicates(t *testing.T) {
	h := core.NewHeaders()
	h.Add("Accept", "a")
	h.Add("X-Dup", "1")
	h.Add("X-Dup", "2")

	want := [][2]string{{"Accept", "a"}, {"X-Dup", "1"}, {"X-Dup", "2"}}
	if diff := cmp.Diff(want, pairList(h)); diff != "" {
		t.Fatalf("pairList mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, pairList(nil))
}

func TestQuoteJS_EscapesLineSeparators(t *testing.T) {
	q := quoteJS("a b\"c")
	assert.NotContains(t, q, " ")

	var back string
	require.NoError(t, json.Unmarshal([]byte(q), &back))
	assert.Equal(t, "a b\"c", back)
}

func TestRequestMeta_Shape(t *testing.T) {
	q := core.NewQuery()
	q.Add("page", "2")
	raw, err := json.Marshal(requestMeta{Action: "list", Method: "GET", Path: "/list", Query: pairList(q)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"list","method":"GET","path":"/list","headers":null,"params":null,"query":[["page","2"]]}`, string(raw))
}

func TestMetaFor_FindsContentTypeInAnyCase(t *testing.T) {
	h := core.NewHeaders()
	h.Add("content-type", "application/json")
	meta := metaFor(&core.Request{Action: "a", Method: "POST", Path: "/a", Headers: h})
	assert.Equal(t, "application/json", meta.ContentType)
	assert.Equal(t, [][2]string{{"content-type", "application/json"}}, meta.Headers)

	assert.Empty(t, metaFor(&core.Request{Action: "a"}).ContentType)
}

func TestLogSink_RoutesLevels(t *testing.T) {
	var lines []string
	log := funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{Verbosity: 0})

	sink := LogSink(log)
	sink("log", "hello")
	sink("error", "boom")
	sink("debug", "hidden")

	require.Len(t, lines, 2, "debug is V(1) and filtered")
	assert.True(t, strings.Contains(lines[0], "hello"), lines[0])
	assert.True(t, strings.Contains(lines[1], "boom"), lines[1])
}

// brokenRuntime fails every evaluation.
type brokenRuntime struct{ err error }

func (r brokenRuntime) Eval(string) error                 { return r.err }
func (r brokenRuntime) EvalString(string) (string, error) { return "", r.err }
func (r brokenRuntime) EvalBool(string) (bool, error)     { return false, r.err }
func (r brokenRuntime) RegisterFunc(string, any) error    { return r.err }
func (r brokenRuntime) SetGlobal(string, any) error       { return r.err }
func (r brokenRuntime) RunMicrotasks()                    {}

func TestAwaitValue_ReportsRuntimeFailure(t *testing.T) {
	cause := errors.New("context torn down")
	err := AwaitValue(brokenRuntime{err: cause}, "__titan_call", time.Now().Add(time.Second), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "checking for promise")
}
