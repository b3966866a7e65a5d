//go:build !v8

package quickjs

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/titan/internal/actions"
	"github.com/cryguy/titan/internal/core"
)

var testActions = map[string]string{
	"echo.js": `export default function (req) {
	return {
		method: req.method,
		path: req.path,
		body: req.text(),
		header: req.headers["x-test"],
		dupes: req.headerList.filter(function (h) { return h[0] === "X-Dup"; }).length,
		page: req.query.page,
		id: req.params.id,
	};
}`,
	"ctype.js": `export default (req) => req.contentType;`,
	"sum.js": `export default (req) => req.json().a + req.json().b;`,
	"size.js": `export default (req) => req.body === null ? -1 : req.body.byteLength;`,
	"later.js": `export default async function () {
	await new Promise((resolve) => setTimeout(resolve, 20));
	return "late";
}`,
	"boom.js":    `export default () => { throw new Error("boom"); };`,
	"reject.js":  `export default async () => { throw new Error("nope"); };`,
	"spin.js":    `export default () => { for (;;) {} };`,
	"stuck.js":   `export default () => new Promise(() => {});`,
	"nothing.js": `export default () => undefined;`,
	"shout.js":   `export default () => { console.log("hello from", {n: 1}); return true; };`,
	"named.ts":   `export function named(req: { path: string }): string { return req.path.toUpperCase(); }`,
}

func projectRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, actions.Dir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, src := range testActions {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	t.Cleanup(func() { actions.Forget(root) })
	return root
}

func newTestEngine(t *testing.T, cfg core.EngineConfig, log logr.Logger) *Engine {
	t.Helper()
	e, err := New(projectRoot(t), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func errorOf(t *testing.T, res core.Result) string {
	t.Helper()
	msg, ok := res.IsError()
	require.True(t, ok, "expected an error result, got %#v", res.Value)
	return msg
}

func TestEngine_Echo(t *testing.T) {
	e := newTestEngine(t, core.EngineConfig{}, logr.Discard())

	headers := core.NewHeaders()
	headers.Add("X-Test", "yes")
	headers.Add("X-Dup", "1")
	headers.Add("X-Dup", "2")
	query := core.NewQuery()
	query.Add("page", "3")
	params := core.NewParams()
	params.Add("id", "42")

	res := e.Execute(&core.Request{
		Action: "echo", Method: "POST", Path: "/echo/42",
		Body:    []byte("hello"),
		Headers: headers, Query: query, Params: params,
	})

	assert.Equal(t, map[string]any{
		"method": "POST",
		"path":   "/echo/42",
		"body":   "hello",
		"header": "yes",
		"dupes":  float64(2),
		"page":   "3",
		"id":     "42",
	}, res.Value)
}

func TestEngine_ContentTypeFromAnyHeaderCase(t *testing.T) {
	e := newTestEngine(t, core.EngineConfig{}, logr.Discard())

	headers := core.NewHeaders()
	headers.Add("content-TYPE", "text/csv")
	res := e.Execute(&core.Request{Action: "ctype", Method: "POST", Body: []byte("a,b"), Headers: headers})
	assert.Equal(t, "text/csv", res.Value)

	res = e.Execute(&core.Request{Action: "ctype", Method: "GET"})
	assert.Equal(t, "", res.Value)
}

func TestEngine_JSONAndBinaryBodies(t *testing.T) {
	e := newTestEngine(t, core.EngineConfig{}, logr.Discard())

	res := e.Execute(&core.Request{Action: "sum", Body: []byte(`{"a": 2, "b": 40}`)})
	assert.Equal(t, float64(42), res.Value)

	res = e.Execute(&core.Request{Action: "size", Body: []byte{0, 1, 0xff, 0x80}})
	assert.Equal(t, float64(4), res.Value)

	res = e.Execute(&core.Request{Action: "size"})
	assert.Equal(t, float64(-1), res.Value, "absent body is null")

	res = e.Execute(&core.Request{Action: "size", Body: []byte{}})
	assert.Equal(t, float64(0), res.Value, "empty body is present")
}

func TestEngine_AsyncWithTimers(t *testing.T) {
	e := newTestEngine(t, core.EngineConfig{}, logr.Discard())
	res := e.Execute(&core.Request{Action: "later"})
	assert.Equal(t, "late", res.Value)
}

func TestEngine_FailuresBecomeErrorResults(t *testing.T) {
	e := newTestEngine(t, core.EngineConfig{}, logr.Discard())

	assert.Contains(t, errorOf(t, e.Execute(&core.Request{Action: "boom"})), "boom")
	assert.Contains(t, errorOf(t, e.Execute(&core.Request{Action: "reject"})), "nope")
	assert.Contains(t, errorOf(t, e.Execute(&core.Request{Action: "missing"})), "unknown action")
	assert.Contains(t, errorOf(t, e.Execute(&core.Request{Action: "stuck"})), "never settles")

	// The engine keeps serving after failures.
	assert.Nil(t, e.Execute(&core.Request{Action: "nothing"}).Value)
	assert.Equal(t, "/X", e.Execute(&core.Request{Action: "named", Path: "/x"}).Value)
}

func TestEngine_TimeoutRebuildsVM(t *testing.T) {
	e := newTestEngine(t, core.EngineConfig{ExecTimeout: 200 * time.Millisecond}, logr.Discard())

	before := e.vm
	assert.Contains(t, errorOf(t, e.Execute(&core.Request{Action: "spin"})), "timed out")
	assert.NotSame(t, before, e.vm)

	res := e.Execute(&core.Request{Action: "echo", Path: "/after"})
	require.IsType(t, map[string]any{}, res.Value)
	assert.Equal(t, "/after", res.Value.(map[string]any)["path"])
}

func TestEngine_BodyLimit(t *testing.T) {
	e := newTestEngine(t, core.EngineConfig{MaxBodyBytes: 4}, logr.Discard())
	assert.Contains(t, errorOf(t, e.Execute(&core.Request{Action: "size", Body: []byte("12345")})), "exceeds 4 bytes")
	assert.Equal(t, float64(4), e.Execute(&core.Request{Action: "size", Body: []byte("1234")}).Value)
}

func TestEngine_ConsoleGoesToLogger(t *testing.T) {
	var mu sync.Mutex
	var lines []string
	log := funcr.New(func(prefix, args string) {
		mu.Lock()
		lines = append(lines, prefix+" "+args)
		mu.Unlock()
	}, funcr.Options{})

	e := newTestEngine(t, core.EngineConfig{}, log)
	assert.Equal(t, true, e.Execute(&core.Request{Action: "shout"}).Value)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lines, 1)
	assert.True(t, strings.Contains(lines[0], `hello from {\"n\":1}`), lines[0])
	assert.True(t, strings.Contains(lines[0], `"action"="shout"`), lines[0])
}

func TestEngine_EmptyProject(t *testing.T) {
	root := t.TempDir()
	t.Cleanup(func() { actions.Forget(root) })

	e, err := New(root, core.EngineConfig{}, logr.Discard())
	require.NoError(t, err)
	defer e.Close()
	assert.Contains(t, errorOf(t, e.Execute(&core.Request{Action: "echo"})), "unknown action")
}

func TestLatin1_RoundTripsEveryByte(t *testing.T) {
	b := make([]byte, 256)
	for i := range b {
		b[i] = byte(i)
	}
	runes := []rune(latin1(b))
	require.Len(t, runes, 256)
	for i, r := range runes {
		assert.Equal(t, rune(i), r)
	}
}
