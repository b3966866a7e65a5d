//go:build v8

package v8engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/titan/internal/actions"
	"github.com/cryguy/titan/internal/core"
)

func projectRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, actions.Dir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	}
	t.Cleanup(func() { actions.Forget(root) })
	return root
}

func TestEngine_RunsActions(t *testing.T) {
	root := projectRoot(t, map[string]string{
		"echo.js":  `export default (req) => ({ path: req.path, body: req.text() });`,
		"later.js": `export default async () => { await new Promise((r) => setTimeout(r, 10)); return 7; };`,
		"boom.js":  `export default () => { throw new Error("boom"); };`,
	})
	e, err := New(root, core.EngineConfig{}, logr.Discard())
	require.NoError(t, err)
	defer e.Close()

	res := e.Execute(&core.Request{Action: "echo", Path: "/echo", Body: []byte("hi")})
	assert.Equal(t, map[string]any{"path": "/echo", "body": "hi"}, res.Value)

	assert.Equal(t, float64(7), e.Execute(&core.Request{Action: "later"}).Value)

	msg, ok := e.Execute(&core.Request{Action: "boom"}).IsError()
	require.True(t, ok)
	assert.Contains(t, msg, "boom")
}

func TestEngine_TerminatesRunawayScript(t *testing.T) {
	root := projectRoot(t, map[string]string{
		"spin.js": `export default () => { for (;;) {} };`,
		"ok.js":   `export default () => "ok";`,
	})
	e, err := New(root, core.EngineConfig{ExecTimeout: 200 * time.Millisecond}, logr.Discard())
	require.NoError(t, err)
	defer e.Close()

	msg, ok := e.Execute(&core.Request{Action: "spin"}).IsError()
	require.True(t, ok)
	assert.Contains(t, msg, "timed out")
	assert.Equal(t, "ok", e.Execute(&core.Request{Action: "ok"}).Value)
}
