package actions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAction(t *testing.T, root, file, src string) {
	t.Helper()
	dir := filepath.Join(root, Dir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(src), 0o644))
}

func TestDiscover_SkipsHelpersAndOtherFiles(t *testing.T) {
	root := t.TempDir()
	writeAction(t, root, "hello.js", `export default () => "hi";`)
	writeAction(t, root, "typed.ts", `export default (req: any): string => req.path;`)
	writeAction(t, root, "_shared.js", `export const x = 1;`)
	writeAction(t, root, "README.md", `docs`)

	found, err := Discover(root)
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Contains(t, found, "hello")
	assert.Contains(t, found, "typed")
}

func TestDiscover_MissingDirectory(t *testing.T) {
	found, err := Discover(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestDiscover_DuplicateName(t *testing.T) {
	root := t.TempDir()
	writeAction(t, root, "dup.js", `export default () => 1;`)
	writeAction(t, root, "dup.ts", `export default () => 2;`)

	_, err := Discover(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"dup"`)
}

func TestBundle_ResolvesImports(t *testing.T) {
	root := t.TempDir()
	writeAction(t, root, "_greet.js", `export function greet(n) { return "Hello " + n; }`)
	writeAction(t, root, "welcome.js", `import { greet } from "./_greet.js";
export default function (req) { return greet(req.query.name); }`)
	writeAction(t, root, "alpha.js", `export function alpha() { return "a"; }`)

	set, err := Bundle(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "welcome"}, set.Names())
	assert.Equal(t, 2, set.Len())
	assert.Contains(t, set.Script(), "Hello ")
	assert.Contains(t, set.Script(), `globalThis.__titan_actions["welcome"]`)
	assert.NotContains(t, set.Script(), "import {", "imports are inlined")
}

func TestBundle_SyntaxError(t *testing.T) {
	root := t.TempDir()
	writeAction(t, root, "broken.js", `export default function ( {`)

	_, err := Bundle(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"broken"`)
}

func TestLoad_CachesPerRoot(t *testing.T) {
	root := t.TempDir()
	writeAction(t, root, "one.js", `export default () => 1;`)
	t.Cleanup(func() { Forget(root) })

	first, err := Load(root)
	require.NoError(t, err)

	writeAction(t, root, "two.js", `export default () => 2;`)
	second, err := Load(root)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, []string{"one"}, second.Names())

	Forget(root)
	third, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, third.Names())
}
