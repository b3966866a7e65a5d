// Package actions discovers the action scripts under a project root and
// bundles them into one script that registers every action with the JS
// bridge.
package actions

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// Dir is the directory under the project root that holds action scripts.
const Dir = "actions"

// globalName is the IIFE binding esbuild assigns each action's exports to.
const globalName = "__titan_mod"

// extensions lists the file types treated as actions, in lookup order.
var extensions = []string{".js", ".mjs", ".ts"}

// Set is the bundled form of every action under one root.
type Set struct {
	names  []string
	script string
}

// Names returns the action names, sorted.
func (s *Set) Names() []string { return append([]string(nil), s.names...) }

// Len returns the number of actions.
func (s *Set) Len() int { return len(s.names) }

// Script returns JavaScript that registers every action in
// globalThis.__titan_actions. It is empty when there are no actions.
func (s *Set) Script() string { return s.script }

type cached struct {
	once sync.Once
	set  *Set
	err  error
}

var cache sync.Map // root -> *cached

// Load returns the bundled actions for root, building them on first use.
// Every engine in a pool shares one bundle per root.
func Load(root string) (*Set, error) {
	v, _ := cache.LoadOrStore(root, &cached{})
	c := v.(*cached)
	c.once.Do(func() {
		c.set, c.err = Bundle(root)
	})
	return c.set, c.err
}

// Forget drops the cached bundle for root so the next Load rebuilds it.
func Forget(root string) {
	cache.Delete(root)
}

// Discover lists action entry points under root/actions keyed by action name.
// Files whose names start with "_" or "." are helpers and are skipped. A
// missing actions directory yields no actions.
func Discover(root string) (map[string]string, error) {
	dir := filepath.Join(root, Dir)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	found := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		file := e.Name()
		if strings.HasPrefix(file, "_") || strings.HasPrefix(file, ".") {
			continue
		}
		ext := filepath.Ext(file)
		if !isAction(ext) {
			continue
		}
		name := strings.TrimSuffix(file, ext)
		if prev, dup := found[name]; dup {
			return nil, fmt.Errorf("action %q defined twice: %s and %s", name, filepath.Base(prev), file)
		}
		found[name] = filepath.Join(dir, file)
	}
	return found, nil
}

func isAction(ext string) bool {
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Bundle discovers and bundles every action under root without caching.
func Bundle(root string) (*Set, error) {
	entries, err := Discover(root)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		code, err := bundleOne(root, entries[name])
		if err != nil {
			return nil, fmt.Errorf("bundling action %q: %w", name, err)
		}
		b.WriteString(register(name, code))
	}
	return &Set{names: names, script: b.String()}, nil
}

// bundleOne runs esbuild on a single entry point and returns an IIFE that
// assigns the module's exports to globalName.
func bundleOne(root, entry string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	result := esbuild.Build(esbuild.BuildOptions{
		EntryPoints:   []string{entry},
		AbsWorkingDir: absRoot,
		Bundle:        true,
		Format:        esbuild.FormatIIFE,
		GlobalName:    globalName,
		Write:         false,
		Platform:      esbuild.PlatformBrowser,
		Target:        esbuild.ES2020,
		LogLevel:      esbuild.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Text)
		}
		return "", errors.New(strings.Join(msgs, "; "))
	}
	if len(result.OutputFiles) == 0 {
		return "", errors.New("bundling produced no output")
	}
	return string(result.OutputFiles[0].Contents), nil
}

// register wraps bundled code so its function export lands in the action
// registry. The default export wins, then an export named after the action,
// then a module that is itself a function.
func register(name, code string) string {
	quoted, _ := json.Marshal(name)
	return fmt.Sprintf(`(function() {
%s
var m = %s;
var fn = typeof m === 'function' ? m : (m && (m.default || m[%s]));
if (typeof fn !== 'function') throw new TypeError('action ' + %s + ' does not export a function');
globalThis.__titan_actions[%s] = fn;
})();
`, code, globalName, quoted, quoted, quoted)
}
