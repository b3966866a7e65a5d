// Package jsbridge is the engine-neutral glue between a core.Request and an
// action running inside a JSRuntime. Both the QuickJS and V8 engines build a
// Bridge per VM and route every Execute through Invoke.
package jsbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cryguy/titan/internal/core"
	"github.com/cryguy/titan/internal/eventloop"
)

// ErrUnknownAction is returned by Invoke when no action is registered under
// the requested name.
var ErrUnknownAction = errors.New("unknown action")

// preludeJS defines the action registry and the request builder. The request
// metadata arrives as a JSON string; the body, if any, as an ArrayBuffer.
const preludeJS = `
(function() {
	globalThis.__titan_actions = {};

	function toObject(list, fold) {
		var out = {};
		for (var i = 0; i < list.length; i++) {
			out[fold ? list[i][0].toLowerCase() : list[i][0]] = list[i][1];
		}
		return out;
	}

	globalThis.__titan_build_request = function(metaJSON, hasBody) {
		var meta = JSON.parse(metaJSON);
		var body = hasBody ? (globalThis.__titan_body || new ArrayBuffer(0)) : null;
		var text;
		return {
			action: meta.action,
			method: meta.method,
			path: meta.path,
			contentType: meta.contentType || '',
			headers: toObject(meta.headers, true),
			params: toObject(meta.params, false),
			query: toObject(meta.query, false),
			headerList: meta.headers,
			paramList: meta.params,
			queryList: meta.query,
			body: body,
			text: function() {
				if (body === null) return '';
				if (text === undefined) text = __titan_body_text();
				return text;
			},
			json: function() {
				var t = this.text();
				return t === '' ? null : JSON.parse(t);
			}
		};
	};

	globalThis.__titan_dispatch = function(name, metaJSON, hasBody) {
		var fn = globalThis.__titan_actions[name];
		return fn(globalThis.__titan_build_request(metaJSON, hasBody));
	};
})();
`

// cleanupJS drops per-invocation globals so nothing leaks into the next
// request served by the same VM.
const cleanupJS = `
(function() {
	var names = ['__titan_call', '__titan_body', '__awaited_result', '__awaited_state'];
	for (var i = 0; i < names.length; i++) {
		try { delete globalThis[names[i]]; } catch (e) {}
	}
	globalThis.__timerCallbacks = {};
})();
`

// requestMeta is the JSON shape handed to __titan_build_request.
type requestMeta struct {
	Action      string      `json:"action"`
	Method      string      `json:"method"`
	Path        string      `json:"path"`
	ContentType string      `json:"contentType,omitempty"`
	Headers     [][2]string `json:"headers"`
	Params      [][2]string `json:"params"`
	Query       [][2]string `json:"query"`
}

func metaFor(req *core.Request) requestMeta {
	ct, _ := req.Headers.GetFold("Content-Type")
	return requestMeta{
		Action:      req.Action,
		Method:      req.Method,
		Path:        req.Path,
		ContentType: ct,
		Headers:     pairList(req.Headers),
		Params:      pairList(req.Params),
		Query:       pairList(req.Query),
	}
}

// quoteJS renders s as a JS string literal.
func quoteJS(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func pairList(p core.Pairs) [][2]string {
	out := make([][2]string, len(p))
	for i, kv := range p {
		out[i] = [2]string{kv.Key, kv.Value}
	}
	return out
}

// Bridge binds one JSRuntime and its event loop. Like the runtime, it is
// confined to a single thread.
type Bridge struct {
	rt   core.JSRuntime
	el   *eventloop.EventLoop
	body []byte
}

// New installs timers, console and the request prelude into rt.
func New(rt core.JSRuntime, el *eventloop.EventLoop, sink ConsoleSink) (*Bridge, error) {
	b := &Bridge{rt: rt, el: el}
	if err := SetupTimers(rt, el); err != nil {
		return nil, fmt.Errorf("installing timers: %w", err)
	}
	if err := SetupConsole(rt, sink); err != nil {
		return nil, fmt.Errorf("installing console: %w", err)
	}
	if err := rt.RegisterFunc("__titan_body_text", func() string {
		return string(b.body)
	}); err != nil {
		return nil, fmt.Errorf("registering body reader: %w", err)
	}
	if err := rt.Eval(preludeJS); err != nil {
		return nil, fmt.Errorf("installing request prelude: %w", err)
	}
	return b, nil
}

// Install evaluates an actions bundle that populates globalThis.__titan_actions.
func (b *Bridge) Install(script string) error {
	if err := b.rt.Eval(script); err != nil {
		return fmt.Errorf("loading actions: %w", err)
	}
	return nil
}

// Has reports whether an action is registered under name.
func (b *Bridge) Has(name string) (bool, error) {
	return b.rt.EvalBool(fmt.Sprintf("typeof globalThis.__titan_actions[%s] === 'function'", quoteJS(name)))
}

// Invoke runs the named action against req and returns its settled value
// decoded from JSON. Timers left behind by the action are discarded when
// Invoke returns.
func (b *Bridge) Invoke(req *core.Request, deadline time.Time) (any, error) {
	defer b.reset()

	ok, err := b.Has(req.Action)
	if err != nil {
		return nil, fmt.Errorf("looking up action %q: %w", req.Action, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, req.Action)
	}

	meta, err := json.Marshal(metaFor(req))
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	hasBody := req.HasBody()
	if hasBody {
		b.body = req.Body
		if bw, ok := b.rt.(core.BinaryWriter); ok {
			if err := bw.WriteBinaryToJS("__titan_body", req.Body); err != nil {
				return nil, fmt.Errorf("writing request body: %w", err)
			}
		}
	}

	if err := b.rt.SetGlobal("__titan_meta", string(meta)); err != nil {
		return nil, fmt.Errorf("setting request metadata: %w", err)
	}
	call := fmt.Sprintf("globalThis.__titan_call = __titan_dispatch(%s, globalThis.__titan_meta, %t); delete globalThis.__titan_meta;",
		quoteJS(req.Action), hasBody)
	if err := b.rt.Eval(call); err != nil {
		return nil, err
	}

	b.rt.RunMicrotasks()
	if err := AwaitValue(b.rt, "__titan_call", deadline, b.el); err != nil {
		return nil, err
	}

	out, err := b.rt.EvalString(`(function() {
		var s = JSON.stringify(globalThis.__titan_call);
		return s === undefined ? 'null' : s;
	})()`)
	if err != nil {
		return nil, fmt.Errorf("serializing result: %w", err)
	}

	var value any
	if err := json.Unmarshal([]byte(out), &value); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	return value, nil
}

func (b *Bridge) reset() {
	b.body = nil
	b.el.Reset()
	_ = b.rt.Eval(cleanupJS)
}
