package core

// JSRuntime abstracts the JavaScript engine (V8 or QuickJS) behind the small
// surface the shared action glue in internal/jsbridge needs. A JSRuntime is
// owned by one worker thread, like the Engine wrapping it.
type JSRuntime interface {
	// Eval evaluates JavaScript source and discards the result.
	Eval(js string) error

	// EvalString evaluates JavaScript and returns the result as a Go string.
	EvalString(js string) (string, error)

	// EvalBool evaluates JavaScript and returns the result as a Go bool.
	EvalBool(js string) (bool, error)

	// RegisterFunc registers a Go function as a global JavaScript function.
	// On error return, the JS wrapper throws a TypeError.
	RegisterFunc(name string, fn any) error

	// SetGlobal sets a global variable. Basic Go types (string, int,
	// float64, bool) are converted to JS values.
	SetGlobal(name string, value any) error

	// RunMicrotasks pumps the microtask queue (Promise callbacks, etc.).
	RunMicrotasks()
}

// BinaryWriter is implemented by runtimes that can place a Go byte slice into
// a JS ArrayBuffer without a per-byte round trip.
type BinaryWriter interface {
	WriteBinaryToJS(globalName string, data []byte) error
}
