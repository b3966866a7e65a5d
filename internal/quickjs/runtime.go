//go:build !v8

package quickjs

import (
	"fmt"
	"reflect"
	"strings"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"

	"github.com/cryguy/titan/internal/core"
)

// qjsRuntime implements core.JSRuntime over one QuickJS VM.
type qjsRuntime struct {
	vm  *quickjs.VM
	tls *libc.TLS // cached from VM internals for direct C API access
	ctx uintptr   // cached JSContext pointer

	// useFallback is set when the VM internals could not be located; body
	// transfer then goes through chunked strings.
	useFallback bool
	pending     []byte
}

// chunkSize is the byte count handed to JS per call on the fallback path.
const chunkSize = 64 << 10

var (
	_ core.JSRuntime    = (*qjsRuntime)(nil)
	_ core.BinaryWriter = (*qjsRuntime)(nil)
)

func newRuntime(vm *quickjs.VM) (*qjsRuntime, error) {
	r := &qjsRuntime{vm: vm}
	if err := r.initBinaryTransfer(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *qjsRuntime) Eval(js string) error {
	v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

func (r *qjsRuntime) EvalString(js string) (string, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return fmt.Sprint(result), nil
}

func (r *qjsRuntime) EvalBool(js string) (bool, error) {
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", result)
	}
	return b, nil
}

// RegisterFunc registers fn as a global JS function. The QuickJS wrapper
// returns multi-value Go results as arrays, so (T, error) returns are
// unwrapped here: T on success, a thrown TypeError otherwise.
func (r *qjsRuntime) RegisterFunc(name string, fn any) error {
	rawName := "__raw_" + name
	if err := r.vm.RegisterFunc(rawName, fn, false); err != nil {
		return err
	}
	wrapJS := fmt.Sprintf(`(function() {
		var raw = globalThis[%q];
		globalThis[%q] = function() {
			var r = raw.apply(this, arguments);
			if (Array.isArray(r) && r.length === 2) {
				if (r[1] !== null && r[1] !== undefined) throw new TypeError("calling %s: " + r[1]);
				return r[0];
			}
			return r;
		};
		delete globalThis[%q];
	})()`, rawName, name, name, rawName)
	return r.Eval(wrapJS)
}

func (r *qjsRuntime) SetGlobal(name string, value any) error {
	atom, err := r.vm.NewAtom(name)
	if err != nil {
		return fmt.Errorf("creating atom %q: %w", name, err)
	}
	glob := r.vm.GlobalObject()
	defer glob.Free()
	return glob.SetProperty(atom, value)
}

func (r *qjsRuntime) RunMicrotasks() {
	executePendingJobs(r.vm)
}

// initBinaryTransfer caches the VM's TLS and JSContext for direct C API
// calls, switching to the string fallback when they cannot be found.
func (r *qjsRuntime) initBinaryTransfer() error {
	if err := r.extractVMInternals(); err != nil {
		r.useFallback = true
		return r.RegisterFunc("__qjs_chunk", func(offset int) string {
			end := min(offset+chunkSize, len(r.pending))
			return latin1(r.pending[offset:end])
		})
	}

	glob := lib.XJS_GetGlobalObject(r.tls, r.ctx)
	lib.XFreeValue(r.tls, r.ctx, glob)
	return nil
}

func (r *qjsRuntime) extractVMInternals() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic extracting VM internals: %v", p)
		}
	}()

	vmType := reflect.TypeOf(r.vm).Elem()
	vmPtr := uintptr(unsafe.Pointer(r.vm))

	// cContext is the first field of VM.
	r.ctx = *(*uintptr)(unsafe.Pointer(vmPtr))
	if r.ctx == 0 {
		return fmt.Errorf("JSContext is nil")
	}

	rtField, ok := vmType.FieldByName("runtime")
	if !ok {
		return fmt.Errorf("quickjs.VM missing 'runtime' field")
	}
	rtPtr := *(*uintptr)(unsafe.Pointer(vmPtr + rtField.Offset))
	if rtPtr == 0 {
		return fmt.Errorf("runtime pointer is nil")
	}

	// tls follows cRuntime in the runtime struct.
	r.tls = *(**libc.TLS)(unsafe.Pointer(rtPtr + unsafe.Sizeof(uintptr(0))))
	if r.tls == nil {
		return fmt.Errorf("TLS is nil")
	}
	return nil
}

// WriteBinaryToJS stores a copy of data as an ArrayBuffer in
// globalThis[globalName] with a single JS_NewArrayBufferCopy.
func (r *qjsRuntime) WriteBinaryToJS(globalName string, data []byte) error {
	if len(data) == 0 {
		return r.Eval(fmt.Sprintf("globalThis[%q] = new ArrayBuffer(0);", globalName))
	}
	if r.useFallback {
		return r.writeBinaryFallback(globalName, data)
	}

	bufPtr := uintptr(unsafe.Pointer(&data[0]))
	jsVal := lib.XJS_NewArrayBufferCopy(r.tls, r.ctx, bufPtr, lib.Tsize_t(len(data)))

	cName, err := libc.CString(globalName)
	if err != nil {
		lib.XFreeValue(r.tls, r.ctx, jsVal)
		return fmt.Errorf("allocating property name: %w", err)
	}

	glob := lib.XJS_GetGlobalObject(r.tls, r.ctx)
	// JS_SetPropertyStr takes ownership of jsVal.
	ret := lib.XJS_SetPropertyStr(r.tls, r.ctx, glob, cName, jsVal)
	lib.XFreeValue(r.tls, r.ctx, glob)
	libc.Xfree(r.tls, cName)

	if ret < 0 {
		return fmt.Errorf("setting global %q", globalName)
	}
	return nil
}

func (r *qjsRuntime) writeBinaryFallback(globalName string, data []byte) error {
	r.pending = data
	defer func() { r.pending = nil }()

	return r.Eval(fmt.Sprintf(`(function() {
		var sz = %d;
		var view = new Uint8Array(sz);
		var off = 0;
		while (off < sz) {
			var s = __qjs_chunk(off);
			for (var i = 0; i < s.length; i++) view[off + i] = s.charCodeAt(i);
			off += s.length;
		}
		globalThis[%q] = view.buffer;
	})()`, len(data), globalName))
}

// latin1 maps each byte to the code point of the same value so it survives
// the UTF-8 string boundary.
func latin1(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) * 2)
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}
