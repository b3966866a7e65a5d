package jsbridge

import (
	"github.com/go-logr/logr"

	"github.com/cryguy/titan/internal/core"
)

// ConsoleSink receives one formatted console line from an action.
type ConsoleSink func(level, message string)

// LogSink routes console output to log. console.error becomes log.Error and
// console.debug is logged at V(1).
func LogSink(log logr.Logger) ConsoleSink {
	return func(level, message string) {
		switch level {
		case "error":
			log.Error(nil, message, "console", level)
		case "debug":
			log.V(1).Info(message, "console", level)
		default:
			log.Info(message, "console", level)
		}
	}
}

const consoleJS = `
(function() {
	function render(arg) {
		if (typeof arg === 'string') return arg;
		if (arg instanceof Error) return arg.stack || String(arg);
		if (typeof arg === 'object' && arg !== null) {
			try { return JSON.stringify(arg); } catch (e) { return String(arg); }
		}
		return String(arg);
	}
	var levels = ['log', 'info', 'warn', 'error', 'debug'];
	var con = {};
	levels.forEach(function(lvl) {
		con[lvl] = function() {
			var parts = [];
			for (var i = 0; i < arguments.length; i++) parts.push(render(arguments[i]));
			__console(lvl, parts.join(' '));
		};
	});
	con.trace = con.debug;
	con.dir = function(obj) { con.log(obj); };
	globalThis.console = con;
})();
`

// SetupConsole replaces globalThis.console with one that forwards every line
// to sink.
func SetupConsole(rt core.JSRuntime, sink ConsoleSink) error {
	if err := rt.RegisterFunc("__console", func(level, message string) {
		sink(level, message)
	}); err != nil {
		return err
	}
	return rt.Eval(consoleJS)
}
