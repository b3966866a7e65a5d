//go:build !v8

package titan

import (
	"github.com/go-logr/logr"

	"github.com/cryguy/titan/internal/core"
	"github.com/cryguy/titan/internal/quickjs"
)

const engineName = "quickjs"

func newFactory(cfg core.EngineConfig, log logr.Logger) core.EngineFactory {
	return quickjs.NewFactory(cfg, log)
}
