//go:build v8

package titan

import (
	"github.com/go-logr/logr"

	"github.com/cryguy/titan/internal/core"
	"github.com/cryguy/titan/internal/v8engine"
)

const engineName = "v8"

func newFactory(cfg core.EngineConfig, log logr.Logger) core.EngineFactory {
	return v8engine.NewFactory(cfg, log)
}
