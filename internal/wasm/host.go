package wasm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/BotecoDaFerramenta/desmistificando-webassembly/internal/boundary"
)

// HostModuleName is the import module guests use for host callbacks.
const HostModuleName = "env"

// HostFunctions implements the callbacks exported to guests.
type HostFunctions struct {
	logger *zap.Logger
}

// NewHostFunctions creates a new host functions implementation.
func NewHostFunctions(logger *zap.Logger) *HostFunctions {
	return &HostFunctions{
		logger: logger.With(zap.String("component", "wasm-host")),
	}
}

// Signatures returns the shape of every function the host exports, keyed by
// import name. Guests importing anything else from "env" fail to link.
func (h *HostFunctions) Signatures() map[string]boundary.Signature {
	return map[string]boundary.Signature{
		"log_message": {Params: []boundary.ValueType{boundary.I32, boundary.I32, boundary.I32}},
	}
}

// logMessage is called by Wasm modules to log messages.
// Signature: log_message(level, ptr, length)
// level: 0 = debug, 1 = info, 2 = warn, 3 = error
func (h *HostFunctions) logMessage(ctx context.Context, mod api.Module, level uint32, ptr uint32, length uint32) {
	msg, ok := mod.Memory().Read(ptr, length)
	if !ok {
		err := &HostFunctionError{
			FunctionName: "log_message",
			Err:          fmt.Errorf("message [%d, +%d) is outside guest memory", ptr, length),
		}
		h.logger.Error("Failed to read log message from Wasm memory",
			zap.String("guest", mod.Name()),
			zap.Error(err),
		)
		return
	}

	h.Log(mod.Name(), level, msg)
}

// Log routes one guest message to the host logger.
// level: 0 = debug, 1 = info, 2 = warn, 3 = error; anything else logs at info.
func (h *HostFunctions) Log(guest string, level uint32, msg []byte) {
	field := zap.String("guest", guest)
	switch level {
	case 0:
		h.logger.Debug(string(msg), field)
	case 1:
		h.logger.Info(string(msg), field)
	case 2:
		h.logger.Warn(string(msg), field)
	case 3:
		h.logger.Error(string(msg), field)
	default:
		h.logger.Info(string(msg), field)
	}
}

// export registers Go functions for import by Wasm modules.
func (h *HostFunctions) export(builder wazero.HostModuleBuilder) {
	builder.NewFunctionBuilder().
		WithFunc(h.logMessage).
		WithParameterNames("level", "ptr", "length").
		Export("log_message")
}
