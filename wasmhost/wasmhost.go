// Package wasmhost serves the bridge to WebAssembly guest modules run by
// wazero.
//
// The host module "env" exports one function:
//
//	libsql_host_handler(reqPtr, reqLen u32) -> u64
//
// The guest passes a JSON protocol.Request in its own memory. The host
// copies the JSON protocol.Response into a buffer obtained from the guest's
// alloc_bytes export and returns that buffer's handle; bit 32 is set when
// the buffer holds a bare error message instead of a response. The guest
// owns the buffer and frees it with its own free_bytes.
package wasmhost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/tomyedwab/libsqlbridge/host"
)

const (
	// ModuleName is the import module guests declare the handler under.
	ModuleName = "env"
	// HandlerName is the name of the exported host function.
	HandlerName = "libsql_host_handler"

	allocExport = "alloc_bytes"
	freeExport  = "free_bytes"

	errorFlag = uint64(1) << 32
)

// Bridge connects guest calls to a host.Host.
type Bridge struct {
	host   *host.Host
	logger *slog.Logger
}

// Instantiate registers the host module on r. It must be called before any
// guest importing it is instantiated.
func Instantiate(ctx context.Context, r wazero.Runtime, h *host.Host, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{host: h, logger: logger}

	_, err := r.NewHostModuleBuilder(ModuleName).
		NewFunctionBuilder().WithFunc(b.handleCall).Export(HandlerName).
		Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate %s host module: %w", ModuleName, err)
	}
	return b, nil
}

func (b *Bridge) handleCall(ctx context.Context, m api.Module, reqOffset, reqByteCount uint32) uint64 {
	request, err := readBytes(m, reqOffset, reqByteCount)
	if err != nil {
		return b.writeError(ctx, m, err)
	}

	response, err := b.host.HandleRequest(ctx, request)
	if err != nil {
		b.logger.Error("Error handling libsql request", "module", m.Name(), "error", err)
		return b.writeError(ctx, m, err)
	}

	handle, err := writeBytes(ctx, m, response)
	if err != nil {
		b.logger.Error("Failed to write response to guest", "module", m.Name(), "error", err)
		return errorFlag
	}
	return packResult(handle, false)
}

func (b *Bridge) writeError(ctx context.Context, m api.Module, cause error) uint64 {
	handle, err := writeBytes(ctx, m, []byte(cause.Error()))
	if err != nil {
		b.logger.Error("Failed to write error to guest", "module", m.Name(), "error", err, "cause", cause)
		return errorFlag
	}
	return packResult(handle, true)
}

func packResult(handle uint32, isError bool) uint64 {
	result := uint64(handle)
	if isError {
		result |= errorFlag
	}
	return result
}

// UnpackResult splits a handler return value into the byte handle and the
// error flag.
func UnpackResult(result uint64) (handle uint32, isError bool) {
	return uint32(result), result&errorFlag != 0
}

func readBytes(m api.Module, offset, byteCount uint32) ([]byte, error) {
	mem := m.Memory()
	if mem == nil {
		return nil, fmt.Errorf("module %s exports no memory", m.Name())
	}
	buf, ok := mem.Read(offset, byteCount)
	if !ok {
		return nil, fmt.Errorf("Memory.Read(%d, %d) out of range", offset, byteCount)
	}
	// the view aliases guest memory, which the guest may reuse
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

func writeBytes(ctx context.Context, m api.Module, data []byte) (uint32, error) {
	alloc := m.ExportedFunction(allocExport)
	if alloc == nil {
		return 0, fmt.Errorf("module %s does not export %s", m.Name(), allocExport)
	}
	if len(data) == 0 {
		return 0, errors.New("refusing to allocate an empty guest buffer")
	}
	result, err := alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%s failed: %w", allocExport, err)
	}
	handle := uint32(result[0] >> 32)
	ptr := uint32(result[0])
	if !m.Memory().Write(ptr, data) {
		if free := m.ExportedFunction(freeExport); free != nil {
			if _, err := free.Call(ctx, uint64(handle)); err != nil {
				return 0, fmt.Errorf("Memory.Write(%d, %d) out of range, and %s failed: %w", ptr, len(data), freeExport, err)
			}
		}
		return 0, fmt.Errorf("Memory.Write(%d, %d) out of range", ptr, len(data))
	}
	return handle, nil
}

// RunConfig controls how Run instantiates a guest.
type RunConfig struct {
	Name           string   // Optional module name
	Args           []string // Optional argv seen by the guest
	StartFunctions []string // Optional, defaults to _start
	ModuleConfig   wazero.ModuleConfig
}

// Run instantiates WASI and the bridge on r, then instantiates the guest,
// running its start functions. A guest that exits with status 0 is not an
// error.
func Run(ctx context.Context, r wazero.Runtime, h *host.Host, wasm []byte, config RunConfig, logger *slog.Logger) error {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return fmt.Errorf("failed to instantiate WASI: %w", err)
	}
	if _, err := Instantiate(ctx, r, h, logger); err != nil {
		return err
	}

	modConfig := config.ModuleConfig
	if modConfig == nil {
		modConfig = wazero.NewModuleConfig()
	}
	start := config.StartFunctions
	if len(start) == 0 {
		start = []string{"_start"}
	}
	modConfig = modConfig.WithStartFunctions(start...)
	if config.Name != "" {
		modConfig = modConfig.WithName(config.Name)
	}
	if len(config.Args) > 0 {
		modConfig = modConfig.WithArgs(config.Args...)
	}

	mod, err := r.InstantiateWithConfig(ctx, wasm, modConfig)
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 0 {
			return nil
		}
		return fmt.Errorf("guest failed: %w", err)
	}
	return mod.Close(ctx)
}
