//go:build wasip1

package guest

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"
)

//go:wasmimport env libsql_host_handler
func libsqlHostHandler(reqPtr, reqLen uint32) uint64

const hostErrorFlag = uint64(1) << 32

// Buffers handed to the host by alloc_bytes, keyed by handle until the
// guest reads them back.
var (
	byteHandles    = make(map[uint32][]byte)
	nextByteHandle uint32 = 1
)

//go:wasmexport alloc_bytes
func allocBytes(size uint32) uint64 {
	if size == 0 {
		size = 1
	}
	buf := make([]byte, size)
	handle := nextByteHandle
	nextByteHandle++
	byteHandles[handle] = buf
	return uint64(handle)<<32 | uint64(uintptr(unsafe.Pointer(&buf[0])))
}

//go:wasmexport free_bytes
func freeBytes(handle uint32) {
	delete(byteHandles, handle)
}

func takeBytes(handle uint32) ([]byte, bool) {
	buf, ok := byteHandles[handle]
	if ok {
		freeBytes(handle)
	}
	return buf, ok
}

func callHost(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty request")
	}
	result := libsqlHostHandler(uint32(uintptr(unsafe.Pointer(&payload[0]))), uint32(len(payload)))
	runtime.KeepAlive(payload)

	handle := uint32(result)
	data, ok := takeBytes(handle)
	if result&hostErrorFlag != 0 {
		if !ok {
			return nil, errors.New("libsql_host_handler failed")
		}
		return nil, fmt.Errorf("libsql_host_handler returned error: %s", string(data))
	}
	if !ok {
		return nil, fmt.Errorf("libsql_host_handler returned unknown buffer %d", handle)
	}
	return data, nil
}

// Default returns a client bound to the host's libsql_host_handler import.
func Default() *Client {
	return New(callHost)
}
