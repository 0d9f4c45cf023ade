// Package procmem reads primitive values out of another process through
// pointer chains. The OS-specific attach lives behind the Process
// interface; everything else in the program is platform independent.
package procmem

import (
	"fmt"
	"unsafe"

	"github.com/schollz/beatkeeper/internal/offsets"
)

type ErrorKind int

const (
	ProcessNotFound ErrorKind = iota
	ModuleNotFound
	SnapshotFailed
	ReadMemoryFailed
	WriteMemoryFailed
)

// OSError is a failed OS-level operation, reduced to the small taxonomy
// the scheduler's error handling switches over.
type OSError struct {
	Kind ErrorKind
	Msg  string
}

func (e *OSError) Error() string {
	switch e.Kind {
	case ProcessNotFound:
		return "process not found"
	case ModuleNotFound:
		return "module not found"
	case SnapshotFailed:
		return "snapshot failed: " + e.Msg
	case ReadMemoryFailed:
		return "read memory failed: " + e.Msg
	case WriteMemoryFailed:
		return "write memory failed: " + e.Msg
	}
	return e.Msg
}

func (e *OSError) Equal(o *OSError) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.Kind == o.Kind && e.Msg == o.Msg
}

// ReadError is an OSError annotated with where the read was headed: the
// chain being walked (if any) and the absolute address that failed.
type ReadError struct {
	Pointer *offsets.Pointer
	Address uintptr
	Err     *OSError
}

func (e *ReadError) Error() string {
	if e.Pointer != nil {
		return fmt.Sprintf("%v at %X via %v", e.Err, e.Address, *e.Pointer)
	}
	return fmt.Sprintf("%v at %X", e.Err, e.Address)
}

// Equal is value equality, used to deduplicate repeated error reports.
func (e *ReadError) Equal(o *ReadError) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.Address != o.Address || !e.Err.Equal(o.Err) {
		return false
	}
	if (e.Pointer == nil) != (o.Pointer == nil) {
		return false
	}
	return e.Pointer == nil || e.Pointer.Equal(*o.Pointer)
}

// Process is an attached, readable process.
type Process interface {
	// ReadAt fills buf from the absolute address.
	ReadAt(address uintptr, buf []byte) *OSError
	Close()
}

// AttachFunc attaches to a named process and returns the base address of
// the named module inside it. The scheduler takes one of these so tests
// can substitute a fake process.
type AttachFunc func(processName, moduleName string) (Process, uintptr, *OSError)

// Primitive covers the fixed-width types the host exposes.
type Primitive interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// ReadPrimitive reads one fixed-width value at an absolute address. Both
// sides are little-endian x86-64, so the bytes are reinterpreted directly.
func ReadPrimitive[T Primitive](p Process, address uintptr) (T, *ReadError) {
	var v T
	buf := make([]byte, unsafe.Sizeof(v))
	if err := p.ReadAt(address, buf); err != nil {
		return v, &ReadError{Address: address, Err: err}
	}
	return *(*T)(unsafe.Pointer(&buf[0])), nil
}

// Resolve walks the chain's intermediate offsets from base, dereferencing
// a pointer-sized cell at each step, and returns the final address. The
// intermediate cells move as the host allocates, so callers must not cache
// the result across host-side track loads.
func Resolve(p Process, base uintptr, chain offsets.Pointer) (uintptr, *ReadError) {
	address := base
	for _, off := range chain.Offsets {
		ptr, err := ReadPrimitive[uint64](p, address+uintptr(off))
		if err != nil {
			c := chain
			return 0, &ReadError{Pointer: &c, Address: address + uintptr(off), Err: err.Err}
		}
		address = uintptr(ptr)
	}
	return address + uintptr(chain.Final), nil
}

// Value is a chain resolved once at attach time; reads go straight to the
// cached address. Used for the slots whose backing cell is stable for a
// host session (timing, master index).
type Value[T Primitive] struct {
	proc    Process
	address uintptr
}

func NewValue[T Primitive](p Process, base uintptr, chain offsets.Pointer) (*Value[T], *ReadError) {
	address, err := Resolve(p, base, chain)
	if err != nil {
		return nil, err
	}
	return &Value[T]{proc: p, address: address}, nil
}

// Values resolves a batch of chains, fail-fast on the first error.
func Values[T Primitive](p Process, base uintptr, chains []offsets.Pointer) ([]*Value[T], *ReadError) {
	out := make([]*Value[T], len(chains))
	for i, c := range chains {
		v, err := NewValue[T](p, base, c)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (v *Value[T]) Read() (T, *ReadError) {
	return ReadPrimitive[T](v.proc, v.address)
}

// BufferChain re-resolves its chain on every read and returns a fixed-size
// byte buffer. The host reallocates the string cells on track change, so
// caching the address here would go stale without warning.
type BufferChain struct {
	proc  Process
	base  uintptr
	chain offsets.Pointer
	size  int
}

func NewBufferChain(p Process, base uintptr, chain offsets.Pointer, size int) *BufferChain {
	return &BufferChain{proc: p, base: base, chain: chain, size: size}
}

func BufferChains(p Process, base uintptr, chains []offsets.Pointer, size int) []*BufferChain {
	out := make([]*BufferChain, len(chains))
	for i, c := range chains {
		out[i] = NewBufferChain(p, base, c, size)
	}
	return out
}

func (b *BufferChain) Read() ([]byte, *ReadError) {
	address, err := Resolve(b.proc, b.base, b.chain)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, b.size)
	if oserr := b.proc.ReadAt(address, buf); oserr != nil {
		c := b.chain
		return nil, &ReadError{Pointer: &c, Address: address, Err: oserr}
	}
	return buf, nil
}
