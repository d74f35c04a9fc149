package pipeline

import (
	"fmt"
	"unsafe"
)

// DataType identifies the scalar element type carried by a Socket.
type DataType uint8

const (
	Int8 DataType = iota
	Int16
	Int32
	Int64
	Float32
	Float64
)

// Size returns the element width in bytes.
func (t DataType) Size() int {
	switch t {
	case Int8:
		return 1
	case Int16:
		return 2
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	}
	return 0
}

func (t DataType) String() string {
	switch t {
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return "unknown"
}

// SocketDir tags the direction of a socket relative to its task.
type SocketDir uint8

const (
	DirIn SocketDir = iota
	DirOut
	DirInOut
)

func (d SocketDir) String() string {
	switch d {
	case DirIn:
		return "IN"
	case DirOut:
		return "OUT"
	case DirInOut:
		return "IN_OUT"
	}
	return "?"
}

// Scalar constrains the element types a Socket can carry.
type Scalar interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// Socket is a typed data endpoint attached to a Task. The buffer is nil
// until the socket is bound to a peer, bound to a caller slice, or
// auto-allocated by the owning task.
type Socket struct {
	name      string
	typ       DataType
	dir       SocketDir
	nPerFrame int
	n         int
	data      []byte
	owned     bool
	task      *Task
}

func (s *Socket) Name() string        { return s.name }
func (s *Socket) Type() DataType      { return s.typ }
func (s *Socket) Dir() SocketDir      { return s.dir }
func (s *Socket) NElmts() int         { return s.n }
func (s *Socket) NElmtsPerFrame() int { return s.nPerFrame }
func (s *Socket) NBytes() int         { return s.n * s.typ.Size() }
func (s *Socket) Task() *Task         { return s.task }

// Bound reports whether the socket has a buffer.
func (s *Socket) Bound() bool { return s.data != nil }

// Bind aliases the peer's buffer so both sockets address the same memory.
// The peer must already be bound and carry the same number of bytes.
func (s *Socket) Bind(peer *Socket) error {
	if peer == nil || peer.data == nil {
		return fmt.Errorf("%w: socket %q cannot bind to an unbound peer", ErrNotReady, s.name)
	}
	if peer.NBytes() != s.NBytes() {
		return fmt.Errorf("%w: socket %q holds %d bytes, peer %q holds %d",
			ErrSize, s.name, s.NBytes(), peer.name, peer.NBytes())
	}
	s.data = peer.data
	s.owned = false
	return nil
}

// Reset drops the socket's buffer reference. Task-owned buffers are
// released, externally bound buffers are merely forgotten.
func (s *Socket) Reset() {
	s.data = nil
	s.owned = false
}

func (s *Socket) resize(nFrames int) {
	s.n = s.nPerFrame * nFrames
	if s.owned {
		s.data = allocBuffer(s.typ, s.n)
	} else {
		s.data = nil
	}
}

// allocBuffer allocates through the element type so that typed views over
// the returned bytes stay aligned.
func allocBuffer(typ DataType, n int) []byte {
	switch typ {
	case Int8:
		v := make([]int8, n)
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), n)
	case Int16:
		v := make([]int16, n)
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), 2*n)
	case Int32:
		v := make([]int32, n)
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), 4*n)
	case Int64:
		v := make([]int64, n)
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), 8*n)
	case Float32:
		v := make([]float32, n)
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), 4*n)
	case Float64:
		v := make([]float64, n)
		return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), 8*n)
	}
	panic(fmt.Sprintf("unknown data type %d", typ))
}

func typeOf[T Scalar]() DataType {
	switch any((*T)(nil)).(type) {
	case *int8:
		return Int8
	case *int16:
		return Int16
	case *int32:
		return Int32
	case *int64:
		return Int64
	case *float32:
		return Float32
	case *float64:
		return Float64
	}
	panic("unreachable")
}

// View reinterprets the socket buffer as a slice of T. It panics if T does
// not match the socket's element type or if the socket is unbound; Exec
// rejects unbound sockets before any codelet runs, so codelets may call
// View unconditionally.
func View[T Scalar](s *Socket) []T {
	if typeOf[T]() != s.typ {
		panic(fmt.Sprintf("socket %q holds %s elements", s.name, s.typ))
	}
	if s.data == nil {
		panic(fmt.Sprintf("socket %q is not bound", s.name))
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&s.data[0])), s.n)
}

// BindSlice binds a caller-owned slice as the socket buffer. The slice
// must carry exactly the socket's element count and type. The task never
// frees caller-supplied buffers.
func BindSlice[T Scalar](s *Socket, v []T) error {
	if typeOf[T]() != s.typ {
		return fmt.Errorf("%w: socket %q holds %s elements", ErrConfig, s.name, s.typ)
	}
	if len(v) != s.n {
		return fmt.Errorf("%w: socket %q needs %d elements, got %d", ErrSize, s.name, s.n, len(v))
	}
	s.data = unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), s.NBytes())
	s.owned = false
	return nil
}
