package pipeline

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Codelet is the unit of computation bound to a Task. The returned value is
// the task status propagated through Exec; zero means success by
// convention, concrete modules may use other values (a router returns the
// selected branch, a checker returns its verdict).
type Codelet func() int

// Timer accumulates wall-clock durations for one named sub-phase of a
// task, independently of the task-level timer.
type Timer struct {
	Calls uint64
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Task is a named operation on a Module. It owns an ordered set of typed
// sockets, a bound codelet, and execution statistics. A task executes only
// when every socket has a buffer.
type Task struct {
	module  *Module
	name    string
	sockets []*Socket
	byName  map[string]*Socket
	codelet Codelet

	autoalloc bool
	autoexec  bool
	stats     bool
	debug     bool

	debugLimit int
	debugPrec  int
	debugOut   io.Writer

	nCalls    uint64
	total     time.Duration
	min, max  time.Duration
	timers    map[string]*Timer
	timerKeys []string
}

func newTask(m *Module, name string) *Task {
	return &Task{
		module:     m,
		name:       name,
		byName:     map[string]*Socket{},
		autoalloc:  true,
		autoexec:   true,
		debugLimit: -1,
		debugPrec:  2,
		debugOut:   os.Stdout,
		timers:     map[string]*Timer{},
	}
}

func (t *Task) Name() string    { return t.name }
func (t *Task) Module() *Module { return t.module }

func (t *Task) Autoalloc() bool { return t.autoalloc }
func (t *Task) Autoexec() bool  { return t.autoexec }
func (t *Task) StatsOn() bool   { return t.stats }
func (t *Task) DebugOn() bool   { return t.debug }

func (t *Task) SetAutoexec(v bool) { t.autoexec = v }
func (t *Task) SetStats(v bool)    { t.stats = v }
func (t *Task) SetDebug(v bool)    { t.debug = v }

// SetDebugLimit caps the number of elements printed per frame in debug
// dumps; negative means no cap.
func (t *Task) SetDebugLimit(n int) { t.debugLimit = n }

// SetDebugPrecision sets the number of fractional digits used for
// floating-point values in debug dumps.
func (t *Task) SetDebugPrecision(p int) { t.debugPrec = p }

// SetDebugWriter redirects debug dumps; the default is os.Stdout.
func (t *Task) SetDebugWriter(w io.Writer) { t.debugOut = w }

// SetAutoalloc enables or disables automatic allocation of OUT socket
// buffers. Enabling allocates every unbound OUT socket; disabling releases
// task-owned OUT buffers. Externally bound IN/IN_OUT buffers are never
// touched.
func (t *Task) SetAutoalloc(v bool) {
	if v == t.autoalloc {
		return
	}
	t.autoalloc = v
	for _, s := range t.sockets {
		if s.dir != DirOut {
			continue
		}
		if v {
			if s.data == nil {
				s.data = allocBuffer(s.typ, s.n)
				s.owned = true
			}
		} else if s.owned {
			s.data = nil
			s.owned = false
		}
	}
}

// BindCodelet attaches the computation run by Exec.
func (t *Task) BindCodelet(fn Codelet) { t.codelet = fn }

func (t *Task) newSocket(name string, typ DataType, nPerFrame int, dir SocketDir) (*Socket, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty socket name on task %q", ErrConfig, t.name)
	}
	if _, ok := t.byName[name]; ok {
		return nil, fmt.Errorf("%w: socket %q already exists on task %q", ErrConfig, name, t.name)
	}
	if nPerFrame <= 0 {
		return nil, fmt.Errorf("%w: socket %q needs a positive element count, got %d",
			ErrConfig, name, nPerFrame)
	}
	s := &Socket{
		name:      name,
		typ:       typ,
		dir:       dir,
		nPerFrame: nPerFrame,
		n:         nPerFrame * t.module.nFrames,
		task:      t,
	}
	if dir == DirOut && t.autoalloc {
		s.data = allocBuffer(typ, s.n)
		s.owned = true
	}
	t.sockets = append(t.sockets, s)
	t.byName[name] = s
	return s, nil
}

// NewSocketIn declares an input socket carrying nPerFrame elements of typ
// per frame.
func (t *Task) NewSocketIn(name string, typ DataType, nPerFrame int) (*Socket, error) {
	return t.newSocket(name, typ, nPerFrame, DirIn)
}

// NewSocketOut declares an output socket. Its buffer is allocated
// immediately when autoalloc is enabled.
func (t *Task) NewSocketOut(name string, typ DataType, nPerFrame int) (*Socket, error) {
	return t.newSocket(name, typ, nPerFrame, DirOut)
}

// NewSocketInOut declares a socket read and written in place.
func (t *Task) NewSocketInOut(name string, typ DataType, nPerFrame int) (*Socket, error) {
	return t.newSocket(name, typ, nPerFrame, DirInOut)
}

// Socket returns the socket registered under name.
func (t *Task) Socket(name string) (*Socket, error) {
	s, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: no socket %q on task %q", ErrLookup, name, t.name)
	}
	return s, nil
}

// Sockets returns the task's sockets in declaration order.
func (t *Task) Sockets() []*Socket { return t.sockets }

// CanExec reports whether every socket has a buffer.
func (t *Task) CanExec() bool {
	for _, s := range t.sockets {
		if s.data == nil {
			return false
		}
	}
	return true
}

// Exec runs the codelet and returns its status. It fails without invoking
// the codelet when a socket is unbound or no codelet was ever bound. When
// statistics are enabled the call duration updates the task's running
// total/min/max; the first call seeds the range.
func (t *Task) Exec() (int, error) {
	if !t.CanExec() {
		return 0, fmt.Errorf("%w: task %q on module %q has unfed sockets",
			ErrNotReady, t.name, t.module.name)
	}
	if t.codelet == nil {
		return 0, fmt.Errorf("%w: codelet of task %q on module %q was never bound",
			ErrUnimplemented, t.name, t.module.name)
	}
	if t.debug {
		t.dumpHeader()
		t.dumpSockets(DirIn, DirInOut)
	}
	var status int
	if t.stats {
		start := time.Now()
		status = t.codelet()
		d := time.Since(start)
		t.total += d
		if t.nCalls > 0 {
			if d < t.min {
				t.min = d
			}
			if d > t.max {
				t.max = d
			}
		} else {
			t.min, t.max = d, d
		}
	} else {
		status = t.codelet()
	}
	t.nCalls++
	if t.debug {
		t.dumpSockets(DirOut, DirInOut)
		fmt.Fprintf(t.debugOut, "# Returned status: %d\n#\n", status)
	}
	return status, nil
}

// RegisterTimer declares a named sub-phase timer, seeded to zero. Timers
// share the task's reset lifecycle but count their own calls.
func (t *Task) RegisterTimer(key string) {
	if _, ok := t.timers[key]; ok {
		return
	}
	t.timers[key] = &Timer{}
	t.timerKeys = append(t.timerKeys, key)
}

// UpdateTimer folds one duration into a registered sub-phase timer. The
// range is seeded while the task-level call counter is still zero, so
// sub-phase and task statistics stay on the same lifecycle.
func (t *Task) UpdateTimer(key string, d time.Duration) error {
	tm, ok := t.timers[key]
	if !ok {
		return fmt.Errorf("%w: no timer %q registered on task %q", ErrLookup, key, t.name)
	}
	tm.Calls++
	tm.Total += d
	if t.nCalls > 0 {
		if d < tm.Min {
			tm.Min = d
		}
		if d > tm.Max {
			tm.Max = d
		}
	} else {
		tm.Min, tm.Max = d, d
	}
	return nil
}

// TimerKeys returns the registered timer names in registration order.
func (t *Task) TimerKeys() []string { return t.timerKeys }

// TimerStats returns a snapshot of one registered timer.
func (t *Task) TimerStats(key string) (Timer, error) {
	tm, ok := t.timers[key]
	if !ok {
		return Timer{}, fmt.Errorf("%w: no timer %q registered on task %q", ErrLookup, key, t.name)
	}
	return *tm, nil
}

// NCalls returns the number of completed executions.
func (t *Task) NCalls() uint64 { return t.nCalls }

// Durations returns the accumulated total and the min/max range of one
// execution, as measured while statistics were enabled.
func (t *Task) Durations() (total, min, max time.Duration) {
	return t.total, t.min, t.max
}

// ResetStats zeroes the call counter, the task durations and every
// registered timer.
func (t *Task) ResetStats() {
	t.nCalls = 0
	t.total, t.min, t.max = 0, 0, 0
	for _, tm := range t.timers {
		*tm = Timer{}
	}
}

func (t *Task) dumpHeader() {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s::%s(", t.module.name, t.name)
	for i, s := range t.sockets {
		if i > 0 {
			b.WriteString(", ")
		}
		if s.dir == DirIn {
			b.WriteString("const ")
		}
		fmt.Fprintf(&b, "%s %s[%dx%d]", s.typ, s.name, t.module.nFrames, s.nPerFrame)
	}
	b.WriteString(")\n")
	io.WriteString(t.debugOut, b.String())
}

func (t *Task) dumpSockets(dirs ...SocketDir) {
	for _, s := range t.sockets {
		for _, d := range dirs {
			if s.dir == d {
				t.dumpSocket(s)
				break
			}
		}
	}
}

func (t *Task) dumpSocket(s *Socket) {
	var b strings.Builder
	fmt.Fprintf(&b, "# {%-6s} %s = [", s.dir, s.name)
	for f := 0; f < t.module.nFrames; f++ {
		if f > 0 {
			b.WriteString(" |")
		}
		n := s.nPerFrame
		truncated := false
		if t.debugLimit >= 0 && n > t.debugLimit {
			n = t.debugLimit
			truncated = true
		}
		for i := 0; i < n; i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte(' ')
			b.WriteString(t.formatElmt(s, f*s.nPerFrame+i))
		}
		if truncated {
			b.WriteString(", ...")
		}
	}
	b.WriteString("]\n")
	io.WriteString(t.debugOut, b.String())
}

func (t *Task) formatElmt(s *Socket, i int) string {
	switch s.typ {
	case Int8:
		return fmt.Sprintf("%d", View[int8](s)[i])
	case Int16:
		return fmt.Sprintf("%d", View[int16](s)[i])
	case Int32:
		return fmt.Sprintf("%d", View[int32](s)[i])
	case Int64:
		return fmt.Sprintf("%d", View[int64](s)[i])
	case Float32:
		return fmt.Sprintf("%.*f", t.debugPrec, View[float32](s)[i])
	case Float64:
		return fmt.Sprintf("%.*f", t.debugPrec, View[float64](s)[i])
	}
	return "?"
}
