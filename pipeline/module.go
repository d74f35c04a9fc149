package pipeline

import "fmt"

// Stage is the contract every pipeline component satisfies. Concrete
// stages embed Module, which provides the full implementation.
type Stage interface {
	Name() string
	NFrames() int
	SetNFrames(int) error
	Tasks() []*Task
}

// Module is a named component owning one or more tasks. It is meant to be
// embedded in concrete stages; InitModule must run before any task is
// created. Tasks are instantiated once and invoked per frame-wave.
type Module struct {
	name     string
	nFrames  int
	tasks    []*Task
	byName   map[string]*Task
	onResize []func(int) error
}

// InitModule sets the identity of an embedded module base.
func (m *Module) InitModule(name string, nFrames int) error {
	if name == "" {
		return fmt.Errorf("%w: empty module name", ErrConfig)
	}
	if nFrames <= 0 {
		return fmt.Errorf("%w: module %q needs a positive frame count, got %d",
			ErrConfig, name, nFrames)
	}
	m.name = name
	m.nFrames = nFrames
	m.byName = map[string]*Task{}
	return nil
}

func (m *Module) Name() string { return m.name }

// Rename changes the module name reported in errors and debug dumps.
func (m *Module) Rename(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty module name", ErrConfig)
	}
	m.name = name
	return nil
}

func (m *Module) NFrames() int { return m.nFrames }

// SetNFrames rescales every socket of every task to the new frame count.
// Auto-allocated OUT buffers are reallocated; stale external bindings are
// dropped and must be re-established by the caller. Registered resize
// hooks run afterwards so stages can rescale private state.
func (m *Module) SetNFrames(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: module %q needs a positive frame count, got %d",
			ErrConfig, m.name, n)
	}
	if n == m.nFrames {
		return nil
	}
	m.nFrames = n
	for _, t := range m.tasks {
		for _, s := range t.sockets {
			s.resize(n)
		}
	}
	for _, fn := range m.onResize {
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

// OnResize registers a hook invoked by SetNFrames after socket rescaling.
func (m *Module) OnResize(fn func(int) error) {
	m.onResize = append(m.onResize, fn)
}

// NewTask declares a task on the module.
func (m *Module) NewTask(name string) (*Task, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty task name on module %q", ErrConfig, m.name)
	}
	if m.byName == nil {
		return nil, fmt.Errorf("%w: module was not initialized", ErrConfig)
	}
	if _, ok := m.byName[name]; ok {
		return nil, fmt.Errorf("%w: task %q already exists on module %q", ErrConfig, name, m.name)
	}
	t := newTask(m, name)
	m.tasks = append(m.tasks, t)
	m.byName[name] = t
	return t, nil
}

// Task returns the task registered under name.
func (m *Module) Task(name string) (*Task, error) {
	t, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: no task %q on module %q", ErrLookup, name, m.name)
	}
	return t, nil
}

// Tasks returns the module's tasks in declaration order.
func (m *Module) Tasks() []*Task { return m.tasks }
