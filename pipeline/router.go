package pipeline

import "fmt"

// Router selects one of several downstream branches per frame without
// inspecting downstream semantics. Concrete routers embed Router, supply
// the per-frame scoring hook at initialization and may override the
// inter-frame tie-break. A router never mutates its input.
type Router struct {
	Module
	nElmtsIn  int
	nElmtsOut int
	nOutputs  int

	routeFrame  func(frame int) int
	selectInter func(a, b int) int

	tRoute *Task
	sIn    *Socket
}

// InitRouter sets up the embedded module base, declares the "route" task
// with its input socket, and installs the per-frame scoring hook. The hook
// reads the frame's slice of the input socket and returns a branch index
// in [0, nOutputs).
func (r *Router) InitRouter(name string, typ DataType, nElmtsIn, nElmtsOut, nOutputs, nFrames int,
	routeFrame func(frame int) int) error {
	if nElmtsIn <= 0 || nElmtsOut <= 0 {
		return fmt.Errorf("%w: router %q needs positive element counts, got in=%d out=%d",
			ErrConfig, name, nElmtsIn, nElmtsOut)
	}
	if nOutputs <= 0 {
		return fmt.Errorf("%w: router %q needs at least one output, got %d",
			ErrConfig, name, nOutputs)
	}
	if routeFrame == nil {
		return fmt.Errorf("%w: router %q needs a frame scoring hook", ErrConfig, name)
	}
	if err := r.InitModule(name, nFrames); err != nil {
		return err
	}
	r.nElmtsIn = nElmtsIn
	r.nElmtsOut = nElmtsOut
	r.nOutputs = nOutputs
	r.routeFrame = routeFrame
	r.selectInter = func(a, b int) int {
		if a < b {
			return a
		}
		return b
	}
	t, err := r.NewTask("route")
	if err != nil {
		return err
	}
	s, err := t.NewSocketIn("in", typ, nElmtsIn)
	if err != nil {
		return err
	}
	t.BindCodelet(func() int { return r.RouteAll() })
	r.tRoute = t
	r.sIn = s
	return nil
}

func (r *Router) NElmtsIn() int  { return r.nElmtsIn }
func (r *Router) NElmtsOut() int { return r.nElmtsOut }
func (r *Router) NOutputs() int  { return r.nOutputs }

// RouteTask returns the "route" task, whose status is the selected branch.
func (r *Router) RouteTask() *Task { return r.tRoute }

// In returns the router's input socket.
func (r *Router) In() *Socket { return r.sIn }

// SetSelectInter overrides the reduction used when frames of one wave
// disagree on the branch. The default keeps the smaller index.
func (r *Router) SetSelectInter(fn func(a, b int) int) { r.selectInter = fn }

// Route returns the branch for one frame.
func (r *Router) Route(frame int) (int, error) {
	if frame < 0 || frame >= r.NFrames() {
		return 0, fmt.Errorf("%w: router %q has no frame %d", ErrSize, r.Name(), frame)
	}
	return r.routeFrame(frame), nil
}

// RouteAll scores every frame of the wave and reduces the decisions with
// the inter-frame selection policy.
func (r *Router) RouteAll() int {
	branch := r.routeFrame(0)
	for f := 1; f < r.NFrames(); f++ {
		branch = r.selectInter(branch, r.routeFrame(f))
	}
	return branch
}
