package pipeline

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

type testStage struct {
	Module
}

func newTestStage(t *testing.T, nFrames int) *testStage {
	t.Helper()
	s := &testStage{}
	if err := s.InitModule("Stage", nFrames); err != nil {
		t.Fatalf("init module: %v", err)
	}
	return s
}

func TestSocketCreation(t *testing.T) {
	s := newTestStage(t, 2)
	tk, err := s.NewTask("work")
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	in, err := tk.NewSocketIn("U", Int8, 4)
	if err != nil {
		t.Fatalf("new socket: %v", err)
	}
	if in.NElmts() != 8 || in.NBytes() != 8 {
		t.Fatalf("got %d elements / %d bytes, want 8 / 8", in.NElmts(), in.NBytes())
	}
	if _, err := tk.NewSocketIn("", Int8, 4); !errors.Is(err, ErrConfig) {
		t.Fatalf("empty name: got %v, want ErrConfig", err)
	}
	if _, err := tk.NewSocketOut("U", Int8, 4); !errors.Is(err, ErrConfig) {
		t.Fatalf("duplicate name: got %v, want ErrConfig", err)
	}
	if _, err := tk.NewSocketIn("V", Int8, 0); !errors.Is(err, ErrConfig) {
		t.Fatalf("zero elements: got %v, want ErrConfig", err)
	}
	if _, err := tk.Socket("W"); !errors.Is(err, ErrLookup) {
		t.Fatalf("unknown socket: got %v, want ErrLookup", err)
	}
	if _, err := s.Task("nope"); !errors.Is(err, ErrLookup) {
		t.Fatalf("unknown task: got %v, want ErrLookup", err)
	}
}

func TestExecRequiresBoundSockets(t *testing.T) {
	s := newTestStage(t, 1)
	tk, _ := s.NewTask("work")
	if _, err := tk.NewSocketIn("U", Int8, 4); err != nil {
		t.Fatalf("new socket: %v", err)
	}
	ran := false
	tk.BindCodelet(func() int { ran = true; return 0 })
	if _, err := tk.Exec(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("got %v, want ErrNotReady", err)
	}
	if ran {
		t.Fatal("codelet ran with an unfed socket")
	}
	if !strings.Contains(errString(t, tk), "work") || !strings.Contains(errString(t, tk), "Stage") {
		t.Fatal("not-ready error does not name the task and module")
	}
}

func errString(t *testing.T, tk *Task) string {
	t.Helper()
	_, err := tk.Exec()
	if err == nil {
		t.Fatal("expected an error")
	}
	return err.Error()
}

func TestExecRequiresCodelet(t *testing.T) {
	s := newTestStage(t, 1)
	tk, _ := s.NewTask("work")
	if _, err := tk.NewSocketOut("V", Int8, 2); err != nil {
		t.Fatalf("new socket: %v", err)
	}
	if _, err := tk.Exec(); !errors.Is(err, ErrUnimplemented) {
		t.Fatalf("got %v, want ErrUnimplemented", err)
	}
}

func TestExecStatus(t *testing.T) {
	s := newTestStage(t, 1)
	tk, _ := s.NewTask("work")
	out, _ := tk.NewSocketOut("V", Int32, 2)
	tk.BindCodelet(func() int {
		v := View[int32](out)
		v[0], v[1] = 7, 9
		return 42
	})
	status, err := tk.Exec()
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if status != 42 {
		t.Fatalf("got status %d, want 42", status)
	}
	v := View[int32](out)
	if v[0] != 7 || v[1] != 9 {
		t.Fatalf("got %v, want [7 9]", v)
	}
	if tk.NCalls() != 1 {
		t.Fatalf("got %d calls, want 1", tk.NCalls())
	}
}

func TestAutoallocToggle(t *testing.T) {
	s := newTestStage(t, 1)
	tk, _ := s.NewTask("work")
	out, _ := tk.NewSocketOut("V", Int8, 4)
	if !out.Bound() {
		t.Fatal("OUT socket not auto-allocated")
	}
	in, _ := tk.NewSocketIn("U", Int8, 4)
	ext := make([]int8, 4)
	if err := BindSlice(in, ext); err != nil {
		t.Fatalf("bind slice: %v", err)
	}
	tk.SetAutoalloc(false)
	if out.Bound() {
		t.Fatal("OUT buffer not released")
	}
	if !in.Bound() {
		t.Fatal("externally bound IN buffer was dropped")
	}
	tk.SetAutoalloc(true)
	if !out.Bound() {
		t.Fatal("OUT buffer not reallocated")
	}
}

func TestSocketBind(t *testing.T) {
	up := newTestStage(t, 1)
	tu, _ := up.NewTask("produce")
	out, _ := tu.NewSocketOut("X", Float32, 4)
	tu.BindCodelet(func() int {
		v := View[float32](out)
		for i := range v {
			v[i] = float32(i) + 0.5
		}
		return 0
	})

	down := newTestStage(t, 1)
	td, _ := down.NewTask("consume")
	in, _ := td.NewSocketIn("Y", Float32, 4)
	var got []float32
	td.BindCodelet(func() int {
		got = append([]float32(nil), View[float32](in)...)
		return 0
	})

	if err := in.Bind(out); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if _, err := tu.Exec(); err != nil {
		t.Fatalf("produce: %v", err)
	}
	if _, err := td.Exec(); err != nil {
		t.Fatalf("consume: %v", err)
	}
	for i, v := range got {
		if v != float32(i)+0.5 {
			t.Fatalf("element %d: got %v", i, v)
		}
	}

	short, _ := td.NewSocketIn("Z", Float32, 2)
	if err := short.Bind(out); !errors.Is(err, ErrSize) {
		t.Fatalf("size mismatch: got %v, want ErrSize", err)
	}
	unbound, _ := tu.NewSocketIn("W", Float32, 4)
	other, _ := td.NewSocketIn("W2", Float32, 4)
	if err := other.Bind(unbound); !errors.Is(err, ErrNotReady) {
		t.Fatalf("unbound peer: got %v, want ErrNotReady", err)
	}
}

func TestBindSliceValidation(t *testing.T) {
	s := newTestStage(t, 2)
	tk, _ := s.NewTask("work")
	in, _ := tk.NewSocketIn("U", Int8, 3)
	if err := BindSlice(in, make([]int8, 5)); !errors.Is(err, ErrSize) {
		t.Fatalf("got %v, want ErrSize", err)
	}
	if err := BindSlice(in, make([]int8, 6)); err != nil {
		t.Fatalf("got %v, want nil", err)
	}
}

func TestStatsAccumulation(t *testing.T) {
	s := newTestStage(t, 1)
	tk, _ := s.NewTask("work")
	tk.SetStats(true)
	tk.BindCodelet(func() int {
		time.Sleep(time.Millisecond)
		return 0
	})
	for i := 0; i < 3; i++ {
		if _, err := tk.Exec(); err != nil {
			t.Fatalf("exec %d: %v", i, err)
		}
	}
	total, min, max := tk.Durations()
	if tk.NCalls() != 3 {
		t.Fatalf("got %d calls, want 3", tk.NCalls())
	}
	if min <= 0 || max < min || total < max {
		t.Fatalf("inconsistent durations: total=%v min=%v max=%v", total, min, max)
	}
	tk.ResetStats()
	total, min, max = tk.Durations()
	if tk.NCalls() != 0 || total != 0 || min != 0 || max != 0 {
		t.Fatal("reset did not zero the task stats")
	}
}

func TestRegisteredTimers(t *testing.T) {
	s := newTestStage(t, 1)
	tk, _ := s.NewTask("work")
	tk.RegisterTimer("load")
	if err := tk.UpdateTimer("store", time.Millisecond); !errors.Is(err, ErrLookup) {
		t.Fatalf("unregistered key: got %v, want ErrLookup", err)
	}
	if err := tk.UpdateTimer("load", 3*time.Millisecond); err != nil {
		t.Fatalf("update: %v", err)
	}
	tm, err := tk.TimerStats("load")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if tm.Calls != 1 || tm.Total != 3*time.Millisecond || tm.Min != tm.Max || tm.Min != 3*time.Millisecond {
		t.Fatalf("unexpected timer snapshot: %+v", tm)
	}
	tk.ResetStats()
	tm, _ = tk.TimerStats("load")
	if tm.Calls != 0 || tm.Total != 0 {
		t.Fatal("reset did not zero the registered timer")
	}
}

func TestDebugDump(t *testing.T) {
	s := newTestStage(t, 2)
	tk, _ := s.NewTask("work")
	in, _ := tk.NewSocketIn("Y", Float32, 3)
	out, _ := tk.NewSocketOut("V", Int8, 2)
	src := []float32{0.5, -1.25, 2, 3, -4, 5.5}
	if err := BindSlice(in, src); err != nil {
		t.Fatalf("bind: %v", err)
	}
	tk.BindCodelet(func() int {
		v := View[int8](out)
		for i := range v {
			v[i] = int8(i)
		}
		return 0
	})
	var buf bytes.Buffer
	tk.SetDebug(true)
	tk.SetDebugWriter(&buf)
	tk.SetDebugLimit(2)
	tk.SetDebugPrecision(2)
	if _, err := tk.Exec(); err != nil {
		t.Fatalf("exec: %v", err)
	}
	dump := buf.String()
	for _, want := range []string{
		"# Stage::work(const float32 Y[2x3], int8 V[2x2])",
		"# {IN    } Y = [ 0.50, -1.25, ... | 3.00, -4.00, ...]",
		"# {OUT   } V = [ 0, 1 | 2, 3]",
		"# Returned status: 0",
	} {
		if !strings.Contains(dump, want) {
			t.Fatalf("debug dump missing %q:\n%s", want, dump)
		}
	}
}
