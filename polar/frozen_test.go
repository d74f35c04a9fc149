package polar

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestBECReliability(t *testing.T) {
	z, err := BECReliability(4, 0.5)
	if err != nil {
		t.Fatalf("BECReliability: %v", err)
	}
	want := []float64{0.9375, 0.5625, 0.4375, 0.0625}
	for i := range want {
		if math.Abs(z[i]-want[i]) > 1e-12 {
			t.Fatalf("z[%d] = %v, want %v", i, z[i], want[i])
		}
	}

	if _, err := BECReliability(6, 0.5); err == nil {
		t.Fatal("non power-of-two length accepted")
	}
	if _, err := BECReliability(4, 1.5); err == nil {
		t.Fatal("erasure probability above one accepted")
	}
}

func TestFrozenFromBEC(t *testing.T) {
	frozen, err := FrozenFromBEC(4, 2, 0.5)
	if err != nil {
		t.Fatalf("FrozenFromBEC: %v", err)
	}
	want := []bool{true, true, false, false}
	for i := range want {
		if frozen[i] != want[i] {
			t.Fatalf("frozen = %v, want %v", frozen, want)
		}
	}
	if got := CountInfo(frozen); got != 2 {
		t.Fatalf("CountInfo = %d, want 2", got)
	}
}

func TestFrozenFromReliability(t *testing.T) {
	order := []int{7, 6, 5, 3, 4, 2, 1, 0}
	frozen, err := FrozenFromReliability(order, 8, 3)
	if err != nil {
		t.Fatalf("FrozenFromReliability: %v", err)
	}
	for i, f := range frozen {
		info := i == 7 || i == 6 || i == 5
		if f == info {
			t.Fatalf("position %d frozen=%v, want info=%v", i, f, info)
		}
	}

	// Entries beyond N are skipped, as with a shared ranking of a longer
	// mother code.
	frozen, err = FrozenFromReliability([]int{11, 3, 9, 2, 1, 0}, 4, 2)
	if err != nil {
		t.Fatalf("FrozenFromReliability with oversized entries: %v", err)
	}
	if frozen[3] || frozen[2] || !frozen[1] || !frozen[0] {
		t.Fatalf("frozen = %v, want info at 3 and 2", frozen)
	}

	if _, err := FrozenFromReliability([]int{1, 2}, 8, 3); err == nil {
		t.Fatal("ranking covering fewer than K info positions accepted")
	}
}

func TestValidateFrozen(t *testing.T) {
	if err := ValidateFrozen(headFrozen(8, 3), 8, 3); err != nil {
		t.Fatalf("valid frozen vector rejected: %v", err)
	}
	if err := ValidateFrozen(headFrozen(4, 2), 8, 2); err == nil {
		t.Fatal("wrong length accepted")
	}
	if err := ValidateFrozen(headFrozen(8, 3), 8, 4); err == nil {
		t.Fatal("wrong info count accepted")
	}
}

func TestReliabilityFiles(t *testing.T) {
	dir := t.TempDir()

	text := filepath.Join(dir, "order.txt")
	if err := os.WriteFile(text, []byte("# mother code ranking\n7\n6\n5\n3\n\n4\n2\n1\n0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	order, err := LoadReliabilityText(text)
	if err != nil {
		t.Fatalf("LoadReliabilityText: %v", err)
	}
	want := []int{7, 6, 5, 3, 4, 2, 1, 0}
	if len(order) != len(want) {
		t.Fatalf("loaded %d entries, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}

	bin := filepath.Join(dir, "order.bin")
	if err := SaveReliabilityBinary(bin, order); err != nil {
		t.Fatalf("SaveReliabilityBinary: %v", err)
	}
	back, err := LoadReliabilityBinary(bin)
	if err != nil {
		t.Fatalf("LoadReliabilityBinary: %v", err)
	}
	for i := range want {
		if back[i] != want[i] {
			t.Fatalf("binary order = %v, want %v", back, want)
		}
	}
}
