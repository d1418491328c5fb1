package grid

import "testing"

func TestResolutionForZoom_Tiers(t *testing.T) {
	cases := []struct {
		zoom float64
		want int
	}{
		{0, 5},
		{10.4999, 5},
		{10.5, 6}, // thresholds belong to the finer side
		{11.9, 6},
		{12.0, 7},
		{13.0, 7},
		{13.5, 8},
		{14.9, 8},
		{15.0, 9},
		{22.0, 9},
	}
	for _, c := range cases {
		if got := ResolutionForZoom(c.zoom, nil); got != c.want {
			t.Errorf("ResolutionForZoom(%v) = %d, want %d", c.zoom, got, c.want)
		}
	}
}

func TestResolutionForZoom_Monotonic(t *testing.T) {
	prev := MinResolution
	for z := 0.0; z <= 22.0; z += 0.1 {
		got := ResolutionForZoom(z, nil)
		if got < prev {
			t.Fatalf("resolution decreased from %d to %d at zoom %v", prev, got, z)
		}
		prev = got
	}
}

func TestResolutionForZoom_Override(t *testing.T) {
	for o := MinResolution; o <= MaxResolution; o++ {
		o := o
		for _, zoom := range []float64{0, 11, 16} {
			if got := ResolutionForZoom(zoom, &o); got != o {
				t.Errorf("override %d at zoom %v: got %d", o, zoom, got)
			}
		}
	}

	// Out-of-range overrides fall back to the zoom rule.
	bad := MaxResolution + 3
	if got := ResolutionForZoom(11.0, &bad); got != 6 {
		t.Errorf("invalid override should be ignored, got %d", got)
	}
	neg := -1
	if got := ResolutionForZoom(16.0, &neg); got != 9 {
		t.Errorf("negative override should be ignored, got %d", got)
	}
}

func TestCellForPoint_Deterministic(t *testing.T) {
	a := CellForPoint(30.2672, -97.7431, 8)
	b := CellForPoint(30.2672, -97.7431, 8)
	if a == "" || a != b {
		t.Fatalf("expected stable cell id, got %q and %q", a, b)
	}
	if CellResolution(a) != 8 {
		t.Errorf("expected resolution 8, got %d", CellResolution(a))
	}
}

func TestNeighborCells_RingOne(t *testing.T) {
	id := CellForPoint(30.2672, -97.7431, 7)
	neighbors := NeighborCells(id, 1)
	if len(neighbors) != 6 {
		t.Fatalf("expected 6 ring-1 neighbors, got %d", len(neighbors))
	}
	for _, n := range neighbors {
		if n == id {
			t.Errorf("neighbor set should exclude the origin cell")
		}
	}
}
