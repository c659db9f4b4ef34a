package aplic

import "testing"

func TestNormalizeMode(t *testing.T) {
	cases := []struct {
		in   uint32
		want SourceMode
	}{
		{0, ModeInactive},
		{1, ModeDetached},
		{2, ModeInactive},
		{3, ModeInactive},
		{4, ModeEdge1},
		{5, ModeEdge0},
		{6, ModeLevel1},
		{7, ModeLevel0},
	}
	for _, c := range cases {
		if got := normalizeMode(c.in); got != c.want {
			t.Fatalf("normalizeMode(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestEdgeTrigger(t *testing.T) {
	s := &source{implemented: true}
	s.setMode(ModeEdge1)

	s.setInput(true)
	if !s.pending {
		t.Fatalf("rising edge did not latch pending")
	}
	s.pending = false
	s.setInput(false)
	if s.pending {
		t.Fatalf("falling edge latched pending on a rising-edge source")
	}

	s.setMode(ModeEdge0)
	s.setInput(true)
	if s.pending {
		t.Fatalf("rising edge latched pending on a falling-edge source")
	}
	s.setInput(false)
	if !s.pending {
		t.Fatalf("falling edge did not latch pending")
	}
}

func TestLevelTrigger(t *testing.T) {
	s := &source{implemented: true}
	s.setMode(ModeLevel1)

	s.setInput(true)
	if !s.pending {
		t.Fatalf("active-high level did not raise pending")
	}
	s.setInput(false)
	if s.pending {
		t.Fatalf("pending held after the line deasserted")
	}

	s.setMode(ModeLevel0)
	if !s.pending {
		t.Fatalf("active-low level with a low line did not raise pending")
	}
	s.setInput(true)
	if s.pending {
		t.Fatalf("active-low pending held with the line high")
	}
}

func TestLevelClearRelatches(t *testing.T) {
	s := &source{implemented: true}
	s.setMode(ModeLevel1)
	s.setInput(true)

	s.writePending(false)
	if !s.pending {
		t.Fatalf("clearing a level source while the line is active must re-latch")
	}

	s.setInput(false)
	s.writePending(true)
	if s.pending {
		t.Fatalf("setting a level source with the line inactive must not latch")
	}
}

func TestModeChangeReevaluates(t *testing.T) {
	s := &source{implemented: true}
	s.setMode(ModeEdge1)
	s.setInput(true)
	s.pending = false

	// Entering a level mode samples the line under the new rule.
	s.setMode(ModeLevel1)
	if !s.pending {
		t.Fatalf("switching to level with an active line must raise pending")
	}

	// Leaving level drops the latched state.
	s.setMode(ModeEdge1)
	if s.pending {
		t.Fatalf("switching to edge must clear pending")
	}
}

func TestSetModeSameModeNoTransition(t *testing.T) {
	s := &source{implemented: true}
	s.setMode(ModeLevel1)
	s.setInput(true)
	s.forwarded = true

	s.setMode(ModeLevel1)
	if !s.pending {
		t.Fatalf("rewriting the current mode dropped pending")
	}
	if !s.forwarded {
		t.Fatalf("rewriting the current mode rearmed the source")
	}
}

func TestInactiveIgnoresWrites(t *testing.T) {
	s := &source{implemented: true}
	s.setMode(ModeInactive)
	s.writePending(true)
	if s.pending {
		t.Fatalf("inactive source latched pending")
	}
	if s.enabled {
		t.Fatalf("inactive source kept enable")
	}
}

func TestRectified(t *testing.T) {
	s := &source{implemented: true}
	s.setMode(ModeLevel0)
	if !s.rectified() {
		t.Fatalf("active-low with a low line must rectify high")
	}
	s.setInput(true)
	if s.rectified() {
		t.Fatalf("active-low with a high line must rectify low")
	}

	s.setMode(ModeInactive)
	if s.rectified() {
		t.Fatalf("inactive source must rectify low")
	}
}
