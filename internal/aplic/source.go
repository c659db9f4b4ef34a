package aplic

// SourceMode is the WARL trigger mode held in sourcecfg when the source is
// not delegated. Encodings 2 and 3 are illegal and collapse to inactive.
type SourceMode uint8

const (
	ModeInactive SourceMode = 0
	ModeDetached SourceMode = 1
	ModeEdge1    SourceMode = 4 // edge-sensitive, rising
	ModeEdge0    SourceMode = 5 // edge-sensitive, falling
	ModeLevel1   SourceMode = 6 // level-sensitive, active high
	ModeLevel0   SourceMode = 7 // level-sensitive, active low
)

// normalizeMode collapses illegal sourcecfg mode encodings to inactive.
func normalizeMode(v uint32) SourceMode {
	m := SourceMode(v & sourcecfgSMMask)
	if m == 2 || m == 3 {
		return ModeInactive
	}
	return m
}

func (m SourceMode) level() bool {
	return m == ModeLevel1 || m == ModeLevel0
}

func (m SourceMode) edge() bool {
	return m == ModeEdge1 || m == ModeEdge0
}

// source is one interrupt input of a domain. Sources are held in a
// fixed-size array indexed by source id; index 0 is reserved and never
// backed by state.
type source struct {
	// implemented is false for a child-domain source the parent has not
	// delegated. Unimplemented sources are read-only-zero.
	implemented bool

	mode      SourceMode
	delegated bool
	rawCfg    uint32 // sourcecfg readback while delegated

	input   bool // last sampled wire level
	pending bool
	enabled bool

	// forwarded latches that a notification was issued for the current
	// pending episode so polling while still pending does not re-issue.
	forwarded bool

	target uint32
}

// rectified returns the input as seen through the configured polarity. This
// is the value the in_clrip window reads back.
func (s *source) rectified() bool {
	switch s.mode {
	case ModeEdge1, ModeLevel1:
		return s.input
	case ModeEdge0, ModeLevel0:
		return !s.input
	default:
		return false
	}
}

// setMode reconfigures the trigger mode. Entering a mode is itself a
// transition: pending is re-evaluated against the current input under the
// new rule, so switching an edge source to level while the line is active
// raises pending immediately. Rewriting the current mode is not a
// transition and leaves the pending/forwarded state alone.
func (s *source) setMode(m SourceMode) {
	if m == s.mode {
		return
	}
	s.mode = m
	if m.level() {
		s.pending = s.rectified()
	} else {
		s.pending = false
	}
	s.forwarded = false
	if m == ModeInactive {
		s.enabled = false
	}
}

// setInput samples a new wire level and applies the trigger rule.
func (s *source) setInput(high bool) {
	prev := s.input
	s.input = high
	switch s.mode {
	case ModeEdge1:
		if !prev && high {
			s.pending = true
		}
	case ModeEdge0:
		if prev && !high {
			s.pending = true
		}
	case ModeLevel1, ModeLevel0:
		s.pending = s.rectified()
	}
	if !s.pending {
		s.forwarded = false
	}
}

// writePending applies an explicit set/clear-pending register write.
// Inactive sources ignore writes; level sources re-latch from the rectified
// input, so a clear while the line is still active is immediately observed
// as pending again.
func (s *source) writePending(set bool) {
	switch s.mode {
	case ModeInactive:
		// pending is forced zero
	case ModeLevel1, ModeLevel0:
		s.pending = s.rectified()
	default:
		s.pending = set
	}
	if !s.pending {
		s.forwarded = false
	}
}

func (s *source) active() bool {
	return s.implemented && !s.delegated && s.mode != ModeInactive
}
