package aplic

import (
	"fmt"

	"github.com/tinyrange/aia/internal/tilelink"
)

// DeliveryMode selects how a domain forwards pending interrupts.
type DeliveryMode uint8

const (
	DeliverDirect DeliveryMode = iota
	DeliverMSI
)

// MSIDirectory describes where a domain's MSI writes land: the base of the
// first hart's first interrupt-file page plus the strides separating harts
// and guest files. Size bounds the window; a target composed outside
// [Base, Base+Size) is rejected rather than issued, so a forged hart or
// guest index in targets[i] can never reach an unrelated bus window.
type MSIDirectory struct {
	Base        uint64
	Size        uint64
	HartStride  uint64
	GuestStride uint64
}

// Target returns the interrupt-file address for a hart/guest pair.
func (d MSIDirectory) Target(hart, guest uint32) uint64 {
	return d.Base + d.HartStride*uint64(hart) + d.GuestStride*uint64(guest)
}

// Contains reports whether addr falls inside the directory window.
func (d MSIDirectory) Contains(addr uint64) bool {
	return addr >= d.Base && addr < d.Base+d.Size
}

// DirectSink receives direct-wire notifications from a domain configured for
// direct delivery. The consumer (a hart CSR unit) is outside this model.
type DirectSink interface {
	Assert(hart uint32, priority uint32, source uint32)
}

// DirectSinkFunc adapts a function to DirectSink.
type DirectSinkFunc func(hart, priority, source uint32)

// Assert implements DirectSink.
func (f DirectSinkFunc) Assert(hart, priority, source uint32) {
	if f != nil {
		f(hart, priority, source)
	}
}

type noopDirectSink struct{}

func (noopDirectSink) Assert(uint32, uint32, uint32) {}

// domain is one interrupt domain: the machine domain or the supervisor/guest
// domain below it. Locking lives in the owning APLIC; at most one register
// access is applied per domain per cycle.
type domain struct {
	name    string
	machine bool
	mode    DeliveryMode
	msi     MSIDirectory
	xact    *tilelink.Transactor
	direct  DirectSink

	enabled   bool
	bigEndian bool
	genmsi    uint32

	sources []source // indexed 1..numSources; slot 0 unused

	child  *domain
	parent *domain
}

func newDomain(name string, numSources int, implemented bool) *domain {
	d := &domain{
		name:    name,
		sources: make([]source, numSources+1),
		direct:  noopDirectSink{},
	}
	for i := 1; i <= numSources; i++ {
		d.sources[i].implemented = implemented
	}
	return d
}

func (d *domain) numSources() int {
	return len(d.sources) - 1
}

func (d *domain) validSource(i int) bool {
	return i >= 1 && i <= d.numSources()
}

// readReg decodes a 32-bit register read. Unbacked offsets inside the window
// read zero rather than being denied.
func (d *domain) readReg(off uint64) uint32 {
	switch {
	case off == offDomaincfg:
		v := uint32(domaincfgTag)
		if d.mode == DeliverMSI {
			v |= domaincfgDM
		}
		if d.enabled {
			v |= domaincfgIE
		}
		if d.bigEndian {
			v |= domaincfgBE
		}
		return v

	case off >= offSourcecfg && off < offReadonly0:
		i := int((off-offSourcecfg)/4) + 1
		if !d.validSource(i) || !d.sources[i].implemented {
			return 0
		}
		s := &d.sources[i]
		if s.delegated {
			return s.rawCfg
		}
		return uint32(s.mode)

	case off == offMmsiaddrcfgh:
		// Geometry is fixed by platform configuration: only the lock bit
		// is exposed, and only in the machine domain.
		if d.machine {
			return msiaddrcfghL
		}
		return 0

	case off >= offSetip && off < offSetip+4*bitmapWords:
		return d.bitmapWord(int((off-offSetip)/4), func(s *source) bool { return s.pending })

	case off >= offInClrip && off < offInClrip+4*bitmapWords:
		return d.bitmapWord(int((off-offInClrip)/4), func(s *source) bool { return s.rectified() })

	case off >= offSetie && off < offSetie+4*bitmapWords:
		return d.bitmapWord(int((off-offSetie)/4), func(s *source) bool { return s.enabled })

	case off == offGenmsi:
		return d.genmsi

	case off >= offTargets && off < offTargets+4*uint64(MaxSources):
		i := int((off-offTargets)/4) + 1
		if !d.validSource(i) {
			return 0
		}
		s := &d.sources[i]
		if !s.active() {
			return 0
		}
		return s.target

	default:
		// domaincfg tag aside, everything unlisted (the reserved block,
		// mmsiaddrcfg/smsiaddrcfg halves, the *num windows, clrie) is
		// read-only-zero.
		return 0
	}
}

func (d *domain) bitmapWord(word int, bit func(*source) bool) uint32 {
	var v uint32
	for b := 0; b < 32; b++ {
		i := word*32 + b
		if i == 0 || !d.validSource(i) {
			continue
		}
		s := &d.sources[i]
		if !s.implemented || s.delegated {
			continue
		}
		if bit(s) {
			v |= 1 << b
		}
	}
	return v
}

// writeReg decodes a 32-bit register write. The only error path is a fatal
// MSI forwarding failure bubbling up from the delivery engine.
func (d *domain) writeReg(off uint64, v uint32) error {
	switch {
	case off == offDomaincfg:
		d.bigEndian = v&domaincfgBE != 0
		d.enabled = v&domaincfgIE != 0
		// DM is WARL with a single legal value pinned by the domain's
		// delivery capability; the written bit is ignored.
		return d.evaluate()

	case off >= offSourcecfg && off < offReadonly0:
		i := int((off-offSourcecfg)/4) + 1
		if !d.validSource(i) || !d.sources[i].implemented {
			return nil
		}
		return d.writeSourcecfg(i, v)

	case off >= offSetip && off < offSetip+4*bitmapWords:
		d.writeBitmap(int((off-offSetip)/4), v, true)
		return d.evaluate()

	case off == offSetipnum:
		d.writeByNumber(v, true)
		return d.evaluate()

	case off >= offInClrip && off < offInClrip+4*bitmapWords:
		d.writeBitmap(int((off-offInClrip)/4), v, false)
		return nil

	case off == offClripnum:
		d.writeByNumber(v, false)
		return nil

	case off >= offSetie && off < offSetie+4*bitmapWords:
		d.writeEnableBitmap(int((off-offSetie)/4), v, true)
		return d.evaluate()

	case off == offSetienum:
		d.writeEnableByNumber(v, true)
		return d.evaluate()

	case off >= offClrie && off < offClrie+4*bitmapWords:
		d.writeEnableBitmap(int((off-offClrie)/4), v, false)
		return nil

	case off == offClrienum:
		d.writeEnableByNumber(v, false)
		return nil

	case off == offSetipnumLE:
		// Exactly one of the byte-order variants is live, selected by
		// domaincfg.BE; the other is permanently read-only-zero.
		if !d.bigEndian {
			d.writeByNumber(v, true)
			return d.evaluate()
		}
		return nil

	case off == offSetipnumBE:
		if d.bigEndian {
			d.writeByNumber(v, true)
			return d.evaluate()
		}
		return nil

	case off == offGenmsi:
		d.genmsi = v
		return d.sendGenmsi(v)

	case off >= offTargets && off < offTargets+4*uint64(MaxSources):
		i := int((off-offTargets)/4) + 1
		if !d.validSource(i) {
			return nil
		}
		s := &d.sources[i]
		if !s.active() {
			return nil
		}
		if d.mode == DeliverMSI {
			s.target = v & targetMSIWriteMask
		} else {
			t := v & targetDirectWriteMask
			if t&targetPrioMask == 0 {
				t |= 1 // priority 0 is illegal, WARL to 1
			}
			s.target = t
		}
		return nil

	default:
		// Reserved and read-only offsets ignore writes.
		return nil
	}
}

func (d *domain) writeSourcecfg(i int, v uint32) error {
	s := &d.sources[i]
	if v&sourcecfgD != 0 {
		if d.child == nil {
			// Nowhere to delegate: the write collapses to inactive.
			s.setMode(ModeInactive)
			return nil
		}
		wasDelegated := s.delegated
		s.delegated = true
		s.rawCfg = v & (sourcecfgD | sourcecfgChildMask)
		s.pending = false
		s.enabled = false
		s.forwarded = false
		if !wasDelegated {
			d.child.adoptSource(i, s.input)
		}
		return nil
	}

	if s.delegated {
		// Revoking delegation forces the child copy inactive.
		s.delegated = false
		s.rawCfg = 0
		d.child.disownSource(i)
	}
	s.setMode(normalizeMode(v))
	return d.evaluate()
}

// adoptSource makes a parent-delegated source configurable in this domain,
// seeding it with the current wire level.
func (d *domain) adoptSource(i int, input bool) {
	if !d.validSource(i) {
		return
	}
	s := &d.sources[i]
	*s = source{implemented: true, input: input}
}

// disownSource revokes a delegation: the source becomes read-only-zero here.
func (d *domain) disownSource(i int) {
	if !d.validSource(i) {
		return
	}
	d.sources[i] = source{}
}

// setInput samples a new level on a source wire. Delegated sources forward
// the sample to the child domain, which owns all of their state.
func (d *domain) setInput(i int, high bool) error {
	if !d.validSource(i) {
		return fmt.Errorf("aplic: %s: source %d out of range", d.name, i)
	}
	s := &d.sources[i]
	if s.delegated && d.child != nil {
		s.input = high
		return d.child.setInput(i, high)
	}
	s.setInput(high)
	return d.evaluate()
}

func (d *domain) writeBitmap(word int, v uint32, set bool) {
	for b := 0; b < 32; b++ {
		i := word*32 + b
		if i == 0 || v&(1<<b) == 0 || !d.validSource(i) {
			continue
		}
		s := &d.sources[i]
		if !s.implemented || s.delegated {
			continue
		}
		s.writePending(set)
	}
}

func (d *domain) writeByNumber(v uint32, set bool) {
	i := int(v)
	if i == 0 || !d.validSource(i) {
		return
	}
	s := &d.sources[i]
	if !s.implemented || s.delegated {
		return
	}
	s.writePending(set)
}

func (d *domain) writeEnableBitmap(word int, v uint32, set bool) {
	for b := 0; b < 32; b++ {
		i := word*32 + b
		if i == 0 || v&(1<<b) == 0 || !d.validSource(i) {
			continue
		}
		d.writeEnable(i, set)
	}
}

func (d *domain) writeEnableByNumber(v uint32, set bool) {
	i := int(v)
	if i == 0 || !d.validSource(i) {
		return
	}
	d.writeEnable(i, set)
}

func (d *domain) writeEnable(i int, set bool) {
	s := &d.sources[i]
	if !s.active() {
		return
	}
	s.enabled = set
	if !set {
		s.forwarded = false
	}
}
