package aplic

import "fmt"

// evaluate runs the delivery engine: every pending+enabled source under an
// enabled domain produces exactly one notification per pending 0→1
// transition. MSI domains forward a bus write to the target interrupt file;
// direct domains assert the configured (hart, priority) pair on the sink.
func (d *domain) evaluate() error {
	if !d.enabled {
		return nil
	}
	for i := 1; i <= d.numSources(); i++ {
		s := &d.sources[i]
		if !s.active() || !s.pending || !s.enabled || s.forwarded {
			continue
		}
		if err := d.notify(i, s); err != nil {
			return err
		}
	}
	return nil
}

func (d *domain) notify(i int, s *source) error {
	if d.mode == DeliverMSI {
		hart := (s.target >> targetHartShift) & targetHartMask
		guest := (s.target >> targetGuestShift) & targetGuestMask
		eiid := s.target & targetEIIDMask
		if err := d.sendMSI(hart, guest, eiid); err != nil {
			return err
		}
		s.forwarded = true
		// Edge and detached sources rearm once forwarded; level sources
		// stay pending until the input deasserts and the forwarded latch
		// suppresses re-issue.
		if !s.mode.level() {
			s.pending = false
			s.forwarded = false
		}
		return nil
	}

	hart := (s.target >> targetHartShift) & targetHartMask
	prio := s.target & targetPrioMask
	d.direct.Assert(hart, prio, uint32(i))
	s.forwarded = true
	return nil
}

// sendGenmsi forwards the extra MSI requested by a genmsi write: EIID from
// the low bits, hart index from the high bits, guest 0.
func (d *domain) sendGenmsi(v uint32) error {
	if d.mode != DeliverMSI {
		return nil
	}
	hart := (v >> genmsiHartShift) & genmsiHartMask
	eiid := v & genmsiEIIDMask
	return d.sendMSI(hart, 0, eiid)
}

func (d *domain) sendMSI(hart, guest, eiid uint32) error {
	if d.xact == nil {
		return fmt.Errorf("aplic: %s: MSI delivery without a bus transactor", d.name)
	}
	addr := d.msi.Target(hart, guest)
	if !d.msi.Contains(addr) {
		return fmt.Errorf("aplic: %s: MSI target 0x%x (hart=%d guest=%d) outside the interrupt-file directory",
			d.name, addr, hart, guest)
	}
	if err := d.xact.Put32(addr, eiid); err != nil {
		return fmt.Errorf("aplic: %s: forward MSI eiid=%d hart=%d guest=%d: %w",
			d.name, eiid, hart, guest, err)
	}
	return nil
}
