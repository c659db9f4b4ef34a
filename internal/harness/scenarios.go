package harness

import (
	"fmt"

	"github.com/tinyrange/aia/internal/imsic"
	"github.com/tinyrange/aia/internal/platform"
	"github.com/tinyrange/aia/internal/tilelink"
)

// Domain register offsets, mirroring the documented register map. The
// harness keeps its own table so it exercises the controller strictly
// through the bus contract.
const (
	offDomaincfg    = 0x0000
	offSourcecfg    = 0x0004
	offReadonly0    = 0x1000
	offMmsiaddrcfgh = 0x1BC4
	offSmsiaddrcfgh = 0x1BCC
	offSetip        = 0x1C00
	offSetipnum     = 0x1CDC
	offInClrip      = 0x1D00
	offClripnum     = 0x1DDC
	offSetie        = 0x1E00
	offSetienum     = 0x1EDC
	offClrie        = 0x1F00
	offClrienum     = 0x1FDC
	offSetipnumLE   = 0x2000
	offSetipnumBE   = 0x2004
	offGenmsi       = 0x3000
	offTargets      = 0x3004
)

// sourcecfg mode encodings.
const (
	smInactive = 0
	smDetached = 1
	smEdge1    = 4
	smEdge0    = 5
	smLevel1   = 6
	smLevel0   = 7
)

const domaincfgIE = 0x100

// Scenarios returns the full verification sequence list.
func Scenarios() []Scenario {
	return []Scenario{
		{Name: "register-readback", Run: runRegisterReadback},
		{Name: "set-clear", Run: runSetClear},
		{Name: "trigger-modes", Run: runTriggerModes},
		{Name: "rectified-input", Run: runRectifiedInput},
		{Name: "msi-delivery", Run: runMSIDelivery},
		{Name: "msi-delegation", Run: runMSIDelegation},
		{Name: "imsic-csr", Run: runIMSICCSR},
		{Name: "illegal-access", Run: runIllegalAccess},
	}
}

type dut struct {
	p    *platform.Platform
	x    *tilelink.Transactor
	base uint64 // machine domain window
	sg   uint64 // supervisor domain window
}

func openDUT(p *platform.Platform) dut {
	return dut{p: p, x: p.Transactor(), base: p.MachineBase(), sg: p.SupervisorBase()}
}

// writeRead writes a register and checks the readback against want.
func (d dut) writeRead(addr uint64, wrote, want uint32) error {
	if err := d.x.Put32(addr, wrote); err != nil {
		return err
	}
	got, err := d.x.Get32(addr)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("reg 0x%x: wrote 0x%x, read 0x%x, want 0x%x", addr, wrote, got, want)
	}
	return nil
}

func (d dut) expect(addr uint64, want uint32) error {
	got, err := d.x.Get32(addr)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("reg 0x%x: read 0x%x, want 0x%x", addr, got, want)
	}
	return nil
}

// enableSources configures sources 1..n as rising-edge triggered.
func (d dut) enableSources(base uint64, n int) error {
	for i := 1; i <= n; i++ {
		if err := d.x.Put32(base+offSourcecfg+4*uint64(i-1), smEdge1); err != nil {
			return err
		}
	}
	return nil
}

// initHartFiles enables delivery and every identifier on all of a hart's
// interrupt files.
func initHartFiles(h *imsic.Hart, guests int) {
	ctxs := []imsic.Context{imsic.MachineContext, imsic.SupervisorContext}
	for g := 0; g < guests; g++ {
		ctxs = append(ctxs, imsic.VirtualContext(uint32(g)))
	}
	for _, ctx := range ctxs {
		h.CSRWrite(ctx, imsic.IselEidelivery, imsic.OpWrite, 1)
		for w := uint32(0); w < 32; w++ {
			h.CSRWrite(ctx, imsic.IselEieBase+2*w, imsic.OpWrite, ^uint64(0))
		}
	}
}

func runRegisterReadback(p *platform.Platform) error {
	d := openDUT(p)

	// The implementation tag and the pinned DM bit read back no matter
	// what was written.
	if err := d.writeRead(d.base+offDomaincfg, 0xfedcab98, 0x80000104); err != nil {
		return err
	}

	// sourcecfg is WARL: encodings 2 and 3 collapse to inactive, a
	// delegation write keeps its child bits.
	src4 := d.base + offSourcecfg + 3*4
	if err := d.writeRead(src4, 0x2, 0x0); err != nil {
		return err
	}
	if err := d.writeRead(src4, 0x1, 0x1); err != nil {
		return err
	}
	if err := d.writeRead(src4, 0x407, 0x407); err != nil {
		return err
	}

	if err := d.enableSources(d.base, p.Config.APLIC.Sources); err != nil {
		return err
	}

	// Bit 0 of the first pending/enable word is hard-wired zero.
	if err := d.writeRead(d.base+offSetip, 0xf, 0xe); err != nil {
		return err
	}
	if err := d.writeRead(d.base+offSetip+4, 0xf, 0xf); err != nil {
		return err
	}
	if err := d.writeRead(d.base+offSetie, 0xf, 0xe); err != nil {
		return err
	}
	if err := d.writeRead(d.base+offSetie+4, 0xf, 0xf); err != nil {
		return err
	}

	if err := d.writeRead(d.base+offGenmsi, 0x3000, 0x3000); err != nil {
		return err
	}
	if err := d.writeRead(d.base+offTargets, offTargets, offTargets); err != nil {
		return err
	}
	if err := d.writeRead(d.base+offTargets+3*4, offTargets+3*4, offTargets+3*4); err != nil {
		return err
	}
	// Sources beyond the implemented range are read-only-zero.
	if err := d.writeRead(d.base+offTargets+64*4, offTargets+64*4, 0); err != nil {
		return err
	}

	if err := d.writeRead(d.base+offReadonly0+4, 0xdeadbeef, 0); err != nil {
		return err
	}
	// MSI directory geometry is locked: only the machine domain's lock
	// bit is visible.
	if err := d.writeRead(d.base+offMmsiaddrcfgh, 0xdeadbeef, 0x80000000); err != nil {
		return err
	}
	return d.writeRead(d.base+offSmsiaddrcfgh, 0xdeadbeef, 0)
}

func runSetClear(p *platform.Platform) error {
	d := openDUT(p)
	if err := d.enableSources(d.base, p.Config.APLIC.Sources); err != nil {
		return err
	}

	// setienum of the reserved id 0 changes nothing.
	ie0, err := d.x.Get32(d.base + offSetie)
	if err != nil {
		return err
	}
	if err := d.x.Put32(d.base+offSetienum, 0); err != nil {
		return err
	}
	if err := d.expect(d.base+offSetie, ie0); err != nil {
		return fmt.Errorf("setienum(0): %w", err)
	}

	if err := d.x.Put32(d.base+offSetienum, 27); err != nil {
		return err
	}
	if err := d.expect(d.base+offSetie, ie0|1<<27); err != nil {
		return fmt.Errorf("setienum(27): %w", err)
	}

	if err := d.x.Put32(d.base+offClrie, 0xffffffff); err != nil {
		return err
	}
	if err := d.expect(d.base+offSetie, 0); err != nil {
		return fmt.Errorf("clrie word 0: %w", err)
	}

	if err := d.x.Put32(d.base+offSetienum, 63); err != nil {
		return err
	}
	if err := d.expect(d.base+offSetie+4, 1<<31); err != nil {
		return fmt.Errorf("setienum(63): %w", err)
	}
	if err := d.x.Put32(d.base+offClrienum, 63); err != nil {
		return err
	}
	if err := d.expect(d.base+offSetie+4, 0); err != nil {
		return fmt.Errorf("clrienum(63): %w", err)
	}

	// setipnum of id 0 is a no-op too.
	ip0, err := d.x.Get32(d.base + offSetip)
	if err != nil {
		return err
	}
	if err := d.x.Put32(d.base+offSetipnum, 0); err != nil {
		return err
	}
	if err := d.expect(d.base+offSetip, ip0); err != nil {
		return fmt.Errorf("setipnum(0): %w", err)
	}

	// The little-endian alias is live, the big-endian one read-only-zero.
	if err := d.x.Put32(d.base+offSetipnumLE, 54); err != nil {
		return err
	}
	if err := d.expect(d.base+offSetip+4, 1<<(54-32)); err != nil {
		return fmt.Errorf("setipnum_le(54): %w", err)
	}
	if err := d.expect(d.base+offSetipnumBE, 0); err != nil {
		return err
	}
	if err := d.x.Put32(d.base+offClripnum, 54); err != nil {
		return err
	}
	return d.expect(d.base+offSetip+4, 0)
}

func runTriggerModes(p *platform.Platform) error {
	d := openDUT(p)
	src1 := d.base + offSourcecfg

	pending1 := func() (bool, error) {
		w, err := d.x.Get32(d.base + offSetip)
		return w&2 != 0, err
	}
	step := func(mode uint32, level bool, want bool, what string) error {
		if err := d.x.Put32(src1, mode); err != nil {
			return err
		}
		if err := d.p.APLIC.SetSourceLevel(1, level); err != nil {
			return err
		}
		got, err := pending1()
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("%s: pending=%v, want %v", what, got, want)
		}
		return nil
	}

	// Rising edge triggers on 0→1 and holds without auto-clear.
	if err := step(smEdge1, false, false, "edge1 idle"); err != nil {
		return err
	}
	if err := step(smEdge1, true, true, "edge1 rising"); err != nil {
		return err
	}
	if err := step(smEdge1, false, true, "edge1 hold after falling"); err != nil {
		return err
	}

	// Reconfiguring is itself a transition: pending re-evaluates under
	// the new rule before any input change.
	if err := d.p.APLIC.SetSourceLevel(1, true); err != nil {
		return err
	}
	if err := step(smEdge0, true, false, "edge0 after reconfigure"); err != nil {
		return err
	}
	if err := step(smEdge0, false, true, "edge0 falling"); err != nil {
		return err
	}

	if err := step(smLevel1, false, false, "level1 inactive"); err != nil {
		return err
	}
	if err := step(smLevel1, true, true, "level1 active"); err != nil {
		return err
	}

	// A clear-pending write while the level is still active is
	// immediately re-latched.
	if err := d.x.Put32(d.base+offClripnum, 1); err != nil {
		return err
	}
	got, err := pending1()
	if err != nil {
		return err
	}
	if !got {
		return fmt.Errorf("level1: clear while active did not re-latch")
	}

	if err := step(smLevel0, true, false, "level0 inactive"); err != nil {
		return err
	}
	return step(smLevel0, false, true, "level0 active")
}

func runRectifiedInput(p *platform.Platform) error {
	d := openDUT(p)

	modes := []uint32{smEdge1, smEdge0, smLevel1, smLevel0}
	for n, mode := range modes {
		if err := d.x.Put32(d.base+offSourcecfg+4*uint64(3+n), mode); err != nil {
			return err
		}
	}
	// Drive every line to its inactive polarity, then to its active one.
	for n, active := range []bool{true, false, true, false} {
		if err := d.p.APLIC.SetSourceLevel(4+n, !active); err != nil {
			return err
		}
	}
	if err := d.expect(d.base+offInClrip, 0); err != nil {
		return fmt.Errorf("rectified inactive: %w", err)
	}
	for n, active := range []bool{true, false, true, false} {
		if err := d.p.APLIC.SetSourceLevel(4+n, active); err != nil {
			return err
		}
	}
	return d.expect(d.base+offInClrip, 0xf0)
}

func runMSIDelivery(p *platform.Platform) error {
	d := openDUT(p)
	guests := p.Config.IMSIC.Guests
	for n := 0; n < p.Config.Harts; n++ {
		initHartFiles(p.IMSIC.Hart(n), guests)
	}

	if err := d.x.Put32(d.base+offDomaincfg, domaincfgIE); err != nil {
		return err
	}
	if err := d.enableSources(d.base, p.Config.APLIC.Sources); err != nil {
		return err
	}

	// Source 27 targets EIID 0xCA in guest file 2: the MSI must land at
	// machineBase + 0x1000*2.
	if err := d.x.Put32(d.base+offTargets+26*4, 2<<12|0xca); err != nil {
		return err
	}
	if err := d.x.Put32(d.base+offSetie, 0xffffffff); err != nil {
		return err
	}
	if err := d.x.Put32(d.base+offSetipnum, 27); err != nil {
		return err
	}
	// With one machine page per hart, page 2 is hart 2's machine file.
	h2 := p.IMSIC.Hart(2)
	if got, want := h2.TopEI(imsic.MachineContext), imsic.WrapTopEI(0xca); got != want {
		return fmt.Errorf("guest-indexed MSI: topei=0x%x, want 0x%x", got, want)
	}

	// Source 63, guest 0: delivered, claimed, then re-delivered from a
	// wire edge. Forwarding rearms an edge source.
	if err := d.x.Put32(d.base+offTargets+62*4, 0xef); err != nil {
		return err
	}
	if err := d.x.Put32(d.base+offSetie+4, 1<<31); err != nil {
		return err
	}
	if err := d.x.Put32(d.base+offSetipnum, 63); err != nil {
		return err
	}
	h0 := p.IMSIC.Hart(0)
	if got, want := h0.TopEI(imsic.MachineContext), imsic.WrapTopEI(0xef); got != want {
		return fmt.Errorf("MSI from setipnum: topei=0x%x, want 0x%x", got, want)
	}
	if got, want := h0.Claim(imsic.MachineContext), imsic.WrapTopEI(0xef); got != want {
		return fmt.Errorf("claim: got 0x%x, want 0x%x", got, want)
	}
	if err := d.p.APLIC.PulseSource(63); err != nil {
		return err
	}
	if got, want := h0.TopEI(imsic.MachineContext), imsic.WrapTopEI(0xef); got != want {
		return fmt.Errorf("MSI from wire edge: topei=0x%x, want 0x%x", got, want)
	}
	return nil
}

func runMSIDelegation(p *platform.Platform) error {
	d := openDUT(p)
	for n := 0; n < p.Config.Harts; n++ {
		initHartFiles(p.IMSIC.Hart(n), p.Config.IMSIC.Guests)
	}

	const src = 43
	srcOff := 4 * uint64(src-1)

	if err := d.x.Put32(d.base+offDomaincfg, domaincfgIE); err != nil {
		return err
	}
	// Delegate source 43 to the supervisor domain. The parent's copy of
	// the source becomes unaddressable.
	if err := d.x.Put32(d.base+offSourcecfg+srcOff, 1<<10); err != nil {
		return err
	}
	if err := d.writeRead(d.base+offTargets+srcOff, 0xab, 0); err != nil {
		return fmt.Errorf("parent target of delegated source: %w", err)
	}
	if err := d.x.Put32(d.base+offSetie+4, 1<<(src-32)); err != nil {
		return err
	}
	if err := d.expect(d.base+offSetie+4, 0); err != nil {
		return fmt.Errorf("parent enable of delegated source: %w", err)
	}

	// The child domain owns the source: configure and enable it there.
	if err := d.x.Put32(d.sg+offDomaincfg, domaincfgIE); err != nil {
		return err
	}
	if err := d.x.Put32(d.sg+offSourcecfg+srcOff, smEdge1); err != nil {
		return err
	}
	if err := d.x.Put32(d.sg+offTargets+srcOff, 3<<12|0xab); err != nil {
		return err
	}
	if err := d.x.Put32(d.sg+offSetie+4, 1<<(src-32)); err != nil {
		return err
	}

	if err := d.p.APLIC.PulseSource(src); err != nil {
		return err
	}

	// Supervisor guest page 3 is the vgein-2 virtual file.
	h0 := p.IMSIC.Hart(0)
	if got, want := h0.TopEI(imsic.VirtualContext(2)), imsic.WrapTopEI(0xab); got != want {
		return fmt.Errorf("delegated MSI: vs topei=0x%x, want 0x%x", got, want)
	}
	return nil
}

func runIMSICCSR(p *platform.Platform) error {
	d := openDUT(p)
	h := p.IMSIC.Hart(0)
	initHartFiles(h, p.Config.IMSIC.Guests)
	mctx := imsic.MachineContext

	// An MSI write straight into the machine page latches its identifier.
	if err := d.x.Put32(p.Config.IMSIC.MachineBase, 1996%256); err != nil {
		return err
	}
	if got, want := h.TopEI(mctx), imsic.WrapTopEI(1996%256); got != want {
		return fmt.Errorf("seteipnum: topei=0x%x, want 0x%x", got, want)
	}
	if got, want := h.Claim(mctx), imsic.WrapTopEI(1996%256); got != want {
		return fmt.Errorf("claim: got 0x%x, want 0x%x", got, want)
	}
	if got := h.TopEI(mctx); got != 0 {
		return fmt.Errorf("topei after claim: got 0x%x, want 0", got)
	}

	// Two pending identifiers: the smaller wins, claim uncovers the next.
	if err := d.x.Put32(p.Config.IMSIC.MachineBase, 12); err != nil {
		return err
	}
	if err := d.x.Put32(p.Config.IMSIC.MachineBase, 8); err != nil {
		return err
	}
	if got, want := h.TopEI(mctx), imsic.WrapTopEI(8); got != want {
		return fmt.Errorf("two pending: topei=0x%x, want 0x%x", got, want)
	}
	if got, want := h.Claim(mctx), imsic.WrapTopEI(8); got != want {
		return fmt.Errorf("claim(8): got 0x%x, want 0x%x", got, want)
	}
	if got, want := h.TopEI(mctx), imsic.WrapTopEI(12); got != want {
		return fmt.Errorf("after claim: topei=0x%x, want 0x%x", got, want)
	}

	// Set/clear operation codes combine with the stored value.
	h.CSRWrite(mctx, imsic.IselEidelivery, imsic.OpSet, 0xc0)
	if got := h.CSRRead(mctx, imsic.IselEidelivery); got != 0xc1 {
		return fmt.Errorf("eidelivery after set: 0x%x, want 0xc1", got)
	}
	h.CSRWrite(mctx, imsic.IselEidelivery, imsic.OpClear, 0xc0)
	if got := h.CSRRead(mctx, imsic.IselEidelivery); got != 0x1 {
		return fmt.Errorf("eidelivery after clear: 0x%x, want 0x1", got)
	}

	// Threshold masks ids at or above it and readmits below; 0 disables
	// masking.
	top := h.TopEI(mctx) & 0x7ff // id 12
	h.CSRWrite(mctx, imsic.IselEithreshold, imsic.OpWrite, uint64(top))
	if got := h.TopEI(mctx); got != 0 {
		return fmt.Errorf("threshold=id: topei=0x%x, want 0", got)
	}
	h.CSRWrite(mctx, imsic.IselEithreshold, imsic.OpWrite, uint64(top+1))
	if got, want := h.TopEI(mctx), imsic.WrapTopEI(top); got != want {
		return fmt.Errorf("threshold=id+1: topei=0x%x, want 0x%x", got, want)
	}
	h.CSRWrite(mctx, imsic.IselEithreshold, imsic.OpWrite, 0)

	// Direct eip writes: bit 0 is reserved, the lowest set bit wins.
	h.CSRWrite(mctx, imsic.IselEipBase, imsic.OpWrite, 0xc)
	if got, want := h.TopEI(mctx), imsic.WrapTopEI(2); got != want {
		return fmt.Errorf("eip write: topei=0x%x, want 0x%x", got, want)
	}
	h.CSRWrite(mctx, imsic.IselEipBase, imsic.OpWrite, 0x1)
	if got := h.CSRRead(mctx, imsic.IselEipBase); got != 0 {
		return fmt.Errorf("eip bit 0 stored: 0x%x, want 0", got)
	}
	if err := d.x.Put32(p.Config.IMSIC.MachineBase, 0); err != nil {
		return err
	}
	if got := h.CSRRead(mctx, imsic.IselEipBase); got != 0 {
		return fmt.Errorf("seteipnum(0) stored: 0x%x, want 0", got)
	}

	// Disabling the enable bit hides the candidate; re-enabling restores
	// it.
	h.CSRWrite(mctx, imsic.IselEipBase, imsic.OpWrite, 1<<5)
	h.CSRWrite(mctx, imsic.IselEieBase, imsic.OpClear, 1<<5)
	if got := h.TopEI(mctx); got != 0 {
		return fmt.Errorf("disabled id visible: topei=0x%x", got)
	}
	h.CSRWrite(mctx, imsic.IselEieBase, imsic.OpSet, 1<<5)
	if got, want := h.TopEI(mctx), imsic.WrapTopEI(5); got != want {
		return fmt.Errorf("re-enabled id: topei=0x%x, want 0x%x", got, want)
	}

	// Supervisor and virtual files are independent of the machine file.
	if err := d.x.Put32(p.Config.IMSIC.SupervisorBase, 1234%256); err != nil {
		return err
	}
	if got, want := h.TopEI(imsic.SupervisorContext), imsic.WrapTopEI(1234%256); got != want {
		return fmt.Errorf("supervisor file: topei=0x%x, want 0x%x", got, want)
	}
	if err := d.x.Put32(p.Config.IMSIC.SupervisorBase+imsic.PageSize*3, 137); err != nil {
		return err
	}
	if got, want := h.TopEI(imsic.VirtualContext(2)), imsic.WrapTopEI(137); got != want {
		return fmt.Errorf("virtual file: topei=0x%x, want 0x%x", got, want)
	}
	return nil
}

func runIllegalAccess(p *platform.Platform) error {
	h := p.IMSIC.Hart(0)
	initHartFiles(h, p.Config.IMSIC.Guests)
	mctx := imsic.MachineContext

	snapshot := func() [3]uint64 {
		return [3]uint64{
			h.CSRRead(mctx, imsic.IselEidelivery),
			h.CSRRead(mctx, imsic.IselEipBase),
			h.CSRRead(mctx, imsic.IselEieBase),
		}
	}
	before := snapshot()

	cases := []struct {
		name string
		run  func()
	}{
		{"reserved selector", func() { h.CSRWrite(mctx, 0x71, imsic.OpSet, 0xc0) }},
		{"unsupported guest", func() {
			h.CSRWrite(imsic.VirtualContext(uint32(p.Config.IMSIC.Guests)), imsic.IselEidelivery, imsic.OpWrite, 1)
		}},
		{"reserved op", func() { h.CSRWrite(mctx, imsic.IselEidelivery, imsic.OpIllegal, 0xc0) }},
		{"machine+virtual", func() {
			h.CSRWrite(imsic.Context{Priv: imsic.PrivMachine, Virt: true}, imsic.IselEidelivery, imsic.OpWrite, 0xfa)
		}},
	}

	for _, tc := range cases {
		tc.run()
		if !h.Illegal() {
			return fmt.Errorf("%s: illegal flag not set", tc.name)
		}
		if got := snapshot(); got != before {
			return fmt.Errorf("%s: register state changed: %v != %v", tc.name, got, before)
		}
		// A subsequent legal access clears the sticky flag.
		h.CSRWrite(mctx, imsic.IselEithreshold, imsic.OpWrite, 0)
		if h.Illegal() {
			return fmt.Errorf("%s: illegal flag sticky after legal access", tc.name)
		}
	}
	return nil
}
