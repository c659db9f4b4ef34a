package aplic

import (
	"testing"

	"github.com/tinyrange/aia/internal/tilelink"
)

const testBase = 0x1000_0000

func testConfig() Config {
	return Config{
		Base:          testBase,
		NumSources:    63,
		MachineMSI:    MSIDirectory{Base: 0x6100_0000, Size: 4 * 0x1000, HartStride: 0x1000, GuestStride: 0x1000},
		SupervisorMSI: MSIDirectory{Base: 0x8290_0000, Size: 4 * 0x5000, HartStride: 0x5000, GuestStride: 0x1000},
	}
}

func newTestAPLIC(t *testing.T) (*APLIC, *msiRecorder, *tilelink.Transactor) {
	t.Helper()
	rec := &msiRecorder{}
	a, err := New(testConfig(), rec)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, rec, tilelink.NewTransactor(a)
}

func wr(t *testing.T, x *tilelink.Transactor, addr uint64, v uint32) {
	t.Helper()
	if err := x.Put32(addr, v); err != nil {
		t.Fatalf("write 0x%x: %v", addr, err)
	}
}

func rd(t *testing.T, x *tilelink.Transactor, addr uint64) uint32 {
	t.Helper()
	v, err := x.Get32(addr)
	if err != nil {
		t.Fatalf("read 0x%x: %v", addr, err)
	}
	return v
}

func srcCfg(base uint64, i int) uint64 {
	return base + offSourcecfg + 4*uint64(i-1)
}

func srcTarget(base uint64, i int) uint64 {
	return base + offTargets + 4*uint64(i-1)
}

func TestDomaincfgReadback(t *testing.T) {
	_, _, x := newTestAPLIC(t)

	wr(t, x, testBase+offDomaincfg, 0xfedcab98)
	if got := rd(t, x, testBase+offDomaincfg); got != 0x80000104 {
		t.Fatalf("domaincfg = 0x%x, want 0x80000104", got)
	}

	// Clearing IE keeps the tag and the pinned delivery-mode bit.
	wr(t, x, testBase+offDomaincfg, 0)
	if got := rd(t, x, testBase+offDomaincfg); got != 0x80000004 {
		t.Fatalf("domaincfg = 0x%x, want 0x80000004", got)
	}
}

func TestSourcecfgWARL(t *testing.T) {
	_, _, x := newTestAPLIC(t)

	for _, illegal := range []uint32{2, 3} {
		wr(t, x, srcCfg(testBase, 1), illegal)
		if got := rd(t, x, srcCfg(testBase, 1)); got != 0 {
			t.Fatalf("sourcecfg after write %d = 0x%x, want 0", illegal, got)
		}
	}

	wr(t, x, srcCfg(testBase, 1), 7)
	if got := rd(t, x, srcCfg(testBase, 1)); got != 7 {
		t.Fatalf("sourcecfg = 0x%x, want 7", got)
	}

	// Delegation reads back the raw delegate word.
	wr(t, x, srcCfg(testBase, 1), 0x407)
	if got := rd(t, x, srcCfg(testBase, 1)); got != 0x407 {
		t.Fatalf("delegated sourcecfg = 0x%x, want 0x407", got)
	}

	// Revoking delegation restores a plain mode field.
	wr(t, x, srcCfg(testBase, 1), 6)
	if got := rd(t, x, srcCfg(testBase, 1)); got != 6 {
		t.Fatalf("sourcecfg = 0x%x, want 6", got)
	}
}

func TestChildlessDelegationCollapses(t *testing.T) {
	_, _, x := newTestAPLIC(t)

	// The supervisor domain has no child to delegate to; a delegate write
	// collapses to inactive.
	sg := uint64(testBase + DomainWindowSize)
	wr(t, x, srcCfg(testBase, 1), sourcecfgD)
	wr(t, x, srcCfg(sg, 1), uint32(ModeEdge1))
	wr(t, x, srcCfg(sg, 1), 0x407)
	if got := rd(t, x, srcCfg(sg, 1)); got != 0 {
		t.Fatalf("childless delegation readback = 0x%x, want 0", got)
	}
}

func TestSetipBitZeroReadOnly(t *testing.T) {
	_, _, x := newTestAPLIC(t)

	for i := 1; i <= 3; i++ {
		wr(t, x, srcCfg(testBase, i), uint32(ModeEdge1))
	}
	wr(t, x, testBase+offSetip, 0xf)
	if got := rd(t, x, testBase+offSetip); got != 0xe {
		t.Fatalf("setip[0] = 0x%x, want 0xe", got)
	}

	wr(t, x, testBase+offInClrip, 0xe)
	if got := rd(t, x, testBase+offSetip); got != 0 {
		t.Fatalf("setip[0] after clear = 0x%x, want 0", got)
	}
}

func TestPendingByNumber(t *testing.T) {
	_, _, x := newTestAPLIC(t)

	wr(t, x, srcCfg(testBase, 5), uint32(ModeEdge1))
	wr(t, x, testBase+offSetipnum, 5)
	if got := rd(t, x, testBase+offSetip); got != 1<<5 {
		t.Fatalf("setip[0] = 0x%x, want 0x20", got)
	}

	// Id zero is a no-op for every *num register.
	wr(t, x, testBase+offSetipnum, 0)
	wr(t, x, testBase+offClripnum, 0)
	if got := rd(t, x, testBase+offSetip); got != 1<<5 {
		t.Fatalf("setip[0] = 0x%x after id-0 writes, want 0x20", got)
	}

	wr(t, x, testBase+offClripnum, 5)
	if got := rd(t, x, testBase+offSetip); got != 0 {
		t.Fatalf("setip[0] = 0x%x after clripnum, want 0", got)
	}
}

func TestEnableWindows(t *testing.T) {
	_, _, x := newTestAPLIC(t)

	for i := 1; i <= 4; i++ {
		wr(t, x, srcCfg(testBase, i), uint32(ModeEdge1))
	}
	wr(t, x, testBase+offSetienum, 3)
	wr(t, x, testBase+offSetienum, 4)
	if got := rd(t, x, testBase+offSetie); got != 0x18 {
		t.Fatalf("setie[0] = 0x%x, want 0x18", got)
	}

	wr(t, x, testBase+offClrienum, 3)
	if got := rd(t, x, testBase+offSetie); got != 0x10 {
		t.Fatalf("setie[0] = 0x%x, want 0x10", got)
	}

	wr(t, x, testBase+offClrie, 0x10)
	if got := rd(t, x, testBase+offSetie); got != 0 {
		t.Fatalf("setie[0] = 0x%x, want 0", got)
	}

	// clrie reads back zero; it is a write-only window.
	if got := rd(t, x, testBase+offClrie); got != 0 {
		t.Fatalf("clrie[0] = 0x%x, want 0", got)
	}
}

func TestSetipnumByteOrderVariants(t *testing.T) {
	_, _, x := newTestAPLIC(t)

	for i := 1; i <= 8; i++ {
		wr(t, x, srcCfg(testBase, i), uint32(ModeEdge1))
	}

	// Little-endian domain: the LE variant is live, the BE variant inert.
	wr(t, x, testBase+offSetipnumLE, 5)
	wr(t, x, testBase+offSetipnumBE, 6)
	if got := rd(t, x, testBase+offSetip); got != 1<<5 {
		t.Fatalf("setip[0] = 0x%x, want 0x20", got)
	}

	wr(t, x, testBase+offClripnum, 5)
	wr(t, x, testBase+offDomaincfg, domaincfgBE)
	wr(t, x, testBase+offSetipnumBE, 7)
	wr(t, x, testBase+offSetipnumLE, 8)
	if got := rd(t, x, testBase+offSetip); got != 1<<7 {
		t.Fatalf("setip[0] = 0x%x, want 0x80", got)
	}
}

func TestRectifiedInputWindow(t *testing.T) {
	a, _, x := newTestAPLIC(t)

	// Active-low sources with idle (low) lines rectify high.
	for i := 4; i <= 7; i++ {
		wr(t, x, srcCfg(testBase, i), uint32(ModeLevel0))
	}
	if got := rd(t, x, testBase+offInClrip); got != 0xf0 {
		t.Fatalf("in_clrip[0] = 0x%x, want 0xf0", got)
	}

	if err := a.SetSourceLevel(5, true); err != nil {
		t.Fatalf("SetSourceLevel: %v", err)
	}
	if got := rd(t, x, testBase+offInClrip); got != 0xd0 {
		t.Fatalf("in_clrip[0] = 0x%x, want 0xd0", got)
	}
}

func TestMsiAddrCfg(t *testing.T) {
	_, _, x := newTestAPLIC(t)

	if got := rd(t, x, testBase+offMmsiaddrcfgh); got != 0x80000000 {
		t.Fatalf("mmsiaddrcfgh = 0x%x, want 0x80000000", got)
	}
	if got := rd(t, x, testBase+offMmsiaddrcfg); got != 0 {
		t.Fatalf("mmsiaddrcfg = 0x%x, want 0", got)
	}

	// The supervisor domain does not expose the machine-level geometry lock.
	sg := uint64(testBase + DomainWindowSize)
	if got := rd(t, x, sg+offMmsiaddrcfgh); got != 0 {
		t.Fatalf("supervisor mmsiaddrcfgh = 0x%x, want 0", got)
	}
}

func TestTargetsWriteMask(t *testing.T) {
	_, _, x := newTestAPLIC(t)

	wr(t, x, srcCfg(testBase, 2), uint32(ModeEdge1))
	wr(t, x, srcTarget(testBase, 2), 0xffffffff)
	if got := rd(t, x, srcTarget(testBase, 2)); got != 0xfffff7ff {
		t.Fatalf("targets[2] = 0x%x, want 0xfffff7ff", got)
	}

	// Inactive sources ignore target writes and read zero.
	wr(t, x, srcTarget(testBase, 3), 0xffffffff)
	if got := rd(t, x, srcTarget(testBase, 3)); got != 0 {
		t.Fatalf("targets[3] = 0x%x, want 0", got)
	}
}

func TestReservedOffsetsReadZero(t *testing.T) {
	_, _, x := newTestAPLIC(t)

	for _, off := range []uint64{offReadonly0, offReadonly0 + 0x40, 0x3ff8} {
		if got := rd(t, x, testBase+off); got != 0 {
			t.Fatalf("offset 0x%x = 0x%x, want 0", off, got)
		}
	}
}

func TestNonWordAccessDenied(t *testing.T) {
	_, _, x := newTestAPLIC(t)

	if err := x.Put(testBase, 0, 0xff, 3); err == nil {
		t.Fatalf("64-bit write must be denied")
	}
	if _, err := x.Get(testBase, 0xff, 3); err == nil {
		t.Fatalf("64-bit read must be denied")
	}

	// The controller recovers and keeps serving word accesses.
	if got := rd(t, x, testBase+offDomaincfg); got != 0x80000004 {
		t.Fatalf("domaincfg = 0x%x, want 0x80000004", got)
	}
}
