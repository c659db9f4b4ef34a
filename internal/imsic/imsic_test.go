package imsic

import (
	"testing"

	"github.com/tinyrange/aia/internal/tilelink"
)

const (
	testMachineBase    = 0x6100_0000
	testSupervisorBase = 0x8290_0000
)

func newTestIMSIC(t *testing.T, harts, guests int) (*IMSIC, *tilelink.Transactor) {
	t.Helper()
	im, err := New(Config{
		Harts:          harts,
		Guests:         guests,
		MachineBase:    testMachineBase,
		SupervisorBase: testSupervisorBase,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return im, tilelink.NewTransactor(im)
}

func TestSeteipnumMachinePages(t *testing.T) {
	im, x := newTestIMSIC(t, 2, 0)
	enableAll(im.Hart(0), MachineContext)
	enableAll(im.Hart(1), MachineContext)

	if err := x.Put32(testMachineBase, 0xca); err != nil {
		t.Fatalf("write hart 0 page: %v", err)
	}
	if err := x.Put32(testMachineBase+PageSize, 0x1f); err != nil {
		t.Fatalf("write hart 1 page: %v", err)
	}

	if got := im.Hart(0).TopEI(MachineContext); got != WrapTopEI(0xca) {
		t.Fatalf("hart 0 topei = 0x%x, want 0x%x", got, WrapTopEI(0xca))
	}
	if got := im.Hart(1).TopEI(MachineContext); got != WrapTopEI(0x1f) {
		t.Fatalf("hart 1 topei = 0x%x, want 0x%x", got, WrapTopEI(0x1f))
	}
}

func TestSeteipnumSupervisorPages(t *testing.T) {
	im, x := newTestIMSIC(t, 2, 2)
	h1 := im.Hart(1)
	enableAll(h1, SupervisorContext)
	enableAll(h1, VirtualContext(1))

	stride := uint64(1+2) * PageSize

	// Hart 1's supervisor page, then its second guest page.
	if err := x.Put32(testSupervisorBase+stride, 0x21); err != nil {
		t.Fatalf("write supervisor page: %v", err)
	}
	if err := x.Put32(testSupervisorBase+stride+2*PageSize, 0x42); err != nil {
		t.Fatalf("write guest page: %v", err)
	}

	if got := h1.TopEI(SupervisorContext); got != WrapTopEI(0x21) {
		t.Fatalf("supervisor topei = 0x%x, want 0x%x", got, WrapTopEI(0x21))
	}
	if got := h1.TopEI(VirtualContext(1)); got != WrapTopEI(0x42) {
		t.Fatalf("guest topei = 0x%x, want 0x%x", got, WrapTopEI(0x42))
	}
	if got := im.Hart(0).TopEI(SupervisorContext); got != 0 {
		t.Fatalf("hart 0 received hart 1's MSI: topei=0x%x", got)
	}
}

func TestSeteipnumZeroNoOp(t *testing.T) {
	im, x := newTestIMSIC(t, 1, 0)
	enableAll(im.Hart(0), MachineContext)

	if err := x.Put32(testMachineBase, 0); err != nil {
		t.Fatalf("write id 0: %v", err)
	}
	if got := im.Hart(0).TopEI(MachineContext); got != 0 {
		t.Fatalf("id 0 latched: topei=0x%x", got)
	}
}

func TestPageReadsZero(t *testing.T) {
	im, x := newTestIMSIC(t, 1, 0)
	enableAll(im.Hart(0), MachineContext)

	if err := x.Put32(testMachineBase, 7); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := x.Get32(testMachineBase)
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	if got != 0 {
		t.Fatalf("page read = 0x%x, want 0", got)
	}
}

func TestWriteOffPageOffsetIgnored(t *testing.T) {
	im, x := newTestIMSIC(t, 1, 0)
	enableAll(im.Hart(0), MachineContext)

	if err := x.Put32(testMachineBase+8, 7); err != nil {
		t.Fatalf("write at offset 8: %v", err)
	}
	if got := im.Hart(0).TopEI(MachineContext); got != 0 {
		t.Fatalf("off-page-offset write latched: topei=0x%x", got)
	}
}

func TestOutOfWindowDenied(t *testing.T) {
	_, x := newTestIMSIC(t, 1, 0)

	if err := x.Put32(testMachineBase+PageSize, 7); err == nil {
		t.Fatalf("write past the last machine page must be denied")
	}
}

func TestNonWordWriteDenied(t *testing.T) {
	_, x := newTestIMSIC(t, 1, 0)

	if err := x.Put(testMachineBase, 7, 0xff, 3); err == nil {
		t.Fatalf("64-bit write must be denied")
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := New(Config{Harts: 0}); err == nil {
		t.Fatalf("zero harts accepted")
	}
	if _, err := New(Config{Harts: 1, Guests: MaxGuests + 1}); err == nil {
		t.Fatalf("guest count above the limit accepted")
	}
}
