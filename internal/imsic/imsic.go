package imsic

import (
	"fmt"
	"sync"

	"github.com/tinyrange/aia/internal/tilelink"
)

// PageSize is the MMIO window of one interrupt file. A 32-bit write of an
// identifier at page offset 0 (seteipnum) latches it pending; the window
// reads as zero.
const PageSize = 0x1000

// MaxGuests bounds the guest-index field of an MSI target.
const MaxGuests = 63

// Config describes the interrupt-file directories of a platform.
type Config struct {
	Harts  int
	Guests int

	// MachineBase is the first hart's machine-file page; harts are
	// PageSize apart. SupervisorBase is the first hart's supervisor page,
	// followed by that hart's guest pages; harts are (1+Guests)*PageSize
	// apart.
	MachineBase    uint64
	SupervisorBase uint64
}

// IMSIC models every interrupt file of a platform and exposes their MMIO
// pages as one tilelink endpoint.
type IMSIC struct {
	mu sync.Mutex

	cfg   Config
	harts []*Hart

	rsp *tilelink.ChannelD
}

// New builds the interrupt files described by cfg.
func New(cfg Config) (*IMSIC, error) {
	if cfg.Harts < 1 {
		return nil, fmt.Errorf("imsic: need at least one hart")
	}
	if cfg.Guests < 0 || cfg.Guests > MaxGuests {
		return nil, fmt.Errorf("imsic: guest count %d out of range 0..%d", cfg.Guests, MaxGuests)
	}

	im := &IMSIC{cfg: cfg}
	for i := 0; i < cfg.Harts; i++ {
		im.harts = append(im.harts, newHart(cfg.Guests))
	}
	return im, nil
}

// Hart returns hart n's interrupt files and CSR frontend.
func (im *IMSIC) Hart(n int) *Hart {
	return im.harts[n]
}

// MachineWindowSize is the span of the machine-file pages.
func (im *IMSIC) MachineWindowSize() uint64 {
	return uint64(im.cfg.Harts) * PageSize
}

// SupervisorWindowSize is the span of the supervisor and guest pages.
func (im *IMSIC) SupervisorWindowSize() uint64 {
	return uint64(im.cfg.Harts) * im.supervisorStride()
}

func (im *IMSIC) supervisorStride() uint64 {
	return uint64(1+im.cfg.Guests) * PageSize
}

// resolve maps a bus address to the hart and context of the page it falls
// in.
func (im *IMSIC) resolve(addr uint64) (*Hart, Context, bool) {
	if addr >= im.cfg.MachineBase && addr < im.cfg.MachineBase+im.MachineWindowSize() {
		off := addr - im.cfg.MachineBase
		return im.harts[off/PageSize], MachineContext, true
	}
	if addr >= im.cfg.SupervisorBase && addr < im.cfg.SupervisorBase+im.SupervisorWindowSize() {
		off := addr - im.cfg.SupervisorBase
		stride := im.supervisorStride()
		hart := im.harts[off/stride]
		page := (off % stride) / PageSize
		if page == 0 {
			return hart, SupervisorContext, true
		}
		return hart, VirtualContext(uint32(page-1)), true
	}
	return nil, Context{}, false
}

// ReadyA implements tilelink.Endpoint.
func (im *IMSIC) ReadyA() bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.rsp == nil
}

// PutA implements tilelink.Endpoint.
func (im *IMSIC) PutA(beat tilelink.ChannelA) {
	im.mu.Lock()
	defer im.mu.Unlock()

	hart, ctx, ok := im.resolve(beat.Address)
	if !ok || beat.Size != 2 {
		rsp := tilelink.DeniedAck(beat)
		im.rsp = &rsp
		return
	}

	if beat.IsWrite() {
		// Only the seteipnum register at page offset 0 has effect;
		// writes elsewhere in the page are accepted and ignored.
		if beat.Address%PageSize == 0 {
			hart.SetPending(ctx, beat.WordData())
		}
		rsp := tilelink.AckFor(beat, 0)
		im.rsp = &rsp
		return
	}

	rsp := tilelink.AckFor(beat, 0)
	im.rsp = &rsp
}

// PollD implements tilelink.Endpoint.
func (im *IMSIC) PollD() (tilelink.ChannelD, bool) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.rsp == nil {
		return tilelink.ChannelD{}, false
	}
	rsp := *im.rsp
	im.rsp = nil
	return rsp, true
}

var _ tilelink.Endpoint = (*IMSIC)(nil)
