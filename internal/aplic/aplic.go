// Package aplic models the domain controller of the RISC-V Advanced
// Interrupt Architecture: per-source trigger state machines, the
// memory-mapped register file of a machine domain and its supervisor/guest
// child domain, and the delivery engine forwarding interrupts either as MSI
// writes over the bus or as direct-wire notifications.
package aplic

import (
	"fmt"
	"sync"

	"github.com/tinyrange/aia/internal/tilelink"
)

// Config describes one domain controller. The machine domain's register
// window sits at Base, the supervisor/guest domain at Base+DomainWindowSize.
type Config struct {
	Base       uint64
	NumSources int

	// MachineMSI and SupervisorMSI locate the interrupt-file directories
	// the two domains deliver into.
	MachineMSI    MSIDirectory
	SupervisorMSI MSIDirectory

	// DirectMachine/DirectSupervisor pin the corresponding domain to
	// direct delivery. domaincfg.DM is WARL: each domain reads back the
	// single legal value chosen here.
	DirectMachine    bool
	DirectSupervisor bool
}

// APLIC is the domain controller. It implements tilelink.Endpoint over both
// domain windows and owns an MSI transactor onto the platform fabric.
type APLIC struct {
	mu sync.Mutex

	base uint64
	m    *domain
	sg   *domain

	rsp *tilelink.ChannelD
	err error
}

// New builds a domain controller. msiPort is the bus the delivery engine
// writes MSIs into; it may be nil only if both domains use direct delivery.
func New(cfg Config, msiPort tilelink.Endpoint) (*APLIC, error) {
	if cfg.NumSources < 1 || cfg.NumSources > MaxSources {
		return nil, fmt.Errorf("aplic: source count %d out of range 1..%d", cfg.NumSources, MaxSources)
	}

	a := &APLIC{base: cfg.Base}
	a.m = newDomain("machine", cfg.NumSources, true)
	a.sg = newDomain("supervisor", cfg.NumSources, false)
	a.m.machine = true
	a.m.child = a.sg
	a.sg.parent = a.m

	for _, dom := range []struct {
		d      *domain
		direct bool
		msi    MSIDirectory
	}{
		{a.m, cfg.DirectMachine, cfg.MachineMSI},
		{a.sg, cfg.DirectSupervisor, cfg.SupervisorMSI},
	} {
		if dom.direct {
			dom.d.mode = DeliverDirect
			continue
		}
		if msiPort == nil {
			return nil, fmt.Errorf("aplic: %s domain needs an MSI port", dom.d.name)
		}
		if dom.msi.Size == 0 {
			return nil, fmt.Errorf("aplic: %s domain: MSI directory has no window", dom.d.name)
		}
		dom.d.mode = DeliverMSI
		dom.d.msi = dom.msi
		dom.d.xact = tilelink.NewTransactor(msiPort)
	}

	return a, nil
}

// SetSourceLevel drives the wire input of source i. Delegated sources are
// owned by the supervisor domain and evaluated there.
func (a *APLIC) SetSourceLevel(i int, high bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.m.setInput(i, high); err != nil {
		a.latch(err)
		return err
	}
	return nil
}

// PulseSource raises and lowers a source wire, the shape edge-triggered
// sources are driven with.
func (a *APLIC) PulseSource(i int) error {
	if err := a.SetSourceLevel(i, true); err != nil {
		return err
	}
	return a.SetSourceLevel(i, false)
}

// SetMachineDirectSink routes the machine domain's direct-wire
// notifications; only meaningful with DirectMachine set.
func (a *APLIC) SetMachineDirectSink(s DirectSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s == nil {
		s = noopDirectSink{}
	}
	a.m.direct = s
}

// SetSupervisorDirectSink routes the supervisor domain's direct-wire
// notifications.
func (a *APLIC) SetSupervisorDirectSink(s DirectSink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s == nil {
		s = noopDirectSink{}
	}
	a.sg.direct = s
}

// Err returns the first fatal delivery failure (an MSI forwarding timeout).
// A non-nil value means the run is broken and must be aborted.
func (a *APLIC) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// WindowSize is the total register window of the controller: both domains.
func (a *APLIC) WindowSize() uint64 {
	return 2 * DomainWindowSize
}

func (a *APLIC) latch(err error) {
	if a.err == nil {
		a.err = err
	}
}

// ReadyA implements tilelink.Endpoint.
func (a *APLIC) ReadyA() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rsp == nil
}

// PutA implements tilelink.Endpoint. Only 32-bit beats are legal in the
// domain windows; anything else answers a denied beat.
func (a *APLIC) PutA(beat tilelink.ChannelA) {
	a.mu.Lock()
	defer a.mu.Unlock()

	off := beat.Address - a.base
	var dom *domain
	switch {
	case off < DomainWindowSize:
		dom = a.m
	case off < 2*DomainWindowSize:
		dom = a.sg
		off -= DomainWindowSize
	}

	if dom == nil || beat.Size != 2 {
		rsp := tilelink.DeniedAck(beat)
		a.rsp = &rsp
		return
	}

	if beat.IsWrite() {
		if err := dom.writeReg(off, beat.WordData()); err != nil {
			a.latch(err)
			rsp := tilelink.DeniedAck(beat)
			a.rsp = &rsp
			return
		}
		rsp := tilelink.AckFor(beat, 0)
		a.rsp = &rsp
		return
	}

	rsp := tilelink.AckFor(beat, dom.readReg(off))
	a.rsp = &rsp
}

// PollD implements tilelink.Endpoint.
func (a *APLIC) PollD() (tilelink.ChannelD, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rsp == nil {
		return tilelink.ChannelD{}, false
	}
	rsp := *a.rsp
	a.rsp = nil
	return rsp, true
}

var _ tilelink.Endpoint = (*APLIC)(nil)
