package platform

import (
	"fmt"

	"github.com/tinyrange/aia/internal/aplic"
	"github.com/tinyrange/aia/internal/imsic"
	"github.com/tinyrange/aia/internal/tilelink"
)

// Platform is a fully wired interrupt subsystem: the fabric maps the
// interrupt-file pages and the domain controller windows, and the
// controller's delivery engine writes MSIs back through the same fabric.
type Platform struct {
	Config Config

	Fabric *tilelink.Fabric
	APLIC  *aplic.APLIC
	IMSIC  *imsic.IMSIC
}

// New builds a platform from a validated config.
func New(cfg Config) (*Platform, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("platform: %w", err)
	}

	fabric := tilelink.NewFabric()

	im, err := imsic.New(imsic.Config{
		Harts:          cfg.Harts,
		Guests:         cfg.IMSIC.Guests,
		MachineBase:    cfg.IMSIC.MachineBase,
		SupervisorBase: cfg.IMSIC.SupervisorBase,
	})
	if err != nil {
		return nil, err
	}
	fabric.Map(cfg.IMSIC.MachineBase, im.MachineWindowSize(), im)
	fabric.Map(cfg.IMSIC.SupervisorBase, im.SupervisorWindowSize(), im)

	supervisorStride := uint64(1+cfg.IMSIC.Guests) * imsic.PageSize
	ic, err := aplic.New(aplic.Config{
		Base:       cfg.APLIC.Base,
		NumSources: cfg.APLIC.Sources,
		MachineMSI: aplic.MSIDirectory{
			Base:        cfg.IMSIC.MachineBase,
			Size:        im.MachineWindowSize(),
			HartStride:  imsic.PageSize,
			GuestStride: imsic.PageSize,
		},
		SupervisorMSI: aplic.MSIDirectory{
			Base:        cfg.IMSIC.SupervisorBase,
			Size:        im.SupervisorWindowSize(),
			HartStride:  supervisorStride,
			GuestStride: imsic.PageSize,
		},
		DirectMachine:    cfg.APLIC.DirectMachine,
		DirectSupervisor: cfg.APLIC.DirectSupervisor,
	}, fabric)
	if err != nil {
		return nil, err
	}
	fabric.Map(cfg.APLIC.Base, ic.WindowSize(), ic)

	return &Platform{Config: cfg, Fabric: fabric, APLIC: ic, IMSIC: im}, nil
}

// Transactor returns a harness-facing transactor over the whole fabric.
func (p *Platform) Transactor() *tilelink.Transactor {
	t := tilelink.NewTransactor(p.Fabric)
	if p.Config.BusCycles > 0 {
		t.MaxCycles = p.Config.BusCycles
	}
	return t
}

// MachineBase is the machine domain's register window base.
func (p *Platform) MachineBase() uint64 {
	return p.Config.APLIC.Base
}

// SupervisorBase is the supervisor/guest domain's register window base.
func (p *Platform) SupervisorBase() uint64 {
	return p.Config.APLIC.Base + aplic.DomainWindowSize
}
