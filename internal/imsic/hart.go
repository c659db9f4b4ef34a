package imsic

import "sync"

// CSROp is the indirect access operation code presented by the CSR frontend.
type CSROp uint8

const (
	OpIllegal CSROp = 0
	OpWrite   CSROp = 1 // plain write
	OpSet     CSROp = 2 // OR into the register
	OpClear   CSROp = 3 // AND-NOT into the register
)

// Privilege is the privilege level of an indirect access.
type Privilege uint8

const (
	PrivSupervisor Privilege = 1
	PrivMachine    Privilege = 3
)

// Context selects the interrupt file an indirect access targets. Illegal
// combinations (machine+virtual, unsupported guest index, unknown privilege)
// flag the access instead of resolving.
type Context struct {
	Priv  Privilege
	Virt  bool
	Guest uint32
}

// MachineContext selects the machine-level file.
var MachineContext = Context{Priv: PrivMachine}

// SupervisorContext selects the supervisor-level file.
var SupervisorContext = Context{Priv: PrivSupervisor}

// VirtualContext selects the virtual-supervisor file for a guest index.
func VirtualContext(guest uint32) Context {
	return Context{Priv: PrivSupervisor, Virt: true, Guest: guest}
}

// WrapTopEI packs a top identifier into the topei presentation form: the
// 11-bit id replicated into both 16-bit halves. This is a presentation
// transform for the CSR consumer, not state.
func WrapTopEI(id uint32) uint32 {
	id &= 0x7ff
	return id | id<<16
}

// Hart bundles the interrupt files of one hart with its CSR-style frontend
// state: the context-resolved register access path and the sticky illegal
// flag.
type Hart struct {
	mu sync.Mutex

	m  file
	s  file
	vs []file

	illegal bool
}

func newHart(guests int) *Hart {
	return &Hart{vs: make([]file, guests)}
}

func (h *Hart) resolve(ctx Context) *file {
	switch {
	case ctx.Priv == PrivMachine && !ctx.Virt:
		return &h.m
	case ctx.Priv == PrivSupervisor && !ctx.Virt:
		return &h.s
	case ctx.Priv == PrivSupervisor && ctx.Virt && int(ctx.Guest) < len(h.vs):
		return &h.vs[ctx.Guest]
	default:
		return nil
	}
}

// CSRWrite applies an indirect write. An illegal context, selector or op
// sets the sticky illegal flag and leaves every register byte-for-byte
// unchanged; a legal access clears the flag.
func (h *Hart) CSRWrite(ctx Context, isel uint32, op CSROp, data uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f := h.resolve(ctx)
	if f == nil {
		h.illegal = true
		return
	}
	if !f.csrWrite(isel, op, data) {
		h.illegal = true
		return
	}
	h.illegal = false
}

// CSRRead returns the selected register's value. Illegal accesses set the
// sticky flag and read zero.
func (h *Hart) CSRRead(ctx Context, isel uint32) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	f := h.resolve(ctx)
	if f == nil {
		h.illegal = true
		return 0
	}
	v, ok := f.csrRead(isel)
	if !ok {
		h.illegal = true
		return 0
	}
	h.illegal = false
	return v
}

// Illegal reports the sticky illegal flag.
func (h *Hart) Illegal() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.illegal
}

// TopEI returns the packed top enabled pending identifier of the selected
// file, or 0 for an unresolvable context.
func (h *Hart) TopEI(ctx Context) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	f := h.resolve(ctx)
	if f == nil {
		return 0
	}
	return WrapTopEI(f.top())
}

// Claim atomically clears the top identifier's pending bit and returns the
// previous packed topei value; with no candidate it returns 0 and is a
// no-op.
func (h *Hart) Claim(ctx Context) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	f := h.resolve(ctx)
	if f == nil {
		return 0
	}
	return WrapTopEI(f.claim())
}

// Pending reports the external interrupt wire of the selected file:
// delivery enabled and a qualifying candidate present.
func (h *Hart) Pending(ctx Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	f := h.resolve(ctx)
	if f == nil {
		return false
	}
	return f.top() != 0
}

// SetPending latches an identifier pending in the selected file, the effect
// of an MSI landing in that file's page. Unresolvable contexts are ignored.
func (h *Hart) SetPending(ctx Context, id uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f := h.resolve(ctx)
	if f == nil {
		return
	}
	f.setPending(id)
}
