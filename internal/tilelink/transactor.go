package tilelink

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when an endpoint does not accept a request or does
// not produce a response within the transactor's cycle budget. It models a
// hardware hang and is fatal to the run; callers must not retry.
var ErrTimeout = errors.New("tilelink: handshake timeout")

// DefaultMaxCycles bounds both phases of the handshake.
const DefaultMaxCycles = 10

// Byte lane masks for 32-bit accesses within a 64-bit aligned window.
const (
	laneLow  = 0x0f
	laneHigh = 0xf0
)

// Transactor drives read and write transactions against an Endpoint with the
// two-phase bounded handshake: the request is retried until accepted, then
// the response is polled, each for at most MaxCycles cycles.
type Transactor struct {
	ep Endpoint

	// MaxCycles is the cycle budget for each handshake phase.
	MaxCycles int
}

// NewTransactor returns a transactor bound to the given endpoint.
func NewTransactor(ep Endpoint) *Transactor {
	return &Transactor{ep: ep, MaxCycles: DefaultMaxCycles}
}

// Put issues a PutFullData transaction and waits for the AccessAck.
func (t *Transactor) Put(addr uint64, data uint64, mask uint8, size uint8) error {
	beat := ChannelA{Opcode: OpPutFullData, Address: addr, Mask: mask, Size: size, Data: data}
	rsp, err := t.issue(beat)
	if err != nil {
		return fmt.Errorf("put 0x%x: %w", addr, err)
	}
	if rsp.Opcode != OpAccessAck {
		return fmt.Errorf("put 0x%x: unexpected response opcode %d", addr, rsp.Opcode)
	}
	if rsp.Denied {
		return fmt.Errorf("put 0x%x: access denied", addr)
	}
	return nil
}

// Get issues a Get transaction and waits for the AccessAckData.
func (t *Transactor) Get(addr uint64, mask uint8, size uint8) (uint64, error) {
	beat := ChannelA{Opcode: OpGet, Address: addr, Mask: mask, Size: size}
	rsp, err := t.issue(beat)
	if err != nil {
		return 0, fmt.Errorf("get 0x%x: %w", addr, err)
	}
	if rsp.Opcode != OpAccessAckData {
		return 0, fmt.Errorf("get 0x%x: unexpected response opcode %d", addr, rsp.Opcode)
	}
	if rsp.Denied {
		return 0, fmt.Errorf("get 0x%x: access denied", addr)
	}
	return rsp.Data, nil
}

// Put32 writes a 32-bit register in a 64-bit aligned window. Even-aligned
// addresses use the low lane; addresses offset by 4 use the high lane with
// the data shifted up 32 bits. The rule applies uniformly to every register
// in the domain and interrupt-file address spaces.
func (t *Transactor) Put32(addr uint64, data uint32) error {
	payload, mask := lane32(addr, data)
	return t.Put(addr, payload, mask, 2)
}

// Get32 reads a 32-bit register in a 64-bit aligned window, selecting the
// lane the same way Put32 does.
func (t *Transactor) Get32(addr uint64) (uint32, error) {
	_, mask := lane32(addr, 0)
	data, err := t.Get(addr, mask, 2)
	if err != nil {
		return 0, err
	}
	if mask == laneHigh {
		data >>= 32
	}
	return uint32(data), nil
}

func lane32(addr uint64, data uint32) (uint64, uint8) {
	if addr%8 == 0 {
		return uint64(data), laneLow
	}
	return uint64(data) << 32, laneHigh
}

func (t *Transactor) issue(beat ChannelA) (ChannelD, error) {
	budget := t.MaxCycles
	if budget <= 0 {
		budget = DefaultMaxCycles
	}

	accepted := false
	for cycle := 0; cycle < budget; cycle++ {
		if t.ep.ReadyA() {
			t.ep.PutA(beat)
			accepted = true
			break
		}
	}
	if !accepted {
		return ChannelD{}, fmt.Errorf("request not accepted: %w", ErrTimeout)
	}

	for cycle := 0; cycle < budget; cycle++ {
		if rsp, ok := t.ep.PollD(); ok {
			return rsp, nil
		}
	}
	return ChannelD{}, fmt.Errorf("response not observed: %w", ErrTimeout)
}
