// Package tilelink models the split-transaction bus that connects the
// verification harness, the interrupt domain controller and the interrupt
// files. Only the opcode/address/mask/size/data fields of the wire protocol
// are modeled; electrical handshake timing is out of scope.
package tilelink

// Opcode identifies a channel A or channel D message type.
type Opcode uint8

// Channel A opcodes.
const (
	OpPutFullData Opcode = 0
	OpGet         Opcode = 4
)

// Channel D opcodes.
const (
	OpAccessAck     Opcode = 0
	OpAccessAckData Opcode = 1
)

// ChannelA is a request beat. Size is the log2 of the access width in bytes;
// Mask selects the active byte lanes within the 64-bit data word.
type ChannelA struct {
	Opcode  Opcode
	Address uint64
	Mask    uint8
	Size    uint8
	Data    uint64
}

// ChannelD is a response beat.
type ChannelD struct {
	Opcode Opcode
	Data   uint64
	Denied bool
}

// Endpoint is the device side of a link. A device accepts at most one
// outstanding request: the transactor polls ReadyA before handing over a
// channel A beat and then polls PollD until the response beat appears.
type Endpoint interface {
	// ReadyA reports whether the endpoint can accept a channel A beat
	// this cycle.
	ReadyA() bool

	// PutA hands an accepted channel A beat to the endpoint. The endpoint
	// applies the access and latches the response beat.
	PutA(beat ChannelA)

	// PollD returns the latched response beat, if any, and clears it.
	PollD() (ChannelD, bool)
}

// IsWrite reports whether the beat mutates endpoint state.
func (a ChannelA) IsWrite() bool {
	return a.Opcode == OpPutFullData
}

// WordData extracts the 32-bit payload of a narrow beat according to the
// lane selected by the mask.
func (a ChannelA) WordData() uint32 {
	if a.Mask == laneHigh {
		return uint32(a.Data >> 32)
	}
	return uint32(a.Data)
}

// AckFor builds the matching response beat for a request. Reads answer
// AccessAckData carrying data placed in the requested lane, writes answer a
// plain AccessAck.
func AckFor(req ChannelA, data uint32) ChannelD {
	if req.Opcode == OpGet {
		payload := uint64(data)
		if req.Mask == laneHigh {
			payload <<= 32
		}
		return ChannelD{Opcode: OpAccessAckData, Data: payload}
	}
	return ChannelD{Opcode: OpAccessAck}
}

// DeniedAck builds a denied response beat for a request.
func DeniedAck(req ChannelA) ChannelD {
	d := AckFor(req, 0)
	d.Denied = true
	return d
}
