package tilelink

// Fabric routes transactions to endpoints by address window. It implements
// Endpoint itself so a transactor can treat the whole address space as one
// device. Accesses outside every window answer a denied beat.
type Fabric struct {
	windows []window

	// last remembers which endpoint accepted the in-flight beat so the
	// response poll reaches the right device. The fabric carries a single
	// outstanding transaction, matching the transactor's handshake.
	last Endpoint

	denied *ChannelD
}

type window struct {
	base uint64
	size uint64
	ep   Endpoint
}

// NewFabric returns an empty fabric.
func NewFabric() *Fabric {
	return &Fabric{}
}

// Map attaches an endpoint to the byte range [base, base+size).
func (f *Fabric) Map(base, size uint64, ep Endpoint) {
	f.windows = append(f.windows, window{base: base, size: size, ep: ep})
}

// ReadyA implements Endpoint.
func (f *Fabric) ReadyA() bool {
	return f.last == nil && f.denied == nil
}

// PutA implements Endpoint.
func (f *Fabric) PutA(beat ChannelA) {
	for _, w := range f.windows {
		if beat.Address >= w.base && beat.Address < w.base+w.size {
			// Dispatch before marking the transaction in flight: the
			// endpoint may issue a nested transaction through this same
			// fabric while applying the beat (MSI forwarding does), and
			// the inner handshake must still see the fabric ready.
			w.ep.PutA(beat)
			f.last = w.ep
			return
		}
	}
	rsp := DeniedAck(beat)
	f.denied = &rsp
}

// PollD implements Endpoint.
func (f *Fabric) PollD() (ChannelD, bool) {
	if f.denied != nil {
		rsp := *f.denied
		f.denied = nil
		return rsp, true
	}
	if f.last == nil {
		return ChannelD{}, false
	}
	rsp, ok := f.last.PollD()
	if ok {
		f.last = nil
	}
	return rsp, ok
}

var _ Endpoint = (*Fabric)(nil)
