// Package imsic models the per-hart interrupt files of the RISC-V Advanced
// Interrupt Architecture: machine, supervisor and guest-indexed virtual
// files with their enable/pending bitmaps, the indirect CSR-style access
// path, and the memory-mapped seteipnum window MSIs land in.
package imsic

import "math/bits"

// NumIdentifiers is the number of interrupt identifiers per file; id 0 is
// reserved and never pending or enabled.
const NumIdentifiers = 2048

const numWords = NumIdentifiers / 64

// Indirect register selectors. On this RV64 model each eip/eie register
// covers 64 identifiers and only even selectors are legal.
const (
	IselEidelivery  = 0x70
	IselEithreshold = 0x72
	IselEipBase     = 0x80
	IselEieBase     = 0xC0
)

const thresholdMask = 0x7ff

// file is one interrupt file. All state lives in fixed-size arrays indexed
// by identifier.
type file struct {
	eidelivery  uint64
	eithreshold uint64
	eip         [numWords]uint64
	eie         [numWords]uint64
}

func (f *file) deliveryEnabled() bool {
	return f.eidelivery&1 != 0
}

// setPending latches identifier id pending. Id 0 and out-of-range ids are
// ignored, so a seteipnum write of 0 is a no-op.
func (f *file) setPending(id uint32) {
	if id == 0 || id >= NumIdentifiers {
		return
	}
	f.eip[id/64] |= 1 << (id % 64)
}

// top returns the lowest enabled pending identifier, or 0 when none
// qualifies. A candidate id qualifies only if the threshold is 0 or
// id < threshold; the result is suppressed entirely while delivery is
// disabled.
func (f *file) top() uint32 {
	if !f.deliveryEnabled() {
		return 0
	}
	for w := 0; w < numWords; w++ {
		cand := f.eip[w] & f.eie[w]
		if w == 0 {
			cand &^= 1
		}
		if cand == 0 {
			continue
		}
		id := uint32(w*64 + bits.TrailingZeros64(cand))
		if f.eithreshold != 0 && uint64(id) >= f.eithreshold {
			return 0
		}
		return id
	}
	return 0
}

// claim atomically clears the top identifier's pending bit and returns it.
// With no qualifying candidate it returns 0 and changes nothing.
func (f *file) claim() uint32 {
	id := f.top()
	if id == 0 {
		return 0
	}
	f.eip[id/64] &^= 1 << (id % 64)
	return id
}

// csrRead resolves a selector to its register value. The second return is
// false for selectors outside the defined ranges (including the odd eip/eie
// selectors reserved on RV64).
func (f *file) csrRead(isel uint32) (uint64, bool) {
	switch {
	case isel == IselEidelivery:
		return f.eidelivery, true
	case isel == IselEithreshold:
		return f.eithreshold, true
	case isel >= IselEipBase && isel < IselEipBase+2*numWords:
		if isel%2 != 0 {
			return 0, false
		}
		return f.eip[(isel-IselEipBase)/2], true
	case isel >= IselEieBase && isel < IselEieBase+2*numWords:
		if isel%2 != 0 {
			return 0, false
		}
		return f.eie[(isel-IselEieBase)/2], true
	default:
		return 0, false
	}
}

// csrWrite combines data with the selected register per the operation code
// and stores the result masked to the register's legal bits. Returns false
// without modifying anything if the selector or op is illegal.
func (f *file) csrWrite(isel uint32, op CSROp, data uint64) bool {
	cur, ok := f.csrRead(isel)
	if !ok {
		return false
	}

	var next uint64
	switch op {
	case OpWrite:
		next = data
	case OpSet:
		next = cur | data
	case OpClear:
		next = cur &^ data
	default:
		return false
	}

	switch {
	case isel == IselEidelivery:
		// Stored as written; delivery is enabled while bit 0 is set.
		f.eidelivery = next
	case isel == IselEithreshold:
		f.eithreshold = next & thresholdMask
	case isel >= IselEipBase && isel < IselEipBase+2*numWords:
		w := (isel - IselEipBase) / 2
		if w == 0 {
			next &^= 1 // id 0 reserved
		}
		f.eip[w] = next
	default:
		w := (isel - IselEieBase) / 2
		if w == 0 {
			next &^= 1
		}
		f.eie[w] = next
	}
	return true
}
