package fabric

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/project-chip/connectedhomeip-sub012/pkg/tlv"
)

// TLV context tags for the persisted IndexInfo record.
const (
	tagIndexInfoNextAvailable = 1
	tagIndexInfoInUse         = 2
)

// IndexAllocator computes the next available fabric index and tracks
// the (next-available, in-use) tuple persisted as IndexInfo.
type IndexAllocator struct {
	mu           sync.Mutex
	minValid     FabricIndex
	maxValid     FabricIndex
	nextCandiate FabricIndex
	inUse        map[FabricIndex]bool
}

// NewIndexAllocator creates an allocator over [minValid, maxValid].
func NewIndexAllocator(minValid, maxValid FabricIndex) *IndexAllocator {
	return &IndexAllocator{
		minValid:     minValid,
		maxValid:     maxValid,
		nextCandiate: minValid,
		inUse:        make(map[FabricIndex]bool),
	}
}

// nextIndex wraps current+1 from maxValid back to minValid.
func (a *IndexAllocator) nextIndex(current FabricIndex) FabricIndex {
	if current >= a.maxValid {
		return a.minValid
	}
	return current + 1
}

// markUsed records index as occupied.
func (a *IndexAllocator) markUsed(index FabricIndex) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inUse[index] = true
}

// markFree records index as free and, if the allocator had no cached
// candidate (table was full), makes it the new candidate.
func (a *IndexAllocator) markFree(index FabricIndex) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, index)
	if a.nextCandiate == FabricIndexInvalid {
		a.nextCandiate = index
	}
}

// Peek returns the current next-available candidate without consuming
// it. Returns FabricIndexInvalid if the table was last observed full.
func (a *IndexAllocator) Peek() FabricIndex {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nextCandiate
}

// forceNext overrides the next-available candidate. Test/recovery only.
func (a *IndexAllocator) forceNext(index FabricIndex) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextCandiate = index
}

// Allocate walks the cycle starting at the cached candidate, returning
// the first index not in use. If the full cycle completes without a
// hit, the allocator reports table-full and clears its cached value.
func (a *IndexAllocator) Allocate() (FabricIndex, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.nextCandiate == FabricIndexInvalid {
		return FabricIndexInvalid, ErrNoMemory
	}

	start := a.nextCandiate
	candidate := start
	for {
		if !a.inUse[candidate] {
			return candidate, nil
		}
		candidate = a.nextIndex(candidate)
		if candidate == start {
			a.nextCandiate = FabricIndexInvalid
			return FabricIndexInvalid, ErrNoMemory
		}
	}
}

// Advance recomputes the next-available candidate after index was just
// assigned, by walking forward from it.
func (a *IndexAllocator) Advance(index FabricIndex) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.inUse[index] = true
	candidate := a.nextIndex(index)
	start := candidate
	for {
		if !a.inUse[candidate] {
			a.nextCandiate = candidate
			return
		}
		candidate = a.nextIndex(candidate)
		if candidate == start {
			a.nextCandiate = FabricIndexInvalid
			return
		}
	}
}

// IndexInfo is the persisted (next_available, in_use) tuple.
type IndexInfo struct {
	NextAvailable FabricIndex // FabricIndexInvalid means "none" (table full)
	InUse         []FabricIndex
}

// EncodeTLV encodes an IndexInfo record.
func (info IndexInfo) EncodeTLV() ([]byte, error) {
	var buf bytes.Buffer
	w := tlv.NewWriter(&buf)

	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return nil, err
	}

	if info.NextAvailable != FabricIndexInvalid {
		if err := w.PutUint(tlv.ContextTag(tagIndexInfoNextAvailable), uint64(info.NextAvailable)); err != nil {
			return nil, err
		}
	} else {
		if err := w.PutNull(tlv.ContextTag(tagIndexInfoNextAvailable)); err != nil {
			return nil, err
		}
	}

	if err := w.StartArray(tlv.ContextTag(tagIndexInfoInUse)); err != nil {
		return nil, err
	}
	for _, idx := range info.InUse {
		if err := w.PutUint(tlv.Anonymous(), uint64(idx)); err != nil {
			return nil, err
		}
	}
	if err := w.EndContainer(); err != nil {
		return nil, err
	}

	if err := w.EndContainer(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeIndexInfo decodes an IndexInfo record.
func DecodeIndexInfo(data []byte) (IndexInfo, error) {
	var info IndexInfo

	r := tlv.NewReader(bytes.NewReader(data))
	if err := r.Next(); err != nil {
		return info, err
	}
	if r.Type() != tlv.ElementTypeStruct {
		return info, fmt.Errorf("fabric: IndexInfo: expected structure, got %v", r.Type())
	}
	if err := r.EnterContainer(); err != nil {
		return info, err
	}

	for {
		if err := r.Next(); err != nil {
			return info, err
		}
		if r.IsEndOfContainer() {
			break
		}

		tag := r.Tag()
		if !tag.IsContext() {
			if err := r.Skip(); err != nil {
				return info, err
			}
			continue
		}

		switch tag.TagNumber() {
		case tagIndexInfoNextAvailable:
			if r.Type() == tlv.ElementTypeNull {
				info.NextAvailable = FabricIndexInvalid
			} else {
				u, err := r.Uint()
				if err != nil {
					return info, err
				}
				info.NextAvailable = FabricIndex(u)
			}

		case tagIndexInfoInUse:
			if err := r.EnterContainer(); err != nil {
				return info, err
			}
			for {
				if err := r.Next(); err != nil {
					return info, err
				}
				if r.IsEndOfContainer() {
					break
				}
				u, err := r.Uint()
				if err != nil {
					return info, err
				}
				info.InUse = append(info.InUse, FabricIndex(u))
			}
			if err := r.ExitContainer(); err != nil {
				return info, err
			}

		default:
			if err := r.Skip(); err != nil {
				return info, err
			}
		}
	}

	return info, nil
}
