package fabric

import (
	"bytes"
	"fmt"

	"github.com/project-chip/connectedhomeip-sub012/pkg/tlv"
)

// TLV context tags for the persisted CommitMarker record. Tags 3 and 4
// are reserved (unused) for forward compatibility.
const (
	tagMarkerFabricIndex = 1
	tagMarkerIsAddition  = 2
)

// CommitMarker is the tiny persisted record written before the
// irreversible part of a commit and cleared after. Its presence at boot
// means a previous commit for fabric_index was interrupted.
type CommitMarker struct {
	FabricIndex FabricIndex
	IsAddition  bool
}

// EncodeTLV encodes a CommitMarker.
func (m CommitMarker) EncodeTLV() ([]byte, error) {
	var buf bytes.Buffer
	w := tlv.NewWriter(&buf)

	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return nil, err
	}
	if err := w.PutUint(tlv.ContextTag(tagMarkerFabricIndex), uint64(m.FabricIndex)); err != nil {
		return nil, err
	}
	if err := w.PutBool(tlv.ContextTag(tagMarkerIsAddition), m.IsAddition); err != nil {
		return nil, err
	}
	if err := w.EndContainer(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCommitMarker decodes a CommitMarker. Reserved fields are
// skipped; strict end-of-container is not required on read, so future
// revisions may append fields without breaking older readers.
func DecodeCommitMarker(data []byte) (CommitMarker, error) {
	var m CommitMarker

	r := tlv.NewReader(bytes.NewReader(data))
	if err := r.Next(); err != nil {
		return m, err
	}
	if r.Type() != tlv.ElementTypeStruct {
		return m, fmt.Errorf("fabric: CommitMarker: expected structure, got %v", r.Type())
	}
	if err := r.EnterContainer(); err != nil {
		return m, err
	}

	for {
		if err := r.Next(); err != nil {
			return m, err
		}
		if r.IsEndOfContainer() {
			break
		}

		tag := r.Tag()
		if !tag.IsContext() {
			if err := r.Skip(); err != nil {
				return m, err
			}
			continue
		}

		switch tag.TagNumber() {
		case tagMarkerFabricIndex:
			u, err := r.Uint()
			if err != nil {
				return m, err
			}
			m.FabricIndex = FabricIndex(u)

		case tagMarkerIsAddition:
			b, err := r.Bool()
			if err != nil {
				return m, err
			}
			m.IsAddition = b

		default:
			if err := r.Skip(); err != nil {
				return m, err
			}
		}
	}

	return m, nil
}

// StoreCommitMarker persists marker. Failure is non-fatal to the
// caller's commit (it only weakens crash recovery for that one commit);
// the caller decides whether and how to log it.
func StoreCommitMarker(storage PersistentStorage, marker CommitMarker) error {
	data, err := marker.EncodeTLV()
	if err != nil {
		return err
	}
	return storage.Set(fabricCommitMarkerKey, data)
}

// GetCommitMarker reads the marker. Absence is reported via
// ErrStorageNotFound.
func GetCommitMarker(storage PersistentStorage) (CommitMarker, error) {
	data, err := storage.Get(fabricCommitMarkerKey)
	if err != nil {
		return CommitMarker{}, err
	}
	return DecodeCommitMarker(data)
}

// ClearCommitMarker removes the marker unconditionally.
func ClearCommitMarker(storage PersistentStorage) error {
	return storage.Delete(fabricCommitMarkerKey)
}
