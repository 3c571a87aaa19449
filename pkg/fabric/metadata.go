package fabric

import (
	"bytes"
	"fmt"

	"github.com/project-chip/connectedhomeip-sub012/pkg/tlv"
)

// TLV context tags for the persisted FabricMetadata record. Everything
// else about a fabric (fabric id, node id, root public key, compressed
// fabric id) is re-derived from its certificate chain on load rather
// than persisted redundantly.
const (
	tagMetadataVendorID  = 1
	tagMetadataLabel     = 2
	tagMetadataAdvertise = 3
)

type fabricMetadataRecord struct {
	VendorID  VendorID
	Label     string
	Advertise bool
}

func encodeFabricMetadata(info *FabricInfo) ([]byte, error) {
	rec := fabricMetadataRecord{VendorID: info.VendorID, Label: info.Label, Advertise: info.AdvertiseIdentity}

	var buf bytes.Buffer
	w := tlv.NewWriter(&buf)
	if err := w.StartStructure(tlv.Anonymous()); err != nil {
		return nil, err
	}
	if err := w.PutUint(tlv.ContextTag(tagMetadataVendorID), uint64(rec.VendorID)); err != nil {
		return nil, err
	}
	if err := w.PutString(tlv.ContextTag(tagMetadataLabel), rec.Label); err != nil {
		return nil, err
	}
	if err := w.PutBool(tlv.ContextTag(tagMetadataAdvertise), rec.Advertise); err != nil {
		return nil, err
	}
	if err := w.EndContainer(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFabricMetadataRecord(data []byte) (fabricMetadataRecord, error) {
	var rec fabricMetadataRecord

	r := tlv.NewReader(bytes.NewReader(data))
	if err := r.Next(); err != nil {
		return rec, err
	}
	if r.Type() != tlv.ElementTypeStruct {
		return rec, fmt.Errorf("fabric: FabricMetadata: expected structure, got %v", r.Type())
	}
	if err := r.EnterContainer(); err != nil {
		return rec, err
	}

	for {
		if err := r.Next(); err != nil {
			return rec, err
		}
		if r.IsEndOfContainer() {
			break
		}

		tag := r.Tag()
		if !tag.IsContext() {
			if err := r.Skip(); err != nil {
				return rec, err
			}
			continue
		}

		switch tag.TagNumber() {
		case tagMetadataVendorID:
			u, err := r.Uint()
			if err != nil {
				return rec, err
			}
			rec.VendorID = VendorID(u)
		case tagMetadataLabel:
			s, err := r.String()
			if err != nil {
				return rec, err
			}
			rec.Label = s
		case tagMetadataAdvertise:
			b, err := r.Bool()
			if err != nil {
				return rec, err
			}
			rec.Advertise = b
		default:
			if err := r.Skip(); err != nil {
				return rec, err
			}
		}
	}

	return rec, nil
}
