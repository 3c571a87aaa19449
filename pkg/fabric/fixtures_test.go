package fabric

import (
	"testing"

	"github.com/project-chip/connectedhomeip-sub012/pkg/credentials"
)

// withSubjectFabricID re-encodes certTLV with its subject matter-fabric-id
// attribute replaced, leaving every other field (including the signature,
// which ValidateNOCChain never checks) untouched. Used to build a second,
// structurally distinct fabric identity from the one real certificate chain
// available as a test vector.
func withSubjectFabricID(t *testing.T, certTLV []byte, newFabricID FabricID) []byte {
	t.Helper()

	cert, err := credentials.DecodeTLV(certTLV)
	if err != nil {
		t.Fatalf("decode certificate: %v", err)
	}
	if attr := cert.Subject.GetAttribute(credentials.TagDNMatterFabricID); attr != nil {
		attr.Value = uint64(newFabricID)
	} else {
		// RCACs in these test vectors carry no fabric id attribute at
		// all (fabric id on an RCAC is optional); add one rather than
		// require it pre-exist, so the same helper works for RCAC, ICAC
		// and NOC subjects alike.
		cert.Subject = append(cert.Subject, credentials.NewDNUint64(credentials.TagDNMatterFabricID, uint64(newFabricID)))
	}

	data, err := cert.EncodeTLV()
	if err != nil {
		t.Fatalf("re-encode certificate: %v", err)
	}
	return data
}

// withSubjectNodeID re-encodes an NOC with its subject matter-node-id
// attribute replaced.
func withSubjectNodeID(t *testing.T, nocTLV []byte, newNodeID NodeID) []byte {
	t.Helper()

	cert, err := credentials.DecodeTLV(nocTLV)
	if err != nil {
		t.Fatalf("decode NOC: %v", err)
	}
	attr := cert.Subject.GetAttribute(credentials.TagDNMatterNodeID)
	if attr == nil {
		t.Fatalf("NOC has no matter-node-id subject attribute")
	}
	attr.Value = uint64(newNodeID)

	data, err := cert.EncodeTLV()
	if err != nil {
		t.Fatalf("re-encode NOC: %v", err)
	}
	return data
}

// withSubjectPublicKey re-encodes an NOC with its EC public key replaced,
// for tests that need the NOC to carry a specific, independently
// generated operational key's public key (so that activating a
// key-store-staged key against it is a real, non-tautological check).
func withSubjectPublicKey(t *testing.T, nocTLV []byte, pubKey []byte) []byte {
	t.Helper()

	cert, err := credentials.DecodeTLV(nocTLV)
	if err != nil {
		t.Fatalf("decode NOC: %v", err)
	}
	cert.ECPubKey = pubKey

	data, err := cert.EncodeTLV()
	if err != nil {
		t.Fatalf("re-encode NOC: %v", err)
	}
	return data
}

// distinctFabricVectors returns an RCAC/ICAC/NOC triple that validates as
// its own fabric (same root, a fresh fabric id carried consistently across
// all three certificates, and a fresh node id), for tests that need a
// second fabric sharing the committed test root.
func distinctFabricVectors(t *testing.T, fabricID FabricID, nodeID NodeID) (rcac, icac, noc []byte) {
	t.Helper()

	rcac = hexToBytes(rcacTLVHex)
	icac = withSubjectFabricID(t, hexToBytes(icacTLVHex), fabricID)
	noc = withSubjectFabricID(t, hexToBytes(nocTLVHex), fabricID)
	noc = withSubjectNodeID(t, noc, nodeID)
	return rcac, icac, noc
}

var testIPK = [IPKSize]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}

// recordingDelegate implements Delegate and records every call it
// receives, for tests asserting notification order and arity.
type recordingDelegate struct {
	name  string
	calls *[]string

	onRemovedFn func(table *Table, index FabricIndex)
}

func newRecordingDelegate(name string, calls *[]string) *recordingDelegate {
	return &recordingDelegate{name: name, calls: calls}
}

func (d *recordingDelegate) WillRemove(table *Table, index FabricIndex) {
	*d.calls = append(*d.calls, d.name+":WillRemove:"+index.String())
}

func (d *recordingDelegate) OnRemoved(table *Table, index FabricIndex) {
	*d.calls = append(*d.calls, d.name+":OnRemoved:"+index.String())
	if d.onRemovedFn != nil {
		d.onRemovedFn(table, index)
	}
}

func (d *recordingDelegate) OnUpdated(table *Table, index FabricIndex) {
	*d.calls = append(*d.calls, d.name+":OnUpdated:"+index.String())
}

func (d *recordingDelegate) OnCommitted(table *Table, index FabricIndex) {
	*d.calls = append(*d.calls, d.name+":OnCommitted:"+index.String())
}

var _ Delegate = (*recordingDelegate)(nil)
