package logic

import (
	"bytes"

	"github.com/crytic/medusa-smock/compilation/abiutils"
	"golang.org/x/crypto/sha3"
)

// SmockMarker prefixes every failure payload synthesized by a fake or mock, so the host's error classifier can tell
// synthetic rejections apart from reverts produced by real code. It is the first 8 bytes of
// keccak256("medusa-smock/synthetic-rejection").
var SmockMarker = deriveMarker("medusa-smock/synthetic-rejection")

// deriveMarker returns the first 8 bytes of the keccak256 hash of the provided seed.
func deriveMarker(seed string) []byte {
	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(seed))
	return hash.Sum(nil)[:8:8]
}

// EncodeRejection returns the marked failure payload carrying the provided reason as a Solidity Error(string).
func EncodeRejection(reason string) []byte {
	return EncodeRejectionData(abiutils.EncodeSolidityRevertError(reason))
}

// EncodeRejectionData returns the marked failure payload carrying the provided raw revert data.
func EncodeRejectionData(data []byte) []byte {
	payload := make([]byte, 0, len(SmockMarker)+len(data))
	payload = append(payload, SmockMarker...)
	return append(payload, data...)
}

// SplitMarker strips SmockMarker from the provided payload.
// Returns the remainder and true if the payload starts with the marker, otherwise the payload unchanged and false.
func SplitMarker(payload []byte) ([]byte, bool) {
	if !bytes.HasPrefix(payload, SmockMarker) {
		return payload, false
	}
	return payload[len(SmockMarker):], true
}
