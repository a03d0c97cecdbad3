package logic

import (
	"testing"

	"github.com/crytic/medusa-geth/core/vm"
	"github.com/crytic/medusa-geth/crypto"
	"github.com/crytic/medusa-smock/compilation/abiutils"
	"github.com/stretchr/testify/assert"
)

// TestSmockMarker checks the marker is the expected hash prefix.
func TestSmockMarker(t *testing.T) {
	assert.Len(t, SmockMarker, 8)
	assert.EqualValues(t, crypto.Keccak256([]byte("medusa-smock/synthetic-rejection"))[:8], SmockMarker)
}

// TestRejectionRoundTrip checks a rejection reason survives encoding and marker removal.
func TestRejectionRoundTrip(t *testing.T) {
	for _, reason := range []string{"not allowed", "", "a reason which is longer than a single thirty-two byte word"} {
		payload := EncodeRejection(reason)
		assert.EqualValues(t, SmockMarker, payload[:len(SmockMarker)])

		remainder, ok := SplitMarker(payload)
		assert.True(t, ok)
		assert.EqualValues(t, abiutils.EncodeSolidityRevertError(reason), remainder)
		assert.EqualValues(t, reason, *abiutils.GetSolidityRevertErrorString(vm.ErrExecutionReverted, remainder))
	}

	remainder, ok := SplitMarker(EncodeRejectionData([]byte{0xca, 0xfe}))
	assert.True(t, ok)
	assert.EqualValues(t, []byte{0xca, 0xfe}, remainder)
}

// TestSplitMarkerUnmarked checks payloads without the full marker are returned unchanged.
func TestSplitMarkerUnmarked(t *testing.T) {
	unmarked := [][]byte{
		nil,
		abiutils.EncodeSolidityRevertError("not allowed"),
		SmockMarker[:len(SmockMarker)-1],
		append([]byte{0x00}, SmockMarker...),
	}
	for _, payload := range unmarked {
		remainder, ok := SplitMarker(payload)
		assert.False(t, ok)
		assert.EqualValues(t, payload, remainder)
	}
}
