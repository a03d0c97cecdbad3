package abiutils

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/crytic/medusa-geth/accounts/abi"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/medusa-geth/core/vm"
)

var (
	// errorMethod is the ABI definition of the Error(string) revert payload emitted by require/revert with a reason.
	errorMethod = newRevertPayloadMethod("Error", "string")

	// panicMethod is the ABI definition of the Panic(uint256) revert payload emitted by failed assertions and
	// checked arithmetic.
	panicMethod = newRevertPayloadMethod("Panic", "uint256")
)

// newRevertPayloadMethod creates the ABI definition of a single-argument revert payload.
func newRevertPayloadMethod(name string, argumentType string) abi.Method {
	typ, err := abi.NewType(argumentType, "", nil)
	if err != nil {
		panic(err)
	}
	return abi.NewMethod(name, name, abi.Function, "", false, false, []abi.Argument{
		{Name: "", Type: typ, Indexed: false},
	}, abi.Arguments{})
}

// An enum is defined below providing all `Panic(uint)` error codes returned in return data when the VM encounters
// an error in some cases.
// Reference: https://docs.soliditylang.org/en/latest/control-structures.html#panic-via-assert-and-error-via-require
const (
	PanicCodeCompilerInserted              = 0x00
	PanicCodeAssertFailed                  = 0x01
	PanicCodeArithmeticUnderOverflow       = 0x11
	PanicCodeDivideByZero                  = 0x12
	PanicCodeEnumTypeConversionOutOfBounds = 0x21
	PanicCodeIncorrectStorageAccess        = 0x22
	PanicCodePopEmptyArray                 = 0x31
	PanicCodeOutOfBoundsArrayAccess        = 0x32
	PanicCodeAllocateTooMuchMemory         = 0x41
	PanicCodeCallUninitializedVariable     = 0x51
)

// GetSolidityPanicCode obtains a panic code from a VM error and return data, if possible.
// A flag is provided indicating whether assertion failures in older Solidity compilations will be also mapped onto
// newer Solidity panic code.
// If the error and return data are not representative of a Panic, then nil is returned.
func GetSolidityPanicCode(returnError error, returnData []byte, backwardsCompatible bool) *big.Int {
	// If this method is backwards compatible with older solidity, there is no panic code, and we simply look
	// for a specific error that used to represent assertion failures.
	_, hitInvalidOpcode := returnError.(*vm.ErrInvalidOpCode)
	if backwardsCompatible && hitInvalidOpcode {
		return big.NewInt(PanicCodeAssertFailed)
	}

	// Verify we have a revert, and our return data fits exactly the selector + uint256
	if errors.Is(returnError, vm.ErrExecutionReverted) && len(returnData) == 4+32 {
		// Verify the return data starts with the correct selector, then unpack the arguments.
		if bytes.Equal(returnData[:4], panicMethod.ID) {
			values, err := panicMethod.Inputs.Unpack(returnData[4:])

			// If they unpacked without issue, read the panic code.
			if err == nil && len(values) > 0 {
				panicCode := values[0].(*big.Int)
				return panicCode
			}
		}
	}
	return nil
}

// GetSolidityRevertErrorString obtains an error message from a VM error and return data, if possible.
// If the error and return data are not representative of an Error, then nil is returned.
func GetSolidityRevertErrorString(returnError error, returnData []byte) *string {
	// Verify we have a revert, and our return data fits the selector + additional data.
	if errors.Is(returnError, vm.ErrExecutionReverted) && len(returnData) > 4 {
		// Verify the return data starts with the correct selector, then unpack the arguments.
		if bytes.Equal(returnData[:4], errorMethod.ID) {
			values, err := errorMethod.Inputs.Unpack(returnData[4:])

			// If they unpacked without issue, read the error string.
			if err == nil && len(values) > 0 {
				errorMessage := values[0].(string)
				return &errorMessage
			}
		}
	}

	return nil
}

// GetPanicReason will take in a panic code as an uint64 and will return the string reason behind that panic code. For
// example, if panic code is PanicCodeAssertFailed, then "assertion failure" is returned.
func GetPanicReason(panicCode uint64) string {
	// Switch on panic code
	switch panicCode {
	case PanicCodeCompilerInserted:
		return "panic: compiler inserted panic"
	case PanicCodeAssertFailed:
		return "panic: assertion failed"
	case PanicCodeArithmeticUnderOverflow:
		return "panic: arithmetic underflow"
	case PanicCodeDivideByZero:
		return "panic: division by zero"
	case PanicCodeEnumTypeConversionOutOfBounds:
		return "panic: enum access out of bounds"
	case PanicCodeIncorrectStorageAccess:
		return "panic: incorrect storage access"
	case PanicCodePopEmptyArray:
		return "panic: pop on empty array"
	case PanicCodeOutOfBoundsArrayAccess:
		return "panic: out of bounds array access"
	case PanicCodeAllocateTooMuchMemory:
		return "panic; overallocation of memory"
	case PanicCodeCallUninitializedVariable:
		return "panic: call on uninitialized variable"
	default:
		return fmt.Sprintf("unknown panic code(%v)", panicCode)
	}
}

// EncodeSolidityRevertError packs a reason string as an Error(string) revert payload, as produced by
// require(condition, reason) or revert(reason).
func EncodeSolidityRevertError(reason string) []byte {
	data, err := errorMethod.Inputs.Pack(reason)
	if err != nil {
		// Packing a single string cannot fail.
		panic(err)
	}
	return append(bytes.Clone(errorMethod.ID), data...)
}

// EncodeSolidityPanic packs a panic code as a Panic(uint256) revert payload.
func EncodeSolidityPanic(panicCode uint64) []byte {
	data, err := panicMethod.Inputs.Pack(new(big.Int).SetUint64(panicCode))
	if err != nil {
		panic(err)
	}
	return append(bytes.Clone(panicMethod.ID), data...)
}

// DecodeRevertReason produces a human-readable reason from a revert payload. Error(string) payloads decode to their
// reason, Panic(uint256) payloads to a description of the panic code. Empty payloads decode to an empty string and
// any other payload to a description carrying its hex encoding.
func DecodeRevertReason(returnData []byte) string {
	if len(returnData) == 0 {
		return ""
	}
	if reason := GetSolidityRevertErrorString(vm.ErrExecutionReverted, returnData); reason != nil {
		return *reason
	}
	if panicCode := GetSolidityPanicCode(vm.ErrExecutionReverted, returnData, false); panicCode != nil {
		return fmt.Sprintf("reverted with panic code %#x (%s)", panicCode, GetPanicReason(panicCode.Uint64()))
	}
	return fmt.Sprintf("reverted with an unrecognized custom error (return data: %s)", hexutil.Encode(returnData))
}
