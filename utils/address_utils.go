package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
)

// HexStringToAddress converts a hex string (with or without the "0x" prefix) to a common.Address. Returns the parsed
// address, or an error if one occurs during conversion.
func HexStringToAddress(s string) (*common.Address, error) {
	// Remove the 0x prefix and pad odd-length strings, so short forms such as "0x10000" are accepted.
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(b) > common.AddressLength {
		return nil, errors.Errorf("could not parse address %q, it exceeds %d bytes", s, common.AddressLength)
	}

	// Parse the bytes as an address and return them.
	address := common.Address{}
	address.SetBytes(b)
	return &address, nil
}

// HexStringsToAddresses converts hex strings to a list of common.Address. Returns the parsed addresses, or an error
// if any string could not be converted.
func HexStringsToAddresses(addressHexStrings []string) ([]common.Address, error) {
	addresses := make([]common.Address, len(addressHexStrings))
	for i, addressHexString := range addressHexStrings {
		address, err := HexStringToAddress(addressHexString)
		if err != nil {
			return nil, err
		}
		addresses[i] = *address
	}
	return addresses, nil
}

// MakeRandomAddress produces an address from 20 cryptographically random bytes. No registry of issued addresses is
// kept, collisions are left to probability.
func MakeRandomAddress() common.Address {
	var address common.Address
	if _, err := rand.Read(address[:]); err != nil {
		// crypto/rand only fails if the system entropy source is unavailable.
		panic(errors.Wrap(err, "could not read random bytes for address"))
	}
	return address
}
