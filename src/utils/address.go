package utils

import (
	"fmt"

	"agentengine/src/apperrors"

	"github.com/mr-tron/base58"
)

// solanaAddressLen is the size of an ed25519 public key.
const solanaAddressLen = 32

// ValidateAddress checks that s is a base58 encoded 32 byte account address.
func ValidateAddress(s string) error {
	if s == "" {
		return apperrors.Validation("address is empty")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindValidation, apperrors.CodeInvalidInput, fmt.Sprintf("address %q is not base58", s))
	}
	if len(raw) != solanaAddressLen {
		return apperrors.Validation(fmt.Sprintf("address %q decodes to %d bytes, want %d", s, len(raw), solanaAddressLen))
	}
	return nil
}
