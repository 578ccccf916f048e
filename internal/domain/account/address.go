package account

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
)

// NormalizeUserID trims a wallet address and checks it is a 20-byte hex
// address. Mixed-case input must carry a valid EIP-55 checksum; all-lower
// and all-upper input is accepted as is. The result is always lower-case
// with a "0x" prefix, so every spelling of one wallet maps to one account.
func NormalizeUserID(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return "", shared.ErrInvalidWallet
	}

	body := addr[2:]
	if len(body) != 40 {
		return "", shared.ErrInvalidWallet
	}
	if _, err := hex.DecodeString(body); err != nil {
		return "", shared.ErrInvalidWallet
	}

	lower := strings.ToLower(body)
	if body != lower && body != strings.ToUpper(body) && body != checksum(lower) {
		return "", shared.NewDomainError("account", "Validate", shared.ErrValidation, "wallet address checksum mismatch")
	}

	return "0x" + lower, nil
}

// checksum applies EIP-55 mixed-case encoding to a lowercase hex address body.
func checksum(lowerHex string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lowerHex))
	digest := hex.EncodeToString(h.Sum(nil))

	out := []byte(lowerHex)
	for i, c := range out {
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}

// ChecksumAddress returns the EIP-55 form of a valid address.
func ChecksumAddress(addr string) (string, error) {
	addr, err := NormalizeUserID(addr)
	if err != nil {
		return "", err
	}
	return "0x" + checksum(strings.ToLower(addr[2:])), nil
}
