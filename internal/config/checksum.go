package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ChecksumAddress renders addr in EIP-55 mixed case.
func ChecksumAddress(addr string) (string, error) {
	a := strings.TrimSpace(addr)
	if a == "" {
		return "", fmt.Errorf("empty address")
	}
	if strings.HasPrefix(a, "0x") || strings.HasPrefix(a, "0X") {
		a = a[2:]
	}
	if len(a) != 40 {
		return "", fmt.Errorf("bad hex length: %d", len(a))
	}
	if _, err := hex.DecodeString(a); err != nil {
		return "", fmt.Errorf("not hex: %w", err)
	}

	lower := strings.ToLower(a)
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	hexhash := hex.EncodeToString(h.Sum(nil))

	out := make([]byte, 40)
	for i := 0; i < 40; i++ {
		ch := lower[i]
		if ch >= 'a' && ch <= 'f' && hexhash[i] >= '8' {
			ch -= 'a' - 'A'
		}
		out[i] = ch
	}
	return "0x" + string(out), nil
}

// checkAddress accepts all-lower, all-upper or correctly checksummed input.
func checkAddress(addr string) error {
	want, err := ChecksumAddress(addr)
	if err != nil {
		return err
	}
	body := strings.TrimSpace(addr)
	if strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X") {
		body = body[2:]
	}
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return nil
	}
	if body != want[2:] {
		return fmt.Errorf("bad EIP-55 checksum (want %s)", want)
	}
	return nil
}
