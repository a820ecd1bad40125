// Package common provides the small hex-encoding helpers shared by every
// CLI flag and wire-format boundary in the pool engine: signatures,
// labels, and private keys are all accepted as optionally-0x-prefixed
// hex strings.
package common

import "encoding/hex"

// HexToBytes converts a hex string to bytes, tolerating an optional 0x prefix.
func HexToBytes(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return hex.DecodeString(s)
}

// BytesToHex converts bytes to a hex string with 0x prefix.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
