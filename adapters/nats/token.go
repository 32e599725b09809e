package nats

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// memberToken maps a member name onto a string that is safe to use as a
// NATS subject token and as a KV key.
func memberToken(member string) string {
	h, _ := blake2b.New(8, nil)
	h.Write([]byte(member))
	return hex.EncodeToString(h.Sum(nil))
}
