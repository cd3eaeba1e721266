package core

import (
	"crypto/rand"
	"encoding/hex"

	"pkt.systems/tabaret/schema"
)

// newID backfills an identifier for attach requests that carry none, such
// as ad hoc shells that have no conversation log yet.
func newID() schema.SessionID {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "session-unknown"
	}
	return schema.SessionID(hex.EncodeToString(buf[:]))
}
