package gameserver

import "github.com/rs/xid"

// SessionID is a globally unique, sortable identifier. Server mints a
// fresh one for each SessionOpened and PlayStateEntered event it
// publishes; the ID is not stored on the Player, so the events of one
// connection do not share an ID.
type SessionID string

// NewSessionID mints a fresh identifier.
func NewSessionID() SessionID {
	return SessionID(xid.New().String())
}
