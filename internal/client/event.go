package client

import "github.com/mrnul/Chat/pkg/protocol"

// Event is delivered on the client's event channel to the presentation
// layer. Emission never blocks the session worker; a consumer that lags
// loses events instead of stalling the protocol.
type Event interface {
	isEvent()
}

// StatusEvent reports a connection status change, including each reconnect
// attempt.
type StatusEvent struct {
	Text      string
	Connected bool
}

// ClientListEvent reports that the server's client list snapshot replaced
// the local cache. Clients maps identifier to display name and is a copy
// owned by the receiver.
type ClientListEvent struct {
	Clients map[string]string
}

// PresenceEvent carries a raw presence or status message (a frame with an
// info field), covering add/update/delete notices and delivery failures.
type PresenceEvent struct {
	Message protocol.Message
}

// MessageEvent reports an incoming chat message.
type MessageEvent struct {
	Text  string
	From  string
	MsgID int64
}

func (StatusEvent) isEvent()     {}
func (ClientListEvent) isEvent() {}
func (PresenceEvent) isEvent()   {}
func (MessageEvent) isEvent()    {}
