// Package protocol defines the chat wire protocol: JSON message payloads
// carried in length-prefixed frames.
package protocol

import (
	"encoding/json"
	"fmt"
)

// MaxMessageSize is the largest payload either side will accept.
// Identical constant on client and server.
const MaxMessageSize = 1024 * 1024

// Presence kinds carried in the Info field of a presence message.
const (
	PresenceAdd    = "add"
	PresenceUpdate = "update"
	PresenceDelete = "delete"
)

// DeliveryFailed is the Info text sent back to a sender when a recipient
// is not registered.
const DeliveryFailed = "Could not send message"

// NoText is delivered in place of a missing text field.
const NoText = "<No text>"

// ClientInfo is one entry of a client list snapshot.
type ClientInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RecipientList is a list of client identifiers. Recipient lists come from
// untrusted peers, so decoding is lenient: any value that is not a list of
// strings decodes as an empty list rather than failing the whole message.
type RecipientList []string

// UnmarshalJSON implements json.Unmarshaler.
func (r *RecipientList) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		*r = nil
		return nil
	}
	*r = ids
	return nil
}

// Message is the union of every payload shape exchanged between client and
// server. A single message may carry several of these fields at once; each
// present field is handled independently by the receiver.
//
// Server to client: {id} welcome, {clients} snapshot, {id,name,info}
// presence, {from,text,msg_id} delivered message, {info,msg_id} delivery
// failure. Client to server: {name} rename, {recipients,text,msg_id} send.
type Message struct {
	ID         string        `json:"id,omitempty"`
	Name       *string       `json:"name,omitempty"`
	Info       string        `json:"info,omitempty"`
	Clients    []ClientInfo  `json:"clients,omitempty"`
	From       string        `json:"from,omitempty"`
	Text       *string       `json:"text,omitempty"`
	MsgID      int64         `json:"msg_id,omitempty"`
	Recipients RecipientList `json:"recipients,omitempty"`
}

// Encode encodes the message into a JSON payload.
func (m *Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// Decode decodes a JSON payload into the message. The payload must be a
// single JSON object; arrays and scalars at top level are rejected.
func (m *Message) Decode(data []byte) error {
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}

// String returns a pointer to s, for optional message fields.
func String(s string) *string {
	return &s
}
