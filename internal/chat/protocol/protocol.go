package protocol

import (
	"github.com/lk2023060901/garden-chat-go/internal/json"
	"github.com/lk2023060901/garden-chat-go/pkg/util/merr"
)

// Kind is the wire discriminator carried in every message's "type" field.
type Kind string

const (
	KindLoginReq  Kind = "LOGIN_REQ"
	KindLoginResp Kind = "LOGIN_RESP"
	KindDM        Kind = "DM"
	KindMulti     Kind = "MULTI"
	KindBroadcast Kind = "BROADCAST"
	KindUsersReq  Kind = "USERS_REQ"
	KindUsersResp Kind = "USERS_RESP"
	KindLogout    Kind = "LOGOUT"
	KindError     Kind = "ERROR"
)

// Message is the closed set of wire message variants. Every variant embeds
// header so Encode can stamp the discriminator, and validates its own
// required fields during Decode.
//
// Conventions:
//   - Client-to-server requests carry "to"; server-to-client deliveries carry
//     "from". Both live on the same variant since they share a Kind; which
//     side is required depends on direction and is checked where known.
type Message interface {
	// Kind returns the wire discriminator of the variant.
	Kind() Kind

	// validate checks required fields after a decode.
	validate() error

	setType(Kind)
}

type header struct {
	Type Kind `json:"type"`
}

func (h *header) setType(k Kind) { h.Type = k }

// LoginReq is the authentication request.
type LoginReq struct {
	header
	Username string `json:"username"`
	Password string `json:"password"`
}

func (*LoginReq) Kind() Kind { return KindLoginReq }

// Empty credentials are left to the credential check, which answers them
// with a proper login failure instead of a malformed-input drop.
func (m *LoginReq) validate() error { return nil }

// LoginResp is the server's reply to LoginReq. Msg carries the welcome text
// on success, Reason the failure cause otherwise.
type LoginResp struct {
	header
	OK     bool   `json:"ok"`
	Msg    string `json:"msg,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (*LoginResp) Kind() Kind { return KindLoginResp }

func (m *LoginResp) validate() error { return nil }

// DM is a direct message: {to, msg} inbound, {from, msg} on delivery.
type DM struct {
	header
	To   string `json:"to,omitempty"`
	From string `json:"from,omitempty"`
	Msg  string `json:"msg"`
}

func (*DM) Kind() Kind { return KindDM }

func (m *DM) validate() error {
	if m.To == "" && m.From == "" {
		return merr.WrapErrMessageFieldMissing("to", string(KindDM))
	}
	return nil
}

// Multi is a multicast message: {to: [...], msg} inbound, {from, msg} on
// delivery to each recipient.
type Multi struct {
	header
	To   []string `json:"to,omitempty"`
	From string   `json:"from,omitempty"`
	Msg  string   `json:"msg"`
}

func (*Multi) Kind() Kind { return KindMulti }

func (m *Multi) validate() error {
	if len(m.To) == 0 && m.From == "" {
		return merr.WrapErrMessageFieldMissing("to", string(KindMulti))
	}
	return nil
}

// Broadcast is a message to every other online session.
type Broadcast struct {
	header
	From string `json:"from,omitempty"`
	Msg  string `json:"msg"`
}

func (*Broadcast) Kind() Kind { return KindBroadcast }

func (m *Broadcast) validate() error { return nil }

// UsersReq asks for the online user list.
type UsersReq struct {
	header
}

func (*UsersReq) Kind() Kind { return KindUsersReq }

func (m *UsersReq) validate() error { return nil }

// UsersResp carries a point-in-time snapshot of online usernames.
type UsersResp struct {
	header
	Users []string `json:"users"`
}

func (*UsersResp) Kind() Kind { return KindUsersResp }

func (m *UsersResp) validate() error { return nil }

// Logout ends the session. No reply is sent; the connection closes.
type Logout struct {
	header
}

func (*Logout) Kind() Kind { return KindLogout }

func (m *Logout) validate() error { return nil }

// ErrorMsg is the server-to-client protocol error report.
type ErrorMsg struct {
	header
	Msg string `json:"msg"`
}

func (*ErrorMsg) Kind() Kind { return KindError }

func (m *ErrorMsg) validate() error { return nil }

// Encode serializes a message, stamping its "type" discriminator.
func Encode(m Message) ([]byte, error) {
	m.setType(m.Kind())
	data, err := json.Marshal(m)
	if err != nil {
		return nil, merr.WrapErrMessageMalformed(err.Error(), "encode")
	}
	return data, nil
}

// Decode parses one wire message in a single schema-validating step:
// the discriminator selects the variant, the payload is unmarshaled into it,
// and the variant checks its required fields. Unknown or absent
// discriminators are rejected.
func Decode(data []byte) (Message, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, merr.WrapErrMessageMalformed(err.Error())
	}

	var m Message
	switch h.Type {
	case KindLoginReq:
		m = &LoginReq{}
	case KindLoginResp:
		m = &LoginResp{}
	case KindDM:
		m = &DM{}
	case KindMulti:
		m = &Multi{}
	case KindBroadcast:
		m = &Broadcast{}
	case KindUsersReq:
		m = &UsersReq{}
	case KindUsersResp:
		m = &UsersResp{}
	case KindLogout:
		m = &Logout{}
	case KindError:
		m = &ErrorMsg{}
	case "":
		return nil, merr.WrapErrMessageFieldMissing("type", "")
	default:
		return nil, merr.WrapErrMessageUnknownType(string(h.Type))
	}

	if err := json.Unmarshal(data, m); err != nil {
		return nil, merr.WrapErrMessageMalformed(err.Error())
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}
