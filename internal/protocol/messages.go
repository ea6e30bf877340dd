// Package protocol defines the "onchat" WebSocket wire format spoken between
// the chat client and the chat server. Outbound requests are wrapped in an
// action envelope; inbound frames carry a status, an event tag and an
// event-specific payload.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Action is the fixed routing action every outbound request is wrapped in.
const Action = "onchat"

// StatusSuccess is the inbound status value of a successful response.
const StatusSuccess = "success"

// ---------------------------------------------------------------------------
// Event tags
// ---------------------------------------------------------------------------

// Event tags shared by requests and their responses.
const (
	EventRegister        = "REGISTER"
	EventLogin           = "LOGIN"
	EventLogout          = "LOGOUT"
	EventReLogin         = "RE_LOGIN"
	EventPeopleHistory   = "GET_PEOPLE_CHAT_MES"
	EventRoomHistory     = "GET_ROOM_CHAT_MES"
	EventSendChat        = "SEND_CHAT"
	EventCheckUserExist  = "CHECK_USER_EXIST"
	EventCreateRoom      = "CREATE_ROOM"
	EventJoinRoom        = "JOIN_ROOM"
	EventCheckUserOnline = "CHECK_USER_ONLINE"
)

// ---------------------------------------------------------------------------
// Outbound envelope
// ---------------------------------------------------------------------------

// Request is the outer wire wrapper of every client request.
type Request struct {
	Action string      `json:"action"`
	Data   RequestBody `json:"data"`
}

// RequestBody carries the event tag and its payload. Data is omitted for
// payload-less events such as LOGOUT.
type RequestBody struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// NewRequest encodes a request for the given event and payload.
func NewRequest(event string, data interface{}) ([]byte, error) {
	out, err := json.Marshal(Request{
		Action: Action,
		Data:   RequestBody{Event: event, Data: data},
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal %s request: %w", event, err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Outbound payloads
// ---------------------------------------------------------------------------

// Credentials is the payload of REGISTER and LOGIN.
type Credentials struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

// ReLogin is the payload of RE_LOGIN, replaying a previously issued code.
type ReLogin struct {
	User string `json:"user"`
	Code string `json:"code"`
}

// HistoryQuery requests one page of a conversation's history.
type HistoryQuery struct {
	Name string `json:"name"`
	Page int    `json:"page"`
}

// ChatType addresses an outbound chat message to a person or a room.
type ChatType string

const (
	ChatPeople ChatType = "people"
	ChatRoom   ChatType = "room"
)

// SendChat is the payload of an outbound SEND_CHAT.
type SendChat struct {
	Type ChatType `json:"type"`
	To   string   `json:"to"`
	Mes  string   `json:"mes"`
}

// UserQuery is the payload of CHECK_USER_EXIST and CHECK_USER_ONLINE.
type UserQuery struct {
	User string `json:"user"`
}

// RoomQuery is the payload of CREATE_ROOM and JOIN_ROOM.
type RoomQuery struct {
	Name string `json:"name"`
}

// ---------------------------------------------------------------------------
// Chat messages
// ---------------------------------------------------------------------------

// MessageKind classifies a chat message. On the wire it appears either as a
// string ("people", "room") or as a number (0, 1, 5).
type MessageKind int

const (
	KindPerson     MessageKind = 0
	KindRoom       MessageKind = 1
	KindAnnotation MessageKind = 5
)

// String returns the wire label of the kind.
func (k MessageKind) String() string {
	switch k {
	case KindPerson:
		return string(ChatPeople)
	case KindRoom:
		return string(ChatRoom)
	default:
		return strconv.Itoa(int(k))
	}
}

// MarshalJSON encodes persons and rooms by label and anything else by number.
func (k MessageKind) MarshalJSON() ([]byte, error) {
	switch k {
	case KindPerson, KindRoom:
		return json.Marshal(k.String())
	default:
		return json.Marshal(int(k))
	}
}

// UnmarshalJSON accepts both the string and the numeric wire forms.
func (k *MessageKind) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*k = KindPerson
		return nil
	}
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		switch ChatType(label) {
		case ChatPeople:
			*k = KindPerson
		case ChatRoom:
			*k = KindRoom
		default:
			n, err := strconv.Atoi(label)
			if err != nil {
				return fmt.Errorf("protocol: unknown message type %q", label)
			}
			*k = MessageKind(n)
		}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("protocol: invalid message type %s", data)
	}
	*k = MessageKind(n)
	return nil
}

// ChatType returns the outbound addressing of the kind.
func (k MessageKind) ChatType() ChatType {
	if k == KindRoom {
		return ChatRoom
	}
	return ChatPeople
}

// ChatMessage is one message as pushed by SEND_CHAT or returned in a history
// page. ID is assigned by the server and is zero for optimistic local copies.
type ChatMessage struct {
	ID       int64       `json:"id,omitempty"`
	Name     string      `json:"name,omitempty"` // sender
	To       string      `json:"to,omitempty"`   // recipient or room
	Mes      string      `json:"mes"`
	CreateAt string      `json:"createAt,omitempty"`
	Type     MessageKind `json:"type"`

	// TypeLabel is the type as received when the server sent a string.
	TypeLabel string `json:"-"`
}

// UnmarshalJSON decodes a message and remembers a string type label, which
// the server uses for annotations that the numeric form cannot tell apart.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type wire ChatMessage
	var aux struct {
		wire
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("protocol: failed to decode chat message: %w", err)
	}
	*m = ChatMessage(aux.wire)
	m.Type = KindPerson
	m.TypeLabel = ""
	if len(aux.Type) == 0 {
		return nil
	}
	if err := m.Type.UnmarshalJSON(aux.Type); err != nil {
		return err
	}
	if aux.Type[0] == '"' {
		_ = json.Unmarshal(aux.Type, &m.TypeLabel)
	}
	return nil
}

// IsRoom reports whether the message was posted to a room.
func (m ChatMessage) IsRoom() bool {
	return m.Type == KindRoom
}

// IsSignal reports whether the message body tunnels a call-signaling payload.
func (m ChatMessage) IsSignal() bool {
	return IsSignal(m.Mes)
}

// ---------------------------------------------------------------------------
// Inbound envelope
// ---------------------------------------------------------------------------

// Inbound is a parsed server frame. Seq and ReceivedAt are stamped by the
// transport; they never appear on the wire.
type Inbound struct {
	Seq        uint64          `json:"-"`
	ReceivedAt int64           `json:"-"` // unix millis
	Status     string          `json:"status,omitempty"`
	Event      string          `json:"event,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Mes        json.RawMessage `json:"mes,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the raw frame and resolves the event tag, which the
// server places either at the top level or nested under "data".
func (in *Inbound) UnmarshalJSON(data []byte) error {
	in.Raw = make(json.RawMessage, len(data))
	copy(in.Raw, data)

	var partial struct {
		Status string          `json:"status"`
		Event  string          `json:"event"`
		Data   json.RawMessage `json:"data"`
		Mes    json.RawMessage `json:"mes"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal inbound frame: %w", err)
	}
	in.Status = partial.Status
	in.Event = partial.Event
	in.Data = partial.Data
	in.Mes = partial.Mes

	if in.Event == "" {
		if obj := in.dataObject(); obj != nil {
			in.Event = stringField(obj, "event")
		}
	}
	return nil
}

// ParseInbound parses a raw server frame.
func ParseInbound(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, err
	}
	return in, nil
}

// Succeeded reports whether the server flagged the frame as successful.
func (in Inbound) Succeeded() bool {
	return in.Status == StatusSuccess
}

// HasData reports whether the frame carries a non-null payload.
func (in Inbound) HasData() bool {
	return len(in.Data) > 0 && string(in.Data) != "null"
}

// ChatMessages decodes the payload as a history page. The boolean is false
// when the payload is not an array.
func (in Inbound) ChatMessages() ([]ChatMessage, bool) {
	if !in.HasData() || in.Data[0] != '[' {
		return nil, false
	}
	var page []ChatMessage
	if err := json.Unmarshal(in.Data, &page); err != nil {
		return nil, false
	}
	return page, true
}

// ChatMessage decodes the payload as a single pushed message.
func (in Inbound) ChatMessage() (ChatMessage, error) {
	var msg ChatMessage
	if !in.HasData() {
		return msg, fmt.Errorf("protocol: %s frame has no payload", in.Event)
	}
	if err := json.Unmarshal(in.Data, &msg); err != nil {
		return msg, fmt.Errorf("protocol: failed to decode %s payload: %w", in.Event, err)
	}
	return msg, nil
}

// ReLoginCode returns the reauthentication code issued with a LOGIN or
// RE_LOGIN response, if any.
func (in Inbound) ReLoginCode() string {
	return stringField(in.dataObject(), "RE_LOGIN_CODE")
}

// DataName returns the "name" field of the payload (CREATE_ROOM, JOIN_ROOM).
func (in Inbound) DataName() string {
	return stringField(in.dataObject(), "name")
}

// DataStatusFalse reports whether the payload carries "status": false.
func (in Inbound) DataStatusFalse() bool {
	obj := in.dataObject()
	if obj == nil {
		return false
	}
	raw, ok := obj["status"]
	return ok && string(raw) == "false"
}

// ErrorText returns the server-provided error text, looking first at
// data.mes and then at the top-level mes.
func (in Inbound) ErrorText() string {
	if s := stringField(in.dataObject(), "mes"); s != "" {
		return s
	}
	if len(in.Mes) > 0 {
		var s string
		if err := json.Unmarshal(in.Mes, &s); err == nil {
			return s
		}
	}
	if len(in.Data) > 0 && in.Data[0] == '"' {
		var s string
		if err := json.Unmarshal(in.Data, &s); err == nil {
			return s
		}
	}
	return ""
}

func (in Inbound) dataObject() map[string]json.RawMessage {
	if !in.HasData() || in.Data[0] != '{' {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(in.Data, &obj); err != nil {
		return nil
	}
	return obj
}

func stringField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
