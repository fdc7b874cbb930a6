package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Errors
var (
	ErrDecode         = errors.New("invalid frame")
	ErrUnknownMessage = errors.New("unknown message type")
)

// envelope is the adjacently tagged wire form of every message.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// object holds a decoded JSON object by exact key. encoding/json folds case
// when matching struct fields, so wire keys are looked up here instead.
type object map[string]json.RawMessage

// Encode converts m to its wire form.
func Encode(m Message) ([]byte, error) {
	var payload any
	switch v := m.(type) {
	case Register:
		payload = v
	case DisconnectUser:
		payload = v.Nickname
	case GetActiveUsersList:
		payload = v.Exclude
	case SendFile:
		payload = v
	case RegisterSuccess, UserNotFound:
		// unit variants
	case ActiveUsersList:
		names := v.Names
		if names == nil {
			names = []string{}
		}
		payload = names
	case ReceiveFile:
		payload = v.Ticket
	case ErrorDeserializingJSON:
		payload = v.Description
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, m)
	}

	env := envelope{Type: string(m.Kind())}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", m.Kind(), err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decode parses one frame. The returned error describes what was wrong with
// the frame and is suitable for sending back to the peer. Keys are matched
// case-sensitively and unknown keys are ignored.
func Decode(data []byte) (Message, error) {
	var obj object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	rawType, ok := obj["type"]
	if !ok || isNull(rawType) {
		return nil, fmt.Errorf("%w: missing field `type`", ErrDecode)
	}
	var env envelope
	if err := json.Unmarshal(rawType, &env.Type); err != nil {
		return nil, fmt.Errorf("%w: field `type`: %v", ErrDecode, err)
	}
	env.Payload = obj["payload"]

	kind := Kind(env.Type)
	switch kind {
	case KindRegister:
		fields, err := decodeObject(kind, env.Payload)
		if err != nil {
			return nil, err
		}
		nick, err := stringField(kind, fields, "nickname")
		if err != nil {
			return nil, err
		}
		return Register{Nickname: nick}, nil

	case KindDisconnectUser:
		var nick string
		if err := decodePayload(kind, env.Payload, &nick); err != nil {
			return nil, err
		}
		return DisconnectUser{Nickname: nick}, nil

	case KindGetActiveUsersList:
		var exclude string
		if err := decodePayload(kind, env.Payload, &exclude); err != nil {
			return nil, err
		}
		return GetActiveUsersList{Exclude: exclude}, nil

	case KindSendFile:
		fields, err := decodeObject(kind, env.Payload)
		if err != nil {
			return nil, err
		}
		recipient, err := stringField(kind, fields, "recipient")
		if err != nil {
			return nil, err
		}
		ticket, err := stringField(kind, fields, "ticket")
		if err != nil {
			return nil, err
		}
		return SendFile{Recipient: recipient, Ticket: ticket}, nil

	case KindRegisterSuccess:
		if err := unitPayload(kind, env.Payload); err != nil {
			return nil, err
		}
		return RegisterSuccess{}, nil

	case KindUserNotFound:
		if err := unitPayload(kind, env.Payload); err != nil {
			return nil, err
		}
		return UserNotFound{}, nil

	case KindActiveUsersList:
		var names []string
		if err := decodePayload(kind, env.Payload, &names); err != nil {
			return nil, err
		}
		return ActiveUsersList{Names: names}, nil

	case KindReceiveFile:
		var ticket string
		if err := decodePayload(kind, env.Payload, &ticket); err != nil {
			return nil, err
		}
		return ReceiveFile{Ticket: ticket}, nil

	case KindErrorDeserializingJSON:
		var desc string
		if err := decodePayload(kind, env.Payload, &desc); err != nil {
			return nil, err
		}
		return ErrorDeserializingJSON{Description: desc}, nil
	}

	return nil, fmt.Errorf("%w: unknown variant `%s`", ErrDecode, env.Type)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodePayload(kind Kind, raw json.RawMessage, dst any) error {
	if isNull(raw) {
		return missingField(kind, "payload")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrDecode, kind, err)
	}
	return nil
}

func decodeObject(kind Kind, raw json.RawMessage) (object, error) {
	var fields object
	if err := decodePayload(kind, raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// stringField reads a required string member of a struct payload.
func stringField(kind Kind, fields object, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", missingField(kind, name)
	}
	if isNull(raw) {
		return "", fmt.Errorf("%w: %s: field `%s`: expected a string, got null", ErrDecode, kind, name)
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("%w: %s: field `%s`: %v", ErrDecode, kind, name, err)
	}
	return v, nil
}

// unitPayload accepts an absent or null payload only.
func unitPayload(kind Kind, raw json.RawMessage) error {
	if isNull(raw) {
		return nil
	}
	return fmt.Errorf("%w: %s takes no payload", ErrDecode, kind)
}

func missingField(kind Kind, field string) error {
	return fmt.Errorf("%w: %s: missing field `%s`", ErrDecode, kind, field)
}
