package protocol

// Kind is the wire tag of a message.
type Kind string

// Command kinds (client -> server).
const (
	KindRegister           Kind = "register"
	KindDisconnectUser     Kind = "disconnect_user"
	KindGetActiveUsersList Kind = "get_active_users_list"
	KindSendFile           Kind = "send_file"
)

// Event kinds (server -> client).
const (
	KindRegisterSuccess        Kind = "register_success"
	KindActiveUsersList        Kind = "active_users_list"
	KindReceiveFile            Kind = "receive_file"
	KindErrorDeserializingJSON Kind = "error_deserializing_json"
	KindUserNotFound           Kind = "user_not_found"
)

// Message is any value that can travel on the wire.
type Message interface {
	Kind() Kind
}

// Command is a Message a client may send to the relay.
type Command interface {
	Message
	command()
}

// Event is a Message the relay may send to a client.
type Event interface {
	Message
	event()
}

// -----------------------------------------------------------------------------
// Commands
// -----------------------------------------------------------------------------

// Register binds Nickname to the sending connection.
type Register struct {
	Nickname string `json:"nickname"`
}

// DisconnectUser removes Nickname from the registry.
type DisconnectUser struct {
	Nickname string
}

// GetActiveUsersList asks for every registered nickname except Exclude.
type GetActiveUsersList struct {
	Exclude string
}

// SendFile hands Ticket to the peer registered as Recipient.
type SendFile struct {
	Recipient string `json:"recipient"`
	Ticket    string `json:"ticket"`
}

func (Register) Kind() Kind           { return KindRegister }
func (DisconnectUser) Kind() Kind     { return KindDisconnectUser }
func (GetActiveUsersList) Kind() Kind { return KindGetActiveUsersList }
func (SendFile) Kind() Kind           { return KindSendFile }

func (Register) command()           {}
func (DisconnectUser) command()     {}
func (GetActiveUsersList) command() {}
func (SendFile) command()           {}

// -----------------------------------------------------------------------------
// Events
// -----------------------------------------------------------------------------

// RegisterSuccess acknowledges a Register.
type RegisterSuccess struct{}

// ActiveUsersList answers GetActiveUsersList.
type ActiveUsersList struct {
	Names []string
}

// ReceiveFile delivers a ticket to its recipient.
type ReceiveFile struct {
	Ticket string
}

// ErrorDeserializingJSON reports a frame the relay could not decode.
type ErrorDeserializingJSON struct {
	Description string
}

// UserNotFound answers a SendFile whose recipient is not registered.
type UserNotFound struct{}

func (RegisterSuccess) Kind() Kind        { return KindRegisterSuccess }
func (ActiveUsersList) Kind() Kind        { return KindActiveUsersList }
func (ReceiveFile) Kind() Kind            { return KindReceiveFile }
func (ErrorDeserializingJSON) Kind() Kind { return KindErrorDeserializingJSON }
func (UserNotFound) Kind() Kind           { return KindUserNotFound }

func (RegisterSuccess) event()        {}
func (ActiveUsersList) event()        {}
func (ReceiveFile) event()            {}
func (ErrorDeserializingJSON) event() {}
func (UserNotFound) event()           {}

// IsEvent reports whether m is a client-directed Event.
func IsEvent(m Message) bool {
	_, ok := m.(Event)
	return ok
}

// IsCommand reports whether m is a server-accepted Command.
func IsCommand(m Message) bool {
	_, ok := m.(Command)
	return ok
}
