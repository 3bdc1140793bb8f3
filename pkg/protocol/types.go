package protocol

// SenderType identifies who published a message.
type SenderType int32

const (
	SenderUnknown SenderType = 0
	SenderClient  SenderType = 1
	SenderBackend SenderType = 2
)

// Sender is attached to every outgoing message.
type Sender struct {
	Type SenderType
	ID   []byte
}

// Receiver addresses a private or a public channel.
type Receiver struct {
	ID        []byte
	IsPrivate bool
	Signature []byte
}

// ChannelID is the channel reference used by channel-stats requests.
type ChannelID = Receiver

// IncomingMessage is a message submitted for publishing.
type IncomingMessage struct {
	Receivers []Receiver
	Sender    *Sender
	Body      string
	Expiry    uint32
	Type      string
}

// OutgoingMessage is a published message as delivered to subscribers.
// Expiry 0 means the message was never persisted.
type OutgoingMessage struct {
	ID      []byte
	Body    string
	Expiry  uint32
	Created uint32
	Sender  *Sender
}

// ChannelStats reports whether a channel has subscribers.
type ChannelStats struct {
	ID        []byte
	IsPrivate bool
	IsOnline  bool
}

// Command is the tag of a client request.
type Command int

const (
	// CommandNone marks a request without any command field.
	CommandNone Command = iota
	CommandIncomingMessages
	CommandChannelStats
	CommandServerStats
	// CommandUnknown marks a request whose command field is not recognized.
	CommandUnknown
)

func (c Command) String() string {
	switch c {
	case CommandIncomingMessages:
		return "incomingMessages"
	case CommandChannelStats:
		return "channelStats"
	case CommandServerStats:
		return "serverStats"
	case CommandNone:
		return "none"
	default:
		return "unknown"
	}
}

// Request is one entry of a RequestBatch. Only the payload matching Command is set.
type Request struct {
	Command          Command
	IncomingMessages []IncomingMessage
	ChannelStats     []ChannelID
}

// ResponseKind is the tag of a server response.
type ResponseKind int

const (
	ResponseNone ResponseKind = iota
	ResponseOutgoingMessages
	ResponseChannelStats
	ResponseServerStats
)

// Response is one entry of a ResponseBatch. Only the payload matching Kind is set.
type Response struct {
	Kind             ResponseKind
	OutgoingMessages []OutgoingMessage
	ChannelStats     []ChannelStats
	ServerStats      string
}

// OutgoingMessages builds a message delivery response.
func OutgoingMessages(messages ...OutgoingMessage) Response {
	return Response{Kind: ResponseOutgoingMessages, OutgoingMessages: messages}
}

// ChannelStatsResponse builds a channel-stats response.
func ChannelStatsResponse(stats []ChannelStats) Response {
	return Response{Kind: ResponseChannelStats, ChannelStats: stats}
}

// ServerStatsResponse builds a server-stats response carrying a JSON document.
func ServerStatsResponse(json string) Response {
	return Response{Kind: ResponseServerStats, ServerStats: json}
}

// IPCMessage is a cluster notification: a message and the receivers it was published to.
type IPCMessage struct {
	Receivers         []Receiver
	OutgoingMessage   *OutgoingMessage
	OutgoingMessageID []byte
}
