// Package protocol defines the push server wire messages and their encodings.
//
// Binary mode uses the protobuf wire format. Messages are encoded and decoded
// by hand with google.golang.org/protobuf/encoding/protowire, so no generated
// code is involved; unknown fields are skipped on decode. The schema is:
//
//	RequestBatch         { repeated Request requests = 1; }
//	Request              { oneof { IncomingMessagesRequest incomingMessages = 1;
//	                               ChannelStatsRequest channelStats = 2;
//	                               ServerStatsRequest serverStats = 3; } }
//	IncomingMessage      { repeated Receiver receivers = 1; Sender sender = 2;
//	                       string body = 3; uint32 expiry = 4; string type = 5; }
//	Receiver / ChannelId { bytes id = 1; bool isPrivate = 2; bytes signature = 3; }
//	Sender               { SenderType type = 1; bytes id = 2; }
//	ResponseBatch        { repeated Response responses = 1; }
//	Response             { oneof { OutgoingMessagesResponse outgoingMessages = 1;
//	                               ChannelStatsResponse channelStats = 2;
//	                               JsonResponse serverStats = 3; } }
//	OutgoingMessage      { bytes id = 1; string body = 2; uint32 expiry = 3;
//	                       fixed32 created = 4; Sender sender = 5; }
//	ChannelStats         { bytes id = 1; bool isPrivate = 2; bool isOnline = 3; }
//	NotificationBatch    { repeated Notification notifications = 1; }
//	Notification         { oneof { IPCMessages ipcMessages = 1; } }
//	IPCMessage           { repeated Receiver receivers = 1;
//	                       OutgoingMessage outgoingMessage = 2; bytes outgoingMessageId = 3; }
//
// Plain-text mode is the legacy delimiter-framed format understood by old
// clients; see EncodeText.
//
// Close codes shared by WebSocket and HTTP transports live in codes.go.
package protocol
