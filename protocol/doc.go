// Package protocol implements the frame format of the CamillaDSP websocket
// server.
//
// It is a pure codec: it does no I/O and keeps no state, so it can serve both a
// client and a simulated engine in tests.
//
// # Requests
//
// A command without an argument is the JSON string of its name. A command with
// an argument is an object with a single key:
//
//	"GetVersion"
//	{"SetUpdateInterval":500}
//
// # Replies
//
// Every reply names the command it answers and carries a result tag and an
// optional value:
//
//	{"GetVersion":{"result":"Ok","value":"1.0.3"}}
//	{"SetConfig":{"result":"Error","value":"invalid sample rate"}}
//
// A frame that does not have this shape is reported as a *ParseError. An Error
// result is not a decoding failure; callers inspect Reply.IsOK.
package protocol
