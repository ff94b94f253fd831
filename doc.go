// Package camilladsp is a client for the websocket control interface of the
// CamillaDSP audio engine.
//
// A Client holds one connection to one engine and runs one command at a time:
// every command is sent only after the reply to the previous one arrived, and
// each reply is checked against the command it answers.
//
//	client, err := camilladsp.NewClient("127.0.0.1", 1234, camilladsp.Config{})
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Disconnect()
//
//	state, err := client.GetState(ctx)
//
// # Errors
//
// Operations fail with one of five kinds, see KindOf. Only *IOError and
// *ConnectionRefusedError leave the client disconnected; the client does not
// reconnect by itself. ShouldReconnect tells the caller when to call Connect.
//
// # Configuration
//
// Engine configurations travel as config.Document values, which preserve
// fields this package does not know about.
package camilladsp
