package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pior/camilladsp/config"
)

// ErrEmptyCommand is returned when encoding a frame without a command name.
var ErrEmptyCommand = errors.New("protocol: empty command name")

// EncodeRequest serializes a command into a request frame.
//
// Without an argument (nil) the frame is the JSON string of the command name:
//
//	"GetState"
//
// With an argument it is a single-key object holding the argument:
//
//	{"SetUpdateInterval":500}
//
// Configuration documents are sent as their YAML text, the same form the engine
// persists configuration files in.
func EncodeRequest(command string, arg any) ([]byte, error) {
	if command == "" {
		return nil, ErrEmptyCommand
	}

	if arg == nil {
		return marshal(command)
	}

	if doc, ok := arg.(*config.Document); ok {
		if doc == nil {
			return nil, fmt.Errorf("protocol: %s: nil config document", command)
		}
		text, err := doc.Marshal()
		if err != nil {
			return nil, fmt.Errorf("protocol: %s: %w", command, err)
		}
		arg = string(text)
	}

	return marshal(map[string]any{command: arg})
}

// marshal encodes v without HTML escaping and without the trailing newline
// json.Encoder appends.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("protocol: encode: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// DecodeRequest parses a request frame into its command name and raw argument.
// The argument is nil for commands sent without one.
func DecodeRequest(frame []byte) (string, json.RawMessage, error) {
	var command string
	if err := json.Unmarshal(frame, &command); err == nil {
		if command == "" {
			return "", nil, &ParseError{Message: "request has an empty command name"}
		}
		return command, nil, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return "", nil, &ParseError{Message: "request is neither a string nor an object", Err: err}
	}
	if len(envelope) != 1 {
		return "", nil, &ParseError{Message: "request must name exactly one command"}
	}
	for command, arg := range envelope {
		if command == "" {
			return "", nil, &ParseError{Message: "request has an empty command name"}
		}
		return command, arg, nil
	}
	return "", nil, &ParseError{Message: "empty request"}
}
