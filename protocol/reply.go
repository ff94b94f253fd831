package protocol

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pior/camilladsp/config"
)

// Reply is a decoded reply frame:
//
//	{"GetState": {"result": "Ok", "value": "RUNNING"}}
//	{"SetConfig": {"result": "Error", "value": "invalid sample rate"}}
//
// Value is nil when the engine sent no value.
type Reply struct {
	Command string
	Result  Result
	Value   json.RawMessage
}

type replyBody struct {
	Result string          `json:"result"`
	Value  json.RawMessage `json:"value"`
}

// DecodeReply parses a reply frame. A frame that is not a JSON object naming
// exactly one command with a known result tag yields a *ParseError.
func DecodeReply(frame []byte) (*Reply, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return nil, &ParseError{Message: "reply is not a JSON object", Err: err}
	}
	if len(envelope) != 1 {
		return nil, &ParseError{Message: "reply must name exactly one command, got " + strconv.Itoa(len(envelope))}
	}

	for command, raw := range envelope {
		if command == "" {
			return nil, &ParseError{Message: "reply has an empty command name"}
		}

		var body replyBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, &ParseError{Message: "reply body for " + command + " is not an object", Err: err}
		}

		reply := &Reply{Command: command}
		switch {
		case strings.EqualFold(body.Result, string(ResultOK)):
			reply.Result = ResultOK
		case strings.EqualFold(body.Result, string(ResultError)):
			reply.Result = ResultError
		default:
			return nil, &ParseError{Message: "unknown result " + strconv.Quote(body.Result) + " for " + command}
		}

		if len(body.Value) > 0 && !bytes.Equal(body.Value, []byte("null")) {
			reply.Value = body.Value
		}
		return reply, nil
	}

	return nil, &ParseError{Message: "empty reply"}
}

type replyBodyOut struct {
	Result Result `json:"result"`
	Value  any    `json:"value,omitempty"`
}

// EncodeReply builds a reply frame, as the engine would send it. A nil value is
// omitted; configuration documents are sent as YAML text.
func EncodeReply(command string, result Result, value any) ([]byte, error) {
	if command == "" {
		return nil, ErrEmptyCommand
	}
	if doc, ok := value.(*config.Document); ok && doc != nil {
		text, err := doc.Marshal()
		if err != nil {
			return nil, err
		}
		value = string(text)
	}
	return marshal(map[string]replyBodyOut{command: {Result: result, Value: value}})
}

// IsOK reports whether the engine accepted the command.
func (r *Reply) IsOK() bool {
	return r.Result == ResultOK
}

// HasValue reports whether the reply carries a value.
func (r *Reply) HasValue() bool {
	return r.Value != nil
}

// Matches reports whether the reply answers command. Names compare case-insensitively.
func (r *Reply) Matches(command string) bool {
	return strings.EqualFold(r.Command, command)
}

// Message returns the error text of an error reply. String values are returned
// verbatim, other values as their JSON text.
func (r *Reply) Message() string {
	if r.Value == nil {
		return DefaultErrorMessage
	}
	var s string
	if err := json.Unmarshal(r.Value, &s); err == nil {
		return s
	}
	return string(r.Value)
}

// Text decodes a string value.
func (r *Reply) Text() (string, error) {
	if r.Value == nil {
		return "", r.missingValue()
	}
	var s string
	if err := json.Unmarshal(r.Value, &s); err != nil {
		return "", &ParseError{Message: r.Command + " value is not a string", Err: err}
	}
	return s, nil
}

// Int decodes an integer value: counts, rates, intervals. Numbers may be sent
// bare or quoted.
func (r *Reply) Int() (int64, error) {
	text, err := r.scalar()
	if err != nil {
		return 0, err
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, &ParseError{Message: r.Command + " value is not an integer", Err: err}
	}
	if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, &ParseError{Message: r.Command + " value " + text + " is not an integer"}
	}
	return int64(f), nil
}

// Float decodes a floating point value: levels and ratios. Numbers may be sent
// bare or quoted.
func (r *Reply) Float() (float64, error) {
	text, err := r.scalar()
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, &ParseError{Message: r.Command + " value is not a number", Err: err}
	}
	return f, nil
}

// Document decodes a value holding YAML configuration text.
func (r *Reply) Document() (*config.Document, error) {
	text, err := r.Text()
	if err != nil {
		return nil, err
	}
	doc, err := config.ParseString(text)
	if err != nil {
		return nil, &ParseError{Message: r.Command + " value is not a valid configuration document", Err: err}
	}
	return doc, nil
}

// scalar returns the text of a numeric value, unquoting it if needed.
func (r *Reply) scalar() (string, error) {
	if r.Value == nil {
		return "", r.missingValue()
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(r.Value))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", &ParseError{Message: r.Command + " value is not valid JSON", Err: err}
	}

	switch v := v.(type) {
	case json.Number:
		return v.String(), nil
	case string:
		return strings.TrimSpace(v), nil
	default:
		return "", &ParseError{Message: r.Command + " value is not a scalar"}
	}
}

func (r *Reply) missingValue() error {
	return &ParseError{Message: r.Command + " reply carries no value"}
}
