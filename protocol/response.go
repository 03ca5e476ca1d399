package protocol

import (
	"github.com/tidwall/sjson"
)

// CodeSuccess is the status code of every command the server accepted.
const CodeSuccess = 200

// Response is the reply to a single command.
//
// Only Raw is always set. The other fields are nil when the corresponding
// part of the line was absent (or the line didn't parse at all), which is
// distinct from a zero value.
type Response struct {
	// Raw is the reply line without its terminator
	Raw string

	Code   *int
	Result *int

	// Note is the parenthesised text, without the parentheses
	Note *string

	// EndPos is only sent by commands that play or record audio
	EndPos *int
}

// Parsed returns true if the line matched `<code> result=<n>`.
func (r *Response) Parsed() bool {
	return r.Code != nil && r.Result != nil
}

// Success returns true for a parsed response with CodeSuccess.
func (r *Response) Success() bool {
	return r.Code != nil && *r.Code == CodeSuccess
}

// Digit interprets the result as a character code, as sent by commands
// that wait for DTMF input. ok is false if there is no result or it is not
// a positive character code (0 means no digit was pressed, -1 a failure).
func (r *Response) Digit() (digit rune, ok bool) {
	if r.Result == nil || *r.Result <= 0 {
		return 0, false
	}

	return rune(*r.Result), true
}

// ErrorOrNil returns an error if the response didn't parse or its code is
// not CodeSuccess. Otherwise it returns nil.
func (r *Response) ErrorOrNil() error {
	if !r.Parsed() {
		return ErrUnparsedResponse
	}

	if *r.Code != CodeSuccess {
		return &ResultError{Code: *r.Code, Raw: r.Raw}
	}

	return nil
}

// MarshalJSON encodes the response, unset fields are omitted.
func (r *Response) MarshalJSON() ([]byte, error) {
	out, err := sjson.SetBytes([]byte("{}"), "raw", r.Raw)
	if err != nil {
		return nil, err
	}

	fields := []struct {
		path  string
		value interface{}
		set   bool
	}{
		{"code", r.Code, r.Code != nil},
		{"result", r.Result, r.Result != nil},
		{"note", r.Note, r.Note != nil},
		{"endpos", r.EndPos, r.EndPos != nil},
	}

	for _, f := range fields {
		if !f.set {
			continue
		}

		if out, err = sjson.SetBytes(out, f.path, deref(f.value)); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func deref(v interface{}) interface{} {
	switch p := v.(type) {
	case *int:
		return *p
	case *string:
		return *p
	default:
		return v
	}
}
