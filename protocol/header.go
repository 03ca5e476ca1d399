package protocol

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// KeyPrefix is stripped from header keys as they are read.
const KeyPrefix = "agi_"

// Header holds the variables sent at the start of a session, keyed by name
// with KeyPrefix removed.
//
// A Header is built once by ReadHeader (or HeaderFromJSON) and is read only
// afterwards, so it can be shared freely. Lines with an empty key are
// dropped, they can't be looked up or encoded.
type Header struct {
	keys   []string
	values map[string]string
}

func newHeader() *Header {
	return &Header{values: make(map[string]string)}
}

// NewHeader builds a Header from key/value pairs, normalising keys the same
// way ReadHeader does. Mostly useful in tests.
func NewHeader(pairs map[string]string) *Header {
	h := newHeader()
	for k, v := range pairs {
		h.set(NormalizeKey(k), v)
	}

	return h
}

// NormalizeKey trims whitespace and strips KeyPrefix.
func NormalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if strings.HasPrefix(key, KeyPrefix) {
		return key[len(KeyPrefix):]
	}

	return key
}

func (h *Header) set(key, value string) {
	if key == "" {
		return
	}

	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}

	h.values[key] = value
}

// Get returns the value of key. Keys are case sensitive and given without
// KeyPrefix, e.g. "channel" for "agi_channel".
func (h *Header) Get(key string) (value string, ok bool) {
	value, ok = h.values[key]
	return value, ok
}

// Value is Get without the presence flag.
func (h *Header) Value(key string) string {
	return h.values[key]
}

// Keys returns the keys in the order they were first seen.
func (h *Header) Keys() []string {
	keys := make([]string, len(h.keys))
	copy(keys, h.keys)
	return keys
}

func (h *Header) Len() int {
	return len(h.keys)
}

// MarshalJSON encodes the header as a flat JSON object in key order.
func (h *Header) MarshalJSON() ([]byte, error) {
	var err error
	out := []byte("{}")

	for _, key := range h.keys {
		if out, err = sjson.SetBytes(out, escapePath(key), h.values[key]); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// HeaderFromJSON decodes a flat JSON object into a new Header, non-string
// values are kept as their raw JSON text.
func HeaderFromJSON(data []byte) (*Header, error) {
	h := newHeader()
	if err := h.decode(data); err != nil {
		return nil, err
	}

	return h, nil
}

// UnmarshalJSON decodes into a zero Header only, a Header that already
// holds variables is never rewritten.
func (h *Header) UnmarshalJSON(data []byte) error {
	if h.values != nil {
		return ErrHeaderPopulated
	}

	h.values = make(map[string]string)
	if err := h.decode(data); err != nil {
		*h = Header{}
		return err
	}

	return nil
}

func (h *Header) decode(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("Header JSON is not valid")
	}

	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return errors.New("Header JSON must be an object")
	}

	doc.ForEach(func(key, value gjson.Result) bool {
		h.set(NormalizeKey(key.String()), value.String())
		return true
	})

	return nil
}

// escapePath escapes the characters that have a meaning in gjson/sjson
// paths so a key is always treated as a single literal object key.
func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '\\', '.', '*', '?', '|', '#', '@', ':', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}

	return b.String()
}
