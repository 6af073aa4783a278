package events

import (
	"strconv"
	"strings"

	"ammScope/internal/model"
)

const (
	keyContract = "_contract_address"
	keyAction   = "action"
	keyMsgIndex = "msg_index"
	keySender   = "sender"
)

// Attrs is an ordered attribute list for one logical contract event.
type Attrs []model.Attribute

// Get tries each key in order and returns the first attribute value matching it.
// Within a key, the earliest attribute wins.
func (a Attrs) Get(keys ...string) (string, bool) {
	for _, key := range keys {
		for _, attr := range a {
			if attr.Key == key {
				return attr.Value, true
			}
		}
	}
	return "", false
}

// Value is Get without the presence flag, trimmed.
func (a Attrs) Value(keys ...string) string {
	v, _ := a.Get(keys...)
	return strings.TrimSpace(v)
}

// Int parses the first matching key as a non-negative integer.
func (a Attrs) Int(keys ...string) (int, bool) {
	v, ok := a.Get(keys...)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (a Attrs) has(key string) bool {
	_, ok := a.Get(key)
	return ok
}

// segments splits a contract event at every repeated _contract_address so that
// events emitted by nested contract calls are looked up independently.
func segments(ev model.Event) []Attrs {
	var out []Attrs
	var cur Attrs
	for _, attr := range ev.Attributes {
		if attr.Key == keyContract && cur.has(keyContract) {
			out = append(out, cur)
			cur = nil
		}
		cur = append(cur, attr)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// actionOf returns the contract action of a segment. Typed events
// (wasm-swap) carry the action in their type.
func actionOf(eventType string, a Attrs) string {
	if v := a.Value(keyAction); v != "" {
		return v
	}
	return strings.TrimPrefix(eventType, "wasm-")
}

func isContractEvent(eventType string) bool {
	return eventType == "wasm" || strings.HasPrefix(eventType, "wasm-")
}
