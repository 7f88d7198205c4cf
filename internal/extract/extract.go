// Package extract recovers an optional structured action payload from raw
// model output. Model replies are free-form text most of the time; when the
// assistant decides to act it emits a bare JSON object (sometimes wrapped in
// a markdown code fence) carrying an "action" field.
//
// The extractor is deliberately silent on failure: an unparsable or
// structureless reply is indistinguishable from ordinary conversation, so it
// yields "no action" rather than an error. Do not upgrade parse failures to
// hard errors; ambiguity is resolved in favor of continuing the conversation.
package extract

import (
	"encoding/json"
	"strings"
)

// Action names understood by the conversation state machine. Anything else
// is treated as no-action by the caller.
const (
	ActionCreateInvoice = "create_invoice"
	ActionCancel        = "cancel"
)

// Action is a structured payload found in a model reply. Raw preserves the
// exact JSON for persistence and for the invoice validator; Data is the
// nested object, if present.
type Action struct {
	Name string          `json:"action"`
	Data json.RawMessage `json:"data"`

	Raw []byte `json:"-"`
}

// Extract parses text for a structured action. The boolean result is false
// when the reply is plain conversation (or malformed JSON, or JSON without
// an "action" key). Extracting the same text twice yields identical results.
func Extract(text string) (*Action, bool) {
	cleaned := stripFences(strings.TrimSpace(text))
	if !strings.HasPrefix(cleaned, "{") {
		return nil, false
	}

	// Probe with a generic map first: the payload must be an object with
	// an "action" key, not merely valid JSON.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &probe); err != nil {
		return nil, false
	}
	rawName, ok := probe["action"]
	if !ok {
		return nil, false
	}
	var name string
	if err := json.Unmarshal(rawName, &name); err != nil {
		return nil, false
	}

	act := &Action{Name: name, Data: probe["data"], Raw: []byte(cleaned)}
	return act, true
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag ("```json" or "```").
func stripFences(s string) string {
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-len("```")]
	}
	return strings.TrimSpace(s)
}
