package relay

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Payload is a WhatsApp Cloud API webhook delivery
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []ContactInfo   `json:"contacts"`
	Messages []InboundMessage `json:"messages"`
}

type ContactInfo struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// InboundMessage is one user message. Raw keeps the original JSON so it can
// be stored alongside the message.
type InboundMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func (m *InboundMessage) UnmarshalJSON(data []byte) error {
	type plain InboundMessage
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*m = InboundMessage(decoded)
	m.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MessageType returns the declared type, defaulting to text
func (m *InboundMessage) MessageType() string {
	if m.Type == "" {
		return "text"
	}
	return m.Type
}

// Content returns the text body, or a "[Type]" placeholder for media
func (m *InboundMessage) Content() string {
	typ := m.MessageType()
	if typ == "text" {
		if m.Text == nil {
			return ""
		}
		return m.Text.Body
	}
	runes := []rune(typ)
	runes[0] = unicode.ToUpper(runes[0])
	return "[" + string(runes) + "]"
}

// SentAt parses the unix-seconds timestamp, falling back to fallback
func (m *InboundMessage) SentAt(fallback time.Time) time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(m.Timestamp), 10, 64)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Unix(secs, 0).UTC()
}

// profileName returns the sender's display name from the contacts block
func (v *Value) profileName(waID string) string {
	for _, c := range v.Contacts {
		if c.WaID == waID {
			return c.Profile.Name
		}
	}
	return ""
}
