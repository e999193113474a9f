// Package relay turns inbound WhatsApp webhook deliveries into stored
// messages, tracking replies and keyword automation replies.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"cargo-relay/internal/database"
	"cargo-relay/internal/ratelimit"
	"cargo-relay/internal/tracking"
	"cargo-relay/internal/whatsapp"
)

const (
	trackCommand       = "TRACK"
	missingNumberReply = "⚠️ Please provide a tracking number. Example: TRACK 1234567890"
)

// Reply triggers, used for metrics labels
const (
	TriggerTracking   = "tracking"
	TriggerAutomation = "automation"
	TriggerManual     = "manual"
)

// Sender delivers a text message to a phone number
type Sender interface {
	SendText(ctx context.Context, to, body string) (*whatsapp.SendResponse, error)
}

// Tracker resolves a tracking number into a reply
type Tracker interface {
	Track(ctx context.Context, query string) (*tracking.Result, string, error)
}

// Limiter throttles tracking commands per sender
type Limiter interface {
	Check(key string) ratelimit.RateLimitResult
}

// Recorder observes message handling
type Recorder interface {
	ObserveWebhookMessage(messageType, result string)
	ObserveReply(trigger string, err error)
}

// Summary counts what happened to one webhook delivery
type Summary struct {
	Processed  int `json:"processed"`
	Duplicates int `json:"duplicates"`
}

// Processor handles webhook deliveries
type Processor struct {
	db       *database.DB
	sender   Sender
	tracker  Tracker
	limiter  Limiter
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Processor)

// WithLimiter throttles TRACK commands per sender
func WithLimiter(limiter Limiter) Option {
	return func(p *Processor) {
		p.limiter = limiter
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(p *Processor) {
		p.recorder = recorder
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a processor
func NewProcessor(db *database.DB, sender Sender, tracker Tracker, opts ...Option) *Processor {
	p := &Processor{
		db:      db,
		sender:  sender,
		tracker: tracker,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles every message in payload. Storage failures abort and are
// returned; failures to deliver replies are logged and recorded only.
func (p *Processor) Process(ctx context.Context, payload *Payload) (Summary, error) {
	var summary Summary
	if payload == nil {
		return summary, nil
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			for i := range change.Value.Messages {
				msg := &change.Value.Messages[i]
				handled, err := p.handleMessage(ctx, &change.Value, msg)
				if err != nil {
					p.observeMessage(msg.MessageType(), "error")
					return summary, err
				}
				if handled {
					summary.Processed++
					p.observeMessage(msg.MessageType(), "processed")
				} else {
					summary.Duplicates++
					p.observeMessage(msg.MessageType(), "duplicate")
				}
			}
		}
	}
	return summary, nil
}

// handleMessage returns false when the message was already stored
func (p *Processor) handleMessage(ctx context.Context, value *Value, msg *InboundMessage) (bool, error) {
	if msg.From == "" {
		return false, fmt.Errorf("message %q has no sender", msg.ID)
	}

	if msg.ID != "" {
		seen, err := p.db.Messages.Exists(msg.ID)
		if err != nil {
			return false, err
		}
		if seen {
			p.logger.Info("Skipping redelivered message", "message_id", msg.ID)
			return false, nil
		}
	}

	now := p.now().UTC()
	contact, err := p.db.Contacts.Upsert(msg.From, value.profileName(msg.From), now)
	if err != nil {
		return false, err
	}

	content := msg.Content()
	incoming := &database.Message{
		MessageID:   msg.ID,
		ContactID:   contact.ID,
		Content:     content,
		Timestamp:   msg.SentAt(now),
		Direction:   database.DirectionIncoming,
		MessageType: msg.MessageType(),
		Status:      "received",
		Metadata:    string(msg.Raw),
	}
	if err := p.db.Messages.Create(incoming); err != nil {
		if errors.Is(err, database.ErrDuplicateMessage) {
			return false, nil
		}
		return false, err
	}

	p.logger.Info("Received message",
		"from", msg.From,
		"type", incoming.MessageType,
		"message_id", msg.ID)

	if number, ok := ParseTrackCommand(content); ok {
		p.handleTracking(ctx, contact, number)
		return true, nil
	}

	p.runAutomations(ctx, contact, content)
	return true, nil
}

// ParseTrackCommand recognises "TRACK <number>" in any case. ok is true for
// a bare "TRACK" too, with an empty number.
func ParseTrackCommand(content string) (number string, ok bool) {
	trimmed := strings.TrimSpace(content)
	if strings.EqualFold(trimmed, trackCommand) {
		return "", true
	}
	prefix := trackCommand + " "
	if len(trimmed) < len(prefix) || !strings.EqualFold(trimmed[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(trimmed[len(prefix):]), true
}

func (p *Processor) handleTracking(ctx context.Context, contact *database.Contact, number string) {
	if number == "" {
		p.reply(ctx, contact, missingNumberReply, TriggerTracking)
		return
	}

	if p.limiter != nil {
		if check := p.limiter.Check(contact.PhoneNumber); check.ShouldBlock {
			p.logger.Info("Tracking request throttled",
				"from", contact.PhoneNumber,
				"remaining", check.RemainingTime)
			p.reply(ctx, contact, waitNotice(check.RemainingTime), TriggerTracking)
			return
		}
	}

	_, text, err := p.tracker.Track(ctx, number)
	if err == nil {
		err = p.reply(ctx, contact, text, TriggerTracking)
	}
	if err != nil {
		p.logger.Error("Error processing tracking request", "number", number, "error", err)
		p.reply(ctx, contact, "❌ Error processing tracking request: "+err.Error(), TriggerTracking)
	}
}

func waitNotice(remaining time.Duration) string {
	seconds := int(math.Ceil(remaining.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("⏳ Too many tracking requests. Please wait %d seconds and try again.", seconds)
}

func (p *Processor) runAutomations(ctx context.Context, contact *database.Contact, content string) {
	automations, err := p.db.Automations.GetActiveKeyword()
	if err != nil {
		p.logger.Error("Failed to load automations", "error", err)
		return
	}

	lowered := strings.ToLower(content)
	for _, automation := range automations {
		if !MatchesKeywords(automation.TriggerValue, lowered) {
			continue
		}
		if err := p.reply(ctx, contact, automation.ResponseText, TriggerAutomation); err != nil {
			continue
		}
		if err := p.db.Automations.MarkTriggered(automation.ID, p.now().UTC()); err != nil {
			p.logger.Error("Failed to update automation", "automation_id", automation.ID, "error", err)
		}
		p.logger.Info("Automation triggered", "automation", automation.Name, "to", contact.PhoneNumber)
	}
}

// MatchesKeywords reports whether any comma separated keyword in trigger
// occurs in content. content must already be lowercase.
func MatchesKeywords(trigger, content string) bool {
	for _, keyword := range strings.Split(trigger, ",") {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" && strings.Contains(content, keyword) {
			return true
		}
	}
	return false
}

// reply sends text to the contact and stores it as an outgoing message
func (p *Processor) reply(ctx context.Context, contact *database.Contact, text, trigger string) error {
	_, err := p.Send(ctx, contact, text, trigger)
	return err
}

// Send delivers text to the contact and records it. The stored message is
// returned even when storing fails after a successful send.
func (p *Processor) Send(ctx context.Context, contact *database.Contact, text, trigger string) (*database.Message, error) {
	resp, err := p.sender.SendText(ctx, contact.PhoneNumber, text)
	p.observeReply(trigger, err)
	if err != nil {
		p.logger.Error("Failed to send reply", "to", contact.PhoneNumber, "trigger", trigger, "error", err)
		return nil, err
	}

	messageID := resp.MessageID()
	if messageID == "" {
		messageID = "local-" + uuid.NewString()
	}
	outgoing := &database.Message{
		MessageID:   messageID,
		ContactID:   contact.ID,
		Content:     text,
		Timestamp:   p.now().UTC(),
		Direction:   database.DirectionOutgoing,
		MessageType: "text",
		Status:      "sent",
	}
	if err := p.db.Messages.Create(outgoing); err != nil {
		p.logger.Error("Failed to store outgoing message", "to", contact.PhoneNumber, "error", err)
		return outgoing, err
	}
	return outgoing, nil
}

// SendTo delivers a manual message to phone, creating the contact if needed
func (p *Processor) SendTo(ctx context.Context, phone, text string) (*database.Message, error) {
	contact, err := p.db.Contacts.Upsert(phone, "", p.now().UTC())
	if err != nil {
		return nil, err
	}
	return p.Send(ctx, contact, text, TriggerManual)
}

func (p *Processor) observeMessage(messageType, result string) {
	if p.recorder != nil {
		p.recorder.ObserveWebhookMessage(messageType, result)
	}
}

func (p *Processor) observeReply(trigger string, err error) {
	if p.recorder != nil {
		p.recorder.ObserveReply(trigger, err)
	}
}
