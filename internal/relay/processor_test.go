package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cargo-relay/internal/database"
	"cargo-relay/internal/ratelimit"
	"cargo-relay/internal/tracking"
	"cargo-relay/internal/whatsapp"
)

type sentMessage struct {
	To   string
	Body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
	seq  int
}

func (f *fakeSender) SendText(ctx context.Context, to, body string) (*whatsapp.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{To: to, Body: body})
	if f.err != nil {
		return nil, f.err
	}
	f.seq++
	resp := &whatsapp.SendResponse{}
	resp.Messages = append(resp.Messages, struct {
		ID string `json:"id"`
	}{ID: fmt.Sprintf("wamid.OUT%d", f.seq)})
	return resp, nil
}

type fakeTracker struct {
	queries []string
	text    string
	err     error
}

func (f *fakeTracker) Track(ctx context.Context, query string) (*tracking.Result, string, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, "", f.err
	}
	return tracking.NotFoundResult(query, "none"), f.text, nil
}

type blockingLimiter struct {
	remaining time.Duration
}

func (b blockingLimiter) Check(key string) ratelimit.RateLimitResult {
	return ratelimit.RateLimitResult{ShouldBlock: true, RemainingTime: b.remaining, Reason: "rate_limit_active"}
}

type countingRecorder struct {
	messages map[string]int
	replies  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{messages: map[string]int{}, replies: map[string]int{}}
}

func (c *countingRecorder) ObserveWebhookMessage(messageType, result string) {
	c.messages[messageType+"/"+result]++
}

func (c *countingRecorder) ObserveReply(trigger string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	c.replies[trigger+"/"+result]++
}

func setupProcessor(t *testing.T, tracker Tracker, opts ...Option) (*Processor, *database.DB, *fakeSender) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sender := &fakeSender{}
	if tracker == nil {
		tracker = &fakeTracker{text: "tracking reply"}
	}
	p := NewProcessor(db, sender, tracker, opts...)
	p.now = func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC) }
	return p, db, sender
}

func textPayload(t *testing.T, id, from, body string) *Payload {
	t.Helper()
	raw := fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "WABA",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"metadata": {"display_phone_number": "15550000000", "phone_number_id": "1055"},
					"contacts": [{"wa_id": %q, "profile": {"name": "Asha"}}],
					"messages": [{"id": %q, "from": %q, "timestamp": "1709632800", "type": "text", "text": {"body": %q}}]
				}
			}]
		}]
	}`, from, id, from, body)

	var payload Payload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return &payload
}

func TestParseTrackCommand(t *testing.T) {
	tests := []struct {
		content string
		number  string
		ok      bool
	}{
		{"TRACK 1234567890", "1234567890", true},
		{"  track   55 ", "55", true},
		{"Track ABC-1", "ABC-1", true},
		{"TRACK", "", true},
		{"track  ", "", true},
		{"TRACKING 12", "", false},
		{"please track 12", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			number, ok := ParseTrackCommand(tt.content)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.number, number)
		})
	}
}

func TestMatchesKeywords(t *testing.T) {
	assert.True(t, MatchesKeywords("Hello, Hi", "hi there"))
	assert.True(t, MatchesKeywords(" PRICE ", "what is the price?"))
	assert.False(t, MatchesKeywords("hello,", "good morning"))
	assert.False(t, MatchesKeywords("", "anything"))
}

func TestInboundMessage_Content(t *testing.T) {
	var msg InboundMessage
	require.NoError(t, json.Unmarshal([]byte(`{"id":"m1","from":"1","timestamp":"1709632800","type":"image","image":{"id":"media"}}`), &msg))

	assert.Equal(t, "[Image]", msg.Content())
	assert.Equal(t, "image", msg.MessageType())
	assert.Equal(t, time.Unix(1709632800, 0).UTC(), msg.SentAt(time.Time{}))
	assert.Contains(t, string(msg.Raw), `"media"`)

	fallback := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bad := InboundMessage{Timestamp: "soon"}
	assert.Equal(t, fallback, bad.SentAt(fallback))
	assert.Equal(t, "", bad.Content())
}

func TestProcessor_TrackCommand(t *testing.T) {
	tracker := &fakeTracker{text: "📦 *ACPL Cargo Tracking Information*\n\n*GC Number*: 1234567890"}
	recorder := newCountingRecorder()
	p, db, sender := setupProcessor(t, tracker, WithRecorder(recorder))

	summary, err := p.Process(context.Background(), textPayload(t, "wamid.IN1", "919800000001", "track 1234567890"))

	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 1}, summary)
	assert.Equal(t, []string{"1234567890"}, tracker.queries)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, sentMessage{To: "919800000001", Body: tracker.text}, sender.sent[0])

	contact, err := db.Contacts.GetByPhone("919800000001")
	require.NoError(t, err)
	require.NotNil(t, contact.ProfileName)
	assert.Equal(t, "Asha", *contact.ProfileName)

	messages, err := db.Messages.Recent(10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	byDirection := map[string]database.Message{}
	for _, m := range messages {
		byDirection[m.Direction] = m
	}
	assert.Equal(t, "track 1234567890", byDirection[database.DirectionIncoming].Content)
	assert.Equal(t, "wamid.IN1", byDirection[database.DirectionIncoming].MessageID)
	assert.Equal(t, tracker.text, byDirection[database.DirectionOutgoing].Content)
	assert.Equal(t, "wamid.OUT1", byDirection[database.DirectionOutgoing].MessageID)
	assert.Equal(t, "sent", byDirection[database.DirectionOutgoing].Status)

	assert.Equal(t, 1, recorder.messages["text/processed"])
	assert.Equal(t, 1, recorder.replies["tracking/sent"])
}

func TestProcessor_TrackWithoutNumber(t *testing.T) {
	tracker := &fakeTracker{}
	p, _, sender := setupProcessor(t, tracker)

	_, err := p.Process(context.Background(), textPayload(t, "wamid.IN2", "1", "TRACK"))

	require.NoError(t, err)
	assert.Empty(t, tracker.queries)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, missingNumberReply, sender.sent[0].Body)
}

func TestProcessor_TrackRateLimited(t *testing.T) {
	tracker := &fakeTracker{}
	p, _, sender := setupProcessor(t, tracker, WithLimiter(blockingLimiter{remaining: 4200 * time.Millisecond}))

	_, err := p.Process(context.Background(), textPayload(t, "wamid.IN3", "1", "TRACK 42"))

	require.NoError(t, err)
	assert.Empty(t, tracker.queries)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "⏳ Too many tracking requests. Please wait 5 seconds and try again.", sender.sent[0].Body)
}

func TestProcessor_TrackErrorReply(t *testing.T) {
	tracker := &fakeTracker{err: errors.New("boom")}
	p, _, sender := setupProcessor(t, tracker)

	_, err := p.Process(context.Background(), textPayload(t, "wamid.IN4", "1", "TRACK 42"))

	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "❌ Error processing tracking request: boom", sender.sent[0].Body)
}

func TestProcessor_SendFailureIsNotFatal(t *testing.T) {
	recorder := newCountingRecorder()
	p, db, sender := setupProcessor(t, nil, WithRecorder(recorder))
	sender.err = errors.New("network down")

	summary, err := p.Process(context.Background(), textPayload(t, "wamid.IN5", "1", "TRACK 42"))

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	// the tracking reply and the error notice were both attempted
	assert.Len(t, sender.sent, 2)
	assert.Equal(t, 2, recorder.replies["tracking/failed"])

	messages, err := db.Messages.Recent(10)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestProcessor_KeywordAutomation(t *testing.T) {
	p, db, sender := setupProcessor(t, nil)
	greeting := &database.Automation{
		Name:         "Greeting",
		TriggerType:  database.TriggerKeyword,
		TriggerValue: "hello, hi",
		ResponseText: "Hi! Send TRACK <number> to track a consignment.",
		IsActive:     true,
	}
	require.NoError(t, db.Automations.Create(greeting))
	inactive := &database.Automation{
		Name:         "Old",
		TriggerType:  database.TriggerKeyword,
		TriggerValue: "hello",
		ResponseText: "should not be sent",
		IsActive:     false,
	}
	require.NoError(t, db.Automations.Create(inactive))

	_, err := p.Process(context.Background(), textPayload(t, "wamid.IN6", "1", "HELLO there"))

	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, greeting.ResponseText, sender.sent[0].Body)

	stored, err := db.Automations.GetByID(greeting.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastTriggered)

	untouched, err := db.Automations.GetByID(inactive.ID)
	require.NoError(t, err)
	assert.Nil(t, untouched.LastTriggered)
}

func TestProcessor_NoAutomationMatch(t *testing.T) {
	p, db, sender := setupProcessor(t, nil)
	require.NoError(t, db.Automations.Create(&database.Automation{
		Name:         "Pricing",
		TriggerType:  database.TriggerKeyword,
		TriggerValue: "price",
		ResponseText: "See our rates",
		IsActive:     true,
	}))

	_, err := p.Process(context.Background(), textPayload(t, "wamid.IN7", "1", "good morning"))

	require.NoError(t, err)
	assert.Empty(t, sender.sent)
}

func TestProcessor_RedeliveryIsIgnored(t *testing.T) {
	tracker := &fakeTracker{text: "reply"}
	recorder := newCountingRecorder()
	p, db, sender := setupProcessor(t, tracker, WithRecorder(recorder))
	payload := textPayload(t, "wamid.DUP", "1", "TRACK 7")

	first, err := p.Process(context.Background(), payload)
	require.NoError(t, err)
	second, err := p.Process(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, Summary{Processed: 1}, first)
	assert.Equal(t, Summary{Duplicates: 1}, second)
	assert.Len(t, tracker.queries, 1)
	assert.Len(t, sender.sent, 1)
	assert.Equal(t, 1, recorder.messages["text/duplicate"])

	messages, err := db.Messages.Recent(10)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestProcessor_IgnoresOtherFields(t *testing.T) {
	p, _, sender := setupProcessor(t, nil)
	payload := &Payload{Entry: []Entry{{Changes: []Change{{Field: "statuses"}}}}}

	summary, err := p.Process(context.Background(), payload)

	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.Empty(t, sender.sent)
}

func TestProcessor_StorageErrorIsReturned(t *testing.T) {
	p, db, _ := setupProcessor(t, nil)
	require.NoError(t, db.Close())

	_, err := p.Process(context.Background(), textPayload(t, "wamid.IN8", "1", "hi"))

	assert.Error(t, err)
}

func TestProcessor_SendTo(t *testing.T) {
	recorder := newCountingRecorder()
	p, db, sender := setupProcessor(t, nil, WithRecorder(recorder))

	msg, err := p.SendTo(context.Background(), "919800000002", "Your parcel is out for delivery")

	require.NoError(t, err)
	assert.Equal(t, "wamid.OUT1", msg.MessageID)
	assert.Equal(t, database.DirectionOutgoing, msg.Direction)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, 1, recorder.replies["manual/sent"])

	_, err = db.Contacts.GetByPhone("919800000002")
	assert.NoError(t, err)
}

func TestProcessor_LocalIDWhenProviderOmitsOne(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	p := NewProcessor(db, senderFunc(func(ctx context.Context, to, body string) (*whatsapp.SendResponse, error) {
		return &whatsapp.SendResponse{}, nil
	}), &fakeTracker{})

	msg, err := p.SendTo(context.Background(), "1", "hello")

	require.NoError(t, err)
	assert.Regexp(t, `^local-[0-9a-f-]{36}$`, msg.MessageID)
}

type senderFunc func(ctx context.Context, to, body string) (*whatsapp.SendResponse, error)

func (f senderFunc) SendText(ctx context.Context, to, body string) (*whatsapp.SendResponse, error) {
	return f(ctx, to, body)
}
