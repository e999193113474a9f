package database

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	tmpfile, err := os.CreateTemp("", "test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpfile.Close()

	t.Cleanup(func() {
		os.Remove(tmpfile.Name())
	})

	db, err := Open(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// serialize writers so concurrent tests don't hit SQLITE_BUSY
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestContactStore_Upsert(t *testing.T) {
	db := setupTestDB(t)
	first := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	later := first.Add(2 * time.Hour)

	created, err := db.Contacts.Upsert("919800000001", "Ravi", first)
	require.NoError(t, err)
	assert.Equal(t, "919800000001", created.PhoneNumber)
	require.NotNil(t, created.ProfileName)
	assert.Equal(t, "Ravi", *created.ProfileName)

	updated, err := db.Contacts.Upsert("919800000001", "", later)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.True(t, first.Equal(updated.FirstInteraction))
	assert.True(t, later.Equal(updated.LastInteraction))
	require.NotNil(t, updated.ProfileName, "empty profile name keeps the stored one")
	assert.Equal(t, "Ravi", *updated.ProfileName)
}

func TestContactStore_GetByPhoneMissing(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Contacts.GetByPhone("000")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageStore_CreateAndRecent(t *testing.T) {
	db := setupTestDB(t)
	contact, err := db.Contacts.Upsert("919800000002", "", time.Now())
	require.NoError(t, err)

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, content := range []string{"first", "second", "third"} {
		msg := &Message{
			MessageID: "wamid." + content,
			ContactID: contact.ID,
			Content:   content,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Direction: DirectionIncoming,
			Status:    "received",
			Metadata:  `{"type":"text"}`,
		}
		require.NoError(t, db.Messages.Create(msg))
		assert.NotZero(t, msg.ID)
		assert.Equal(t, "text", msg.MessageType)
	}

	recent, err := db.Messages.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "third", recent[0].Content)
	assert.Equal(t, "second", recent[1].Content)
	assert.Equal(t, "919800000002", recent[0].PhoneNumber)

	exists, err := db.Messages.Exists("wamid.first")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = db.Messages.Exists("wamid.unknown")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMessageStore_OutgoingWithoutProviderID(t *testing.T) {
	db := setupTestDB(t)
	contact, err := db.Contacts.Upsert("919800000003", "", time.Now())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		err := db.Messages.Create(&Message{
			ContactID: contact.ID,
			Content:   "reply",
			Timestamp: time.Now(),
			Direction: DirectionOutgoing,
			Status:    "sent",
		})
		require.NoError(t, err, "messages without provider IDs never collide")
	}
}

func TestMessageStore_Create_Concurrent(t *testing.T) {
	db := setupTestDB(t)
	contact, err := db.Contacts.Upsert("919800000004", "", time.Now())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var startSignal sync.WaitGroup
	startSignal.Add(1)

	concurrency := 10
	errs := make([]error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			startSignal.Wait()

			errs[index] = db.Messages.Create(&Message{
				MessageID: "wamid.redelivered",
				ContactID: contact.ID,
				Content:   "TRACK 123",
				Timestamp: time.Now(),
				Direction: DirectionIncoming,
				Status:    "received",
			})
		}(i)
	}

	startSignal.Done()
	wg.Wait()

	stored := 0
	for i, err := range errs {
		switch {
		case err == nil:
			stored++
		case errors.Is(err, ErrDuplicateMessage):
		default:
			t.Errorf("Goroutine %d got error: %v", i, err)
		}
	}
	assert.Equal(t, 1, stored)
}

func TestAutomationStore_CRUD(t *testing.T) {
	db := setupTestDB(t)

	automation := &Automation{
		Name:         "Greeting",
		TriggerType:  TriggerKeyword,
		TriggerValue: "hi, hello",
		ResponseText: "Hello! Send TRACK <number> to track a consignment.",
		IsActive:     true,
	}
	require.NoError(t, db.Automations.Create(automation))
	assert.NotZero(t, automation.ID)
	assert.False(t, automation.CreatedAt.IsZero())
	assert.Nil(t, automation.LastTriggered)

	inactive := &Automation{
		Name:         "Old promo",
		TriggerType:  TriggerKeyword,
		TriggerValue: "offer",
		ResponseText: "Expired",
		IsActive:     false,
	}
	require.NoError(t, db.Automations.Create(inactive))

	scheduled := &Automation{
		Name:         "Morning",
		TriggerType:  TriggerTime,
		TriggerValue: "09:00",
		ResponseText: "Good morning",
		IsActive:     true,
	}
	require.NoError(t, db.Automations.Create(scheduled))

	all, err := db.Automations.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err := db.Automations.GetActiveKeyword()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Greeting", active[0].Name)

	automation.ResponseText = "Hi there"
	require.NoError(t, db.Automations.Update(automation.ID, automation))
	assert.Equal(t, "Hi there", automation.ResponseText)

	at := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, db.Automations.MarkTriggered(automation.ID, at))
	got, err := db.Automations.GetByID(automation.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastTriggered)
	assert.True(t, at.Equal(*got.LastTriggered))

	require.NoError(t, db.Automations.Delete(automation.ID))
	_, err = db.Automations.GetByID(automation.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.Automations.Delete(automation.ID), ErrNotFound)
	assert.ErrorIs(t, db.Automations.Update(automation.ID, automation), ErrNotFound)
}
