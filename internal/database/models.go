package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// ErrDuplicateMessage is returned when a provider message ID was already stored
var ErrDuplicateMessage = errors.New("duplicate message")

// Message directions
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Automation trigger types
const (
	TriggerKeyword    = "keyword"
	TriggerTime       = "time"
	TriggerNewContact = "new_contact"
)

type Contact struct {
	ID               int       `json:"id"`
	PhoneNumber      string    `json:"phone_number"`
	Name             *string   `json:"name,omitempty"`
	ProfileName      *string   `json:"profile_name,omitempty"`
	FirstInteraction time.Time `json:"first_interaction"`
	LastInteraction  time.Time `json:"last_interaction"`
}

type Message struct {
	ID          int       `json:"id"`
	MessageID   string    `json:"message_id"`
	ContactID   int       `json:"contact_id"`
	PhoneNumber string    `json:"phone_number"`
	ContactName *string   `json:"contact_name"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Direction   string    `json:"direction"`
	MessageType string    `json:"message_type"`
	Status      string    `json:"status"`
	Metadata    string    `json:"-"`
}

type Automation struct {
	ID            int        `json:"id"`
	Name          string     `json:"name"`
	TriggerType   string     `json:"trigger_type"`
	TriggerValue  string     `json:"trigger_value"`
	ResponseText  string     `json:"response_text"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
}

// ContactStore handles database operations for contacts
type ContactStore struct {
	db *sql.DB
}

func NewContactStore(db *sql.DB) *ContactStore {
	return &ContactStore{db: db}
}

// Upsert records an interaction with phone, creating the contact on first
// contact. A non-empty profileName replaces the stored one.
func (c *ContactStore) Upsert(phone, profileName string, at time.Time) (*Contact, error) {
	query := `INSERT INTO contacts (phone_number, profile_name, first_interaction, last_interaction)
			  VALUES (?, NULLIF(?, ''), ?, ?)
			  ON CONFLICT(phone_number) DO UPDATE SET
			  last_interaction = excluded.last_interaction,
			  profile_name = COALESCE(excluded.profile_name, contacts.profile_name)`

	if _, err := c.db.Exec(query, phone, profileName, at, at); err != nil {
		return nil, fmt.Errorf("failed to upsert contact: %w", err)
	}
	return c.GetByPhone(phone)
}

// GetByPhone returns the contact with the given phone number
func (c *ContactStore) GetByPhone(phone string) (*Contact, error) {
	query := `SELECT id, phone_number, name, profile_name, first_interaction, last_interaction
			  FROM contacts WHERE phone_number = ?`

	var contact Contact
	err := c.db.QueryRow(query, phone).Scan(&contact.ID, &contact.PhoneNumber,
		&contact.Name, &contact.ProfileName, &contact.FirstInteraction, &contact.LastInteraction)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// MessageStore handles database operations for messages
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Create stores a message. A repeated MessageID yields ErrDuplicateMessage.
func (m *MessageStore) Create(message *Message) error {
	query := `INSERT INTO messages (message_id, contact_id, content, timestamp, direction, message_type, status, metadata)
			  VALUES (NULLIF(?, ''), ?, ?, ?, ?, ?, ?, NULLIF(?, ''))`

	if message.MessageType == "" {
		message.MessageType = "text"
	}

	result, err := m.db.Exec(query, message.MessageID, message.ContactID, message.Content,
		message.Timestamp, message.Direction, message.MessageType, message.Status, message.Metadata)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicateMessage
		}
		return fmt.Errorf("failed to create message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	message.ID = int(id)
	return nil
}

// Exists reports whether a message with the provider ID has been stored
func (m *MessageStore) Exists(messageID string) (bool, error) {
	var count int
	err := m.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE message_id = ?`, messageID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Recent returns the newest messages first
func (m *MessageStore) Recent(limit int) ([]Message, error) {
	query := `SELECT m.id, COALESCE(m.message_id, ''), m.contact_id, c.phone_number, c.name,
			  m.content, m.timestamp, m.direction, m.message_type, m.status, COALESCE(m.metadata, '')
			  FROM messages m JOIN contacts c ON c.id = m.contact_id
			  ORDER BY m.timestamp DESC, m.id DESC LIMIT ?`

	rows, err := m.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var message Message
		err := rows.Scan(&message.ID, &message.MessageID, &message.ContactID,
			&message.PhoneNumber, &message.ContactName, &message.Content,
			&message.Timestamp, &message.Direction, &message.MessageType,
			&message.Status, &message.Metadata)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	return messages, rows.Err()
}

// AutomationStore handles database operations for automations
type AutomationStore struct {
	db *sql.DB
}

func NewAutomationStore(db *sql.DB) *AutomationStore {
	return &AutomationStore{db: db}
}

const automationColumns = `id, name, trigger_type, trigger_value, response_text, is_active, created_at, last_triggered`

func scanAutomations(rows *sql.Rows) ([]Automation, error) {
	defer rows.Close()

	automations := []Automation{}
	for rows.Next() {
		var a Automation
		err := rows.Scan(&a.ID, &a.Name, &a.TriggerType, &a.TriggerValue,
			&a.ResponseText, &a.IsActive, &a.CreatedAt, &a.LastTriggered)
		if err != nil {
			return nil, err
		}
		automations = append(automations, a)
	}
	return automations, rows.Err()
}

// GetAll returns all automations
func (a *AutomationStore) GetAll() ([]Automation, error) {
	rows, err := a.db.Query(`SELECT ` + automationColumns + ` FROM automations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return scanAutomations(rows)
}

// GetActiveKeyword returns the active keyword-triggered automations
func (a *AutomationStore) GetActiveKeyword() ([]Automation, error) {
	rows, err := a.db.Query(`SELECT `+automationColumns+` FROM automations
		WHERE trigger_type = ? AND is_active = TRUE ORDER BY id`, TriggerKeyword)
	if err != nil {
		return nil, err
	}
	return scanAutomations(rows)
}

// GetByID returns an automation by ID
func (a *AutomationStore) GetByID(id int) (*Automation, error) {
	var automation Automation
	err := a.db.QueryRow(`SELECT `+automationColumns+` FROM automations WHERE id = ?`, id).Scan(
		&automation.ID, &automation.Name, &automation.TriggerType, &automation.TriggerValue,
		&automation.ResponseText, &automation.IsActive, &automation.CreatedAt, &automation.LastTriggered)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &automation, nil
}

// Create creates a new automation
func (a *AutomationStore) Create(automation *Automation) error {
	query := `INSERT INTO automations (name, trigger_type, trigger_value, response_text, is_active)
			  VALUES (?, ?, ?, ?, ?)`

	result, err := a.db.Exec(query, automation.Name, automation.TriggerType,
		automation.TriggerValue, automation.ResponseText, automation.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create automation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	created, err := a.GetByID(int(id))
	if err != nil {
		return err
	}
	*automation = *created
	return nil
}

// Update replaces the editable fields of an automation
func (a *AutomationStore) Update(id int, automation *Automation) error {
	query := `UPDATE automations SET name = ?, trigger_type = ?, trigger_value = ?,
			  response_text = ?, is_active = ? WHERE id = ?`

	result, err := a.db.Exec(query, automation.Name, automation.TriggerType,
		automation.TriggerValue, automation.ResponseText, automation.IsActive, id)
	if err != nil {
		return fmt.Errorf("failed to update automation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	updated, err := a.GetByID(id)
	if err != nil {
		return err
	}
	*automation = *updated
	return nil
}

// Delete deletes an automation by ID
func (a *AutomationStore) Delete(id int) error {
	result, err := a.db.Exec(`DELETE FROM automations WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkTriggered records when an automation last fired
func (a *AutomationStore) MarkTriggered(id int, at time.Time) error {
	_, err := a.db.Exec(`UPDATE automations SET last_triggered = ? WHERE id = ?`, at, id)
	return err
}
