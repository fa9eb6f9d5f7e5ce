package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// DefaultKey is the storage key holding the serialized history.
const DefaultKey = "ai_chat_history"

// KV is the durable key-value storage behind a Store.
type KV interface {
	Get(key string) (value string, ok bool, err error)
	Put(key, value string) error
}

// Transcript is a finished conversation handed to an Archiver on clear.
type Transcript struct {
	StartTime time.Time
	EndTime   time.Time
	Messages  []Message
}

// Archiver is implemented by storage that keeps cleared conversations.
type Archiver interface {
	Archive(t Transcript) (string, error)
}

// Store loads, saves and clears the history of a single conversation.
// It is not safe for concurrent use; the controller is its only writer.
type Store struct {
	kv     KV
	key    string
	logger *slog.Logger
}

// NewStore creates a Store persisting under key. An empty key means DefaultKey.
func NewStore(kv KV, key string, logger *slog.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, key: key, logger: logger}
}

// Load restores the persisted session. Nothing persisted yields a single
// greeting; unreadable or malformed data yields an empty history.
func (s *Store) Load() Session {
	raw, ok, err := s.kv.Get(s.key)
	if err != nil {
		s.logger.Warn("failed to read chat history", "key", s.key, "error", err)
		return Session{Messages: []Message{}}
	}
	if !ok {
		return Session{Messages: []Message{Greeting()}}
	}

	var messages []Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		s.logger.Warn("discarding malformed chat history", "key", s.key, "error", err)
		return Session{Messages: []Message{}}
	}
	if messages == nil {
		messages = []Message{}
	}
	return Session{Messages: messages}
}

// Save overwrites the persisted history with messages.
func (s *Store) Save(messages []Message) error {
	if messages == nil {
		messages = []Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal chat history: %w", err)
	}
	if err := s.kv.Put(s.key, string(data)); err != nil {
		return fmt.Errorf("failed to write chat history: %w", err)
	}
	return nil
}

// Clear archives the current history when the storage supports it, then
// replaces it with a single acknowledgement message and persists that.
func (s *Store) Clear(current []Message) Session {
	if archiver, ok := s.kv.(Archiver); ok && len(current) > 0 {
		id, err := archiver.Archive(Transcript{
			StartTime: current[0].Timestamp,
			EndTime:   time.Now().UTC(),
			Messages:  current,
		})
		if err != nil {
			s.logger.Warn("failed to archive chat history", "error", err)
		} else {
			s.logger.Info("archived chat history", "archive_id", id, "message_count", len(current))
		}
	}

	fresh := Session{Messages: []Message{Cleared()}}
	if err := s.Save(fresh.Messages); err != nil {
		s.logger.Error("failed to save cleared history", "error", err)
	}
	return fresh
}
