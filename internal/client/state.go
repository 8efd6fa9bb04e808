package client

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/vedran77/hideout/internal/domain"
)

const tempPrefix = "temp-"

// NewTempID returns a fresh placeholder id for an unconfirmed message.
func NewTempID() string {
	return tempPrefix + ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// IsTempID reports whether id was produced by NewTempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}

// Entry is one rendered message. Pending entries have a TempID and a zero
// Message.ID until the server confirms them.
type Entry struct {
	TempID  string
	Message domain.Message
	Pending bool
}

// Key is the id the entry renders under.
func (e Entry) Key() string {
	if e.Pending {
		return e.TempID
	}
	return e.Message.ID.String()
}

// Failure is the last failed send, kept so the input can be restored.
type Failure struct {
	TempID  string
	Content string
	Err     string
}

type Action interface {
	apply(s *State)
}

type OptimisticAppend struct {
	TempID   string
	SenderID uuid.UUID
	Content  string
}

type ConfirmReplace struct {
	TempID  string
	Message domain.Message
}

type PushReceived struct {
	Message domain.Message
}

type FullResync struct {
	Messages []domain.Message
}

type SendFailed struct {
	TempID string
	Err    error
}

// State is the local message list of one open conversation. All mutation
// goes through Apply.
type State struct {
	mu             sync.Mutex
	conversationID uuid.UUID
	entries        []Entry
	failure        *Failure
	// drafts holds the content of every unconfirmed send by temp id. It
	// outlives the pending entry so a failure after a resync keeps the text.
	drafts map[string]string
}

func NewState(conversationID uuid.UUID) *State {
	return &State{conversationID: conversationID, drafts: make(map[string]string)}
}

func (s *State) ConversationID() uuid.UUID {
	return s.conversationID
}

func (s *State) Apply(a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.apply(s)
}

// Entries returns a copy of the current list in display order.
func (s *State) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

func (s *State) Failure() *Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure == nil {
		return nil
	}
	f := *s.failure
	return &f
}

func (s *State) indexOfTemp(tempID string) int {
	for i := range s.entries {
		if s.entries[i].Pending && s.entries[i].TempID == tempID {
			return i
		}
	}
	return -1
}

func (s *State) has(id uuid.UUID) bool {
	for i := range s.entries {
		if !s.entries[i].Pending && s.entries[i].Message.ID == id {
			return true
		}
	}
	return false
}

func (s *State) remove(i int) {
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
}

func (a OptimisticAppend) apply(s *State) {
	if s.indexOfTemp(a.TempID) >= 0 {
		return
	}
	s.drafts[a.TempID] = a.Content
	sender := a.SenderID
	s.entries = append(s.entries, Entry{
		TempID:  a.TempID,
		Pending: true,
		Message: domain.Message{
			ConversationID: s.conversationID,
			SenderID:       &sender,
			Content:        a.Content,
			CreatedAt:      time.Now(),
		},
	})
	s.failure = nil
}

// Matching is by temp id only; two pending entries may share content.
func (a ConfirmReplace) apply(s *State) {
	delete(s.drafts, a.TempID)
	i := s.indexOfTemp(a.TempID)
	if s.has(a.Message.ID) {
		if i >= 0 {
			s.remove(i)
		}
		return
	}
	if i < 0 {
		// The entry was dropped by a resync that predates this message.
		s.entries = append(s.entries, Entry{Message: a.Message})
		return
	}
	s.entries[i] = Entry{Message: a.Message}
}

func (a PushReceived) apply(s *State) {
	if a.Message.ConversationID != s.conversationID || s.has(a.Message.ID) {
		return
	}
	s.entries = append(s.entries, Entry{Message: a.Message})
}

func (a FullResync) apply(s *State) {
	seen := make(map[uuid.UUID]struct{}, len(a.Messages))
	entries := make([]Entry, 0, len(a.Messages))
	for _, m := range a.Messages {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		entries = append(entries, Entry{Message: m})
	}
	s.entries = entries
}

// The failure is recorded even when a resync already dropped the entry.
func (a SendFailed) apply(s *State) {
	content, ok := s.drafts[a.TempID]
	if !ok {
		return
	}
	delete(s.drafts, a.TempID)

	f := &Failure{TempID: a.TempID, Content: content}
	if a.Err != nil {
		f.Err = a.Err.Error()
	}
	s.failure = f
	if i := s.indexOfTemp(a.TempID); i >= 0 {
		s.remove(i)
	}
}
