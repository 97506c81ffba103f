package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/maltedev/price-spread/internal/session"
)

var ErrNoMessages = errors.New("no messages for session")

type MessageType string

const (
	MessageProgress MessageType = "progress"
	MessageDelivery MessageType = "delivery"
)

// Message is one entry of a session's conversation with its caller.
type Message struct {
	SessionID string               `json:"session_id"`
	Type      MessageType          `json:"type"`
	Kind      session.DeliveryKind `json:"kind,omitempty"`
	Text      string               `json:"text"`
	Pairs     []session.Pair       `json:"pairs,omitempty"`
	Rows      int                  `json:"artifact_rows,omitempty"`
	At        time.Time            `json:"at"`
}

// MessageLog stores session messages for later retrieval.
type MessageLog interface {
	Append(ctx context.Context, m Message) error
	List(ctx context.Context, sessionID string) ([]Message, error)
}

// LogNotifier records a session's progress and delivery into a MessageLog.
type LogNotifier struct {
	sessionID string
	log       MessageLog
	now       func() time.Time
}

func NewLogNotifier(sessionID string, log MessageLog) *LogNotifier {
	return &LogNotifier{
		sessionID: sessionID,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (n *LogNotifier) Progress(ctx context.Context, text string) error {
	return n.log.Append(ctx, Message{
		SessionID: n.sessionID,
		Type:      MessageProgress,
		Text:      text,
		At:        n.now(),
	})
}

func (n *LogNotifier) Deliver(ctx context.Context, d session.Delivery) error {
	m := Message{
		SessionID: n.sessionID,
		Type:      MessageDelivery,
		Kind:      d.Kind,
		Text:      d.Text,
		Pairs:     d.Pairs,
		At:        d.At,
	}
	if m.At.IsZero() {
		m.At = n.now()
	}
	if d.Artifact != nil {
		m.Rows = d.Artifact.Rows
	}
	return n.log.Append(ctx, m)
}

// MemoryLog keeps messages in process. It backs the API when no redis stream
// is configured.
type MemoryLog struct {
	mu       sync.RWMutex
	messages map[string][]Message
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{messages: make(map[string][]Message)}
}

func (l *MemoryLog) Append(_ context.Context, m Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages[m.SessionID] = append(l.messages[m.SessionID], m)
	return nil
}

func (l *MemoryLog) List(_ context.Context, sessionID string) ([]Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	msgs, ok := l.messages[sessionID]
	if !ok {
		return nil, ErrNoMessages
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}
