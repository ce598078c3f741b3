package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teamforge/realtime/internal/domain"
	"github.com/teamforge/realtime/internal/hub"
	"github.com/teamforge/realtime/internal/membership"
	"github.com/teamforge/realtime/internal/store"
)

type fakeStore struct {
	mu       sync.Mutex
	seq      int
	created  []*domain.ChatMessage
	messages map[domain.MessageID]*domain.ChatMessage
	failNext bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: make(map[domain.MessageID]*domain.ChatMessage)}
}

func (s *fakeStore) CreateMessage(_ context.Context, projectID domain.ProjectID, senderID domain.UserID, content string) (*domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return nil, errors.New("store down")
	}
	s.seq++
	msg := &domain.ChatMessage{
		ID:        domain.MessageID(fmt.Sprintf("m%d", s.seq)),
		ProjectID: projectID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().Add(time.Duration(s.seq) * time.Microsecond),
		ReadBy:    []domain.UserID{},
	}
	s.created = append(s.created, msg)
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *fakeStore) MarkMessageRead(_ context.Context, messageID domain.MessageID, userID domain.UserID) (*domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, r := range msg.ReadBy {
		if r == userID {
			return msg, nil
		}
	}
	msg.ReadBy = append(msg.ReadBy, userID)
	return msg, nil
}

type allowOracle struct {
	members map[domain.UserID]bool
}

func (o *allowOracle) IsMember(_ context.Context, _ domain.ProjectID, uid domain.UserID) (bool, error) {
	return o.members[uid], nil
}

type captureBroadcaster struct {
	mu     sync.Mutex
	events []ReceiveMessageEvent
	rooms  []domain.ProjectID
}

func (b *captureBroadcaster) Broadcast(room domain.ProjectID, payload any, exclude hub.Conn) hub.PublishResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	if exclude != nil {
		panic("message fan-out must include the sender connection")
	}
	b.events = append(b.events, payload.(ReceiveMessageEvent))
	b.rooms = append(b.rooms, room)
	return hub.PublishResult{SentTo: 1}
}

func newTestService(members ...domain.UserID) (*Service, *fakeStore, *captureBroadcaster) {
	st := newFakeStore()
	oracle := &allowOracle{members: make(map[domain.UserID]bool)}
	for _, m := range members {
		oracle.members[m] = true
	}
	send := &captureBroadcaster{}
	return NewService(st, oracle, send), st, send
}

func TestService_SendMessage(t *testing.T) {
	svc, st, send := newTestService("u1")

	msg, err := svc.SendMessage(context.Background(), "p1", "u1", "hello")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Errorf("Expected store-assigned id and timestamp, got %+v", msg)
	}

	if len(st.created) != 1 {
		t.Fatalf("Expected 1 persisted message, got %d", len(st.created))
	}
	if len(send.events) != 1 {
		t.Fatalf("Expected 1 broadcast, got %d", len(send.events))
	}
	// The broadcast payload is the persisted record, not the client's.
	got := send.events[0]
	if got.Type != TypeReceiveMessage || got.Message.ID != msg.ID || got.Message.Content != "hello" {
		t.Errorf("Unexpected receive_message payload: %+v", got)
	}
	if send.rooms[0] != domain.ProjectID("p1") {
		t.Errorf("Expected fan-out to room p1, got %s", send.rooms[0])
	}
}

func TestService_SendMessageNotMember(t *testing.T) {
	svc, st, send := newTestService("u1")

	_, err := svc.SendMessage(context.Background(), "p1", "outsider", "hi")
	if !errors.Is(err, membership.ErrNotMember) {
		t.Errorf("Expected ErrNotMember, got %v", err)
	}
	if len(st.created) != 0 {
		t.Error("Expected nothing persisted after failed authorization")
	}
	if len(send.events) != 0 {
		t.Error("Expected nothing broadcast after failed authorization")
	}
}

func TestService_SendMessageValidation(t *testing.T) {
	svc, st, _ := newTestService("u1")

	if _, err := svc.SendMessage(context.Background(), "p1", "u1", ""); !errors.Is(err, domain.ErrMessageEmpty) {
		t.Errorf("Expected ErrMessageEmpty, got %v", err)
	}
	long := strings.Repeat("a", domain.MaxMessageLen+1)
	if _, err := svc.SendMessage(context.Background(), "p1", "u1", long); !errors.Is(err, domain.ErrMessageTooLong) {
		t.Errorf("Expected ErrMessageTooLong, got %v", err)
	}
	if len(st.created) != 0 {
		t.Error("Expected nothing persisted for invalid content")
	}
}

func TestService_SendMessagePersistFailure(t *testing.T) {
	svc, st, send := newTestService("u1")
	st.failNext = true

	if _, err := svc.SendMessage(context.Background(), "p1", "u1", "hello"); err == nil {
		t.Fatal("Expected error when the store is down")
	}
	if len(send.events) != 0 {
		t.Error("Expected no broadcast when persistence failed")
	}
}

func TestService_BroadcastOrderMatchesCreatedAt(t *testing.T) {
	svc, _, send := newTestService("u1", "u2")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := domain.UserID("u1")
			if i%2 == 1 {
				uid = "u2"
			}
			svc.SendMessage(context.Background(), "p1", uid, fmt.Sprintf("msg %d", i))
		}(i)
	}
	wg.Wait()

	if len(send.events) != 40 {
		t.Fatalf("Expected 40 broadcasts, got %d", len(send.events))
	}
	for i := 1; i < len(send.events); i++ {
		prev := send.events[i-1].Message.CreatedAt
		cur := send.events[i].Message.CreatedAt
		if cur.Before(prev) {
			t.Fatalf("Broadcast order diverged from createdAt order at %d", i)
		}
	}
}

func TestService_MarkRead(t *testing.T) {
	svc, _, _ := newTestService("u1")
	msg, _ := svc.SendMessage(context.Background(), "p1", "u1", "hello")

	updated, err := svc.MarkRead(context.Background(), msg.ID, "u2")
	if err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if len(updated.ReadBy) != 1 || updated.ReadBy[0] != "u2" {
		t.Errorf("Expected read-by {u2}, got %v", updated.ReadBy)
	}

	// Acknowledging twice is a set-union, not an append.
	updated, _ = svc.MarkRead(context.Background(), msg.ID, "u2")
	if len(updated.ReadBy) != 1 {
		t.Errorf("Expected idempotent mark_read, got %v", updated.ReadBy)
	}
}

func TestService_MarkReadUnknownMessage(t *testing.T) {
	svc, _, _ := newTestService("u1")
	if _, err := svc.MarkRead(context.Background(), "ghost", "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
