package storage

import (
	"container/list"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oarkflow/smpp-esme/pkg/smpp"
)

// InboundMessage is a deliver_sm accepted from the SMSC
type InboundMessage struct {
	ID         string
	SessionID  string
	ReceivedAt time.Time
	Sequence   uint32
	Source     smpp.Address
	Dest       smpp.Address
	EsmClass   uint8
	DataCoding uint8
	Text       string
	Payload    []byte
	Receipt    *smpp.DeliveryReceipt
}

// IsReceipt reports whether the message is a delivery receipt
func (m *InboundMessage) IsReceipt() bool {
	return m.Receipt != nil
}

// SearchCriteria filters Search results. Zero fields match everything.
type SearchCriteria struct {
	SourceAddr   string
	DestAddr     string
	ReceiptsOnly bool
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// MessageStore keeps inbound messages
type MessageStore interface {
	Store(ctx context.Context, message *InboundMessage) (string, error)
	Get(ctx context.Context, id string) (*InboundMessage, error)
	ReceiptFor(ctx context.Context, messageID string) (*InboundMessage, error)
	Search(ctx context.Context, criteria *SearchCriteria) ([]*InboundMessage, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// ErrNotFound is returned for unknown message ids
var ErrNotFound = fmt.Errorf("message not found")

// InMemoryMessageStore implements MessageStore in memory. When the store is
// full the oldest message is evicted.
type InMemoryMessageStore struct {
	mu       sync.RWMutex
	messages map[string]*list.Element
	receipts map[string]string // SMSC message id -> stored id
	order    *list.List
	capacity int
	logger   smpp.Logger
	metrics  smpp.MetricsCollector
}

// NewInMemoryMessageStore creates a store holding at most capacity messages.
// A capacity of zero means unbounded.
func NewInMemoryMessageStore(capacity int, logger smpp.Logger, metrics smpp.MetricsCollector) *InMemoryMessageStore {
	return &InMemoryMessageStore{
		messages: make(map[string]*list.Element),
		receipts: make(map[string]string),
		order:    list.New(),
		capacity: capacity,
		logger:   logger,
		metrics:  metrics,
	}
}

// Store stores a message and returns its id. A missing id is generated.
func (s *InMemoryMessageStore) Store(ctx context.Context, message *InboundMessage) (string, error) {
	if message == nil {
		return "", fmt.Errorf("message cannot be nil")
	}

	messageCopy := *message
	if messageCopy.ID == "" {
		messageCopy.ID = uuid.New().String()
	}
	if messageCopy.ReceivedAt.IsZero() {
		messageCopy.ReceivedAt = time.Now()
	}

	s.mu.Lock()
	if old, exists := s.messages[messageCopy.ID]; exists {
		s.unlink(old)
	}
	for s.capacity > 0 && s.order.Len() >= s.capacity {
		s.unlink(s.order.Front())
	}
	s.messages[messageCopy.ID] = s.order.PushBack(&messageCopy)
	if messageCopy.Receipt != nil && messageCopy.Receipt.MessageID != "" {
		s.receipts[messageCopy.Receipt.MessageID] = messageCopy.ID
	}
	count := s.order.Len()
	s.mu.Unlock()

	s.report(count)
	if s.logger != nil {
		s.logger.Debug("Inbound message stored",
			"id", messageCopy.ID,
			"source", messageCopy.Source.Addr,
			"dest", messageCopy.Dest.Addr,
			"receipt", messageCopy.IsReceipt())
	}

	return messageCopy.ID, nil
}

// unlink removes e. The caller must hold s.mu.
func (s *InMemoryMessageStore) unlink(e *list.Element) {
	message := s.order.Remove(e).(*InboundMessage)
	delete(s.messages, message.ID)
	if message.Receipt != nil && s.receipts[message.Receipt.MessageID] == message.ID {
		delete(s.receipts, message.Receipt.MessageID)
	}
}

func (s *InMemoryMessageStore) report(count int) {
	if s.metrics != nil {
		s.metrics.SetGauge("stored_messages", float64(count), nil)
	}
}

// Get retrieves a message by id
func (s *InMemoryMessageStore) Get(ctx context.Context, id string) (*InboundMessage, error) {
	if id == "" {
		return nil, fmt.Errorf("message ID cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.messages[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	messageCopy := *e.Value.(*InboundMessage)
	return &messageCopy, nil
}

// ReceiptFor returns the latest delivery receipt for an SMSC message id, as
// returned in submit_sm_resp.
func (s *InMemoryMessageStore) ReceiptFor(ctx context.Context, messageID string) (*InboundMessage, error) {
	s.mu.RLock()
	id, exists := s.receipts[messageID]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: no receipt for %s", ErrNotFound, messageID)
	}
	return s.Get(ctx, id)
}

// Search returns matching messages, newest first
func (s *InMemoryMessageStore) Search(ctx context.Context, criteria *SearchCriteria) ([]*InboundMessage, error) {
	if criteria == nil {
		return nil, fmt.Errorf("search criteria cannot be nil")
	}

	s.mu.RLock()
	var results []*InboundMessage
	for e := s.order.Front(); e != nil; e = e.Next() {
		message := e.Value.(*InboundMessage)
		if matches(message, criteria) {
			messageCopy := *message
			results = append(results, &messageCopy)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ReceivedAt.After(results[j].ReceivedAt)
	})

	start := criteria.Offset
	if start >= len(results) {
		return []*InboundMessage{}, nil
	}
	end := len(results)
	if criteria.Limit > 0 && start+criteria.Limit < end {
		end = start + criteria.Limit
	}

	return results[start:end], nil
}

// Delete deletes a message
func (s *InMemoryMessageStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("message ID cannot be empty")
	}

	s.mu.Lock()
	e, exists := s.messages[id]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.unlink(e)
	count := s.order.Len()
	s.mu.Unlock()

	s.report(count)
	if s.logger != nil {
		s.logger.Debug("Inbound message deleted", "id", id)
	}
	return nil
}

// Count returns the number of stored messages
func (s *InMemoryMessageStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(s.order.Len()), nil
}

// matches checks if a message matches the search criteria
func matches(message *InboundMessage, criteria *SearchCriteria) bool {
	if criteria.SourceAddr != "" && message.Source.Addr != criteria.SourceAddr {
		return false
	}

	if criteria.DestAddr != "" && message.Dest.Addr != criteria.DestAddr {
		return false
	}

	if criteria.ReceiptsOnly && !message.IsReceipt() {
		return false
	}

	if criteria.From != nil && message.ReceivedAt.Before(*criteria.From) {
		return false
	}

	if criteria.To != nil && message.ReceivedAt.After(*criteria.To) {
		return false
	}

	return true
}

var _ MessageStore = (*InMemoryMessageStore)(nil)
