package store

import (
	"context"
	"sync"
	"time"

	"civicdesk/internal/request/models"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/platform/sentinel"
)

// MemoryStore is the in-memory request store used in tests and local runs.
// It offers no transactions: RunInTx applies fn's writes directly and there is
// no rollback. The write path stays safe because UpdateStatus is a
// compare-and-set and nothing is written once validation fails.
type MemoryStore struct {
	mu          sync.Mutex
	requests    map[id.RequestID]*models.DocumentRequest
	methods     map[id.PaymentMethodID]*models.PaymentMethod
	transitions []*models.TransitionRecord
	nextTransID int64
}

// NewMemory constructs an empty in-memory request store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		requests:    make(map[id.RequestID]*models.DocumentRequest),
		methods:     make(map[id.PaymentMethodID]*models.PaymentMethod),
		nextTransID: 1,
	}
}

// SeedRequest inserts a request, bypassing lifecycle rules. Test helper.
func (s *MemoryStore) SeedRequest(req *models.DocumentRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	s.requests[req.ID] = &cp
}

// SeedPaymentMethod inserts a payment method. Test helper.
func (s *MemoryStore) SeedPaymentMethod(method *models.PaymentMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *method
	s.methods[method.ID] = &cp
}

// RunInTx runs fn directly. Each inner store call takes the lock on its own,
// so fn is not one atomic unit; the compare-and-set in UpdateStatus is what
// keeps concurrent writers from clobbering each other.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// GetRequest loads a document request by ID.
func (s *MemoryStore) GetRequest(ctx context.Context, requestID id.RequestID) (*models.DocumentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

// GetPaymentMethod loads a payment method by ID.
func (s *MemoryStore) GetPaymentMethod(ctx context.Context, methodID id.PaymentMethodID) (*models.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	method, ok := s.methods[methodID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *method
	return &cp, nil
}

// UpdateStatus moves the request from oldStatus to newStatus, reporting
// ErrConflict when the stored status no longer matches.
func (s *MemoryStore) UpdateStatus(ctx context.Context, requestID id.RequestID, oldStatus, newStatus models.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if req.Status != oldStatus {
		return sentinel.ErrConflict
	}
	req.Status = newStatus
	req.UpdatedAt = at
	return nil
}

// AppendTransition writes one audit row.
func (s *MemoryStore) AppendTransition(ctx context.Context, rec *models.TransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.ID = s.nextTransID
	s.nextTransID++
	s.transitions = append(s.transitions, &cp)
	return nil
}

// ListTransitions returns the audit trail for a request, oldest first.
func (s *MemoryStore) ListTransitions(ctx context.Context, requestID id.RequestID) ([]*models.TransitionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []*models.TransitionRecord
	for _, rec := range s.transitions {
		if rec.RequestID == requestID {
			cp := *rec
			records = append(records, &cp)
		}
	}
	return records, nil
}
