package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/noah-isme/codegrade-api/internal/models"
	"github.com/noah-isme/codegrade-api/internal/repository"
	"github.com/noah-isme/codegrade-api/pkg/payment"
)

// memoryTaskRepo is a mutex-guarded task store whose ConditionalUpdate has the
// same compare-and-set semantics as the SQL implementation.
type memoryTaskRepo struct {
	mu        sync.Mutex
	tasks     map[string]models.Task
	insertErr error
	updateErr error
	getErr    error
	updates   int
	unlocks   int
}

func newMemoryTaskRepo(tasks ...models.Task) *memoryTaskRepo {
	repo := &memoryTaskRepo{tasks: map[string]models.Task{}}
	for _, task := range tasks {
		repo.tasks[task.ID] = task
	}
	return repo
}

func (r *memoryTaskRepo) Insert(_ context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	r.tasks[task.ID] = *task
	return nil
}

func (r *memoryTaskRepo) GetByID(_ context.Context, id string) (models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return models.Task{}, r.getErr
	}
	task, ok := r.tasks[id]
	if !ok {
		return models.Task{}, gorm.ErrRecordNotFound
	}
	return task, nil
}

func (r *memoryTaskRepo) ConditionalUpdate(_ context.Context, id string, predicate repository.TaskPredicate, patch repository.TaskPatch) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if r.updateErr != nil {
		return 0, r.updateErr
	}
	task, ok := r.tasks[id]
	if !ok {
		return 0, nil
	}
	if predicate.OwnerID != "" && predicate.OwnerID != task.OwnerID {
		return 0, nil
	}
	if predicate.Unlocked != nil && *predicate.Unlocked != task.Unlocked {
		return 0, nil
	}
	if patch.Unlocked != nil {
		if *patch.Unlocked && !task.Unlocked {
			r.unlocks++
		}
		task.Unlocked = *patch.Unlocked
	}
	r.tasks[id] = task
	return 1, nil
}

func (r *memoryTaskRepo) List(_ context.Context, query repository.TaskQuery) ([]models.Task, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []models.Task
	for _, task := range r.tasks {
		if task.OwnerID != query.OwnerID {
			continue
		}
		if query.Language != "" && !strings.EqualFold(task.Language, query.Language) {
			continue
		}
		if query.Search != "" && !strings.Contains(strings.ToLower(task.Title), strings.ToLower(query.Search)) {
			continue
		}
		matched = append(matched, task)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	if query.Offset >= len(matched) {
		return []models.Task{}, total, nil
	}
	matched = matched[query.Offset:]
	if query.Limit > 0 && len(matched) > query.Limit {
		matched = matched[:query.Limit]
	}
	return matched, total, nil
}

func (r *memoryTaskRepo) Summary(_ context.Context, ownerID string) (repository.TaskSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	summary := repository.TaskSummary{}
	var scores int
	for _, task := range r.tasks {
		if task.OwnerID != ownerID {
			continue
		}
		summary.Total++
		if task.Unlocked {
			summary.Unlocked++
		}
		scores += task.Public().Score
	}
	if summary.Total > 0 {
		summary.AverageScore = float64(scores) / float64(summary.Total)
	}
	return summary, nil
}

func (r *memoryTaskRepo) get(id string) models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[id]
}

type memoryPaymentRepo struct {
	mu      sync.Mutex
	records []models.PaymentRecord
	err     error
}

func (r *memoryPaymentRepo) Create(_ context.Context, record *models.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	r.records = append(r.records, *record)
	return nil
}

func (r *memoryPaymentRepo) ListByTask(_ context.Context, taskID string) ([]models.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.PaymentRecord
	for _, record := range r.records {
		if record.TaskID == taskID {
			result = append(result, record)
		}
	}
	return result, nil
}

func (r *memoryPaymentRepo) countByStatus(status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, record := range r.records {
		if record.Status == status {
			count++
		}
	}
	return count
}

// memoryOrderRepo mirrors the order table: order ids are primary keys and a
// payment id may settle only one order.
type memoryOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]models.PaymentOrder
	createErr error
}

func newMemoryOrderRepo(orders ...models.PaymentOrder) *memoryOrderRepo {
	repo := &memoryOrderRepo{orders: map[string]models.PaymentOrder{}}
	for _, order := range orders {
		repo.orders[order.OrderID] = order
	}
	return repo
}

func (r *memoryOrderRepo) Create(_ context.Context, order *models.PaymentOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, exists := r.orders[order.OrderID]; exists {
		return fmt.Errorf("duplicate order %s", order.OrderID)
	}
	r.orders[order.OrderID] = *order
	return nil
}

func (r *memoryOrderRepo) GetByOrderID(_ context.Context, orderID string) (models.PaymentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return models.PaymentOrder{}, gorm.ErrRecordNotFound
	}
	return order, nil
}

func (r *memoryOrderRepo) Settle(_ context.Context, orderID, paymentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, other := range r.orders {
		if id != orderID && other.PaymentID != nil && *other.PaymentID == paymentID {
			return false, fmt.Errorf("payment %s already settled order %s", paymentID, id)
		}
	}
	order, ok := r.orders[orderID]
	if !ok {
		return false, nil
	}
	if order.PaymentID != nil {
		return *order.PaymentID == paymentID, nil
	}
	settledAt := time.Now().UTC()
	order.PaymentID = &paymentID
	order.SettledAt = &settledAt
	r.orders[orderID] = order
	return true, nil
}

func (r *memoryOrderRepo) get(orderID string) models.PaymentOrder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[orderID]
}

// openOrder is an unsettled order issued to "owner" for taskID.
func openOrder(orderID, taskID string) models.PaymentOrder {
	return models.PaymentOrder{
		OrderID:  orderID,
		TaskID:   taskID,
		OwnerID:  "owner",
		Amount:   UnlockPriceMinorUnits,
		Currency: UnlockCurrency,
	}
}

type stubGenerator struct {
	raw     string
	err     error
	block   bool
	prompts []string
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if s.err != nil {
		return "", s.err
	}
	return s.raw, nil
}

type stubProcessor struct {
	mu       sync.Mutex
	requests []payment.OrderRequest
	order    payment.Order
	err      error
	block    bool
}

func (s *stubProcessor) CreateOrder(ctx context.Context, req payment.OrderRequest) (payment.Order, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return payment.Order{}, ctx.Err()
	}
	if s.err != nil {
		return payment.Order{}, s.err
	}
	order := s.order
	if order.ID == "" {
		s.mu.Lock()
		order.ID = fmt.Sprintf("order_%d", len(s.requests))
		s.mu.Unlock()
	}
	return order, nil
}

type publishedEvent struct {
	Type    string
	Payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{Type: eventType, Payload: payload})
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, event := range p.events {
		if event.Type == eventType {
			count++
		}
	}
	return count
}

var errStoreDown = errors.New("store unavailable")
