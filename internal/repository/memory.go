package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/developer387/doorbell-app-sub000/internal/domain"
	"github.com/google/uuid"
)

type InMemoryCallRepository struct {
	mu    sync.RWMutex
	calls map[string]*domain.CallRecord
	subs  map[string]map[*snapshotSub]struct{}
}

func NewInMemoryCallRepository() *InMemoryCallRepository {
	return &InMemoryCallRepository{
		calls: make(map[string]*domain.CallRecord),
		subs:  make(map[string]map[*snapshotSub]struct{}),
	}
}

func (r *InMemoryCallRepository) Create(ctx context.Context, call *domain.CallRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if call.PropertyID == "" {
		return ErrPropertyIDMissing
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if call.ID == "" {
		call.ID = uuid.New().String()
	}
	if call.IceCandidates == nil {
		call.IceCandidates = []domain.IceCandidateEntry{}
	}
	r.calls[call.ID] = call.Clone()
	r.publishLocked(call.ID)
	return nil
}

func (r *InMemoryCallRepository) Get(ctx context.Context, id string) (*domain.CallRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	call, ok := r.calls[id]
	if !ok {
		return nil, ErrCallNotFound
	}
	return call.Clone(), nil
}

func (r *InMemoryCallRepository) Update(ctx context.Context, id string, patch domain.CallPatch) (*domain.CallRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	call, ok := r.calls[id]
	if !ok {
		return nil, ErrCallNotFound
	}
	noop, err := checkPatch(call, patch)
	if err != nil {
		return nil, err
	}
	if noop {
		return call.Clone(), nil
	}

	if patch.Status != nil {
		call.Status = *patch.Status
	}
	if patch.Offer != nil {
		call.Offer = domain.CopyDescription(patch.Offer)
	}
	if patch.Answer != nil {
		call.Answer = domain.CopyDescription(patch.Answer)
	}
	if patch.SharedLocks != nil {
		call.SharedLocks = append([]domain.SharedLock{}, patch.SharedLocks...)
	}
	call.UpdatedAt = time.Now().UTC()

	r.publishLocked(id)
	return call.Clone(), nil
}

func (r *InMemoryCallRepository) AppendCandidate(ctx context.Context, id string, entry domain.IceCandidateEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	call, ok := r.calls[id]
	if !ok {
		return ErrCallNotFound
	}
	if call.Status.IsTerminal() {
		return ErrCallTerminal
	}
	call.IceCandidates = append(call.IceCandidates, entry)
	call.UpdatedAt = time.Now().UTC()

	r.publishLocked(id)
	return nil
}

func (r *InMemoryCallRepository) Subscribe(ctx context.Context, id string) (<-chan *domain.CallRecord, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	call, ok := r.calls[id]
	if !ok {
		r.mu.Unlock()
		return nil, nil, ErrCallNotFound
	}
	sub := newSnapshotSub()
	if r.subs[id] == nil {
		r.subs[id] = make(map[*snapshotSub]struct{})
	}
	r.subs[id][sub] = struct{}{}
	sub.push(call.Clone())
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs[id], sub)
			if len(r.subs[id]) == 0 {
				delete(r.subs, id)
			}
			r.mu.Unlock()
			sub.close()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()

	return sub.ch, cancel, nil
}

func (r *InMemoryCallRepository) ListOpen(ctx context.Context) ([]*domain.CallRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.CallRecord, 0, len(r.calls))
	for _, call := range r.calls {
		if call.Status.IsTerminal() {
			continue
		}
		result = append(result, call.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (r *InMemoryCallRepository) publishLocked(id string) {
	call := r.calls[id]
	for sub := range r.subs[id] {
		sub.push(call.Clone())
	}
}

// snapshotSub delivers the latest snapshot, replacing any undelivered one.
type snapshotSub struct {
	mu     sync.Mutex
	ch     chan *domain.CallRecord
	done   chan struct{}
	closed bool
}

func newSnapshotSub() *snapshotSub {
	return &snapshotSub{
		ch:   make(chan *domain.CallRecord, 1),
		done: make(chan struct{}),
	}
}

func (s *snapshotSub) push(call *domain.CallRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- call:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *snapshotSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.ch)
}

type InMemoryGuestRepository struct {
	mu     sync.RWMutex
	guests map[string]*domain.Guest
}

func NewInMemoryGuestRepository() *InMemoryGuestRepository {
	return &InMemoryGuestRepository{guests: make(map[string]*domain.Guest)}
}

func (r *InMemoryGuestRepository) Create(ctx context.Context, guest *domain.Guest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if guest.ID == "" {
		guest.ID = uuid.New().String()
	}
	r.guests[guest.ID] = cloneGuest(guest)
	return nil
}

func (r *InMemoryGuestRepository) GetByID(ctx context.Context, id string) (*domain.Guest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	guest, ok := r.guests[id]
	if !ok {
		return nil, ErrGuestNotFound
	}
	return cloneGuest(guest), nil
}

func (r *InMemoryGuestRepository) Update(ctx context.Context, guest *domain.Guest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.guests[guest.ID]; !ok {
		return ErrGuestNotFound
	}
	g := cloneGuest(guest)
	g.UpdatedAt = time.Now().UTC()
	r.guests[guest.ID] = g
	return nil
}

func (r *InMemoryGuestRepository) ListByProperty(ctx context.Context, propertyID string) ([]*domain.Guest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Guest, 0)
	for _, guest := range r.guests {
		if guest.PropertyID != propertyID {
			continue
		}
		result = append(result, cloneGuest(guest))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func cloneGuest(guest *domain.Guest) *domain.Guest {
	g := *guest
	g.AllowedLocks = append([]string(nil), guest.AllowedLocks...)
	return &g
}

type InMemoryPropertyRepository struct {
	mu         sync.RWMutex
	properties map[string]*domain.Property
}

func NewInMemoryPropertyRepository() *InMemoryPropertyRepository {
	return &InMemoryPropertyRepository{properties: make(map[string]*domain.Property)}
}

func (r *InMemoryPropertyRepository) Create(ctx context.Context, property *domain.Property) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if property.ID == "" {
		property.ID = uuid.New().String()
	}
	p := *property
	r.properties[property.ID] = &p
	return nil
}

func (r *InMemoryPropertyRepository) GetByID(ctx context.Context, id string) (*domain.Property, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	property, ok := r.properties[id]
	if !ok {
		return nil, ErrPropertyNotFound
	}
	p := *property
	return &p, nil
}

type InMemoryLockRepository struct {
	mu    sync.RWMutex
	locks map[string][]*domain.SmartLock
}

func NewInMemoryLockRepository() *InMemoryLockRepository {
	return &InMemoryLockRepository{locks: make(map[string][]*domain.SmartLock)}
}

func (r *InMemoryLockRepository) Upsert(ctx context.Context, propertyID string, lock *domain.SmartLock) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l := *lock
	for i, existing := range r.locks[propertyID] {
		if existing.DeviceID == lock.DeviceID {
			r.locks[propertyID][i] = &l
			return nil
		}
	}
	r.locks[propertyID] = append(r.locks[propertyID], &l)
	return nil
}

func (r *InMemoryLockRepository) Delete(ctx context.Context, propertyID, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	locks := r.locks[propertyID]
	for i, existing := range locks {
		if existing.DeviceID == deviceID {
			r.locks[propertyID] = append(locks[:i], locks[i+1:]...)
			return nil
		}
	}
	return ErrLockNotFound
}

func (r *InMemoryLockRepository) ListByProperty(ctx context.Context, propertyID string) ([]*domain.SmartLock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.SmartLock, 0, len(r.locks[propertyID]))
	for _, lock := range r.locks[propertyID] {
		l := *lock
		result = append(result, &l)
	}
	return result, nil
}
