// Package memory is an in-process storage.Store. Transactions are serialised
// and run against a copy of the data set that replaces the live one on commit.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/Freeeeeet/studyroom/internal/storage"
	"github.com/google/uuid"
)

type data struct {
	admins      map[uuid.UUID]*model.Admin
	shifts      map[uuid.UUID]*model.Shift
	discounts   map[uuid.UUID]*model.ShiftDiscount
	enrollments map[uuid.UUID][]*model.Enrollment // by student
	seats       map[uuid.UUID]*model.Seat
	students    map[uuid.UUID]*model.Student
	plans       map[uuid.UUID]*model.SubscriptionPlan
	pending     map[uuid.UUID]*model.PendingSubscription
	subs        map[uuid.UUID]*model.Subscription
}

func newData() *data {
	return &data{
		admins:      make(map[uuid.UUID]*model.Admin),
		shifts:      make(map[uuid.UUID]*model.Shift),
		discounts:   make(map[uuid.UUID]*model.ShiftDiscount),
		enrollments: make(map[uuid.UUID][]*model.Enrollment),
		seats:       make(map[uuid.UUID]*model.Seat),
		students:    make(map[uuid.UUID]*model.Student),
		plans:       make(map[uuid.UUID]*model.SubscriptionPlan),
		pending:     make(map[uuid.UUID]*model.PendingSubscription),
		subs:        make(map[uuid.UUID]*model.Subscription),
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.admins {
		c.admins[k] = copyAdmin(v)
	}
	for k, v := range d.shifts {
		s := *v
		c.shifts[k] = &s
	}
	for k, v := range d.discounts {
		dd := *v
		c.discounts[k] = &dd
	}
	for k, v := range d.enrollments {
		list := make([]*model.Enrollment, len(v))
		for i, e := range v {
			ee := *e
			list[i] = &ee
		}
		c.enrollments[k] = list
	}
	for k, v := range d.seats {
		c.seats[k] = copySeat(v)
	}
	for k, v := range d.students {
		c.students[k] = copyStudent(v)
	}
	for k, v := range d.plans {
		p := *v
		c.plans[k] = &p
	}
	for k, v := range d.pending {
		p := *v
		c.pending[k] = &p
	}
	for k, v := range d.subs {
		s := *v
		c.subs[k] = &s
	}
	return c
}

// faults holds errors injected with FailOn.
type faults struct {
	mu       sync.Mutex
	next     map[string]error
	rollback bool
}

func (f *faults) take(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err, ok := f.next[op]
	if !ok {
		return nil
	}
	delete(f.next, op)
	return err
}

func (f *faults) takeRollback() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.rollback
	f.rollback = false
	return r
}

type Store struct {
	mu     sync.Mutex
	d      *data
	faults *faults
	*view
}

func New() *Store {
	s := &Store{
		d:      newData(),
		faults: &faults{next: make(map[string]error)},
	}
	s.view = &view{
		mu:     &s.mu,
		data:   func() *data { return s.d },
		faults: s.faults,
	}
	return s
}

// FailOn makes the next call of op (for example "seats.Reserve") return err.
func (s *Store) FailOn(op string, err error) {
	s.faults.mu.Lock()
	defer s.faults.mu.Unlock()
	s.faults.next[op] = err
}

// FailRollback makes the next failing transaction report a rollback failure.
// Its partial writes are kept, as they would be when the rollback never
// reached the database.
func (s *Store) FailRollback() {
	s.faults.mu.Lock()
	defer s.faults.mu.Unlock()
	s.faults.rollback = true
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, r storage.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.d.clone()
	tx := &view{
		mu:     &sync.Mutex{},
		data:   func() *data { return work },
		faults: s.faults,
	}

	if err := fn(ctx, tx); err != nil {
		if s.faults.takeRollback() {
			s.d = work
			return fmt.Errorf("%w: injected (cause: %w)", storage.ErrRollbackFailed, err)
		}
		return err
	}

	if err := s.faults.take("tx.Commit"); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.d = work
	return nil
}

func (s *Store) Close() {}

var _ storage.Store = (*Store)(nil)
