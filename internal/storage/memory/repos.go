package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/Freeeeeet/studyroom/internal/storage"
	"github.com/google/uuid"
)

// view binds the repositories to one data set: the live one behind the store
// mutex, or a transaction's private copy.
type view struct {
	mu     *sync.Mutex
	data   func() *data
	faults *faults
}

func (v *view) Admins() storage.AdminRepository               { return adminRepo{v} }
func (v *view) Shifts() storage.ShiftRepository               { return shiftRepo{v} }
func (v *view) Discounts() storage.DiscountRepository         { return discountRepo{v} }
func (v *view) Enrollments() storage.EnrollmentRepository     { return enrollmentRepo{v} }
func (v *view) Seats() storage.SeatRepository                 { return seatRepo{v} }
func (v *view) Students() storage.StudentRepository           { return studentRepo{v} }
func (v *view) Plans() storage.PlanRepository                 { return planRepo{v} }
func (v *view) Subscriptions() storage.SubscriptionRepository { return subscriptionRepo{v} }

// begin checks for an injected fault and locks the data set.
func (v *view) begin(ctx context.Context, op string) (*data, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := v.faults.take(op); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	v.mu.Lock()
	return v.data(), v.mu.Unlock, nil
}

func copyAdmin(a *model.Admin) *model.Admin {
	c := *a
	return &c
}

func copyStudent(s *model.Student) *model.Student {
	c := *s
	c.Shifts = nil
	c.Seat = nil
	return &c
}

func copySeat(s *model.Seat) *model.Seat {
	c := *s
	c.ShiftNumbers = nil
	return &c
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(a, b)
}

type adminRepo struct{ v *view }

func (r adminRepo) Create(ctx context.Context, admin *model.Admin) error {
	d, unlock, err := r.v.begin(ctx, "admins.Create")
	if err != nil {
		return err
	}
	defer unlock()

	for _, a := range d.admins {
		if sameEmail(a.Email, admin.Email) {
			return fmt.Errorf("create admin: %w: admin_email_key", storage.ErrConflict)
		}
	}
	if admin.ID == uuid.Nil {
		admin.ID = uuid.New()
	}
	now := time.Now()
	admin.CreatedAt, admin.UpdatedAt = now, now
	admin.ShiftConfigVersion = 0
	d.admins[admin.ID] = copyAdmin(admin)
	return nil
}

func (r adminRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Admin, error) {
	d, unlock, err := r.v.begin(ctx, "admins.GetByID")
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, ok := d.admins[id]
	if !ok {
		return nil, nil
	}
	return copyAdmin(a), nil
}

func (r adminRepo) GetByEmail(ctx context.Context, email string) (*model.Admin, error) {
	d, unlock, err := r.v.begin(ctx, "admins.GetByEmail")
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, a := range d.admins {
		if sameEmail(a.Email, email) {
			return copyAdmin(a), nil
		}
	}
	return nil, nil
}

func (r adminRepo) Update(ctx context.Context, admin *model.Admin) error {
	d, unlock, err := r.v.begin(ctx, "admins.Update")
	if err != nil {
		return err
	}
	defer unlock()

	cur, ok := d.admins[admin.ID]
	if !ok {
		return fmt.Errorf("update admin: %w", storage.ErrNotFound)
	}
	next := copyAdmin(cur)
	next.PasswordHash = admin.PasswordHash
	next.Name = admin.Name
	next.BusinessName = admin.BusinessName
	next.MobileNo = admin.MobileNo
	next.IsVerified = admin.IsVerified
	next.OTP = admin.OTP
	next.OTPExpires = admin.OTPExpires
	next.UpdatedAt = time.Now()
	d.admins[admin.ID] = next
	admin.UpdatedAt = next.UpdatedAt
	return nil
}

func (r adminRepo) SetSubscribed(ctx context.Context, id uuid.UUID, subscribed bool) error {
	d, unlock, err := r.v.begin(ctx, "admins.SetSubscribed")
	if err != nil {
		return err
	}
	defer unlock()

	a, ok := d.admins[id]
	if !ok {
		return fmt.Errorf("set admin subscribed: %w", storage.ErrNotFound)
	}
	a.IsSubscribed = subscribed
	a.UpdatedAt = time.Now()
	return nil
}

// LockConfig only reads the version: transactions are already serialised.
// ClaimEmail only checks for faults: transactions already run one at a time.
func (r adminRepo) ClaimEmail(ctx context.Context, _ string) error {
	_, unlock, err := r.v.begin(ctx, "admins.ClaimEmail")
	if err != nil {
		return err
	}
	unlock()
	return nil
}

func (r adminRepo) LockConfig(ctx context.Context, id uuid.UUID, exclusive bool) (int64, error) {
	d, unlock, err := r.v.begin(ctx, "admins.LockConfig")
	if err != nil {
		return 0, err
	}
	defer unlock()

	a, ok := d.admins[id]
	if !ok {
		return 0, fmt.Errorf("lock shift config: %w", storage.ErrNotFound)
	}
	return a.ShiftConfigVersion, nil
}

func (r adminRepo) BumpConfigVersion(ctx context.Context, id uuid.UUID, from int64) (int64, error) {
	d, unlock, err := r.v.begin(ctx, "admins.BumpConfigVersion")
	if err != nil {
		return 0, err
	}
	defer unlock()

	a, ok := d.admins[id]
	if !ok || a.ShiftConfigVersion != from {
		return 0, fmt.Errorf("bump shift config version: %w", storage.ErrVersionConflict)
	}
	a.ShiftConfigVersion++
	a.UpdatedAt = time.Now()
	return a.ShiftConfigVersion, nil
}

type shiftRepo struct{ v *view }

func (r shiftRepo) ListByAdmin(ctx context.Context, adminID uuid.UUID) ([]*model.Shift, error) {
	d, unlock, err := r.v.begin(ctx, "shifts.ListByAdmin")
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*model.Shift
	for _, s := range d.shifts {
		if s.AdminID == adminID {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r shiftRepo) CreateBatch(ctx context.Context, shifts []*model.Shift) error {
	d, unlock, err := r.v.begin(ctx, "shifts.CreateBatch")
	if err != nil {
		return err
	}
	defer unlock()

	taken := make(map[[2]any]bool)
	for _, s := range d.shifts {
		taken[[2]any{s.AdminID, s.Number}] = true
	}
	now := time.Now()
	for _, s := range shifts {
		if _, ok := d.admins[s.AdminID]; !ok {
			return fmt.Errorf("create shifts: %w: shifts_admin_id_fkey", storage.ErrNotFound)
		}
		key := [2]any{s.AdminID, s.Number}
		if taken[key] {
			return fmt.Errorf("create shifts: %w: shifts_admin_id_shift_number_key", storage.ErrConflict)
		}
		taken[key] = true
	}
	for _, s := range shifts {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.CreatedAt = now
		c := *s
		d.shifts[s.ID] = &c
	}
	return nil
}

func (r shiftRepo) DeleteByAdmin(ctx context.Context, adminID uuid.UUID) (int64, error) {
	d, unlock, err := r.v.begin(ctx, "shifts.DeleteByAdmin")
	if err != nil {
		return 0, err
	}
	defer unlock()

	var ids []uuid.UUID
	for id, s := range d.shifts {
		if s.AdminID == adminID {
			ids = append(ids, id)
		}
	}
	if enrolledIn(d, ids) {
		return 0, fmt.Errorf("delete shifts: %w: student_shifts_shift_id_fkey", storage.ErrNotFound)
	}
	for _, id := range ids {
		delete(d.shifts, id)
	}
	return int64(len(ids)), nil
}

func (r shiftRepo) Delete(ctx context.Context, id uuid.UUID) error {
	d, unlock, err := r.v.begin(ctx, "shifts.Delete")
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := d.shifts[id]; !ok {
		return fmt.Errorf("delete shift: %w", storage.ErrNotFound)
	}
	if enrolledIn(d, []uuid.UUID{id}) {
		return fmt.Errorf("delete shift: %w: student_shifts_shift_id_fkey", storage.ErrNotFound)
	}
	delete(d.shifts, id)
	return nil
}

func enrolledIn(d *data, shiftIDs []uuid.UUID) bool {
	set := make(map[uuid.UUID]bool, len(shiftIDs))
	for _, id := range shiftIDs {
		set[id] = true
	}
	for _, list := range d.enrollments {
		for _, e := range list {
			if set[e.ShiftID] {
				return true
			}
		}
	}
	return false
}

type discountRepo struct{ v *view }

func (r discountRepo) ListByAdmin(ctx context.Context, adminID uuid.UUID) ([]*model.ShiftDiscount, error) {
	d, unlock, err := r.v.begin(ctx, "discounts.ListByAdmin")
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*model.ShiftDiscount
	for _, t := range d.discounts {
		if t.AdminID == adminID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MinShifts < out[j].MinShifts })
	return out, nil
}

func (r discountRepo) CreateBatch(ctx context.Context, discounts []*model.ShiftDiscount) error {
	d, unlock, err := r.v.begin(ctx, "discounts.CreateBatch")
	if err != nil {
		return err
	}
	defer unlock()

	taken := make(map[[2]any]bool)
	for _, t := range d.discounts {
		taken[[2]any{t.AdminID, t.MinShifts}] = true
	}
	for _, t := range discounts {
		key := [2]any{t.AdminID, t.MinShifts}
		if taken[key] {
			return fmt.Errorf("create discounts: %w: shift_discounts_admin_id_min_shifts_key", storage.ErrConflict)
		}
		taken[key] = true
	}
	for _, t := range discounts {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		c := *t
		d.discounts[t.ID] = &c
	}
	return nil
}

func (r discountRepo) DeleteByAdmin(ctx context.Context, adminID uuid.UUID) (int64, error) {
	return r.deleteWhere(ctx, "discounts.DeleteByAdmin", func(t *model.ShiftDiscount) bool {
		return t.AdminID == adminID
	})
}

func (r discountRepo) DeleteAbove(ctx context.Context, adminID uuid.UUID, maxShifts int) (int64, error) {
	return r.deleteWhere(ctx, "discounts.DeleteAbove", func(t *model.ShiftDiscount) bool {
		return t.AdminID == adminID && t.MinShifts > maxShifts
	})
}

func (r discountRepo) deleteWhere(ctx context.Context, op string, match func(*model.ShiftDiscount) bool) (int64, error) {
	d, unlock, err := r.v.begin(ctx, op)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var n int64
	for id, t := range d.discounts {
		if match(t) {
			delete(d.discounts, id)
			n++
		}
	}
	return n, nil
}

type enrollmentRepo struct{ v *view }

func (r enrollmentRepo) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.Enrollment, error) {
	d, unlock, err := r.v.begin(ctx, "enrollments.ListByStudent")
	if err != nil {
		return nil, err
	}
	defer unlock()

	list := d.enrollments[studentID]
	out := make([]*model.Enrollment, 0, len(list))
	for _, e := range list {
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return shiftNumber(d, out[i].ShiftID) < shiftNumber(d, out[j].ShiftID)
	})
	return out, nil
}

func shiftNumber(d *data, id uuid.UUID) int {
	if s, ok := d.shifts[id]; ok {
		return s.Number
	}
	return 0
}

func (r enrollmentRepo) Replace(ctx context.Context, studentID uuid.UUID, enrollments []*model.Enrollment) error {
	d, unlock, err := r.v.begin(ctx, "enrollments.Replace")
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := d.students[studentID]; !ok {
		return fmt.Errorf("replace enrollments: %w: student_shifts_student_id_fkey", storage.ErrNotFound)
	}
	seen := make(map[uuid.UUID]bool, len(enrollments))
	now := time.Now()
	list := make([]*model.Enrollment, 0, len(enrollments))
	for _, e := range enrollments {
		if _, ok := d.shifts[e.ShiftID]; !ok {
			return fmt.Errorf("replace enrollments: %w: student_shifts_shift_id_fkey", storage.ErrNotFound)
		}
		if seen[e.ShiftID] {
			return fmt.Errorf("replace enrollments: %w: student_shifts_pkey", storage.ErrConflict)
		}
		seen[e.ShiftID] = true
		e.StudentID = studentID
		e.CreatedAt = now
		c := *e
		list = append(list, &c)
	}
	if len(list) == 0 {
		delete(d.enrollments, studentID)
		return nil
	}
	d.enrollments[studentID] = list
	return nil
}

func (r enrollmentRepo) DeleteByStudent(ctx context.Context, studentID uuid.UUID) error {
	d, unlock, err := r.v.begin(ctx, "enrollments.DeleteByStudent")
	if err != nil {
		return err
	}
	defer unlock()

	delete(d.enrollments, studentID)
	return nil
}

func (r enrollmentRepo) AnyForShifts(ctx context.Context, shiftIDs []uuid.UUID) (bool, error) {
	d, unlock, err := r.v.begin(ctx, "enrollments.AnyForShifts")
	if err != nil {
		return false, err
	}
	defer unlock()

	return enrolledIn(d, shiftIDs), nil
}

type seatRepo struct{ v *view }

func (r seatRepo) CreateBatch(ctx context.Context, seats []*model.Seat) error {
	d, unlock, err := r.v.begin(ctx, "seats.CreateBatch")
	if err != nil {
		return err
	}
	defer unlock()

	taken := make(map[[2]any]bool)
	for _, s := range d.seats {
		taken[[2]any{s.AdminID, s.Number}] = true
	}
	for _, s := range seats {
		key := [2]any{s.AdminID, s.Number}
		if taken[key] {
			return fmt.Errorf("create seats: %w: seats_admin_id_seat_number_key", storage.ErrConflict)
		}
		taken[key] = true
	}
	now := time.Now()
	for _, s := range seats {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.CreatedAt = now
		d.seats[s.ID] = copySeat(s)
	}
	return nil
}

func (r seatRepo) ListByAdmin(ctx context.Context, adminID uuid.UUID) ([]*model.Seat, error) {
	d, unlock, err := r.v.begin(ctx, "seats.ListByAdmin")
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*model.Seat
	for _, s := range d.seats {
		if s.AdminID != adminID {
			continue
		}
		c := copySeat(s)
		c.ShiftNumbers = []int{}
		if s.ReservedBy != nil {
			for _, e := range d.enrollments[*s.ReservedBy] {
				if n := shiftNumber(d, e.ShiftID); n > 0 {
					c.ShiftNumbers = append(c.ShiftNumbers, n)
				}
			}
			sort.Ints(c.ShiftNumbers)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (r seatRepo) MaxNumber(ctx context.Context, adminID uuid.UUID) (int, error) {
	d, unlock, err := r.v.begin(ctx, "seats.MaxNumber")
	if err != nil {
		return 0, err
	}
	defer unlock()

	highest := 0
	for _, s := range d.seats {
		if s.AdminID == adminID && s.Number > highest {
			highest = s.Number
		}
	}
	return highest, nil
}

func (r seatRepo) Count(ctx context.Context, adminID uuid.UUID) (int, error) {
	d, unlock, err := r.v.begin(ctx, "seats.Count")
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := 0
	for _, s := range d.seats {
		if s.AdminID == adminID {
			n++
		}
	}
	return n, nil
}

func (r seatRepo) GetByID(ctx context.Context, adminID, seatID uuid.UUID) (*model.Seat, error) {
	d, unlock, err := r.v.begin(ctx, "seats.GetByID")
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, ok := d.seats[seatID]
	if !ok || s.AdminID != adminID {
		return nil, nil
	}
	return copySeat(s), nil
}

func (r seatRepo) Reserve(ctx context.Context, seatID, studentID uuid.UUID) (bool, error) {
	d, unlock, err := r.v.begin(ctx, "seats.Reserve")
	if err != nil {
		return false, err
	}
	defer unlock()

	s, ok := d.seats[seatID]
	if !ok || s.ReservedBy != nil {
		return false, nil
	}
	if _, ok := d.students[studentID]; !ok {
		return false, fmt.Errorf("reserve seat: %w: seats_reserved_by_fkey", storage.ErrNotFound)
	}
	for _, other := range d.seats {
		if other.ReservedBy != nil && *other.ReservedBy == studentID {
			return false, fmt.Errorf("reserve seat: %w: seats_reserved_by_key", storage.ErrConflict)
		}
	}
	id := studentID
	s.ReservedBy = &id
	return true, nil
}

func (r seatRepo) Release(ctx context.Context, seatID, studentID uuid.UUID) (bool, error) {
	d, unlock, err := r.v.begin(ctx, "seats.Release")
	if err != nil {
		return false, err
	}
	defer unlock()

	s, ok := d.seats[seatID]
	if !ok || s.ReservedBy == nil || *s.ReservedBy != studentID {
		return false, nil
	}
	s.ReservedBy = nil
	return true, nil
}

func (r seatRepo) DeleteFree(ctx context.Context, seatID uuid.UUID) (bool, error) {
	d, unlock, err := r.v.begin(ctx, "seats.DeleteFree")
	if err != nil {
		return false, err
	}
	defer unlock()

	s, ok := d.seats[seatID]
	if !ok || s.ReservedBy != nil {
		return false, nil
	}
	delete(d.seats, seatID)
	for _, st := range d.students {
		if st.SeatID != nil && *st.SeatID == seatID {
			st.SeatID = nil
		}
	}
	return true, nil
}

type studentRepo struct{ v *view }

func (r studentRepo) Create(ctx context.Context, student *model.Student) error {
	d, unlock, err := r.v.begin(ctx, "students.Create")
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := d.admins[student.AdminID]; !ok {
		return fmt.Errorf("create student: %w: students_admin_id_fkey", storage.ErrNotFound)
	}
	for _, s := range d.students {
		if sameEmail(s.Email, student.Email) {
			return fmt.Errorf("create student: %w: students_email_key", storage.ErrConflict)
		}
	}
	if student.ID == uuid.Nil {
		student.ID = uuid.New()
	}
	now := time.Now()
	student.CreatedAt, student.UpdatedAt = now, now
	d.students[student.ID] = copyStudent(student)
	return nil
}

func (r studentRepo) GetByID(ctx context.Context, adminID, id uuid.UUID) (*model.Student, error) {
	d, unlock, err := r.v.begin(ctx, "students.GetByID")
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, ok := d.students[id]
	if !ok || s.AdminID != adminID {
		return nil, nil
	}
	return copyStudent(s), nil
}

func (r studentRepo) GetByEmail(ctx context.Context, email string) (*model.Student, error) {
	d, unlock, err := r.v.begin(ctx, "students.GetByEmail")
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, s := range d.students {
		if sameEmail(s.Email, email) {
			return copyStudent(s), nil
		}
	}
	return nil, nil
}

func (r studentRepo) ListByAdmin(ctx context.Context, adminID uuid.UUID) ([]*model.Student, error) {
	d, unlock, err := r.v.begin(ctx, "students.ListByAdmin")
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*model.Student
	for _, s := range d.students {
		if s.AdminID == adminID {
			out = append(out, copyStudent(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r studentRepo) Update(ctx context.Context, student *model.Student) error {
	d, unlock, err := r.v.begin(ctx, "students.Update")
	if err != nil {
		return err
	}
	defer unlock()

	cur, ok := d.students[student.ID]
	if !ok {
		return fmt.Errorf("update student: %w", storage.ErrNotFound)
	}
	cur.Name = student.Name
	cur.PasswordHash = student.PasswordHash
	cur.IsVerified = student.IsVerified
	cur.PaymentDone = student.PaymentDone
	cur.OTP = student.OTP
	cur.OTPExpires = student.OTPExpires
	cur.UpdatedAt = time.Now()
	student.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r studentRepo) SetSeat(ctx context.Context, id uuid.UUID, seatID *uuid.UUID) error {
	d, unlock, err := r.v.begin(ctx, "students.SetSeat")
	if err != nil {
		return err
	}
	defer unlock()

	s, ok := d.students[id]
	if !ok {
		return fmt.Errorf("set student seat: %w", storage.ErrNotFound)
	}
	if seatID != nil {
		if _, ok := d.seats[*seatID]; !ok {
			return fmt.Errorf("set student seat: %w: students_seat_id_fkey", storage.ErrNotFound)
		}
		id := *seatID
		seatID = &id
	}
	s.SeatID = seatID
	s.UpdatedAt = time.Now()
	return nil
}

func (r studentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	d, unlock, err := r.v.begin(ctx, "students.Delete")
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := d.students[id]; !ok {
		return fmt.Errorf("delete student: %w", storage.ErrNotFound)
	}
	delete(d.students, id)
	delete(d.enrollments, id)
	for _, s := range d.seats {
		if s.ReservedBy != nil && *s.ReservedBy == id {
			s.ReservedBy = nil
		}
	}
	return nil
}

type planRepo struct{ v *view }

func (r planRepo) Create(ctx context.Context, plan *model.SubscriptionPlan) error {
	d, unlock, err := r.v.begin(ctx, "plans.Create")
	if err != nil {
		return err
	}
	defer unlock()

	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	now := time.Now()
	plan.CreatedAt, plan.UpdatedAt = now, now
	c := *plan
	d.plans[plan.ID] = &c
	return nil
}

func (r planRepo) Update(ctx context.Context, plan *model.SubscriptionPlan) error {
	d, unlock, err := r.v.begin(ctx, "plans.Update")
	if err != nil {
		return err
	}
	defer unlock()

	cur, ok := d.plans[plan.ID]
	if !ok {
		return fmt.Errorf("update plan: %w", storage.ErrNotFound)
	}
	plan.CreatedAt = cur.CreatedAt
	plan.UpdatedAt = time.Now()
	c := *plan
	d.plans[plan.ID] = &c
	return nil
}

func (r planRepo) Delete(ctx context.Context, id uuid.UUID) error {
	d, unlock, err := r.v.begin(ctx, "plans.Delete")
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := d.plans[id]; !ok {
		return fmt.Errorf("delete plan: %w", storage.ErrNotFound)
	}
	for _, p := range d.pending {
		if p.PlanID == id {
			return fmt.Errorf("delete plan: %w: pending_subscriptions_plan_id_fkey", storage.ErrNotFound)
		}
	}
	for _, s := range d.subs {
		if s.PlanID == id {
			return fmt.Errorf("delete plan: %w: subscriptions_plan_id_fkey", storage.ErrNotFound)
		}
	}
	delete(d.plans, id)
	return nil
}

func (r planRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.SubscriptionPlan, error) {
	d, unlock, err := r.v.begin(ctx, "plans.GetByID")
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, ok := d.plans[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (r planRepo) List(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	d, unlock, err := r.v.begin(ctx, "plans.List")
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*model.SubscriptionPlan
	for _, p := range d.plans {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount < out[j].Amount
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

type subscriptionRepo struct{ v *view }

func (r subscriptionRepo) CreatePending(ctx context.Context, p *model.PendingSubscription) error {
	d, unlock, err := r.v.begin(ctx, "subscriptions.CreatePending")
	if err != nil {
		return err
	}
	defer unlock()

	for _, other := range d.pending {
		if other.ProviderSubscriptionID == p.ProviderSubscriptionID {
			return fmt.Errorf("create pending subscription: %w: pending_subscriptions_subscription_id_key", storage.ErrConflict)
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	c := *p
	d.pending[p.ID] = &c
	return nil
}

func (r subscriptionRepo) GetPending(ctx context.Context, providerID string) (*model.PendingSubscription, error) {
	d, unlock, err := r.v.begin(ctx, "subscriptions.GetPending")
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, p := range d.pending {
		if p.ProviderSubscriptionID == providerID {
			c := *p
			return &c, nil
		}
	}
	return nil, nil
}

func (r subscriptionRepo) ListPendingByAdmin(ctx context.Context, adminID uuid.UUID) ([]*model.PendingSubscription, error) {
	d, unlock, err := r.v.begin(ctx, "subscriptions.ListPendingByAdmin")
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*model.PendingSubscription
	for _, p := range d.pending {
		if p.AdminID == adminID {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r subscriptionRepo) DeletePending(ctx context.Context, id uuid.UUID) error {
	d, unlock, err := r.v.begin(ctx, "subscriptions.DeletePending")
	if err != nil {
		return err
	}
	defer unlock()

	delete(d.pending, id)
	return nil
}

func (r subscriptionRepo) DeletePendingBefore(ctx context.Context, t time.Time) (int64, error) {
	d, unlock, err := r.v.begin(ctx, "subscriptions.DeletePendingBefore")
	if err != nil {
		return 0, err
	}
	defer unlock()

	var n int64
	for id, p := range d.pending {
		if p.CreatedAt.Before(t) {
			delete(d.pending, id)
			n++
		}
	}
	return n, nil
}

func (r subscriptionRepo) Create(ctx context.Context, s *model.Subscription) error {
	d, unlock, err := r.v.begin(ctx, "subscriptions.Create")
	if err != nil {
		return err
	}
	defer unlock()

	for _, other := range d.subs {
		if other.ProviderSubscriptionID == s.ProviderSubscriptionID {
			return fmt.Errorf("create subscription: %w: subscriptions_subscription_id_key", storage.ErrConflict)
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	c := *s
	d.subs[s.ID] = &c
	return nil
}

func (r subscriptionRepo) GetByProviderID(ctx context.Context, providerID string) (*model.Subscription, error) {
	d, unlock, err := r.v.begin(ctx, "subscriptions.GetByProviderID")
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, s := range d.subs {
		if s.ProviderSubscriptionID == providerID {
			c := *s
			return &c, nil
		}
	}
	return nil, nil
}

func (r subscriptionRepo) UpdateStatus(ctx context.Context, providerID string, status model.SubscriptionStatus) error {
	d, unlock, err := r.v.begin(ctx, "subscriptions.UpdateStatus")
	if err != nil {
		return err
	}
	defer unlock()

	for _, s := range d.subs {
		if s.ProviderSubscriptionID == providerID {
			s.Status = status
			s.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("update subscription status: %w", storage.ErrNotFound)
}

func (r subscriptionRepo) ListLiveByAdmin(ctx context.Context, adminID uuid.UUID) ([]*model.Subscription, error) {
	d, unlock, err := r.v.begin(ctx, "subscriptions.ListLiveByAdmin")
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*model.Subscription
	for _, s := range d.subs {
		if s.AdminID == adminID && s.Status.IsLive() {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
