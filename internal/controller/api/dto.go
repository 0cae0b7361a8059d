package api

import (
	"reflect"
	"strings"

	"github.com/Freeeeeet/studyroom/internal/apperr"
	"github.com/Freeeeeet/studyroom/internal/shiftplan"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,numeric,len=6"`
}

type resetPasswordRequest struct {
	ResetToken string `json:"reset_token" validate:"required"`
	Password   string `json:"password" validate:"required,min=6,max=72"`
}

type profileRequest struct {
	Name         *string `json:"name" validate:"omitempty,max=120"`
	BusinessName *string `json:"business_name" validate:"omitempty,max=160"`
	MobileNo     *string `json:"mobile_no" validate:"omitempty,max=20"`
}

type shiftRequest struct {
	NumShifts         int     `json:"num_shifts" validate:"required,min=1,max=4"`
	HoursPerShift     int     `json:"hours_per_shift" validate:"required,min=1,max=24"`
	StartTime         string  `json:"start_time" validate:"required,datetime=15:04"`
	Fees              []int64 `json:"fees" validate:"required,dive,gte=0"`
	Discount2Shifts   *int    `json:"discount2Shifts" validate:"omitempty,min=0,max=100"`
	Discount3Shifts   *int    `json:"discount3Shifts" validate:"omitempty,min=0,max=100"`
	DiscountAllShifts *int    `json:"discountAllShifts" validate:"omitempty,min=0,max=100"`
	IfVersion         *int64  `json:"if_version" validate:"omitempty,min=0"`
}

func (r shiftRequest) discounts() shiftplan.DiscountRequest {
	return shiftplan.DiscountRequest{
		TwoShifts:   r.Discount2Shifts,
		ThreeShifts: r.Discount3Shifts,
		AllShifts:   r.DiscountAllShifts,
	}
}

type seatCountRequest struct {
	Count int `json:"count" validate:"required,min=1,max=100"`
}

type allocateRequest struct {
	StudentID uuid.UUID `json:"student_id" validate:"required"`
}

type addStudentRequest struct {
	Name     string     `json:"name" validate:"required,max=120"`
	Email    string     `json:"email" validate:"required,email"`
	Password string     `json:"password" validate:"omitempty,min=6,max=72"`
	Shifts   []int      `json:"shifts" validate:"required,min=1,max=4,dive,min=1,max=4"`
	SeatID   *uuid.UUID `json:"seat_id"`
}

type enrollmentRequest struct {
	Shifts    []int      `json:"shifts" validate:"required,min=1,max=4,dive,min=1,max=4"`
	SeatID    *uuid.UUID `json:"seat_id"`
	ClearSeat bool       `json:"clear_seat"`
}

type paymentRequest struct {
	Paid *bool `json:"paid" validate:"required"`
}

type planRequest struct {
	Name          string `json:"name" validate:"required,max=120"`
	Description   string `json:"description" validate:"max=500"`
	Amount        int64  `json:"amount" validate:"required,min=100"`
	BillingCycle  string `json:"billing_cycle" validate:"required,oneof=monthly yearly lifetime"`
	IntervalCount int    `json:"interval_count" validate:"omitempty,min=1,max=12"`
}

type subscribeRequest struct {
	PlanID uuid.UUID `json:"plan_id" validate:"required"`
	Email  string    `json:"email" validate:"omitempty,email"`
	Phone  string    `json:"phone" validate:"omitempty,max=20"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bind decodes the JSON body into req and validates it.
func (s *Server) bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return apperr.Invalid("invalid request body")
	}
	if err := s.validate.Struct(req); err != nil {
		return invalidInput(err)
	}
	return nil
}

func uuidParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.Invalid("%s must be a UUID", name)
	}
	return id, nil
}

// ifVersionQuery reads the optional ?if_version= guard of DELETE requests.
func ifVersionQuery(c *fiber.Ctx) (*int64, error) {
	raw := c.Query("if_version")
	if raw == "" {
		return nil, nil
	}
	n := c.QueryInt("if_version", -1)
	if n < 0 {
		return nil, apperr.Invalid("if_version must be a non-negative integer")
	}
	v := int64(n)
	return &v, nil
}
