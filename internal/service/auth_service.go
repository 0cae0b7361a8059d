package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Freeeeeet/studyroom/internal/apperr"
	"github.com/Freeeeeet/studyroom/internal/auth"
	"github.com/Freeeeeet/studyroom/internal/model"
	"github.com/Freeeeeet/studyroom/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultOTPTTL     = 10 * time.Minute
	MinPasswordLength = 6
)

// Session is a signed token plus what it says.
type Session struct {
	Token    string
	Identity auth.Identity
}

// Verification is the outcome of a one-time code exchange. Purpose tells
// whether Token is a session or a password reset grant.
type Verification struct {
	Token   string
	Purpose auth.Purpose
}

// ProfileInput carries the admin profile fields to change; nil keeps the value.
type ProfileInput struct {
	Name         *string
	BusinessName *string
	MobileNo     *string
}

type AuthService struct {
	store  storage.Store
	tokens *auth.Issuer
	mail   OTPSender
	otpTTL time.Duration
	now    func() time.Time
	fail   failures
	log    *zap.Logger
}

func NewAuthService(store storage.Store, tokens *auth.Issuer, mail OTPSender, otpTTL time.Duration, alerts Alerter, logger *zap.Logger) *AuthService {
	if otpTTL <= 0 {
		otpTTL = DefaultOTPTTL
	}
	return &AuthService{
		store:  store,
		tokens: tokens,
		mail:   mail,
		otpTTL: otpTTL,
		now:    time.Now,
		fail:   failures{alerts: alerts, logger: logger},
		log:    logger,
	}
}

// SignupAdmin registers an admin, or refreshes the code and password of one
// that never verified, and mails a one-time code.
func (s *AuthService) SignupAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperr.Invalid("email is required")
	}
	if err := checkPassword(password); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return apperr.Upstream(err, true, "hash password")
	}
	code, expires, err := s.newOTP()
	if err != nil {
		return err
	}

	err = s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		if err := r.Admins().ClaimEmail(ctx, email); err != nil {
			return err
		}
		student, err := r.Students().GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if student != nil {
			return apperr.Conflict(apperr.ReasonEmailInUse, "email already in use")
		}

		admin, err := r.Admins().GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if admin != nil {
			if admin.IsVerified {
				return apperr.Conflict(apperr.ReasonEmailInUse, "admin already exists")
			}
			admin.PasswordHash = hash
			admin.OTP, admin.OTPExpires = &code, &expires
			return r.Admins().Update(ctx, admin)
		}

		err = r.Admins().Create(ctx, &model.Admin{
			Email:        email,
			PasswordHash: hash,
			OTP:          &code,
			OTPExpires:   &expires,
		})
		if errors.Is(err, storage.ErrConflict) {
			return apperr.Conflict(apperr.ReasonEmailInUse, "email already in use")
		}
		return err
	})
	if err != nil {
		return s.fail.translate(ctx, err, "signup admin", zap.String("email", email))
	}

	s.log.Info("Admin signup, one-time code issued", zap.String("email", email))
	s.sendOTP(ctx, email, code)
	return nil
}

// VerifyOTP exchanges a one-time code. An unverified admin becomes verified and
// gets a session; a verified admin or a student gets a password reset grant.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (*Verification, error) {
	email = normalizeEmail(email)
	now := s.now()

	var (
		id      auth.Identity
		purpose = auth.PurposePasswordReset
	)
	err := s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		admin, err := r.Admins().GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if admin != nil {
			if !admin.OTPMatches(code, now) {
				return apperr.Unauthorized("invalid or expired code")
			}
			if !admin.IsVerified {
				admin.IsVerified = true
				purpose = auth.PurposeSession
			}
			admin.OTP, admin.OTPExpires = nil, nil
			id = adminIdentity(admin)
			return r.Admins().Update(ctx, admin)
		}

		student, err := r.Students().GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if student == nil {
			return apperr.NotFound("account not found")
		}
		if !student.OTPMatches(code, now) {
			return apperr.Unauthorized("invalid or expired code")
		}
		student.OTP, student.OTPExpires = nil, nil
		id = studentIdentity(student)
		return r.Students().Update(ctx, student)
	})
	if err != nil {
		return nil, s.fail.translate(ctx, err, "verify code", zap.String("email", email))
	}

	out := &Verification{Purpose: purpose}
	if purpose == auth.PurposeSession {
		out.Token, err = s.tokens.Issue(id)
	} else {
		out.Token, err = s.tokens.IssueReset(id)
	}
	if err != nil {
		return nil, apperr.Upstream(err, true, "issue token")
	}

	s.log.Info("One-time code verified",
		zap.String("user_id", id.UserID.String()),
		zap.String("role", string(id.Role)),
		zap.String("purpose", purposeName(purpose)),
	)
	return out, nil
}

// ForgotPassword mails a fresh one-time code to an admin or student.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	code, expires, err := s.newOTP()
	if err != nil {
		return err
	}

	err = s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		admin, err := r.Admins().GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if admin != nil {
			admin.OTP, admin.OTPExpires = &code, &expires
			return r.Admins().Update(ctx, admin)
		}

		student, err := r.Students().GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if student == nil {
			return apperr.NotFound("account not found")
		}
		student.OTP, student.OTPExpires = &code, &expires
		return r.Students().Update(ctx, student)
	})
	if err != nil {
		return s.fail.translate(ctx, err, "forgot password", zap.String("email", email))
	}

	s.log.Info("Password reset code issued", zap.String("email", email))
	s.sendOTP(ctx, email, code)
	return nil
}

// ResetPassword sets a new password for the holder of a reset grant.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, password string) error {
	id, err := s.tokens.ParseReset(resetToken)
	if err != nil {
		return apperr.Unauthorized("invalid or expired reset token")
	}
	if err := checkPassword(password); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return apperr.Upstream(err, true, "hash password")
	}

	err = s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		switch id.Role {
		case auth.RoleAdmin:
			admin, err := r.Admins().GetByID(ctx, id.UserID)
			if err != nil {
				return err
			}
			if admin == nil {
				return apperr.NotFound("account not found")
			}
			admin.PasswordHash = hash
			return r.Admins().Update(ctx, admin)
		case auth.RoleStudent:
			student, err := r.Students().GetByEmail(ctx, id.Email)
			if err != nil {
				return err
			}
			if student == nil || student.ID != id.UserID {
				return apperr.NotFound("account not found")
			}
			student.PasswordHash = hash
			return r.Students().Update(ctx, student)
		}
		return apperr.Unauthorized("invalid reset token")
	})
	if err != nil {
		return s.fail.translate(ctx, err, "reset password", zap.String("user_id", id.UserID.String()))
	}

	s.log.Info("Password reset",
		zap.String("user_id", id.UserID.String()),
		zap.String("role", string(id.Role)),
	)
	return nil
}

// Login checks credentials of an admin or a verified student and issues a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)

	admin, err := s.store.Admins().GetByEmail(ctx, email)
	if err != nil {
		return nil, s.fail.translate(ctx, err, "login", zap.String("email", email))
	}

	var id auth.Identity
	switch {
	case admin != nil:
		if !auth.CheckPassword(admin.PasswordHash, password) {
			return nil, apperr.Unauthorized("invalid email or password")
		}
		id = adminIdentity(admin)
	default:
		student, err := s.store.Students().GetByEmail(ctx, email)
		if err != nil {
			return nil, s.fail.translate(ctx, err, "login", zap.String("email", email))
		}
		if student == nil || !auth.CheckPassword(student.PasswordHash, password) {
			return nil, apperr.Unauthorized("invalid email or password")
		}
		if !student.IsVerified {
			return nil, apperr.Forbidden("account is not verified")
		}
		id = studentIdentity(student)
	}

	token, err := s.tokens.Issue(id)
	if err != nil {
		return nil, apperr.Upstream(err, true, "issue token")
	}

	s.log.Info("User logged in",
		zap.String("user_id", id.UserID.String()),
		zap.String("role", string(id.Role)),
	)
	return &Session{Token: token, Identity: id}, nil
}

// Refresh reloads the flags of id from storage so that changes made after
// the token was issued are honoured.
func (s *AuthService) Refresh(ctx context.Context, id auth.Identity) (auth.Identity, error) {
	switch id.Role {
	case auth.RoleAdmin:
		admin, err := s.store.Admins().GetByID(ctx, id.UserID)
		if err != nil {
			return auth.Identity{}, s.fail.translate(ctx, err, "refresh identity")
		}
		if admin == nil {
			return auth.Identity{}, apperr.Unauthorized("account no longer exists")
		}
		return adminIdentity(admin), nil
	case auth.RoleStudent:
		student, err := s.store.Students().GetByEmail(ctx, id.Email)
		if err != nil {
			return auth.Identity{}, s.fail.translate(ctx, err, "refresh identity")
		}
		if student == nil || student.ID != id.UserID {
			return auth.Identity{}, apperr.Unauthorized("account no longer exists")
		}
		return studentIdentity(student), nil
	}
	return auth.Identity{}, apperr.Unauthorized("unknown role")
}

func (s *AuthService) Profile(ctx context.Context, adminID uuid.UUID) (*model.Admin, error) {
	admin, err := s.store.Admins().GetByID(ctx, adminID)
	if err != nil {
		return nil, s.fail.translate(ctx, err, "admin profile", zap.String("admin_id", adminID.String()))
	}
	if admin == nil {
		return nil, apperr.NotFound("admin not found")
	}
	return admin, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, adminID uuid.UUID, in ProfileInput) (*model.Admin, error) {
	var admin *model.Admin
	err := s.store.InTx(ctx, func(ctx context.Context, r storage.Repos) error {
		var err error
		if admin, err = r.Admins().GetByID(ctx, adminID); err != nil {
			return err
		}
		if admin == nil {
			return apperr.NotFound("admin not found")
		}
		if in.Name != nil {
			admin.Name = strings.TrimSpace(*in.Name)
		}
		if in.BusinessName != nil {
			admin.BusinessName = strings.TrimSpace(*in.BusinessName)
		}
		if in.MobileNo != nil {
			admin.MobileNo = strings.TrimSpace(*in.MobileNo)
		}
		return r.Admins().Update(ctx, admin)
	})
	if err != nil {
		return nil, s.fail.translate(ctx, err, "update profile", zap.String("admin_id", adminID.String()))
	}

	s.log.Info("Admin profile updated", zap.String("admin_id", adminID.String()))
	return admin, nil
}

func (s *AuthService) newOTP() (string, time.Time, error) {
	code, err := auth.GenerateOTP()
	if err != nil {
		return "", time.Time{}, apperr.Upstream(err, true, "generate code")
	}
	return code, s.now().Add(s.otpTTL), nil
}

// sendOTP delivers the code; delivery errors are logged only.
func (s *AuthService) sendOTP(ctx context.Context, email, code string) {
	if s.mail == nil {
		return
	}
	if err := s.mail.SendOTP(ctx, email, code); err != nil {
		s.log.Error("Failed to send one-time code", zap.String("email", email), zap.Error(err))
	}
}

func checkPassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperr.Invalid("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

func adminIdentity(a *model.Admin) auth.Identity {
	return auth.Identity{
		UserID:       a.ID,
		Email:        a.Email,
		Role:         auth.RoleAdmin,
		IsSubscribed: a.IsSubscribed,
		IsMaster:     a.IsMaster,
		IsVerified:   a.IsVerified,
	}
}

func studentIdentity(st *model.Student) auth.Identity {
	return auth.Identity{
		UserID:     st.ID,
		Email:      st.Email,
		Role:       auth.RoleStudent,
		HasPaid:    st.PaymentDone,
		IsVerified: st.IsVerified,
	}
}

func purposeName(p auth.Purpose) string {
	if p == auth.PurposeSession {
		return "session"
	}
	return string(p)
}
