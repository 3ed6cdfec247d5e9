// Package auth registers accounts, issues JWTs and resolves a bearer token
// back into the caller's Identity.
package auth

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"exam-system/internal/apperr"
	"exam-system/internal/identity"
	"exam-system/internal/models"
	"exam-system/internal/validation"
	"exam-system/pkg/logger"
)

type Service struct {
	repo      *Repository
	jwtSecret []byte
	ttl       time.Duration
	cost      int
	log       *logger.Logger
	now       func() time.Time
}

func NewService(repo *Repository, jwtSecret string, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		ttl:       ttl,
		cost:      bcrypt.DefaultCost,
		log:       log.With("service", "AuthService"),
		now:       time.Now,
	}
}

// SetHashCost overrides the bcrypt cost; tests lower it.
func (s *Service) SetHashCost(cost int) {
	s.cost = cost
}

// AccountInput is the account part shared by every signup.
type AccountInput struct {
	Username  string `json:"username" validate:"required,max=255"`
	Email     string `json:"email" validate:"omitempty,email,max=254"`
	FirstName string `json:"first_name" validate:"max=255"`
	LastName  string `json:"last_name" validate:"max=255"`
	Password  string `json:"password" validate:"required,min=8,max=255"`
	Password2 string `json:"password2" validate:"required,eqfield=Password"`
}

type InstituteSignup struct {
	AccountInput
	Name             string `json:"institute_name" validate:"required,max=255"`
	RegistrationCode string `json:"registration_code" validate:"required,max=50"`
	Address          string `json:"address" validate:"max=1000"`
	Phone            string `json:"phone" validate:"required,max=20"`
	Website          string `json:"website" validate:"omitempty,url"`
}

type TeacherSignup struct {
	AccountInput
	InstituteID  uint   `json:"institute_id" validate:"required"`
	NationalCode string `json:"national_code" validate:"required,len=10,numeric"`
	PhoneNumber  string `json:"phone_number" validate:"required,max=20"`
	Expertise    string `json:"expertise" validate:"required,max=100"`
}

type StudentSignup struct {
	AccountInput
	InstituteID  uint   `json:"institute_id" validate:"required"`
	NationalCode string `json:"national_code" validate:"required,len=10,numeric"`
	PhoneNumber  string `json:"phone_number" validate:"required,max=20"`
	MajorID      uint   `json:"major_id" validate:"required"`
	DateOfBirth  string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Gender       string `json:"gender" validate:"omitempty,max=10"`
}

type uniqueCheck struct {
	model  interface{}
	column string
	value  interface{}
	field  string
	msg    string
}

// unique reports every already-taken value as a field error.
func (s *Service) unique(ctx context.Context, tx *gorm.DB, checks ...uniqueCheck) error {
	var fields []apperr.FieldError
	for _, c := range checks {
		taken, err := s.repo.Taken(ctx, tx, c.model, c.column, c.value)
		if err != nil {
			return err
		}
		if taken {
			fields = append(fields, apperr.FieldError{Field: c.field, Error: c.msg})
		}
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid input", fields...)
	}
	return nil
}

func usernameCheck(username string) uniqueCheck {
	return uniqueCheck{&models.Account{}, "username", username, "username", "an account with this username already exists"}
}

func nationalCodeCheck(model interface{}, code string) uniqueCheck {
	return uniqueCheck{model, "national_code", code, "national_code", "this national code is already registered"}
}

// exists reports a missing referenced row as a field error.
func (s *Service) exists(ctx context.Context, tx *gorm.DB, model interface{}, id uint, field, what string) error {
	ok, err := s.repo.Exists(ctx, tx, model, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Field(field, what+" does not exist")
	}
	return nil
}

func (s *Service) account(in AccountInput, role identity.Role) (*models.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, apperr.Internal(errors.Wrap(err, "auth.bcrypt"))
	}
	return &models.Account{
		Username:  validation.CleanString(in.Username),
		Email:     validation.CleanString(in.Email, true),
		FirstName: validation.CleanString(in.FirstName),
		LastName:  validation.CleanString(in.LastName),
		Password:  string(hash),
		Role:      role,
		IsActive:  true,
	}, nil
}

// register creates the account and then its profile, built by profile from
// the new account id, in one transaction.
func (s *Service) register(ctx context.Context, in AccountInput, role identity.Role, precheck func(tx *gorm.DB) error, profile func(accountID uint) (interface{}, string)) (*models.Account, error) {
	acc, err := s.account(in, role)
	if err != nil {
		return nil, err
	}
	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := precheck(tx); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, tx, acc, "account"); err != nil {
			return err
		}
		if profile == nil {
			return nil
		}
		p, what := profile(acc.ID)
		return s.repo.Create(ctx, tx, p, what)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("account registered", "account_id", acc.ID, "role", role)
	return acc, nil
}

func (s *Service) RegisterInstitute(ctx context.Context, in InstituteSignup) (*models.Institute, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	inst := &models.Institute{
		Name:             validation.CleanString(in.Name),
		RegistrationCode: validation.CleanString(in.RegistrationCode),
		Address:          in.Address,
		Phone:            in.Phone,
		Website:          in.Website,
	}
	_, err := s.register(ctx, in.AccountInput, identity.RoleInstitute,
		func(tx *gorm.DB) error {
			return s.unique(ctx, tx,
				usernameCheck(in.Username),
				uniqueCheck{&models.Institute{}, "name", inst.Name, "institute_name", "an institute with this name already exists"},
				uniqueCheck{&models.Institute{}, "registration_code", inst.RegistrationCode, "registration_code", "this registration code is already registered"},
			)
		},
		func(accountID uint) (interface{}, string) {
			inst.AccountID = accountID
			return inst, "institute"
		})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *Service) RegisterTeacher(ctx context.Context, in TeacherSignup) (*models.Teacher, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	teacher := &models.Teacher{
		InstituteID:  in.InstituteID,
		NationalCode: in.NationalCode,
		PhoneNumber:  in.PhoneNumber,
		Expertise:    in.Expertise,
	}
	_, err := s.register(ctx, in.AccountInput, identity.RoleTeacher,
		func(tx *gorm.DB) error {
			if err := s.exists(ctx, tx, &models.Institute{}, in.InstituteID, "institute_id", "institute"); err != nil {
				return err
			}
			return s.unique(ctx, tx, usernameCheck(in.Username), nationalCodeCheck(&models.Teacher{}, in.NationalCode))
		},
		func(accountID uint) (interface{}, string) {
			teacher.AccountID = accountID
			return teacher, "teacher"
		})
	if err != nil {
		return nil, err
	}
	return teacher, nil
}

func (s *Service) RegisterStudent(ctx context.Context, in StudentSignup) (*models.Student, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	student := &models.Student{
		InstituteID:  in.InstituteID,
		NationalCode: in.NationalCode,
		PhoneNumber:  in.PhoneNumber,
		MajorID:      in.MajorID,
		Gender:       in.Gender,
	}
	if in.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", in.DateOfBirth)
		if err != nil {
			return nil, apperr.Field("date_of_birth", "must be a date in YYYY-MM-DD format")
		}
		student.DateOfBirth = &dob
	}
	_, err := s.register(ctx, in.AccountInput, identity.RoleStudent,
		func(tx *gorm.DB) error {
			if err := s.exists(ctx, tx, &models.Institute{}, in.InstituteID, "institute_id", "institute"); err != nil {
				return err
			}
			if err := s.exists(ctx, tx, &models.Major{}, in.MajorID, "major_id", "major"); err != nil {
				return err
			}
			return s.unique(ctx, tx, usernameCheck(in.Username), nationalCodeCheck(&models.Student{}, in.NationalCode))
		},
		func(accountID uint) (interface{}, string) {
			student.AccountID = accountID
			return student, "student"
		})
	if err != nil {
		return nil, err
	}
	return student, nil
}

// CreateAdmin registers an admin account. It is only reachable from the
// operator CLI.
func (s *Service) CreateAdmin(ctx context.Context, in AccountInput) (*models.Account, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	return s.register(ctx, in, identity.RoleAdmin,
		func(tx *gorm.DB) error { return s.unique(ctx, tx, usernameCheck(in.Username)) },
		nil)
}

type Token struct {
	Token     string        `json:"token"`
	UserID    uint          `json:"user_id"`
	Role      identity.Role `json:"role"`
	ExpiresAt time.Time     `json:"expires_at"`
}

func errBadCredentials() error {
	return apperr.Unauthenticated("invalid username or password")
}

func (s *Service) Login(ctx context.Context, username, password string) (*Token, error) {
	if username == "" || password == "" {
		return nil, apperr.Validation("username and password are required")
	}
	acc, err := s.repo.GetAccountByUsername(ctx, validation.CleanString(username))
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, errBadCredentials()
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.Password), []byte(password)); err != nil {
		s.log.Debug("login failed", "account_id", acc.ID)
		return nil, errBadCredentials()
	}
	if !acc.IsActive {
		return nil, apperr.Unauthenticated("this account is disabled")
	}

	now := s.now()
	exp := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": acc.ID,
		"role":    string(acc.Role),
		"exp":     exp.Unix(),
		"iat":     now.Unix(),
	})
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, apperr.Internal(errors.Wrap(err, "auth.jwt.sign"))
	}
	if err := s.repo.TouchLastLogin(ctx, acc.ID, now); err != nil {
		s.log.Warn("record last login", "account_id", acc.ID, "error", err)
	}
	return &Token{Token: signed, UserID: acc.ID, Role: acc.Role, ExpiresAt: exp}, nil
}

// ParseToken verifies a signed token and returns the account id it was issued for.
func (s *Service) ParseToken(raw string) (uint, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, apperr.Unauthenticated("invalid or expired token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, apperr.Unauthenticated("invalid token claims")
	}
	userID, ok := claims["user_id"].(float64)
	if !ok || userID <= 0 {
		return 0, apperr.Unauthenticated("invalid user id in token")
	}
	return uint(userID), nil
}

// Identify loads the current identity of an account. The role and profile
// are read from the store on every request, never trusted from the token.
func (s *Service) Identify(ctx context.Context, accountID uint) (identity.Identity, error) {
	acc, err := s.repo.GetAccount(ctx, accountID)
	if apperr.Is(err, apperr.KindNotFound) {
		return identity.Identity{}, apperr.Unauthenticated("account no longer exists")
	}
	if err != nil {
		return identity.Identity{}, err
	}
	if !acc.IsActive {
		return identity.Identity{}, apperr.Unauthenticated("this account is disabled")
	}
	id, err := s.repo.Identity(ctx, acc)
	if apperr.Is(err, apperr.KindNotFound) {
		return identity.Identity{}, apperr.Unauthenticated("account profile is missing")
	}
	return id, err
}
