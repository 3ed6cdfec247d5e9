package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"exam-system/internal/apperr"
	"exam-system/internal/identity"
	"exam-system/internal/models"
	"exam-system/internal/testutil"
	"exam-system/pkg/logger"
)

const secret = "test-secret"

func newService(t *testing.T) (*Service, *testutil.Fixture) {
	t.Helper()
	f := testutil.Seed(t)
	svc := NewService(NewRepository(f.DB), secret, time.Hour, logger.Nop())
	svc.SetHashCost(bcrypt.MinCost)
	return svc, f
}

func account(username string) AccountInput {
	return AccountInput{
		Username:  username,
		Email:     username + "@example.com",
		Password:  "correct-horse",
		Password2: "correct-horse",
	}
}

func requireField(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err), "error: %v", err)
	for _, fe := range apperr.As(err).Fields {
		if fe.Field == field {
			return
		}
	}
	t.Fatalf("field %q: missing from %+v", field, apperr.As(err).Fields)
}

func TestRegisterInstitute(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	in := InstituteSignup{
		AccountInput:     account("north"),
		Name:             "North Academy",
		RegistrationCode: "NA-1",
		Phone:            "0211234567",
	}

	inst, err := svc.RegisterInstitute(ctx, in)
	require.NoError(t, err)
	require.NotZero(t, inst.ID)
	require.NotZero(t, inst.AccountID)

	_, err = svc.RegisterInstitute(ctx, in)
	requireField(t, err, "username")
	requireField(t, err, "institute_name")
	requireField(t, err, "registration_code")

	bad := in
	bad.AccountInput = account("south")
	bad.Password2 = "something-else"
	_, err = svc.RegisterInstitute(ctx, bad)
	requireField(t, err, "password2")

	bad = in
	bad.AccountInput = account("south")
	bad.Password, bad.Password2 = "short", "short"
	_, err = svc.RegisterInstitute(ctx, bad)
	requireField(t, err, "password")
}

func TestRegisterTeacherAndStudent(t *testing.T) {
	svc, f := newService(t)
	ctx := context.Background()
	inst, _ := f.Institute()

	teacher, err := svc.RegisterTeacher(ctx, TeacherSignup{
		AccountInput: account("teach"),
		InstituteID:  inst.ID,
		NationalCode: "1234567890",
		PhoneNumber:  "0912",
		Expertise:    "Physics",
	})
	require.NoError(t, err)
	require.Equal(t, inst.ID, teacher.InstituteID)

	_, err = svc.RegisterTeacher(ctx, TeacherSignup{
		AccountInput: account("teach2"),
		InstituteID:  inst.ID,
		NationalCode: "1234567890",
		PhoneNumber:  "0912",
		Expertise:    "Physics",
	})
	requireField(t, err, "national_code")

	_, err = svc.RegisterTeacher(ctx, TeacherSignup{
		AccountInput: account("teach3"),
		InstituteID:  9999,
		NationalCode: "1234567891",
		PhoneNumber:  "0912",
		Expertise:    "Physics",
	})
	requireField(t, err, "institute_id")

	student, err := svc.RegisterStudent(ctx, StudentSignup{
		AccountInput: account("learner"),
		InstituteID:  inst.ID,
		NationalCode: "1234567890",
		PhoneNumber:  "0913",
		MajorID:      f.Major.ID,
		DateOfBirth:  "2008-03-21",
		Gender:       "male",
	})
	require.NoError(t, err)
	require.NotNil(t, student.DateOfBirth)
	require.Equal(t, 2008, student.DateOfBirth.Year())

	_, err = svc.RegisterStudent(ctx, StudentSignup{
		AccountInput: account("learner2"),
		InstituteID:  inst.ID,
		NationalCode: "1234567892",
		PhoneNumber:  "0913",
		MajorID:      9999,
	})
	requireField(t, err, "major_id")

	_, err = svc.RegisterStudent(ctx, StudentSignup{
		AccountInput: account("learner3"),
		InstituteID:  inst.ID,
		NationalCode: "12345",
		PhoneNumber:  "0913",
		MajorID:      f.Major.ID,
	})
	requireField(t, err, "national_code")
}

func TestLoginAndIdentify(t *testing.T) {
	svc, f := newService(t)
	ctx := context.Background()
	inst, _ := f.Institute()
	student, err := svc.RegisterStudent(ctx, StudentSignup{
		AccountInput: account("learner"),
		InstituteID:  inst.ID,
		NationalCode: "1234567890",
		PhoneNumber:  "0913",
		MajorID:      f.Major.ID,
	})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "learner", "wrong-password")
	require.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
	_, err = svc.Login(ctx, "nobody", "correct-horse")
	require.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))

	tok, err := svc.Login(ctx, "learner", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, student.AccountID, tok.UserID)
	require.Equal(t, identity.RoleStudent, tok.Role)

	accountID, err := svc.ParseToken(tok.Token)
	require.NoError(t, err)
	id, err := svc.Identify(ctx, accountID)
	require.NoError(t, err)
	require.Equal(t, identity.Student(student.AccountID, student.ID, inst.ID), id)

	require.NoError(t, f.DB.Model(&models.Account{}).Where("id = ?", accountID).Update("is_active", false).Error)
	_, err = svc.Identify(ctx, accountID)
	require.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
	_, err = svc.Login(ctx, "learner", "correct-horse")
	require.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestParseTokenRejects(t *testing.T) {
	svc, _ := newService(t)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 1,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	raw, err := forged.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = svc.ParseToken(raw)
	require.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 1,
		"exp":     time.Now().Add(-time.Minute).Unix(),
	})
	raw, err = expired.SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = svc.ParseToken(raw)
	require.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))

	_, err = svc.ParseToken("not-a-token")
	require.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestJWTMiddleware(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.CreateAdmin(ctx, account("root"))
	require.NoError(t, err)
	tok, err := svc.Login(ctx, "root", "correct-horse")
	require.NoError(t, err)

	var seen identity.Identity
	h := JWTMiddleware(svc, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = identity.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/exams", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, string(apperr.KindUnauthenticated), body["error"])

	req = httptest.NewRequest(http.MethodGet, "/api/exams", nil)
	req.Header.Set("Authorization", "Token "+tok.Token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/exams", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, identity.RoleAdmin, seen.Role)
	require.Equal(t, tok.UserID, seen.AccountID)

	req = httptest.NewRequest(http.MethodGet, "/ws/exams/1?token="+tok.Token, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
