// Package identity carries the authenticated caller through the engine.
// Every authorization and scoring call takes an Identity explicitly; the
// context helpers exist only for the HTTP edge.
package identity

import (
	"context"
	"fmt"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleInstitute Role = "institute"
	RoleTeacher   Role = "teacher"
	RoleStudent   Role = "student"
)

var Roles = []Role{RoleAdmin, RoleInstitute, RoleTeacher, RoleStudent}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleInstitute, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Identity is the resolved caller: its role plus the profile ids that role
// implies. InstituteID is the tenancy root for institute, teacher and student
// callers and zero for admins.
type Identity struct {
	AccountID   uint `json:"account_id"`
	Role        Role `json:"role"`
	InstituteID uint `json:"institute_id,omitempty"`
	TeacherID   uint `json:"teacher_id,omitempty"`
	StudentID   uint `json:"student_id,omitempty"`
}

func Admin(accountID uint) Identity {
	return Identity{AccountID: accountID, Role: RoleAdmin}
}

func Institute(accountID, instituteID uint) Identity {
	return Identity{AccountID: accountID, Role: RoleInstitute, InstituteID: instituteID}
}

func Teacher(accountID, teacherID, instituteID uint) Identity {
	return Identity{AccountID: accountID, Role: RoleTeacher, TeacherID: teacherID, InstituteID: instituteID}
}

func Student(accountID, studentID, instituteID uint) Identity {
	return Identity{AccountID: accountID, Role: RoleStudent, StudentID: studentID, InstituteID: instituteID}
}

// Validate checks that the profile ids agree with the role tag.
func (i Identity) Validate() error {
	if i.AccountID == 0 {
		return fmt.Errorf("identity without account")
	}
	switch i.Role {
	case RoleAdmin:
		if i.InstituteID != 0 || i.TeacherID != 0 || i.StudentID != 0 {
			return fmt.Errorf("admin identity must not carry a profile")
		}
	case RoleInstitute:
		if i.InstituteID == 0 || i.TeacherID != 0 || i.StudentID != 0 {
			return fmt.Errorf("institute identity requires exactly an institute profile")
		}
	case RoleTeacher:
		if i.TeacherID == 0 || i.InstituteID == 0 || i.StudentID != 0 {
			return fmt.Errorf("teacher identity requires a teacher profile and its institute")
		}
	case RoleStudent:
		if i.StudentID == 0 || i.InstituteID == 0 || i.TeacherID != 0 {
			return fmt.Errorf("student identity requires a student profile and its institute")
		}
	default:
		return fmt.Errorf("unknown role %q", i.Role)
	}
	return nil
}

func (i Identity) IsAdmin() bool     { return i.Role == RoleAdmin }
func (i Identity) IsInstitute() bool { return i.Role == RoleInstitute }
func (i Identity) IsTeacher() bool   { return i.Role == RoleTeacher }
func (i Identity) IsStudent() bool   { return i.Role == RoleStudent }

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
