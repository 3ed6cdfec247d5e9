package authz

import (
	"time"

	"exam-system/internal/identity"
)

// Scope is the list-query form of a read rule: repositories translate it into
// a WHERE clause along the resource's ownership chain. At most one of the id
// fields is set; None yields an empty result.
type Scope struct {
	All  bool
	None bool

	InstituteID uint
	TeacherID   uint
	StudentID   uint

	// ViaMembership restricts classrooms to those the student is enrolled in.
	ViaMembership bool

	// CreatorAccountID and AdminCreated apply to exam categories.
	CreatorAccountID uint
	AdminCreated     bool
}

// ListScope returns the rows of res that id may read. It agrees with the
// ActionRead rules registered by NewEngine.
func ListScope(id identity.Identity, res Resource) Scope {
	if id.Validate() != nil {
		return Scope{None: true}
	}
	if res == ResourceMajor {
		return Scope{All: true}
	}
	switch id.Role {
	case identity.RoleAdmin:
		return Scope{All: true}

	case identity.RoleInstitute:
		if res == ResourceExamCategory {
			return Scope{InstituteID: id.InstituteID, AdminCreated: true}
		}
		return Scope{InstituteID: id.InstituteID}

	case identity.RoleTeacher:
		switch res {
		case ResourceInstitute, ResourceStudent:
			return Scope{None: true}
		case ResourceExamCategory:
			return Scope{CreatorAccountID: id.AccountID, AdminCreated: true}
		}
		return Scope{TeacherID: id.TeacherID}

	case identity.RoleStudent:
		switch res {
		case ResourceExam, ResourceQuestion, ResourceOption:
			return Scope{InstituteID: id.InstituteID}
		case ResourceClassroom:
			return Scope{StudentID: id.StudentID, ViaMembership: true}
		case ResourceStudent, ResourceStudentClassroom, ResourceUserAnswer,
			ResourceUserOptions, ResourceUserExamResult, ResourceFeedback:
			return Scope{StudentID: id.StudentID}
		}
		return Scope{None: true}
	}
	return Scope{None: true}
}

// RevealCorrect reports whether the is_correct flag of an option may be shown:
// always to non-students, and to students only once the exam has ended.
func RevealCorrect(id identity.Identity, examEnd, now time.Time) bool {
	if !id.IsStudent() {
		return true
	}
	return !now.Before(examEnd)
}
