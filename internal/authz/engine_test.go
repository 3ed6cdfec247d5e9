package authz

import (
	"fmt"
	"testing"
	"time"

	"exam-system/internal/apperr"
	"exam-system/internal/identity"
)

// Two institutes, each with one teacher and one student whose ids equal the
// institute id. Account ids: admin 1, institute N*10, teacher N*10+1, student N*10+2.
var (
	admin = identity.Admin(1)
)

func instituteOf(n uint) identity.Identity { return identity.Institute(n*10, n) }
func teacherOf(n uint) identity.Identity   { return identity.Teacher(n*10+1, n, n) }
func studentOf(n uint) identity.Identity   { return identity.Student(n*10+2, n, n) }

var allResources = []Resource{
	ResourceInstitute, ResourceTeacher, ResourceStudent, ResourceMajor,
	ResourceClassroom, ResourceStudentClassroom, ResourceExamCategory,
	ResourceExam, ResourceQuestion, ResourceOption,
	ResourceUserAnswer, ResourceUserOptions, ResourceUserExamResult, ResourceFeedback,
}

// targets enumerates ownership-consistent chains across both institutes.
func targets() []Target {
	var out []Target
	for _, inst := range []uint{1, 2} {
		for _, teacher := range []uint{0, inst} {
			for _, student := range []uint{0, inst} {
				for _, creator := range []string{"none", "admin", "teacher"} {
					for _, flags := range []int{0, 1, 2, 3, 4, 7} {
						t := Target{
							InstituteID: inst,
							TeacherID:   teacher,
							StudentID:   student,
							Scored:      flags&1 != 0,
							Closed:      flags&2 != 0,
							Enrolled:    flags&4 != 0,
						}
						switch creator {
						case "admin":
							t.CreatorAccountID, t.CreatorRole = 1, identity.RoleAdmin
						case "teacher":
							t.CreatorAccountID, t.CreatorRole = inst*10+1, identity.RoleTeacher
						}
						out = append(out, t)
					}
				}
			}
		}
	}
	return out
}

func TestDecideMatrix(t *testing.T) {
	e := NewEngine()
	own := Target{InstituteID: 1, TeacherID: 1}
	other := Target{InstituteID: 2, TeacherID: 2}
	ownAnswer := Target{InstituteID: 1, TeacherID: 1, StudentID: 1}

	tests := []struct {
		name     string
		id       identity.Identity
		resource Resource
		action   Action
		target   Target
		want     bool
		wantTag  string
	}{
		{"admin reads any exam", admin, ResourceExam, ActionRead, other, true, TagAllowed},
		{"institute reads own exam", instituteOf(1), ResourceExam, ActionRead, own, true, TagAllowed},
		{"institute reads foreign exam", instituteOf(1), ResourceExam, ActionRead, other, false, TagOutOfScope},
		{"teacher creates exam in own classroom", teacherOf(1), ResourceExam, ActionCreate, own, true, TagAllowed},
		{"teacher creates exam in colleague classroom", teacherOf(1), ResourceExam, ActionCreate, Target{InstituteID: 1, TeacherID: 3}, false, TagOutOfScope},
		{"student never creates exams", studentOf(1), ResourceExam, ActionCreate, own, false, TagRoleNotPermitted},
		{"student reads exam in own institute", studentOf(1), ResourceExam, ActionRead, own, true, TagAllowed},
		{"student reads exam elsewhere", studentOf(1), ResourceExam, ActionRead, other, false, TagOutOfScope},
		{"student edits question", studentOf(1), ResourceQuestion, ActionUpdate, own, false, TagRoleNotPermitted},
		{"institute deletes option in own chain", instituteOf(1), ResourceOption, ActionDelete, own, true, TagAllowed},
		{"teacher submits answer", teacherOf(1), ResourceUserAnswer, ActionCreate, ownAnswer, false, TagRoleNotPermitted},
		{"student submits for self", studentOf(1), ResourceUserAnswer, ActionCreate, ownAnswer, true, TagAllowed},
		{"student submits for other student", studentOf(1), ResourceUserOptions, ActionCreate, Target{InstituteID: 1, StudentID: 9}, false, TagOutOfScope},
		{"student submits to foreign institute", studentOf(1), ResourceUserOptions, ActionCreate, Target{InstituteID: 2, StudentID: 1}, false, TagOutOfScope},
		{"admin submits on behalf", admin, ResourceUserOptions, ActionCreate, Target{InstituteID: 2, StudentID: 2}, true, TagAllowed},
		{"student edits unscored open answer", studentOf(1), ResourceUserAnswer, ActionUpdate, ownAnswer, true, TagAllowed},
		{"student edits scored answer", studentOf(1), ResourceUserAnswer, ActionUpdate, Target{InstituteID: 1, StudentID: 1, Scored: true}, false, TagOutOfScope},
		{"student edits after close", studentOf(1), ResourceUserOptions, ActionUpdate, Target{InstituteID: 1, StudentID: 1, Closed: true}, false, TagOutOfScope},
		{"student grades", studentOf(1), ResourceUserAnswer, ActionGrade, ownAnswer, false, TagRoleNotPermitted},
		{"teacher grades own", teacherOf(1), ResourceUserAnswer, ActionGrade, ownAnswer, true, TagAllowed},
		{"teacher grades foreign", teacherOf(1), ResourceUserAnswer, ActionGrade, Target{InstituteID: 2, TeacherID: 2, StudentID: 2}, false, TagOutOfScope},
		{"teacher deletes answer", teacherOf(1), ResourceUserAnswer, ActionDelete, ownAnswer, false, TagRoleNotPermitted},
		{"nobody creates results", admin, ResourceUserExamResult, ActionCreate, ownAnswer, false, TagNoRule},
		{"student overwrites result", studentOf(1), ResourceUserExamResult, ActionUpdate, ownAnswer, false, TagRoleNotPermitted},
		{"institute overwrites own result", instituteOf(1), ResourceUserExamResult, ActionUpdate, ownAnswer, true, TagAllowed},
		{"teacher leaves feedback", teacherOf(1), ResourceFeedback, ActionCreate, ownAnswer, false, TagRoleNotPermitted},
		{"admin leaves feedback", admin, ResourceFeedback, ActionCreate, ownAnswer, false, TagRoleNotPermitted},
		{"student leaves feedback", studentOf(1), ResourceFeedback, ActionCreate, ownAnswer, true, TagAllowed},
		{"teacher reads admin category", teacherOf(1), ResourceExamCategory, ActionRead, Target{CreatorAccountID: 1, CreatorRole: identity.RoleAdmin}, true, TagAllowed},
		{"teacher edits admin category", teacherOf(1), ResourceExamCategory, ActionUpdate, Target{CreatorAccountID: 1, CreatorRole: identity.RoleAdmin}, false, TagOutOfScope},
		{"teacher reads colleague category", teacherOf(1), ResourceExamCategory, ActionRead, Target{InstituteID: 1, CreatorAccountID: 31, CreatorRole: identity.RoleTeacher}, false, TagOutOfScope},
		{"student reads unenrolled classroom", studentOf(1), ResourceClassroom, ActionRead, own, false, TagOutOfScope},
		{"student reads enrolled classroom", studentOf(1), ResourceClassroom, ActionRead, Target{InstituteID: 1, TeacherID: 1, Enrolled: true}, true, TagAllowed},
		{"invalid identity", identity.Identity{AccountID: 5, Role: identity.RoleTeacher}, ResourceExam, ActionRead, own, false, TagInvalidIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Decide(tt.id, tt.resource, tt.action, tt.target)
			if d.Allowed != tt.want {
				t.Fatalf("Allowed: want=%v got=%v (tag=%s)", tt.want, d.Allowed, d.Tag)
			}
			if d.Tag != tt.wantTag {
				t.Fatalf("Tag: want=%q got=%q", tt.wantTag, d.Tag)
			}
		})
	}
}

func TestAuthorizeReturnsPermissionError(t *testing.T) {
	e := NewEngine()
	err := e.Authorize(studentOf(1), ResourceExam, ActionDelete, Target{InstituteID: 1, TeacherID: 1})
	if !apperr.Is(err, apperr.KindPermission) {
		t.Fatalf("Authorize: want permission error, got %v", err)
	}
	if err.Error() == "" {
		t.Fatalf("Authorize: permission error must carry a reason")
	}
	if err := e.Authorize(admin, ResourceExam, ActionDelete, Target{InstituteID: 1, TeacherID: 1}); err != nil {
		t.Fatalf("Authorize admin: %v", err)
	}
}

// A record readable by a teacher or student must be readable by that
// caller's institute and by any admin.
func TestReadScopeMonotonicity(t *testing.T) {
	e := NewEngine()
	for _, res := range allResources {
		for _, tgt := range targets() {
			for _, n := range []uint{1, 2} {
				for _, narrow := range []identity.Identity{teacherOf(n), studentOf(n)} {
					if !e.Decide(narrow, res, ActionRead, tgt).Allowed {
						continue
					}
					if !e.Decide(instituteOf(n), res, ActionRead, tgt).Allowed {
						t.Fatalf("%s: %s reads %+v but its institute cannot", res, narrow.Role, tgt)
					}
					if !e.Decide(admin, res, ActionRead, tgt).Allowed {
						t.Fatalf("%s: %s reads %+v but admin cannot", res, narrow.Role, tgt)
					}
				}
			}
		}
	}
}

func scopeAdmits(s Scope, t Target) bool {
	switch {
	case s.All:
		return true
	case s.None:
		return false
	}
	if s.AdminCreated && t.CreatorRole == identity.RoleAdmin {
		return true
	}
	if s.CreatorAccountID != 0 {
		return t.CreatorAccountID == s.CreatorAccountID
	}
	if s.InstituteID != 0 {
		return t.InstituteID == s.InstituteID
	}
	if s.TeacherID != 0 {
		return t.TeacherID == s.TeacherID
	}
	if s.StudentID != 0 {
		return t.StudentID == s.StudentID
	}
	return false
}

func TestListScopeAgreesWithReadRules(t *testing.T) {
	e := NewEngine()
	callers := []identity.Identity{admin, instituteOf(1), teacherOf(1), studentOf(1)}
	for _, res := range allResources {
		for _, id := range callers {
			if res == ResourceClassroom && id.IsStudent() {
				// membership is resolved by a join, not by chain fields
				continue
			}
			scope := ListScope(id, res)
			for _, tgt := range targets() {
				got := scopeAdmits(scope, tgt)
				want := e.Decide(id, res, ActionRead, tgt).Allowed
				if got != want {
					t.Fatalf("%s/%s target %+v: scope=%v rule=%v", res, id.Role, tgt, got, want)
				}
			}
		}
	}
}

func TestListScopeInvalidIdentity(t *testing.T) {
	s := ListScope(identity.Identity{Role: identity.RoleAdmin}, ResourceExam)
	if !s.None {
		t.Fatalf("ListScope: want None for identity without account, got %+v", s)
	}
}

func TestRevealCorrect(t *testing.T) {
	end := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		id   identity.Identity
		now  time.Time
		want bool
	}{
		{studentOf(1), end.Add(-time.Minute), false},
		{studentOf(1), end, true},
		{studentOf(1), end.Add(time.Hour), true},
		{teacherOf(1), end.Add(-time.Hour), true},
		{instituteOf(1), end.Add(-time.Hour), true},
		{admin, end.Add(-time.Hour), true},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("%d-%s", i, tt.id.Role), func(t *testing.T) {
			if got := RevealCorrect(tt.id, end, tt.now); got != tt.want {
				t.Fatalf("RevealCorrect: want=%v got=%v", tt.want, got)
			}
		})
	}
}
