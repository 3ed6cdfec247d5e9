// Package authz decides, per request and per record, whether an identity may
// perform an action on a resource. Rules are pure: they see only the caller's
// Identity and the Target's ownership chain, never the store.
package authz

import (
	"fmt"

	"exam-system/internal/apperr"
	"exam-system/internal/identity"
)

type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	// ActionGrade assigns or changes the score of an answer.
	ActionGrade Action = "grade"
)

type Resource string

const (
	ResourceInstitute        Resource = "institute"
	ResourceTeacher          Resource = "teacher"
	ResourceStudent          Resource = "student"
	ResourceMajor            Resource = "major"
	ResourceClassroom        Resource = "classroom"
	ResourceStudentClassroom Resource = "student_classroom"
	ResourceExamCategory     Resource = "exam_category"
	ResourceExam             Resource = "exam"
	ResourceQuestion         Resource = "question"
	ResourceOption           Resource = "option"
	ResourceUserAnswer       Resource = "user_answer"
	ResourceUserOptions      Resource = "user_options"
	ResourceUserExamResult   Resource = "user_exam_result"
	ResourceFeedback         Resource = "feedback"
)

// Target is the ownership chain of a record (or of the record about to be
// created) together with the few relationship facts rules consult.
type Target struct {
	InstituteID uint
	TeacherID   uint
	// StudentID is the subject student: the answer's author, the result's
	// owner, the enrolled student, or the student profile itself.
	StudentID uint

	CreatorAccountID uint
	CreatorRole      identity.Role

	// Enrolled is set when the calling student is a member of the target classroom.
	Enrolled bool
	// Scored is set when a grader has already assigned a score.
	Scored bool
	// Closed is set when the owning exam's end time has passed.
	Closed bool
}

// Reason tags carried by every Decision.
const (
	TagAllowed           = "allowed"
	TagRoleNotPermitted  = "role_not_permitted"
	TagOutOfScope        = "out_of_scope"
	TagNoRule            = "no_rule"
	TagInvalidIdentity   = "invalid_identity"
	TagResultsNotVisible = "results_not_visible"
)

type Decision struct {
	Allowed bool
	Tag     string
	Reason  string
}

func allow() Decision { return Decision{Allowed: true, Tag: TagAllowed} }

func deny(tag, reason string) Decision {
	return Decision{Allowed: false, Tag: tag, Reason: reason}
}

// Err converts a denial into a PermissionError; allowed decisions yield nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperr.Permission(d.Reason)
}

type Rule interface {
	Evaluate(id identity.Identity, t Target) Decision
}

type RuleFunc func(id identity.Identity, t Target) Decision

func (f RuleFunc) Evaluate(id identity.Identity, t Target) Decision { return f(id, t) }

// Predicate is one role's scope test. A nil Predicate means the role may never act.
type Predicate func(id identity.Identity, t Target) bool

// Matrix is a Rule with one predicate per role; evaluation is an exhaustive
// switch on the caller's role.
type Matrix struct {
	Admin     Predicate
	Institute Predicate
	Teacher   Predicate
	Student   Predicate
	// Denied is the human-readable reason reported on denial.
	Denied string
}

func (m Matrix) Evaluate(id identity.Identity, t Target) Decision {
	var p Predicate
	switch id.Role {
	case identity.RoleAdmin:
		p = m.Admin
	case identity.RoleInstitute:
		p = m.Institute
	case identity.RoleTeacher:
		p = m.Teacher
	case identity.RoleStudent:
		p = m.Student
	default:
		return deny(TagInvalidIdentity, "your account has no recognised role")
	}
	if p == nil {
		return deny(TagRoleNotPermitted, m.Denied)
	}
	if !p(id, t) {
		return deny(TagOutOfScope, m.Denied)
	}
	return allow()
}

type ruleKey struct {
	resource Resource
	action   Action
}

type Engine struct {
	rules map[ruleKey]Rule
}

func NewEngine() *Engine {
	e := &Engine{rules: make(map[ruleKey]Rule)}
	registerDefaults(e)
	return e
}

// Register installs or replaces the rule for (resource, action).
func (e *Engine) Register(resource Resource, action Action, rule Rule) {
	e.rules[ruleKey{resource, action}] = rule
}

func (e *Engine) Decide(id identity.Identity, resource Resource, action Action, t Target) Decision {
	if err := id.Validate(); err != nil {
		return deny(TagInvalidIdentity, "your account has no valid profile")
	}
	rule, ok := e.rules[ruleKey{resource, action}]
	if !ok {
		return deny(TagNoRule, fmt.Sprintf("%s on %s is not permitted", action, resource))
	}
	return rule.Evaluate(id, t)
}

// Authorize is Decide returning a PermissionError on denial.
func (e *Engine) Authorize(id identity.Identity, resource Resource, action Action, t Target) error {
	return e.Decide(id, resource, action, t).Err()
}
