package authz

import "exam-system/internal/identity"

func always(identity.Identity, Target) bool { return true }

func ownInstitute(id identity.Identity, t Target) bool {
	return t.InstituteID != 0 && t.InstituteID == id.InstituteID
}

func ownTeacher(id identity.Identity, t Target) bool {
	return t.TeacherID != 0 && t.TeacherID == id.TeacherID
}

func ownStudent(id identity.Identity, t Target) bool {
	return t.StudentID != 0 && t.StudentID == id.StudentID
}

func enrolled(id identity.Identity, t Target) bool {
	return t.Enrolled && ownInstitute(id, t)
}

func createdBy(id identity.Identity, t Target) bool {
	return t.CreatorAccountID != 0 && t.CreatorAccountID == id.AccountID
}

func adminCreated(_ identity.Identity, t Target) bool {
	return t.CreatorRole == identity.RoleAdmin
}

// studentSelfInInstitute is the submission rule: the student acts for itself
// on content of its own institute.
func studentSelfInInstitute(id identity.Identity, t Target) bool {
	return ownStudent(id, t) && ownInstitute(id, t)
}

func and(ps ...Predicate) Predicate {
	return func(id identity.Identity, t Target) bool {
		for _, p := range ps {
			if !p(id, t) {
				return false
			}
		}
		return true
	}
}

func or(ps ...Predicate) Predicate {
	return func(id identity.Identity, t Target) bool {
		for _, p := range ps {
			if p(id, t) {
				return true
			}
		}
		return false
	}
}

func unscored(_ identity.Identity, t Target) bool { return !t.Scored }
func open(_ identity.Identity, t Target) bool     { return !t.Closed }

// contentRules is the chain shared by classrooms' descendants: exam, question, option.
func contentRules(e *Engine, res Resource, noun string) {
	e.Register(res, ActionCreate, Matrix{
		Admin: always, Institute: ownInstitute, Teacher: ownTeacher,
		Denied: "only the owning teacher, its institute or an admin may create " + noun,
	})
	e.Register(res, ActionRead, Matrix{
		Admin: always, Institute: ownInstitute, Teacher: ownTeacher, Student: ownInstitute,
		Denied: "you do not have access to this " + noun,
	})
	owner := Matrix{
		Admin: always, Institute: ownInstitute, Teacher: ownTeacher,
		Denied: "you are not allowed to modify this " + noun,
	}
	e.Register(res, ActionUpdate, owner)
	e.Register(res, ActionDelete, owner)
}

func registerDefaults(e *Engine) {
	// Tenancy profiles.
	instituteOwner := Matrix{
		Admin: always, Institute: ownInstitute,
		Denied: "only the institute itself or an admin may access this institute",
	}
	e.Register(ResourceInstitute, ActionRead, instituteOwner)
	e.Register(ResourceInstitute, ActionUpdate, instituteOwner)
	e.Register(ResourceInstitute, ActionDelete, instituteOwner)

	teacherOwner := Matrix{
		Admin: always, Institute: ownInstitute, Teacher: ownTeacher,
		Denied: "you do not have access to this teacher",
	}
	e.Register(ResourceTeacher, ActionRead, teacherOwner)
	e.Register(ResourceTeacher, ActionUpdate, teacherOwner)
	e.Register(ResourceTeacher, ActionDelete, teacherOwner)

	studentOwner := Matrix{
		Admin: always, Institute: ownInstitute, Student: ownStudent,
		Denied: "you do not have access to this student",
	}
	e.Register(ResourceStudent, ActionRead, studentOwner)
	e.Register(ResourceStudent, ActionUpdate, studentOwner)
	e.Register(ResourceStudent, ActionDelete, studentOwner)

	e.Register(ResourceMajor, ActionRead, Matrix{
		Admin: always, Institute: always, Teacher: always, Student: always,
	})
	e.Register(ResourceMajor, ActionCreate, Matrix{
		Admin: always, Institute: always,
		Denied: "only an admin or an institute may create majors",
	})
	majorAdmin := Matrix{Admin: always, Denied: "only an admin may modify majors"}
	e.Register(ResourceMajor, ActionUpdate, majorAdmin)
	e.Register(ResourceMajor, ActionDelete, majorAdmin)

	// Classrooms and membership.
	// The target of a create is the chosen teacher's chain.
	e.Register(ResourceClassroom, ActionCreate, Matrix{
		Admin: always, Institute: ownInstitute, Teacher: ownTeacher,
		Denied: "classrooms may only be created for your own teachers",
	})
	e.Register(ResourceClassroom, ActionRead, Matrix{
		Admin: always, Institute: ownInstitute, Teacher: ownTeacher, Student: enrolled,
		Denied: "you do not have access to this classroom",
	})
	classroomOwner := Matrix{
		Admin: always, Institute: ownInstitute, Teacher: ownTeacher,
		Denied: "you are not allowed to modify this classroom",
	}
	e.Register(ResourceClassroom, ActionUpdate, classroomOwner)
	e.Register(ResourceClassroom, ActionDelete, classroomOwner)

	membershipOwner := Matrix{
		Admin: always, Institute: ownInstitute, Teacher: ownTeacher,
		Denied: "you are not allowed to manage students of this classroom",
	}
	e.Register(ResourceStudentClassroom, ActionCreate, membershipOwner)
	e.Register(ResourceStudentClassroom, ActionUpdate, membershipOwner)
	e.Register(ResourceStudentClassroom, ActionDelete, membershipOwner)
	e.Register(ResourceStudentClassroom, ActionRead, Matrix{
		Admin: always, Institute: ownInstitute, Teacher: ownTeacher, Student: ownStudent,
		Denied: "you do not have access to this classroom membership",
	})

	// Categories belong to their creator account; admin-created ones are shared.
	e.Register(ResourceExamCategory, ActionCreate, Matrix{
		Admin: always, Teacher: always,
		Denied: "only a teacher or an admin may create exam categories",
	})
	e.Register(ResourceExamCategory, ActionRead, Matrix{
		Admin:     always,
		Institute: or(ownInstitute, adminCreated),
		Teacher:   or(createdBy, adminCreated),
		Denied:    "you do not have access to this exam category",
	})
	categoryOwner := Matrix{
		Admin: always, Teacher: createdBy,
		Denied: "only the creator or an admin may modify this exam category",
	}
	e.Register(ResourceExamCategory, ActionUpdate, categoryOwner)
	e.Register(ResourceExamCategory, ActionDelete, categoryOwner)

	contentRules(e, ResourceExam, "exam")
	contentRules(e, ResourceQuestion, "question")
	contentRules(e, ResourceOption, "option")

	// Answers.
	submit := Matrix{
		Admin: always, Student: studentSelfInInstitute,
		Denied: "only the answering student or an admin may submit answers",
	}
	answerRead := Matrix{
		Admin: always, Institute: ownInstitute, Teacher: ownTeacher, Student: ownStudent,
		Denied: "you do not have access to this answer",
	}
	grade := Matrix{
		Admin: always, Institute: ownInstitute, Teacher: ownTeacher,
		Denied: "only the owning teacher, its institute or an admin may grade answers",
	}
	adminOnlyDelete := Matrix{Admin: always, Denied: "only an admin may delete answers"}

	e.Register(ResourceUserAnswer, ActionCreate, submit)
	e.Register(ResourceUserAnswer, ActionRead, answerRead)
	e.Register(ResourceUserAnswer, ActionGrade, grade)
	e.Register(ResourceUserAnswer, ActionUpdate, Matrix{
		Admin: always, Institute: ownInstitute, Teacher: ownTeacher,
		Student: and(ownStudent, unscored, open),
		Denied:  "this answer can no longer be edited",
	})
	e.Register(ResourceUserAnswer, ActionDelete, adminOnlyDelete)

	e.Register(ResourceUserOptions, ActionCreate, submit)
	e.Register(ResourceUserOptions, ActionRead, answerRead)
	e.Register(ResourceUserOptions, ActionUpdate, Matrix{
		Admin: always, Institute: ownInstitute, Teacher: ownTeacher,
		Student: and(ownStudent, open),
		Denied:  "this selection can no longer be changed",
	})
	e.Register(ResourceUserOptions, ActionDelete, adminOnlyDelete)

	// Results are engine-maintained: nobody creates or deletes them directly.
	e.Register(ResourceUserExamResult, ActionRead, Matrix{
		Admin: always, Institute: ownInstitute, Teacher: ownTeacher, Student: ownStudent,
		Denied: "you do not have access to this result",
	})
	e.Register(ResourceUserExamResult, ActionUpdate, Matrix{
		Admin: always, Institute: ownInstitute, Teacher: ownTeacher,
		Denied: "you are not allowed to edit this result",
	})

	// Feedback.
	e.Register(ResourceFeedback, ActionCreate, Matrix{
		Student: studentSelfInInstitute,
		Denied:  "only students may leave feedback",
	})
	e.Register(ResourceFeedback, ActionRead, Matrix{
		Admin: always, Institute: ownInstitute, Teacher: ownTeacher, Student: ownStudent,
		Denied: "you do not have access to this feedback",
	})
	e.Register(ResourceFeedback, ActionUpdate, Matrix{
		Student: ownStudent,
		Denied:  "only the author may edit this feedback",
	})
	e.Register(ResourceFeedback, ActionDelete, Matrix{
		Admin: always, Student: ownStudent,
		Denied: "only the author or an admin may delete this feedback",
	})
}
