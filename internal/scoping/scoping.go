// Package scoping translates authz list scopes into gorm WHERE clauses along
// the Question → Exam → Classroom → Teacher → Institute chain.
package scoping

import (
	"gorm.io/gorm"

	"exam-system/internal/authz"
)

func none(db *gorm.DB) *gorm.DB { return db.Where("1 = 0") }

func sub(db *gorm.DB) *gorm.DB {
	return db.Session(&gorm.Session{NewDB: true})
}

// classroomIDs selects classrooms.id within s, ignoring student subjects.
func classroomIDs(db *gorm.DB, s authz.Scope) *gorm.DB {
	q := sub(db).Table("classrooms").Select("classrooms.id").
		Joins("JOIN teachers ON teachers.id = classrooms.teacher_id")
	switch {
	case s.ViaMembership:
		q = q.Where("classrooms.id IN (?)",
			sub(db).Table("student_classrooms").Select("classroom_id").Where("student_id = ?", s.StudentID))
	case s.TeacherID != 0:
		q = q.Where("classrooms.teacher_id = ?", s.TeacherID)
	case s.InstituteID != 0:
		q = q.Where("teachers.institute_id = ?", s.InstituteID)
	default:
		q = q.Where("1 = 0")
	}
	return q
}

func examIDs(db *gorm.DB, s authz.Scope) *gorm.DB {
	return sub(db).Table("exams").Select("exams.id").Where("exams.classroom_id IN (?)", classroomIDs(db, s))
}

func questionIDs(db *gorm.DB, s authz.Scope) *gorm.DB {
	return sub(db).Table("questions").Select("questions.id").Where("questions.exam_id IN (?)", examIDs(db, s))
}

// ByClassroom scopes rows carrying a classroom id column. studentCol, when
// non-empty, is used for student-subject scopes.
func ByClassroom(s authz.Scope, classroomCol, studentCol string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case s.All:
			return db
		case s.None:
			return none(db)
		case s.StudentID != 0 && !s.ViaMembership:
			if studentCol == "" {
				return none(db)
			}
			return db.Where(studentCol+" = ?", s.StudentID)
		}
		return db.Where(classroomCol+" IN (?)", classroomIDs(db, s))
	}
}

// ByExam scopes rows carrying an exam id column.
func ByExam(s authz.Scope, examCol, studentCol string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case s.All:
			return db
		case s.None:
			return none(db)
		case s.StudentID != 0:
			if studentCol == "" {
				return none(db)
			}
			return db.Where(studentCol+" = ?", s.StudentID)
		}
		return db.Where(examCol+" IN (?)", examIDs(db, s))
	}
}

// ByQuestion scopes rows carrying a question id column.
func ByQuestion(s authz.Scope, questionCol, studentCol string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case s.All:
			return db
		case s.None:
			return none(db)
		case s.StudentID != 0:
			if studentCol == "" {
				return none(db)
			}
			return db.Where(studentCol+" = ?", s.StudentID)
		}
		return db.Where(questionCol+" IN (?)", questionIDs(db, s))
	}
}

// ByInstitute scopes profile rows (teachers, students) or institutes themselves.
func ByInstitute(s authz.Scope, instituteCol, teacherCol, studentCol string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case s.All:
			return db
		case s.None:
			return none(db)
		case s.TeacherID != 0 && teacherCol != "":
			return db.Where(teacherCol+" = ?", s.TeacherID)
		case s.StudentID != 0 && studentCol != "":
			return db.Where(studentCol+" = ?", s.StudentID)
		case s.InstituteID != 0 && instituteCol != "":
			return db.Where(instituteCol+" = ?", s.InstituteID)
		}
		return none(db)
	}
}

// ByCategory scopes exam categories through their creator account.
func ByCategory(s authz.Scope) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case s.All:
			return db
		case s.None:
			return none(db)
		}
		adminAccounts := sub(db).Table("accounts").Select("id").Where("role = ?", "admin")
		var cond *gorm.DB
		switch {
		case s.CreatorAccountID != 0:
			cond = sub(db).Where("exam_categories.creator_id = ?", s.CreatorAccountID)
		case s.InstituteID != 0:
			cond = sub(db).Where("exam_categories.creator_id IN (?)",
				sub(db).Table("teachers").Select("account_id").Where("institute_id = ?", s.InstituteID))
		default:
			return none(db)
		}
		if s.AdminCreated {
			cond = cond.Or("exam_categories.creator_id IN (?)", adminAccounts)
		}
		return db.Where(cond)
	}
}
