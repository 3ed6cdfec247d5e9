package exam

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"exam-system/internal/authz"
	"exam-system/internal/identity"
	"exam-system/internal/models"
	"exam-system/internal/scoping"
	"exam-system/pkg/database"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	return database.Conn(ctx, r.db, tx)
}

// Transaction runs fn in a single database transaction.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// ClassroomChain is a classroom with the institute of its teacher.
type ClassroomChain struct {
	Classroom   models.Classroom
	InstituteID uint
}

func (c ClassroomChain) Target() authz.Target {
	return authz.Target{InstituteID: c.InstituteID, TeacherID: c.Classroom.TeacherID}
}

// ExamChain is an exam with the teacher and institute that own it.
type ExamChain struct {
	Exam        models.Exam
	TeacherID   uint
	InstituteID uint
}

func (c ExamChain) Target(now time.Time) authz.Target {
	return authz.Target{
		InstituteID: c.InstituteID,
		TeacherID:   c.TeacherID,
		Closed:      c.Exam.Ended(now),
	}
}

type QuestionChain struct {
	Question models.Question
	ExamChain
}

type OptionChain struct {
	Option models.Option
	QuestionChain
}

func (r *Repository) GetTeacher(ctx context.Context, tx *gorm.DB, id uint) (*models.Teacher, error) {
	var t models.Teacher
	if err := r.conn(ctx, tx).First(&t, id).Error; err != nil {
		return nil, database.Translate(err, "teacher")
	}
	return &t, nil
}

func (r *Repository) GetStudent(ctx context.Context, tx *gorm.DB, id uint) (*models.Student, error) {
	var s models.Student
	if err := r.conn(ctx, tx).First(&s, id).Error; err != nil {
		return nil, database.Translate(err, "student")
	}
	return &s, nil
}

func (r *Repository) ClassroomChain(ctx context.Context, tx *gorm.DB, id uint) (*ClassroomChain, error) {
	var c models.Classroom
	if err := r.conn(ctx, tx).Preload("Teacher").First(&c, id).Error; err != nil {
		return nil, database.Translate(err, "classroom")
	}
	chain := &ClassroomChain{Classroom: c}
	if c.Teacher != nil {
		chain.InstituteID = c.Teacher.InstituteID
	}
	chain.Classroom.Teacher = nil
	return chain, nil
}

func (r *Repository) examOwners(ctx context.Context, tx *gorm.DB, classroomID uint) (teacherID, instituteID uint, err error) {
	var row struct {
		TeacherID   uint
		InstituteID uint
	}
	err = r.conn(ctx, tx).Table("classrooms").
		Select("classrooms.teacher_id, teachers.institute_id").
		Joins("JOIN teachers ON teachers.id = classrooms.teacher_id").
		Where("classrooms.id = ?", classroomID).
		Scan(&row).Error
	if err != nil {
		return 0, 0, database.Translate(err, "classroom")
	}
	return row.TeacherID, row.InstituteID, nil
}

func (r *Repository) ExamChain(ctx context.Context, tx *gorm.DB, id uint) (*ExamChain, error) {
	var e models.Exam
	if err := r.conn(ctx, tx).First(&e, id).Error; err != nil {
		return nil, database.Translate(err, "exam")
	}
	teacherID, instituteID, err := r.examOwners(ctx, tx, e.ClassroomID)
	if err != nil {
		return nil, err
	}
	return &ExamChain{Exam: e, TeacherID: teacherID, InstituteID: instituteID}, nil
}

func (r *Repository) QuestionChain(ctx context.Context, tx *gorm.DB, id uint) (*QuestionChain, error) {
	var q models.Question
	if err := r.conn(ctx, tx).Preload("Options", orderByID).First(&q, id).Error; err != nil {
		return nil, database.Translate(err, "question")
	}
	ec, err := r.ExamChain(ctx, tx, q.ExamID)
	if err != nil {
		return nil, err
	}
	return &QuestionChain{Question: q, ExamChain: *ec}, nil
}

func (r *Repository) OptionChain(ctx context.Context, tx *gorm.DB, id uint) (*OptionChain, error) {
	var o models.Option
	if err := r.conn(ctx, tx).First(&o, id).Error; err != nil {
		return nil, database.Translate(err, "option")
	}
	qc, err := r.QuestionChain(ctx, tx, o.QuestionID)
	if err != nil {
		return nil, err
	}
	return &OptionChain{Option: o, QuestionChain: *qc}, nil
}

func orderByID(db *gorm.DB) *gorm.DB { return db.Order("id") }

func (r *Repository) count(ctx context.Context, tx *gorm.DB, model interface{}, query string, args ...interface{}) (int64, error) {
	var n int64
	err := r.conn(ctx, tx).Model(model).Where(query, args...).Count(&n).Error
	return n, database.Translate(err, "record")
}

func (r *Repository) create(ctx context.Context, tx *gorm.DB, v interface{}, what string) error {
	return database.Translate(r.conn(ctx, tx).Omit(clause.Associations).Create(v).Error, what)
}

func (r *Repository) save(ctx context.Context, tx *gorm.DB, v interface{}, what string) error {
	return database.Translate(r.conn(ctx, tx).Omit(clause.Associations).Save(v).Error, what)
}

func (r *Repository) delete(ctx context.Context, tx *gorm.DB, v interface{}, id uint, what string) error {
	return database.Translate(r.conn(ctx, tx).Delete(v, id).Error, what)
}

// IsEnrolled reports whether studentID is a member of classroomID.
func (r *Repository) IsEnrolled(ctx context.Context, tx *gorm.DB, classroomID, studentID uint) (bool, error) {
	n, err := r.count(ctx, tx, &models.StudentClassroom{}, "classroom_id = ? AND student_id = ?", classroomID, studentID)
	return n > 0, err
}

// Classrooms.

type ClassroomFilter struct {
	TeacherID uint
	Grade     models.Grade
}

func (r *Repository) ListClassrooms(ctx context.Context, scope authz.Scope, f ClassroomFilter) ([]models.Classroom, error) {
	q := r.conn(ctx, nil).Model(&models.Classroom{}).
		Scopes(scoping.ByClassroom(scope, "classrooms.id", ""))
	if f.TeacherID != 0 {
		q = q.Where("teacher_id = ?", f.TeacherID)
	}
	if f.Grade != "" {
		q = q.Where("grade = ?", f.Grade)
	}
	var out []models.Classroom
	err := q.Order("id").Find(&out).Error
	return out, database.Translate(err, "classroom")
}

// Memberships.

func (r *Repository) GetMembership(ctx context.Context, tx *gorm.DB, id uint) (*models.StudentClassroom, error) {
	var m models.StudentClassroom
	if err := r.conn(ctx, tx).First(&m, id).Error; err != nil {
		return nil, database.Translate(err, "classroom membership")
	}
	return &m, nil
}

func (r *Repository) ListMemberships(ctx context.Context, scope authz.Scope, classroomID uint) ([]models.StudentClassroom, error) {
	q := r.conn(ctx, nil).Model(&models.StudentClassroom{}).
		Scopes(scoping.ByClassroom(scope, "student_classrooms.classroom_id", "student_classrooms.student_id"))
	if classroomID != 0 {
		q = q.Where("classroom_id = ?", classroomID)
	}
	var out []models.StudentClassroom
	err := q.Order("id").Find(&out).Error
	return out, database.Translate(err, "classroom membership")
}

// Categories.

// CategoryChain is a category with its creator's role and, for teachers, institute.
type CategoryChain struct {
	Category    models.ExamCategory
	CreatorRole identity.Role
	InstituteID uint
}

func (c CategoryChain) Target() authz.Target {
	return authz.Target{
		InstituteID:      c.InstituteID,
		CreatorAccountID: c.Category.CreatorID,
		CreatorRole:      c.CreatorRole,
	}
}

func (r *Repository) CategoryChain(ctx context.Context, tx *gorm.DB, id uint) (*CategoryChain, error) {
	var c models.ExamCategory
	if err := r.conn(ctx, tx).Preload("Creator").First(&c, id).Error; err != nil {
		return nil, database.Translate(err, "exam category")
	}
	chain := &CategoryChain{Category: c}
	if c.Creator != nil {
		chain.CreatorRole = c.Creator.Role
	}
	chain.Category.Creator = nil
	if chain.CreatorRole == identity.RoleTeacher {
		var t models.Teacher
		if err := r.conn(ctx, tx).Where("account_id = ?", c.CreatorID).First(&t).Error; err != nil {
			return nil, database.Translate(err, "teacher")
		}
		chain.InstituteID = t.InstituteID
	}
	return chain, nil
}

func (r *Repository) ListCategories(ctx context.Context, scope authz.Scope) ([]models.ExamCategory, error) {
	var out []models.ExamCategory
	err := r.conn(ctx, nil).Model(&models.ExamCategory{}).
		Scopes(scoping.ByCategory(scope)).
		Order("id").Find(&out).Error
	return out, database.Translate(err, "exam category")
}

// Exams.

type ExamFilter struct {
	ClassroomID uint
	CategoryID  uint
	ActiveOnly  bool
}

func (r *Repository) ListExams(ctx context.Context, scope authz.Scope, f ExamFilter) ([]models.Exam, error) {
	q := r.conn(ctx, nil).Model(&models.Exam{}).
		Scopes(scoping.ByExam(scope, "exams.id", ""))
	if f.ClassroomID != 0 {
		q = q.Where("classroom_id = ?", f.ClassroomID)
	}
	if f.CategoryID != 0 {
		q = q.Where("category_id = ?", f.CategoryID)
	}
	if f.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	var out []models.Exam
	err := q.Order("start_time, id").Find(&out).Error
	return out, database.Translate(err, "exam")
}

// Questions and options.

func (r *Repository) ListQuestions(ctx context.Context, scope authz.Scope, examID uint) ([]models.Question, error) {
	q := r.conn(ctx, nil).Model(&models.Question{}).
		Preload("Options", orderByID).
		Scopes(scoping.ByExam(scope, "questions.exam_id", ""))
	if examID != 0 {
		q = q.Where("exam_id = ?", examID)
	}
	var out []models.Question
	err := q.Order("id").Find(&out).Error
	return out, database.Translate(err, "question")
}

func (r *Repository) ListOptions(ctx context.Context, scope authz.Scope, questionID uint) ([]models.Option, error) {
	q := r.conn(ctx, nil).Model(&models.Option{}).
		Scopes(scoping.ByQuestion(scope, "options.question_id", ""))
	if questionID != 0 {
		q = q.Where("question_id = ?", questionID)
	}
	var out []models.Option
	err := q.Order("id").Find(&out).Error
	return out, database.Translate(err, "option")
}

// ExamEnds maps exam ids to their end times.
func (r *Repository) ExamEnds(ctx context.Context, examIDs []uint) (map[uint]time.Time, error) {
	out := make(map[uint]time.Time, len(examIDs))
	if len(examIDs) == 0 {
		return out, nil
	}
	var exams []models.Exam
	err := r.conn(ctx, nil).Select("id", "end_time").Where("id IN ?", examIDs).Find(&exams).Error
	if err != nil {
		return nil, database.Translate(err, "exam")
	}
	for _, e := range exams {
		out[e.ID] = e.EndTime
	}
	return out, nil
}

// QuestionExams maps question ids to their exam ids.
func (r *Repository) QuestionExams(ctx context.Context, questionIDs []uint) (map[uint]uint, error) {
	out := make(map[uint]uint, len(questionIDs))
	if len(questionIDs) == 0 {
		return out, nil
	}
	var qs []models.Question
	err := r.conn(ctx, nil).Select("id", "exam_id").Where("id IN ?", questionIDs).Find(&qs).Error
	if err != nil {
		return nil, database.Translate(err, "question")
	}
	for _, q := range qs {
		out[q.ID] = q.ExamID
	}
	return out, nil
}

// Feedback.

func (r *Repository) GetFeedback(ctx context.Context, tx *gorm.DB, id uint) (*models.Feedback, error) {
	var f models.Feedback
	if err := r.conn(ctx, tx).First(&f, id).Error; err != nil {
		return nil, database.Translate(err, "feedback")
	}
	return &f, nil
}

func (r *Repository) ListFeedback(ctx context.Context, scope authz.Scope, examID uint) ([]models.Feedback, error) {
	q := r.conn(ctx, nil).Model(&models.Feedback{}).
		Scopes(scoping.ByExam(scope, "feedbacks.exam_id", "feedbacks.student_id"))
	if examID != 0 {
		q = q.Where("exam_id = ?", examID)
	}
	var out []models.Feedback
	err := q.Order("id").Find(&out).Error
	return out, database.Translate(err, "feedback")
}
