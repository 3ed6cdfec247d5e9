package scoring

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"exam-system/internal/authz"
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

func (r *Repository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// forUpdate row-locks the selected rows until the transaction ends. sqlite
// ignores the clause and serializes writers instead.
func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *Repository) LockAnswer(ctx context.Context, tx *gorm.DB, id uint) (*models.UserAnswer, error) {
	var a models.UserAnswer
	if err := r.conn(ctx, tx).Scopes(forUpdate).First(&a, id).Error; err != nil {
		return nil, database.Translate(err, "answer")
	}
	return &a, nil
}

func (r *Repository) LockSelection(ctx context.Context, tx *gorm.DB, id uint) (*models.UserOptions, error) {
	var s models.UserOptions
	if err := r.conn(ctx, tx).Scopes(forUpdate).First(&s, id).Error; err != nil {
		return nil, database.Translate(err, "selection")
	}
	return &s, nil
}

func (r *Repository) GetAnswer(ctx context.Context, id uint) (*models.UserAnswer, error) {
	var a models.UserAnswer
	if err := r.conn(ctx, nil).First(&a, id).Error; err != nil {
		return nil, database.Translate(err, "answer")
	}
	return &a, nil
}

func (r *Repository) GetSelection(ctx context.Context, id uint) (*models.UserOptions, error) {
	var s models.UserOptions
	if err := r.conn(ctx, nil).First(&s, id).Error; err != nil {
		return nil, database.Translate(err, "selection")
	}
	return &s, nil
}

// Answered reports whether the student already has an answer of either kind
// for the question.
func (r *Repository) Answered(ctx context.Context, tx *gorm.DB, studentID, questionID uint) (bool, error) {
	var n int64
	err := r.conn(ctx, tx).Model(&models.UserAnswer{}).
		Where("student_id = ? AND question_id = ?", studentID, questionID).Count(&n).Error
	if err != nil || n > 0 {
		return n > 0, database.Translate(err, "answer")
	}
	err = r.conn(ctx, tx).Model(&models.UserOptions{}).
		Where("student_id = ? AND question_id = ?", studentID, questionID).Count(&n).Error
	return n > 0, database.Translate(err, "selection")
}

func (r *Repository) CreateAnswer(ctx context.Context, tx *gorm.DB, a *models.UserAnswer) error {
	return database.Translate(r.conn(ctx, tx).Omit(clause.Associations).Create(a).Error, "answer")
}

func (r *Repository) SaveAnswer(ctx context.Context, tx *gorm.DB, a *models.UserAnswer) error {
	return database.Translate(r.conn(ctx, tx).Omit(clause.Associations).Save(a).Error, "answer")
}

func (r *Repository) DeleteAnswer(ctx context.Context, tx *gorm.DB, id uint) error {
	return database.Translate(r.conn(ctx, tx).Delete(&models.UserAnswer{}, id).Error, "answer")
}

func (r *Repository) CreateSelection(ctx context.Context, tx *gorm.DB, s *models.UserOptions) error {
	return database.Translate(r.conn(ctx, tx).Omit(clause.Associations).Create(s).Error, "selection")
}

func (r *Repository) SaveSelection(ctx context.Context, tx *gorm.DB, s *models.UserOptions) error {
	return database.Translate(r.conn(ctx, tx).Omit(clause.Associations).Save(s).Error, "selection")
}

func (r *Repository) DeleteSelection(ctx context.Context, tx *gorm.DB, id uint) error {
	return database.Translate(r.conn(ctx, tx).Delete(&models.UserOptions{}, id).Error, "selection")
}

// ApplyDelta adds delta to the (student, exam) result, creating the row at
// zero first if it does not exist yet. The insert tolerates a concurrent
// creator and the increment is a single statement, so concurrent deltas for
// different questions are never lost.
func (r *Repository) ApplyDelta(ctx context.Context, tx *gorm.DB, studentID, examID uint, delta float64) (*models.UserExamResult, error) {
	conn := r.conn(ctx, tx)
	seed := models.UserExamResult{StudentID: studentID, ExamID: examID}
	err := conn.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}, {Name: "exam_id"}},
		DoNothing: true,
	}).Create(&seed).Error
	if err != nil {
		return nil, database.Translate(err, "result")
	}
	if delta != 0 {
		err = conn.Model(&models.UserExamResult{}).
			Where("student_id = ? AND exam_id = ?", studentID, examID).
			Update("score", gorm.Expr("score + ?", delta)).Error
		if err != nil {
			return nil, database.Translate(err, "result")
		}
	}
	var res models.UserExamResult
	err = conn.Where("student_id = ? AND exam_id = ?", studentID, examID).First(&res).Error
	if err != nil {
		return nil, database.Translate(err, "result")
	}
	return &res, nil
}

type AnswerFilter struct {
	ExamID     uint
	QuestionID uint
	StudentID  uint
}

func (r *Repository) ListAnswers(ctx context.Context, scope authz.Scope, f AnswerFilter) ([]models.UserAnswer, error) {
	q := r.conn(ctx, nil).Model(&models.UserAnswer{}).
		Scopes(scoping.ByQuestion(scope, "user_answers.question_id", "user_answers.student_id"))
	if f.QuestionID != 0 {
		q = q.Where("question_id = ?", f.QuestionID)
	}
	if f.ExamID != 0 {
		q = q.Where("question_id IN (?)",
			r.conn(ctx, nil).Model(&models.Question{}).Select("id").Where("exam_id = ?", f.ExamID))
	}
	if f.StudentID != 0 {
		q = q.Where("student_id = ?", f.StudentID)
	}
	var out []models.UserAnswer
	err := q.Order("id").Find(&out).Error
	return out, database.Translate(err, "answer")
}

func (r *Repository) ListSelections(ctx context.Context, scope authz.Scope, f AnswerFilter) ([]models.UserOptions, error) {
	q := r.conn(ctx, nil).Model(&models.UserOptions{}).
		Scopes(scoping.ByExam(scope, "user_options.exam_id", "user_options.student_id"))
	if f.QuestionID != 0 {
		q = q.Where("question_id = ?", f.QuestionID)
	}
	if f.ExamID != 0 {
		q = q.Where("exam_id = ?", f.ExamID)
	}
	if f.StudentID != 0 {
		q = q.Where("student_id = ?", f.StudentID)
	}
	var out []models.UserOptions
	err := q.Order("id").Find(&out).Error
	return out, database.Translate(err, "selection")
}

// ResultShowTimes maps exam ids to their release times.
func (r *Repository) ResultShowTimes(ctx context.Context, examIDs []uint) (map[uint]*time.Time, error) {
	out := make(map[uint]*time.Time, len(examIDs))
	if len(examIDs) == 0 {
		return out, nil
	}
	var exams []models.Exam
	err := r.conn(ctx, nil).Select("id", "result_show_time").Where("id IN ?", examIDs).Find(&exams).Error
	if err != nil {
		return nil, database.Translate(err, "exam")
	}
	for _, e := range exams {
		out[e.ID] = e.ResultShowTime
	}
	return out, nil
}
