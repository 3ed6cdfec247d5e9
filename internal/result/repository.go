package result

import (
	"context"

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

func (r *Repository) Get(ctx context.Context, tx *gorm.DB, id uint) (*models.UserExamResult, error) {
	var res models.UserExamResult
	if err := r.conn(ctx, tx).First(&res, id).Error; err != nil {
		return nil, database.Translate(err, "result")
	}
	return &res, nil
}

// Lock loads the result row for update within tx.
func (r *Repository) Lock(ctx context.Context, tx *gorm.DB, id uint) (*models.UserExamResult, error) {
	var res models.UserExamResult
	err := r.conn(ctx, tx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&res, id).Error
	if err != nil {
		return nil, database.Translate(err, "result")
	}
	return &res, nil
}

func (r *Repository) SetScore(ctx context.Context, tx *gorm.DB, id uint, score float64) error {
	err := r.conn(ctx, tx).Model(&models.UserExamResult{}).Where("id = ?", id).Update("score", score).Error
	return database.Translate(err, "result")
}

// MaxTotal is the highest score an exam can award: the sum of its
// questions' maximum scores.
func (r *Repository) MaxTotal(ctx context.Context, tx *gorm.DB, examID uint) (float64, error) {
	var total float64
	err := r.conn(ctx, tx).Model(&models.Question{}).
		Select("COALESCE(SUM(max_score), 0)").
		Where("exam_id = ?", examID).
		Scan(&total).Error
	return total, database.Translate(err, "question")
}

type Filter struct {
	ExamID    uint
	StudentID uint
}

// List returns results in scope with their exam attached, which the gate needs.
func (r *Repository) List(ctx context.Context, scope authz.Scope, f Filter) ([]models.UserExamResult, error) {
	q := r.conn(ctx, nil).Model(&models.UserExamResult{}).
		Scopes(scoping.ByExam(scope, "user_exam_results.exam_id", "user_exam_results.student_id")).
		Preload("Exam")
	if f.ExamID != 0 {
		q = q.Where("exam_id = ?", f.ExamID)
	}
	if f.StudentID != 0 {
		q = q.Where("student_id = ?", f.StudentID)
	}
	var out []models.UserExamResult
	err := q.Order("id").Find(&out).Error
	return out, database.Translate(err, "result")
}

// Leaderboard ranks an exam's results by score, highest first.
func (r *Repository) Leaderboard(ctx context.Context, examID uint) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	err := r.conn(ctx, nil).Raw(`
		SELECT r.student_id, a.username, r.score
		FROM user_exam_results r
		JOIN students s ON s.id = r.student_id
		JOIN accounts a ON a.id = s.account_id
		WHERE r.exam_id = ?
		ORDER BY r.score DESC, a.username ASC
	`, examID).Scan(&entries).Error
	if err != nil {
		return nil, database.Translate(err, "result")
	}
	return entries, nil
}
