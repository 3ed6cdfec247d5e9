package result

import (
	"context"
	"time"

	"gorm.io/gorm"

	"exam-system/internal/apperr"
	"exam-system/internal/authz"
	"exam-system/internal/exam"
	"exam-system/internal/identity"
	"exam-system/internal/models"
	"exam-system/pkg/events"
	"exam-system/pkg/logger"
)

type Service struct {
	repo  *Repository
	exams *exam.Repository
	authz *authz.Engine
	pub   events.Publisher
	log   *logger.Logger
	now   func() time.Time
}

func NewService(repo *Repository, exams *exam.Repository, engine *authz.Engine, pub events.Publisher, log *logger.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		repo:  repo,
		exams: exams,
		authz: engine,
		pub:   pub,
		log:   log.With("service", "ResultService"),
		now:   time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) target(chain *exam.ExamChain, res *models.UserExamResult) authz.Target {
	t := chain.Target(s.now())
	t.StudentID = res.StudentID
	return t
}

// errHidden is returned to students reading a result before its release time.
func errHidden() error {
	return apperr.Permission("results for this exam are not visible yet")
}

// Get returns one result. Students see only their own, and only once the
// exam's results are released.
func (s *Service) Get(ctx context.Context, caller identity.Identity, id uint) (*models.UserExamResult, error) {
	res, err := s.repo.Get(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	chain, err := s.exams.ExamChain(ctx, nil, res.ExamID)
	if err != nil {
		return nil, err
	}
	if !s.authz.Decide(caller, authz.ResourceUserExamResult, authz.ActionRead, s.target(chain, res)).Allowed {
		return nil, apperr.NotFound("result")
	}
	if Gate(caller, chain.Exam.ResultShowTime, s.now()) == Hidden {
		s.log.Debug("result read gated", "account_id", caller.AccountID, "exam_id", res.ExamID, "tag", authz.TagResultsNotVisible)
		return nil, errHidden()
	}
	return res, nil
}

// List returns the results the caller may read. Results still gated for a
// student are left out.
func (s *Service) List(ctx context.Context, caller identity.Identity, f Filter) ([]models.UserExamResult, error) {
	all, err := s.repo.List(ctx, authz.ListScope(caller, authz.ResourceUserExamResult), f)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := all[:0]
	for _, res := range all {
		var showAt *time.Time
		if res.Exam != nil {
			showAt = res.Exam.ResultShowTime
		}
		if Gate(caller, showAt, now) == Visible {
			out = append(out, res)
		}
	}
	return out, nil
}

type OverwriteInput struct {
	Score *float64 `json:"score"`
}

// Overwrite is the administrative correction path: it replaces the score
// directly, regardless of the gate. The new score must lie within the exam's
// total maximum.
func (s *Service) Overwrite(ctx context.Context, caller identity.Identity, id uint, in OverwriteInput) (*models.UserExamResult, error) {
	if in.Score == nil {
		return nil, apperr.Field("score", "this field is required")
	}
	var out *models.UserExamResult
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		res, err := s.repo.Lock(ctx, tx, id)
		if err != nil {
			return err
		}
		chain, err := s.exams.ExamChain(ctx, tx, res.ExamID)
		if err != nil {
			return err
		}
		t := s.target(chain, res)
		if !s.authz.Decide(caller, authz.ResourceUserExamResult, authz.ActionRead, t).Allowed {
			return apperr.NotFound("result")
		}
		if err := s.authz.Authorize(caller, authz.ResourceUserExamResult, authz.ActionUpdate, t); err != nil {
			return err
		}
		score := *in.Score
		if score < 0 {
			return apperr.Field("score", "score cannot be negative")
		}
		limit, err := s.repo.MaxTotal(ctx, tx, res.ExamID)
		if err != nil {
			return err
		}
		if score > limit {
			return apperr.Field("score", "score exceeds the exam's maximum")
		}
		if err := s.repo.SetScore(ctx, tx, res.ID, score); err != nil {
			return err
		}
		s.log.Info("result overwritten", "result_id", res.ID, "exam_id", res.ExamID,
			"student_id", res.StudentID, "old", res.Score, "new", score, "account_id", caller.AccountID)
		res.Score = score
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	ev := events.ResultEvent{
		Type:      events.TypeResultUpdated,
		ResultID:  out.ID,
		ExamID:    out.ExamID,
		StudentID: out.StudentID,
		Score:     out.Score,
		At:        s.now(),
	}
	if err := s.pub.PublishResult(ctx, ev); err != nil {
		s.log.Warn("publish result event", "exam_id", out.ExamID, "error", err)
	}
	return out, nil
}

// CanWatch reports whether caller may see every result of an exam: the
// exam must be in scope and the caller must not be a student.
func (s *Service) CanWatch(ctx context.Context, caller identity.Identity, examID uint) error {
	chain, err := s.exams.ExamChain(ctx, nil, examID)
	if err != nil {
		return err
	}
	t := chain.Target(s.now())
	if !s.authz.Decide(caller, authz.ResourceExam, authz.ActionRead, t).Allowed {
		return apperr.NotFound("exam")
	}
	if caller.IsStudent() {
		return apperr.Permission("students may only read their own results")
	}
	return s.authz.Authorize(caller, authz.ResourceUserExamResult, authz.ActionRead, t)
}

func (s *Service) Leaderboard(ctx context.Context, caller identity.Identity, examID uint) ([]models.LeaderboardEntry, error) {
	if err := s.CanWatch(ctx, caller, examID); err != nil {
		return nil, err
	}
	return s.repo.Leaderboard(ctx, examID)
}
