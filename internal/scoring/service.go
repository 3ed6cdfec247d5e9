// Package scoring records student answers and keeps each (student, exam)
// result equal to the credit earned across that student's answers.
//
// Every answer mutation and the matching result delta run in one
// transaction. The answer row is locked before its old state is compared with
// the new one, so each delta is applied exactly once.
package scoring

import (
	"context"
	"time"

	"gorm.io/gorm"

	"exam-system/internal/apperr"
	"exam-system/internal/authz"
	"exam-system/internal/exam"
	"exam-system/internal/identity"
	"exam-system/internal/models"
	"exam-system/internal/result"
	"exam-system/internal/validation"
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
		log:   log.With("service", "ScoringService"),
		now:   time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

type AnswerInput struct {
	QuestionID uint `json:"question_id" validate:"required"`
	// StudentID is only honoured for admins submitting on a student's behalf.
	StudentID  uint   `json:"student_id"`
	AnswerText string `json:"answer_text" validate:"required"`
}

// AnswerUpdate carries the fields of a descriptive answer to change. Setting
// Score is a grading and needs grade rights.
type AnswerUpdate struct {
	AnswerText *string  `json:"answer_text"`
	Score      *float64 `json:"score"`
}

type SelectionInput struct {
	QuestionID uint `json:"question_id" validate:"required"`
	StudentID  uint `json:"student_id"`
	OptionID   uint `json:"answer_option_id" validate:"required"`
}

type SelectionUpdate struct {
	OptionID uint `json:"answer_option_id" validate:"required"`
}

// questionFor loads the question chain inside tx; questions the caller may
// not read are reported as a missing question_id.
func (s *Service) questionFor(ctx context.Context, tx *gorm.DB, caller identity.Identity, questionID uint) (*exam.QuestionChain, error) {
	chain, err := s.exams.QuestionChain(ctx, tx, questionID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.Field("question_id", "question does not exist")
	}
	if err != nil {
		return nil, err
	}
	if !s.authz.Decide(caller, authz.ResourceQuestion, authz.ActionRead, chain.Target(s.now())).Allowed {
		return nil, apperr.Field("question_id", "question does not exist")
	}
	return chain, nil
}

// subject resolves and authorizes the student a new answer is recorded for.
func (s *Service) subject(ctx context.Context, tx *gorm.DB, caller identity.Identity, res authz.Resource, chain *exam.QuestionChain, requested uint) (uint, error) {
	studentID := requested
	if caller.IsStudent() && studentID == 0 {
		studentID = caller.StudentID
	}
	t := chain.Target(s.now())
	t.StudentID = studentID
	if err := s.authz.Authorize(caller, res, authz.ActionCreate, t); err != nil {
		s.log.Debug("answer submission denied", "account_id", caller.AccountID, "question_id", chain.Question.ID)
		return 0, err
	}
	if studentID == 0 {
		return 0, apperr.Field("student_id", "this field is required")
	}
	student, err := s.exams.GetStudent(ctx, tx, studentID)
	if apperr.Is(err, apperr.KindNotFound) {
		return 0, apperr.Field("student_id", "student does not exist")
	}
	if err != nil {
		return 0, err
	}
	if student.InstituteID != chain.InstituteID {
		return 0, apperr.Field("student_id", "student does not belong to the exam's institute")
	}
	if caller.IsStudent() {
		if err := s.examOpen(chain.Exam); err != nil {
			return 0, err
		}
	}
	answered, err := s.repo.Answered(ctx, tx, studentID, chain.Question.ID)
	if err != nil {
		return 0, err
	}
	if answered {
		return 0, apperr.Field("question_id", "this question has already been answered")
	}
	return studentID, nil
}

// examOpen holds students to the exam window.
func (s *Service) examOpen(e models.Exam) error {
	now := s.now()
	switch {
	case !e.IsActive:
		return apperr.Permission("this exam is not active")
	case now.Before(e.StartTime):
		return apperr.Permission("this exam has not started yet")
	case e.Ended(now):
		return apperr.Permission("this exam has ended")
	}
	return nil
}

func (s *Service) publish(ctx context.Context, res *models.UserExamResult) {
	if res == nil {
		return
	}
	ev := events.ResultEvent{
		Type:      events.TypeResultUpdated,
		ResultID:  res.ID,
		ExamID:    res.ExamID,
		StudentID: res.StudentID,
		Score:     res.Score,
		At:        s.now(),
	}
	if err := s.pub.PublishResult(ctx, ev); err != nil {
		s.log.Warn("publish result event", "exam_id", res.ExamID, "student_id", res.StudentID, "error", err)
	}
}

func (s *Service) logDelta(op string, studentID, questionID, examID uint, delta float64) {
	s.log.Info(op, "student_id", studentID, "question_id", questionID, "exam_id", examID, "delta", delta)
}

// SubmitAnswer records a descriptive answer. It starts ungraded and
// contributes nothing until a grader scores it.
func (s *Service) SubmitAnswer(ctx context.Context, caller identity.Identity, in AnswerInput) (*models.UserAnswer, error) {
	in.AnswerText = validation.CleanString(in.AnswerText)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	var (
		answer *models.UserAnswer
		res    *models.UserExamResult
	)
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		chain, err := s.questionFor(ctx, tx, caller, in.QuestionID)
		if err != nil {
			return err
		}
		if chain.Question.Type != models.QuestionDescriptive {
			return apperr.Field("question_id", "this question is answered by selecting an option")
		}
		studentID, err := s.subject(ctx, tx, caller, authz.ResourceUserAnswer, chain, in.StudentID)
		if err != nil {
			return err
		}
		answer = &models.UserAnswer{
			StudentID:  studentID,
			QuestionID: chain.Question.ID,
			AnswerText: in.AnswerText,
		}
		if err := s.repo.CreateAnswer(ctx, tx, answer); err != nil {
			return err
		}
		res, err = s.repo.ApplyDelta(ctx, tx, studentID, chain.Exam.ID, 0)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, res)
	return answer, nil
}

// UpdateAnswer edits the text and/or assigns the score of a descriptive
// answer. The score change is applied to the result as new − old.
func (s *Service) UpdateAnswer(ctx context.Context, caller identity.Identity, id uint, upd AnswerUpdate) (*models.UserAnswer, error) {
	if upd.AnswerText == nil && upd.Score == nil {
		return nil, apperr.Validation("nothing to update")
	}
	var (
		answer *models.UserAnswer
		res    *models.UserExamResult
	)
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		a, err := s.repo.LockAnswer(ctx, tx, id)
		if err != nil {
			return err
		}
		chain, err := s.exams.QuestionChain(ctx, tx, a.QuestionID)
		if err != nil {
			return err
		}
		t := chain.Target(s.now())
		t.StudentID = a.StudentID
		t.Scored = a.Score != nil
		if !s.authz.Decide(caller, authz.ResourceUserAnswer, authz.ActionRead, t).Allowed {
			return apperr.NotFound("answer")
		}

		if upd.AnswerText != nil {
			if err := s.authz.Authorize(caller, authz.ResourceUserAnswer, authz.ActionUpdate, t); err != nil {
				return err
			}
			if validation.CleanString(*upd.AnswerText) == "" {
				return apperr.Field("answer_text", "this field is required")
			}
			a.AnswerText = *upd.AnswerText
		}

		var delta float64
		if upd.Score != nil {
			if err := s.authz.Authorize(caller, authz.ResourceUserAnswer, authz.ActionGrade, t); err != nil {
				return err
			}
			score := *upd.Score
			if score < 0 {
				return apperr.Field("score", "score cannot be negative")
			}
			if score > chain.Question.MaxScore {
				return apperr.Field("score", "score exceeds the question's maximum")
			}
			var old float64
			if a.Score != nil {
				old = *a.Score
			}
			delta = score - old
			a.Score = &score
		}

		if err := s.repo.SaveAnswer(ctx, tx, a); err != nil {
			return err
		}
		if upd.Score != nil {
			if res, err = s.repo.ApplyDelta(ctx, tx, a.StudentID, chain.Exam.ID, delta); err != nil {
				return err
			}
			s.logDelta("answer graded", a.StudentID, a.QuestionID, chain.Exam.ID, delta)
		}
		answer = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, res)
	return answer, nil
}

// DeleteAnswer removes an answer and withdraws whatever credit it earned.
func (s *Service) DeleteAnswer(ctx context.Context, caller identity.Identity, id uint) error {
	var res *models.UserExamResult
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		a, err := s.repo.LockAnswer(ctx, tx, id)
		if err != nil {
			return err
		}
		chain, err := s.exams.QuestionChain(ctx, tx, a.QuestionID)
		if err != nil {
			return err
		}
		t := chain.Target(s.now())
		t.StudentID = a.StudentID
		t.Scored = a.Score != nil
		if !s.authz.Decide(caller, authz.ResourceUserAnswer, authz.ActionRead, t).Allowed {
			return apperr.NotFound("answer")
		}
		if err := s.authz.Authorize(caller, authz.ResourceUserAnswer, authz.ActionDelete, t); err != nil {
			return err
		}
		var delta float64
		if a.Score != nil {
			delta = -*a.Score
		}
		if err := s.repo.DeleteAnswer(ctx, tx, a.ID); err != nil {
			return err
		}
		res, err = s.repo.ApplyDelta(ctx, tx, a.StudentID, chain.Exam.ID, delta)
		if err != nil {
			return err
		}
		s.logDelta("answer deleted", a.StudentID, a.QuestionID, chain.Exam.ID, delta)
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, res)
	return nil
}

func optionOf(q models.Question, optionID uint) (models.Option, bool) {
	for _, o := range q.Options {
		if o.ID == optionID {
			return o, true
		}
	}
	return models.Option{}, false
}

// credit is what a selection of o earns on q.
func credit(q models.Question, o models.Option) float64 {
	if o.IsCorrect {
		return q.MaxScore
	}
	return 0
}

// SubmitSelection records the chosen option of a MultipleChoice or TrueFalse
// question, crediting the question's maximum score when it is correct.
func (s *Service) SubmitSelection(ctx context.Context, caller identity.Identity, in SelectionInput) (*models.UserOptions, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	var (
		sel *models.UserOptions
		res *models.UserExamResult
	)
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		chain, err := s.questionFor(ctx, tx, caller, in.QuestionID)
		if err != nil {
			return err
		}
		if !chain.Question.Type.HasOptions() {
			return apperr.Field("question_id", "this question expects a written answer")
		}
		opt, ok := optionOf(chain.Question, in.OptionID)
		if !ok {
			return apperr.Field("answer_option_id", "option does not belong to this question")
		}
		studentID, err := s.subject(ctx, tx, caller, authz.ResourceUserOptions, chain, in.StudentID)
		if err != nil {
			return err
		}
		sel = &models.UserOptions{
			StudentID:  studentID,
			ExamID:     chain.Exam.ID,
			QuestionID: chain.Question.ID,
			OptionID:   opt.ID,
		}
		if err := s.repo.CreateSelection(ctx, tx, sel); err != nil {
			return err
		}
		delta := credit(chain.Question, opt)
		if res, err = s.repo.ApplyDelta(ctx, tx, studentID, chain.Exam.ID, delta); err != nil {
			return err
		}
		s.logDelta("selection created", studentID, chain.Question.ID, chain.Exam.ID, delta)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, res)
	return sel, nil
}

// ChangeSelection replaces the chosen option. The result moves by the
// difference in credit between the old and new option, which is zero when
// the selection does not change correctness.
func (s *Service) ChangeSelection(ctx context.Context, caller identity.Identity, id uint, upd SelectionUpdate) (*models.UserOptions, error) {
	if err := validation.Struct(upd); err != nil {
		return nil, err
	}
	var (
		sel *models.UserOptions
		res *models.UserExamResult
	)
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		cur, err := s.repo.LockSelection(ctx, tx, id)
		if err != nil {
			return err
		}
		chain, err := s.exams.QuestionChain(ctx, tx, cur.QuestionID)
		if err != nil {
			return err
		}
		t := chain.Target(s.now())
		t.StudentID = cur.StudentID
		if !s.authz.Decide(caller, authz.ResourceUserOptions, authz.ActionRead, t).Allowed {
			return apperr.NotFound("selection")
		}
		if err := s.authz.Authorize(caller, authz.ResourceUserOptions, authz.ActionUpdate, t); err != nil {
			return err
		}
		next, ok := optionOf(chain.Question, upd.OptionID)
		if !ok {
			return apperr.Field("answer_option_id", "option does not belong to this question")
		}
		prev, _ := optionOf(chain.Question, cur.OptionID)
		delta := credit(chain.Question, next) - credit(chain.Question, prev)

		cur.OptionID = next.ID
		if err := s.repo.SaveSelection(ctx, tx, cur); err != nil {
			return err
		}
		if res, err = s.repo.ApplyDelta(ctx, tx, cur.StudentID, chain.Exam.ID, delta); err != nil {
			return err
		}
		s.logDelta("selection changed", cur.StudentID, cur.QuestionID, chain.Exam.ID, delta)
		sel = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, res)
	return sel, nil
}

// DeleteSelection removes a selection and withdraws its credit.
func (s *Service) DeleteSelection(ctx context.Context, caller identity.Identity, id uint) error {
	var res *models.UserExamResult
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		cur, err := s.repo.LockSelection(ctx, tx, id)
		if err != nil {
			return err
		}
		chain, err := s.exams.QuestionChain(ctx, tx, cur.QuestionID)
		if err != nil {
			return err
		}
		t := chain.Target(s.now())
		t.StudentID = cur.StudentID
		if !s.authz.Decide(caller, authz.ResourceUserOptions, authz.ActionRead, t).Allowed {
			return apperr.NotFound("selection")
		}
		if err := s.authz.Authorize(caller, authz.ResourceUserOptions, authz.ActionDelete, t); err != nil {
			return err
		}
		prev, _ := optionOf(chain.Question, cur.OptionID)
		delta := -credit(chain.Question, prev)
		if err := s.repo.DeleteSelection(ctx, tx, cur.ID); err != nil {
			return err
		}
		if res, err = s.repo.ApplyDelta(ctx, tx, cur.StudentID, chain.Exam.ID, delta); err != nil {
			return err
		}
		s.logDelta("selection deleted", cur.StudentID, cur.QuestionID, chain.Exam.ID, delta)
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, res)
	return nil
}

// maskScore hides a grade from its student until the exam's results are released.
func (s *Service) maskScore(caller identity.Identity, a *models.UserAnswer, showAt *time.Time) {
	if result.Gate(caller, showAt, s.now()) == result.Hidden {
		a.Score = nil
	}
}

func (s *Service) GetAnswer(ctx context.Context, caller identity.Identity, id uint) (*models.UserAnswer, error) {
	a, err := s.repo.GetAnswer(ctx, id)
	if err != nil {
		return nil, err
	}
	chain, err := s.exams.QuestionChain(ctx, nil, a.QuestionID)
	if err != nil {
		return nil, err
	}
	t := chain.Target(s.now())
	t.StudentID = a.StudentID
	if !s.authz.Decide(caller, authz.ResourceUserAnswer, authz.ActionRead, t).Allowed {
		return nil, apperr.NotFound("answer")
	}
	s.maskScore(caller, a, chain.Exam.ResultShowTime)
	return a, nil
}

func (s *Service) ListAnswers(ctx context.Context, caller identity.Identity, f AnswerFilter) ([]models.UserAnswer, error) {
	answers, err := s.repo.ListAnswers(ctx, authz.ListScope(caller, authz.ResourceUserAnswer), f)
	if err != nil || !caller.IsStudent() {
		return answers, err
	}
	qids := make([]uint, 0, len(answers))
	for _, a := range answers {
		qids = append(qids, a.QuestionID)
	}
	examOf, err := s.exams.QuestionExams(ctx, qids)
	if err != nil {
		return nil, err
	}
	eids := make([]uint, 0, len(examOf))
	for _, eid := range examOf {
		eids = append(eids, eid)
	}
	shows, err := s.repo.ResultShowTimes(ctx, eids)
	if err != nil {
		return nil, err
	}
	for i := range answers {
		s.maskScore(caller, &answers[i], shows[examOf[answers[i].QuestionID]])
	}
	return answers, nil
}

func (s *Service) GetSelection(ctx context.Context, caller identity.Identity, id uint) (*models.UserOptions, error) {
	sel, err := s.repo.GetSelection(ctx, id)
	if err != nil {
		return nil, err
	}
	chain, err := s.exams.ExamChain(ctx, nil, sel.ExamID)
	if err != nil {
		return nil, err
	}
	t := chain.Target(s.now())
	t.StudentID = sel.StudentID
	if !s.authz.Decide(caller, authz.ResourceUserOptions, authz.ActionRead, t).Allowed {
		return nil, apperr.NotFound("selection")
	}
	return sel, nil
}

func (s *Service) ListSelections(ctx context.Context, caller identity.Identity, f AnswerFilter) ([]models.UserOptions, error) {
	return s.repo.ListSelections(ctx, authz.ListScope(caller, authz.ResourceUserOptions), f)
}
