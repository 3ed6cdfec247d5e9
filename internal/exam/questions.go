package exam

import (
	"context"

	"gorm.io/gorm"

	"exam-system/internal/apperr"
	"exam-system/internal/authz"
	"exam-system/internal/identity"
	"exam-system/internal/models"
	"exam-system/internal/validation"
)

type OptionInput struct {
	QuestionID uint   `json:"question_id"`
	Text       string `json:"text" validate:"required,max=255"`
	IsCorrect  bool   `json:"is_correct"`
}

type QuestionInput struct {
	ExamID   uint                `json:"exam_id" validate:"required"`
	Text     string              `json:"text" validate:"required"`
	Type     models.QuestionType `json:"question_type" validate:"required,question_type"`
	MaxScore float64             `json:"score" validate:"gt=0"`
	Options  []OptionInput       `json:"options" validate:"dive"`
}

func checkOptions(typ models.QuestionType, opts []OptionInput) error {
	if len(opts) == 0 {
		return nil
	}
	if !typ.HasOptions() {
		return apperr.Field("options", "descriptive questions have no options")
	}
	correct := 0
	for _, o := range opts {
		if o.IsCorrect {
			correct++
		}
	}
	if correct > 1 {
		return apperr.Field("options", "a question can have only one correct option")
	}
	return nil
}

func (s *Service) reveal(caller identity.Identity, chain ExamChain) bool {
	return authz.RevealCorrect(caller, chain.Exam.EndTime, s.now())
}

func (s *Service) CreateQuestion(ctx context.Context, caller identity.Identity, in QuestionInput) (*models.QuestionView, error) {
	in.Text = validation.CleanString(in.Text)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := checkOptions(in.Type, in.Options); err != nil {
		return nil, err
	}
	chain, err := s.repo.ExamChain(ctx, nil, in.ExamID)
	var t authz.Target
	if chain != nil {
		t = chain.Target(s.now())
	}
	if err := s.parent(caller, authz.ResourceExam, t, err, "exam_id", "exam"); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(caller, authz.ResourceQuestion, authz.ActionCreate, t); err != nil {
		return nil, err
	}

	q := &models.Question{
		ExamID:   in.ExamID,
		Text:     in.Text,
		Type:     in.Type,
		MaxScore: in.MaxScore,
	}
	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.create(ctx, tx, q, "question"); err != nil {
			return err
		}
		for _, oi := range in.Options {
			o := models.Option{QuestionID: q.ID, Text: validation.CleanString(oi.Text), IsCorrect: oi.IsCorrect}
			if err := s.repo.create(ctx, tx, &o, "option"); err != nil {
				return err
			}
			q.Options = append(q.Options, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	v := q.ToView(s.reveal(caller, *chain))
	return &v, nil
}

func (s *Service) GetQuestion(ctx context.Context, caller identity.Identity, id uint) (*models.QuestionView, error) {
	chain, err := s.repo.QuestionChain(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := s.visible(caller, authz.ResourceQuestion, chain.Target(s.now()), "question"); err != nil {
		return nil, err
	}
	v := chain.Question.ToView(s.reveal(caller, chain.ExamChain))
	return &v, nil
}

func (s *Service) ListQuestions(ctx context.Context, caller identity.Identity, examID uint) ([]models.QuestionView, error) {
	qs, err := s.repo.ListQuestions(ctx, authz.ListScope(caller, authz.ResourceQuestion), examID)
	if err != nil {
		return nil, err
	}
	examIDs := make([]uint, 0, len(qs))
	for _, q := range qs {
		examIDs = append(examIDs, q.ExamID)
	}
	ends, err := s.repo.ExamEnds(ctx, examIDs)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]models.QuestionView, len(qs))
	for i, q := range qs {
		out[i] = q.ToView(authz.RevealCorrect(caller, ends[q.ExamID], now))
	}
	return out, nil
}

func (s *Service) answerCount(ctx context.Context, tx *gorm.DB, questionID uint) (int64, error) {
	answers, err := s.repo.count(ctx, tx, &models.UserAnswer{}, "question_id = ?", questionID)
	if err != nil {
		return 0, err
	}
	selections, err := s.repo.count(ctx, tx, &models.UserOptions{}, "question_id = ?", questionID)
	if err != nil {
		return 0, err
	}
	return answers + selections, nil
}

// UpdateQuestion edits a question. Type and maximum score are frozen once
// students have answered, since results already include credit computed from them.
func (s *Service) UpdateQuestion(ctx context.Context, caller identity.Identity, id uint, in QuestionInput) (*models.QuestionView, error) {
	in.Text = validation.CleanString(in.Text)
	chain, err := s.repo.QuestionChain(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if in.ExamID == 0 {
		in.ExamID = chain.Question.ExamID
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := s.check(caller, authz.ResourceQuestion, authz.ActionUpdate, chain.Target(s.now()), "question"); err != nil {
		return nil, err
	}
	if in.ExamID != chain.Question.ExamID {
		return nil, apperr.Field("exam_id", "a question cannot be moved to another exam")
	}
	if len(in.Options) > 0 {
		return nil, apperr.Field("options", "options are edited individually")
	}

	q := chain.Question
	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if in.Type != q.Type || in.MaxScore != q.MaxScore {
			n, err := s.answerCount(ctx, tx, q.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				return apperr.Validation("question already has answers; type and score cannot change")
			}
			if !in.Type.HasOptions() && len(q.Options) > 0 {
				return apperr.Field("question_type", "remove the options before making this question descriptive")
			}
		}
		q.Text = in.Text
		q.Type = in.Type
		q.MaxScore = in.MaxScore
		return s.repo.save(ctx, tx, &q, "question")
	})
	if err != nil {
		return nil, err
	}
	v := q.ToView(s.reveal(caller, chain.ExamChain))
	return &v, nil
}

func (s *Service) DeleteQuestion(ctx context.Context, caller identity.Identity, id uint) error {
	chain, err := s.repo.QuestionChain(ctx, nil, id)
	if err != nil {
		return err
	}
	if err := s.check(caller, authz.ResourceQuestion, authz.ActionDelete, chain.Target(s.now()), "question"); err != nil {
		return err
	}
	return s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		n, err := s.answerCount(ctx, tx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.ReferentialProtection("question already has student answers")
		}
		return s.repo.delete(ctx, tx, &models.Question{}, id, "question")
	})
}

// hasOtherCorrect reports whether a question already has a correct option
// other than exceptID.
func hasOtherCorrect(q models.Question, exceptID uint) bool {
	for _, o := range q.Options {
		if o.IsCorrect && o.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *Service) CreateOption(ctx context.Context, caller identity.Identity, in OptionInput) (*models.OptionView, error) {
	in.Text = validation.CleanString(in.Text)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.QuestionID == 0 {
		return nil, apperr.Field("question_id", "this field is required")
	}
	chain, err := s.repo.QuestionChain(ctx, nil, in.QuestionID)
	var t authz.Target
	if chain != nil {
		t = chain.Target(s.now())
	}
	if err := s.parent(caller, authz.ResourceQuestion, t, err, "question_id", "question"); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(caller, authz.ResourceOption, authz.ActionCreate, t); err != nil {
		return nil, err
	}
	if !chain.Question.Type.HasOptions() {
		return nil, apperr.Field("question_id", "descriptive questions have no options")
	}
	if in.IsCorrect && hasOtherCorrect(chain.Question, 0) {
		return nil, apperr.Field("is_correct", "a question can have only one correct option")
	}
	if in.IsCorrect {
		n, err := s.answerCount(ctx, nil, chain.Question.ID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, apperr.Field("is_correct", "question already has answers; the correct option cannot change")
		}
	}

	o := &models.Option{QuestionID: in.QuestionID, Text: in.Text, IsCorrect: in.IsCorrect}
	if err := s.repo.create(ctx, nil, o, "option"); err != nil {
		return nil, err
	}
	v := o.ToView(s.reveal(caller, chain.ExamChain))
	return &v, nil
}

func (s *Service) GetOption(ctx context.Context, caller identity.Identity, id uint) (*models.OptionView, error) {
	chain, err := s.repo.OptionChain(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := s.visible(caller, authz.ResourceOption, chain.Target(s.now()), "option"); err != nil {
		return nil, err
	}
	v := chain.Option.ToView(s.reveal(caller, chain.ExamChain))
	return &v, nil
}

func (s *Service) ListOptions(ctx context.Context, caller identity.Identity, questionID uint) ([]models.OptionView, error) {
	opts, err := s.repo.ListOptions(ctx, authz.ListScope(caller, authz.ResourceOption), questionID)
	if err != nil {
		return nil, err
	}
	qids := make([]uint, 0, len(opts))
	for _, o := range opts {
		qids = append(qids, o.QuestionID)
	}
	examOf, err := s.repo.QuestionExams(ctx, qids)
	if err != nil {
		return nil, err
	}
	eids := make([]uint, 0, len(examOf))
	for _, eid := range examOf {
		eids = append(eids, eid)
	}
	ends, err := s.repo.ExamEnds(ctx, eids)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]models.OptionView, len(opts))
	for i, o := range opts {
		out[i] = o.ToView(authz.RevealCorrect(caller, ends[examOf[o.QuestionID]], now))
	}
	return out, nil
}

// UpdateOption edits an option's text. Its correctness is frozen once the
// question has answers.
func (s *Service) UpdateOption(ctx context.Context, caller identity.Identity, id uint, in OptionInput) (*models.OptionView, error) {
	in.Text = validation.CleanString(in.Text)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	chain, err := s.repo.OptionChain(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(caller, authz.ResourceOption, authz.ActionUpdate, chain.Target(s.now()), "option"); err != nil {
		return nil, err
	}
	if in.QuestionID != 0 && in.QuestionID != chain.Option.QuestionID {
		return nil, apperr.Field("question_id", "an option cannot be moved to another question")
	}
	o := chain.Option
	if in.IsCorrect != o.IsCorrect {
		if in.IsCorrect && hasOtherCorrect(chain.Question, o.ID) {
			return nil, apperr.Field("is_correct", "a question can have only one correct option")
		}
		n, err := s.answerCount(ctx, nil, o.QuestionID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, apperr.Field("is_correct", "question already has answers; the correct option cannot change")
		}
	}
	o.Text = in.Text
	o.IsCorrect = in.IsCorrect
	if err := s.repo.save(ctx, nil, &o, "option"); err != nil {
		return nil, err
	}
	v := o.ToView(s.reveal(caller, chain.ExamChain))
	return &v, nil
}

func (s *Service) DeleteOption(ctx context.Context, caller identity.Identity, id uint) error {
	chain, err := s.repo.OptionChain(ctx, nil, id)
	if err != nil {
		return err
	}
	if err := s.check(caller, authz.ResourceOption, authz.ActionDelete, chain.Target(s.now()), "option"); err != nil {
		return err
	}
	n, err := s.repo.count(ctx, nil, &models.UserOptions{}, "option_id = ?", id)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.ReferentialProtection("option has been selected by students")
	}
	if chain.Option.IsCorrect {
		answered, err := s.answerCount(ctx, nil, chain.Question.ID)
		if err != nil {
			return err
		}
		if answered > 0 {
			return apperr.ReferentialProtection("question already has answers scored against this option")
		}
	}
	return s.repo.delete(ctx, nil, &models.Option{}, id, "option")
}
