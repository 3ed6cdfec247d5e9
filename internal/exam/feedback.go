package exam

import (
	"context"

	"exam-system/internal/apperr"
	"exam-system/internal/authz"
	"exam-system/internal/identity"
	"exam-system/internal/models"
	"exam-system/internal/validation"
)

type FeedbackInput struct {
	ExamID uint   `json:"exam_id"`
	Text   string `json:"text" validate:"required,max=2000"`
}

// CreateFeedback records a student's comment on an exam of a classroom it is
// enrolled in.
func (s *Service) CreateFeedback(ctx context.Context, caller identity.Identity, in FeedbackInput) (*models.Feedback, error) {
	in.Text = validation.CleanString(in.Text)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.ExamID == 0 {
		return nil, apperr.Field("exam_id", "this field is required")
	}
	chain, err := s.repo.ExamChain(ctx, nil, in.ExamID)
	var t authz.Target
	if chain != nil {
		t = chain.Target(s.now())
	}
	if err := s.parent(caller, authz.ResourceExam, t, err, "exam_id", "exam"); err != nil {
		return nil, err
	}
	t.StudentID = caller.StudentID
	if err := s.authz.Authorize(caller, authz.ResourceFeedback, authz.ActionCreate, t); err != nil {
		return nil, err
	}
	enrolled, err := s.repo.IsEnrolled(ctx, nil, chain.Exam.ClassroomID, caller.StudentID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, apperr.Field("exam_id", "you are not enrolled in this exam's classroom")
	}

	f := &models.Feedback{StudentID: caller.StudentID, ExamID: in.ExamID, Text: in.Text}
	if err := s.repo.create(ctx, nil, f, "feedback"); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) feedbackTarget(ctx context.Context, id uint) (*models.Feedback, authz.Target, error) {
	f, err := s.repo.GetFeedback(ctx, nil, id)
	if err != nil {
		return nil, authz.Target{}, err
	}
	chain, err := s.repo.ExamChain(ctx, nil, f.ExamID)
	if err != nil {
		return nil, authz.Target{}, err
	}
	t := chain.Target(s.now())
	t.StudentID = f.StudentID
	return f, t, nil
}

func (s *Service) GetFeedback(ctx context.Context, caller identity.Identity, id uint) (*models.Feedback, error) {
	f, t, err := s.feedbackTarget(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.visible(caller, authz.ResourceFeedback, t, "feedback"); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) ListFeedback(ctx context.Context, caller identity.Identity, examID uint) ([]models.Feedback, error) {
	return s.repo.ListFeedback(ctx, authz.ListScope(caller, authz.ResourceFeedback), examID)
}

func (s *Service) UpdateFeedback(ctx context.Context, caller identity.Identity, id uint, in FeedbackInput) (*models.Feedback, error) {
	in.Text = validation.CleanString(in.Text)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	f, t, err := s.feedbackTarget(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(caller, authz.ResourceFeedback, authz.ActionUpdate, t, "feedback"); err != nil {
		return nil, err
	}
	f.Text = in.Text
	if err := s.repo.save(ctx, nil, f, "feedback"); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) DeleteFeedback(ctx context.Context, caller identity.Identity, id uint) error {
	_, t, err := s.feedbackTarget(ctx, id)
	if err != nil {
		return err
	}
	if err := s.check(caller, authz.ResourceFeedback, authz.ActionDelete, t, "feedback"); err != nil {
		return err
	}
	return s.repo.delete(ctx, nil, &models.Feedback{}, id, "feedback")
}
