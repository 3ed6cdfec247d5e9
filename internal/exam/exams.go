package exam

import (
	"context"
	"time"

	"gorm.io/gorm"

	"exam-system/internal/apperr"
	"exam-system/internal/authz"
	"exam-system/internal/identity"
	"exam-system/internal/models"
	"exam-system/internal/validation"
)

type ExamInput struct {
	Title           string     `json:"title" validate:"required,max=200"`
	Description     string     `json:"description" validate:"max=500"`
	StartTime       time.Time  `json:"start_time" validate:"required"`
	EndTime         time.Time  `json:"end_time" validate:"required"`
	DurationMinutes uint       `json:"duration_minutes" validate:"required,gt=0"`
	ResultShowTime  *time.Time `json:"result_show_time"`
	IsActive        *bool      `json:"is_active"`
	CategoryID      *uint      `json:"category_id"`
	ClassroomID     uint       `json:"classroom_id" validate:"required"`
}

func (in ExamInput) check() error {
	var fields []apperr.FieldError
	if !in.EndTime.After(in.StartTime) {
		fields = append(fields, apperr.FieldError{Field: "end_time", Error: "end time must be after start time"})
	} else if time.Duration(in.DurationMinutes)*time.Minute > in.EndTime.Sub(in.StartTime) {
		fields = append(fields, apperr.FieldError{Field: "duration_minutes", Error: "duration does not fit between start and end time"})
	}
	if in.ResultShowTime != nil && in.ResultShowTime.Before(in.EndTime) {
		fields = append(fields, apperr.FieldError{Field: "result_show_time", Error: "results cannot be shown before the exam ends"})
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid exam schedule", fields...)
	}
	return nil
}

// resolveParents validates the classroom and category an exam input points at
// and returns the authorization target of the new exam.
func (s *Service) resolveParents(ctx context.Context, caller identity.Identity, in ExamInput) (authz.Target, error) {
	chain, err := s.repo.ClassroomChain(ctx, nil, in.ClassroomID)
	var t authz.Target
	if chain != nil {
		if t, err = s.classroomTarget(ctx, caller, chain); err != nil {
			return t, err
		}
	}
	if err := s.parent(caller, authz.ResourceClassroom, t, err, "classroom_id", "classroom"); err != nil {
		return t, err
	}
	if in.CategoryID != nil {
		cat, err := s.repo.CategoryChain(ctx, nil, *in.CategoryID)
		var ct authz.Target
		if cat != nil {
			ct = cat.Target()
		}
		if err := s.parent(caller, authz.ResourceExamCategory, ct, err, "category_id", "exam category"); err != nil {
			return t, err
		}
	}
	return t, nil
}

func (s *Service) CreateExam(ctx context.Context, caller identity.Identity, in ExamInput) (*models.Exam, error) {
	in.Title = validation.CleanString(in.Title)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := in.check(); err != nil {
		return nil, err
	}
	t, err := s.resolveParents(ctx, caller, in)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(caller, authz.ResourceExam, authz.ActionCreate, t); err != nil {
		return nil, err
	}

	e := &models.Exam{
		Title:           in.Title,
		Description:     in.Description,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		DurationMinutes: in.DurationMinutes,
		ResultShowTime:  in.ResultShowTime,
		IsActive:        in.IsActive == nil || *in.IsActive,
		CategoryID:      in.CategoryID,
		CreatorID:       caller.AccountID,
		ClassroomID:     in.ClassroomID,
	}
	if err := s.repo.create(ctx, nil, e, "exam"); err != nil {
		return nil, err
	}
	s.log.Info("exam created", "exam_id", e.ID, "classroom_id", e.ClassroomID, "account_id", caller.AccountID)
	return e, nil
}

func (s *Service) GetExam(ctx context.Context, caller identity.Identity, id uint) (*models.Exam, error) {
	chain, err := s.repo.ExamChain(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := s.visible(caller, authz.ResourceExam, chain.Target(s.now()), "exam"); err != nil {
		return nil, err
	}
	return &chain.Exam, nil
}

func (s *Service) ListExams(ctx context.Context, caller identity.Identity, f ExamFilter) ([]models.Exam, error) {
	return s.repo.ListExams(ctx, authz.ListScope(caller, authz.ResourceExam), f)
}

// UpdateExam replaces the exam's editable fields. Moving an exam to another
// classroom requires create rights there.
func (s *Service) UpdateExam(ctx context.Context, caller identity.Identity, id uint, in ExamInput) (*models.Exam, error) {
	in.Title = validation.CleanString(in.Title)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := in.check(); err != nil {
		return nil, err
	}
	chain, err := s.repo.ExamChain(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(caller, authz.ResourceExam, authz.ActionUpdate, chain.Target(s.now()), "exam"); err != nil {
		return nil, err
	}
	t, err := s.resolveParents(ctx, caller, in)
	if err != nil {
		return nil, err
	}
	if in.ClassroomID != chain.Exam.ClassroomID {
		if err := s.authz.Authorize(caller, authz.ResourceExam, authz.ActionCreate, t); err != nil {
			return nil, err
		}
	}

	e := chain.Exam
	e.Title = in.Title
	e.Description = in.Description
	e.StartTime = in.StartTime
	e.EndTime = in.EndTime
	e.DurationMinutes = in.DurationMinutes
	e.ResultShowTime = in.ResultShowTime
	if in.IsActive != nil {
		e.IsActive = *in.IsActive
	}
	e.CategoryID = in.CategoryID
	e.ClassroomID = in.ClassroomID
	if err := s.repo.save(ctx, nil, &e, "exam"); err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteExam removes an exam with its questions, options and feedback. Exams
// that already hold answers or results are protected.
func (s *Service) DeleteExam(ctx context.Context, caller identity.Identity, id uint) error {
	chain, err := s.repo.ExamChain(ctx, nil, id)
	if err != nil {
		return err
	}
	if err := s.check(caller, authz.ResourceExam, authz.ActionDelete, chain.Target(s.now()), "exam"); err != nil {
		return err
	}
	return s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		results, err := s.repo.count(ctx, tx, &models.UserExamResult{}, "exam_id = ?", id)
		if err != nil {
			return err
		}
		if results > 0 {
			return apperr.ReferentialProtection("exam already has student results")
		}
		answers, err := s.repo.count(ctx, tx, &models.UserAnswer{},
			"question_id IN (?)", tx.Model(&models.Question{}).Select("id").Where("exam_id = ?", id))
		if err != nil {
			return err
		}
		selections, err := s.repo.count(ctx, tx, &models.UserOptions{}, "exam_id = ?", id)
		if err != nil {
			return err
		}
		if answers+selections > 0 {
			return apperr.ReferentialProtection("exam already has student answers")
		}
		if err := s.repo.delete(ctx, tx, &models.Exam{}, id, "exam"); err != nil {
			return err
		}
		s.log.Info("exam deleted", "exam_id", id, "account_id", caller.AccountID)
		return nil
	})
}
