// Package exam manages the content tree every answer hangs off:
// classrooms and their students, exam categories, exams, questions, options
// and student feedback.
package exam

import (
	"time"

	"exam-system/internal/apperr"
	"exam-system/internal/authz"
	"exam-system/internal/identity"
	"exam-system/pkg/logger"
)

type Service struct {
	repo  *Repository
	authz *authz.Engine
	log   *logger.Logger
	now   func() time.Time
}

func NewService(repo *Repository, engine *authz.Engine, log *logger.Logger) *Service {
	return &Service{
		repo:  repo,
		authz: engine,
		log:   log.With("service", "ExamService"),
		now:   time.Now,
	}
}

// SetClock replaces the time source used for exam windows and reveal decisions.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// visible hides records the caller may not read behind a NotFoundError.
func (s *Service) visible(caller identity.Identity, res authz.Resource, t authz.Target, what string) error {
	if !s.authz.Decide(caller, res, authz.ActionRead, t).Allowed {
		return apperr.NotFound(what)
	}
	return nil
}

// check loads-then-authorizes: out-of-scope records read as missing, readable
// ones the caller may not act on are a PermissionError.
func (s *Service) check(caller identity.Identity, res authz.Resource, action authz.Action, t authz.Target, what string) error {
	if err := s.visible(caller, res, t, what); err != nil {
		return err
	}
	return s.authz.Authorize(caller, res, action, t)
}

// parent resolves a referenced parent record for a create or update. Missing
// and unreadable parents are reported against field.
func (s *Service) parent(caller identity.Identity, res authz.Resource, t authz.Target, err error, field, what string) error {
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.Field(field, what+" does not exist")
	}
	if err != nil {
		return err
	}
	if !s.authz.Decide(caller, res, authz.ActionRead, t).Allowed {
		return apperr.Field(field, what+" does not exist")
	}
	return nil
}
