package exam

import (
	"context"

	"exam-system/internal/authz"
	"exam-system/internal/identity"
	"exam-system/internal/models"
	"exam-system/internal/validation"
)

type CategoryInput struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (s *Service) CreateCategory(ctx context.Context, caller identity.Identity, in CategoryInput) (*models.ExamCategory, error) {
	in.Name = validation.CleanString(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	t := authz.Target{
		InstituteID:      caller.InstituteID,
		CreatorAccountID: caller.AccountID,
		CreatorRole:      caller.Role,
	}
	if err := s.authz.Authorize(caller, authz.ResourceExamCategory, authz.ActionCreate, t); err != nil {
		return nil, err
	}
	c := &models.ExamCategory{Name: in.Name, CreatorID: caller.AccountID}
	if err := s.repo.create(ctx, nil, c, "exam category"); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetCategory(ctx context.Context, caller identity.Identity, id uint) (*models.ExamCategory, error) {
	chain, err := s.repo.CategoryChain(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := s.visible(caller, authz.ResourceExamCategory, chain.Target(), "exam category"); err != nil {
		return nil, err
	}
	return &chain.Category, nil
}

func (s *Service) ListCategories(ctx context.Context, caller identity.Identity) ([]models.ExamCategory, error) {
	return s.repo.ListCategories(ctx, authz.ListScope(caller, authz.ResourceExamCategory))
}

func (s *Service) UpdateCategory(ctx context.Context, caller identity.Identity, id uint, in CategoryInput) (*models.ExamCategory, error) {
	in.Name = validation.CleanString(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	chain, err := s.repo.CategoryChain(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(caller, authz.ResourceExamCategory, authz.ActionUpdate, chain.Target(), "exam category"); err != nil {
		return nil, err
	}
	c := chain.Category
	c.Name = in.Name
	if err := s.repo.save(ctx, nil, &c, "exam category"); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteCategory removes the category; exams filed under it become uncategorised.
func (s *Service) DeleteCategory(ctx context.Context, caller identity.Identity, id uint) error {
	chain, err := s.repo.CategoryChain(ctx, nil, id)
	if err != nil {
		return err
	}
	if err := s.check(caller, authz.ResourceExamCategory, authz.ActionDelete, chain.Target(), "exam category"); err != nil {
		return err
	}
	return s.repo.delete(ctx, nil, &models.ExamCategory{}, id, "exam category")
}
