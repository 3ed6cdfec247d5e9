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

type ClassroomInput struct {
	Name        string       `json:"name" validate:"required,max=100"`
	Grade       models.Grade `json:"grade" validate:"required,grade"`
	Description *string      `json:"description"`
	// TeacherID defaults to the caller for teachers and is required otherwise.
	TeacherID uint `json:"teacher_id"`
	// InstituteID is required from admins and must match the teacher's
	// institute; others may omit it.
	InstituteID uint `json:"institute_id"`
}

func (s *Service) CreateClassroom(ctx context.Context, caller identity.Identity, in ClassroomInput) (*models.Classroom, error) {
	in.Name = validation.CleanString(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if caller.IsStudent() {
		return nil, s.authz.Authorize(caller, authz.ResourceClassroom, authz.ActionCreate, authz.Target{})
	}
	if in.TeacherID == 0 {
		if !caller.IsTeacher() {
			return nil, apperr.Field("teacher_id", "this field is required")
		}
		in.TeacherID = caller.TeacherID
	}
	if caller.IsAdmin() && in.InstituteID == 0 {
		return nil, apperr.Field("institute_id", "this field is required")
	}
	teacher, err := s.repo.GetTeacher(ctx, nil, in.TeacherID)
	var target authz.Target
	if err == nil {
		target = authz.Target{InstituteID: teacher.InstituteID, TeacherID: teacher.ID}
	}
	if err := s.parent(caller, authz.ResourceTeacher, target, err, "teacher_id", "teacher"); err != nil {
		return nil, err
	}
	if in.InstituteID != 0 && in.InstituteID != teacher.InstituteID {
		return nil, apperr.Field("institute_id", "teacher does not belong to this institute")
	}
	if err := s.authz.Authorize(caller, authz.ResourceClassroom, authz.ActionCreate, target); err != nil {
		return nil, err
	}

	c := &models.Classroom{
		Name:        in.Name,
		TeacherID:   teacher.ID,
		Grade:       in.Grade,
		Description: in.Description,
	}
	if err := s.repo.create(ctx, nil, c, "classroom"); err != nil {
		return nil, err
	}
	s.log.Info("classroom created", "classroom_id", c.ID, "teacher_id", c.TeacherID, "account_id", caller.AccountID)
	return c, nil
}

func (s *Service) classroomTarget(ctx context.Context, caller identity.Identity, chain *ClassroomChain) (authz.Target, error) {
	t := chain.Target()
	if caller.IsStudent() {
		ok, err := s.repo.IsEnrolled(ctx, nil, chain.Classroom.ID, caller.StudentID)
		if err != nil {
			return t, err
		}
		t.Enrolled = ok
	}
	return t, nil
}

func (s *Service) GetClassroom(ctx context.Context, caller identity.Identity, id uint) (*models.Classroom, error) {
	chain, err := s.repo.ClassroomChain(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	t, err := s.classroomTarget(ctx, caller, chain)
	if err != nil {
		return nil, err
	}
	if err := s.visible(caller, authz.ResourceClassroom, t, "classroom"); err != nil {
		return nil, err
	}
	return &chain.Classroom, nil
}

func (s *Service) ListClassrooms(ctx context.Context, caller identity.Identity, f ClassroomFilter) ([]models.Classroom, error) {
	return s.repo.ListClassrooms(ctx, authz.ListScope(caller, authz.ResourceClassroom), f)
}

// UpdateClassroom edits name, grade and description. The owning teacher is fixed.
func (s *Service) UpdateClassroom(ctx context.Context, caller identity.Identity, id uint, in ClassroomInput) (*models.Classroom, error) {
	in.Name = validation.CleanString(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	chain, err := s.repo.ClassroomChain(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	t, err := s.classroomTarget(ctx, caller, chain)
	if err != nil {
		return nil, err
	}
	if err := s.check(caller, authz.ResourceClassroom, authz.ActionUpdate, t, "classroom"); err != nil {
		return nil, err
	}
	if in.TeacherID != 0 && in.TeacherID != chain.Classroom.TeacherID {
		return nil, apperr.Field("teacher_id", "the teacher of a classroom cannot be changed")
	}
	c := chain.Classroom
	c.Name = in.Name
	c.Grade = in.Grade
	c.Description = in.Description
	if err := s.repo.save(ctx, nil, &c, "classroom"); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) DeleteClassroom(ctx context.Context, caller identity.Identity, id uint) error {
	chain, err := s.repo.ClassroomChain(ctx, nil, id)
	if err != nil {
		return err
	}
	t, err := s.classroomTarget(ctx, caller, chain)
	if err != nil {
		return err
	}
	if err := s.check(caller, authz.ResourceClassroom, authz.ActionDelete, t, "classroom"); err != nil {
		return err
	}
	return s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		exams, err := s.repo.count(ctx, tx, &models.Exam{}, "classroom_id = ?", id)
		if err != nil {
			return err
		}
		if exams > 0 {
			return apperr.ReferentialProtection("classroom still has exams")
		}
		members, err := s.repo.count(ctx, tx, &models.StudentClassroom{}, "classroom_id = ?", id)
		if err != nil {
			return err
		}
		if members > 0 {
			return apperr.ReferentialProtection("classroom still has enrolled students")
		}
		if err := s.repo.delete(ctx, tx, &models.Classroom{}, id, "classroom"); err != nil {
			return err
		}
		s.log.Info("classroom deleted", "classroom_id", id, "account_id", caller.AccountID)
		return nil
	})
}

type EnrollInput struct {
	ClassroomID uint `json:"classroom_id" validate:"required"`
	StudentID   uint `json:"student_id" validate:"required"`
}

// Enroll adds a student to a classroom of the same institute.
func (s *Service) Enroll(ctx context.Context, caller identity.Identity, in EnrollInput) (*models.StudentClassroom, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	chain, err := s.repo.ClassroomChain(ctx, nil, in.ClassroomID)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	var t authz.Target
	if chain != nil {
		if t, err = s.classroomTarget(ctx, caller, chain); err != nil {
			return nil, err
		}
	}
	if err := s.parent(caller, authz.ResourceClassroom, t, err, "classroom_id", "classroom"); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(caller, authz.ResourceStudentClassroom, authz.ActionCreate, t); err != nil {
		return nil, err
	}

	// Students of other institutes read as missing to everyone but admins.
	student, err := s.repo.GetStudent(ctx, nil, in.StudentID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.Field("student_id", "student does not exist")
	}
	if err != nil {
		return nil, err
	}
	if student.InstituteID != chain.InstituteID {
		if caller.IsAdmin() {
			return nil, apperr.Field("student_id", "student belongs to a different institute")
		}
		return nil, apperr.Field("student_id", "student does not exist")
	}
	already, err := s.repo.IsEnrolled(ctx, nil, chain.Classroom.ID, student.ID)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, apperr.Field("student_id", "student is already enrolled in this classroom")
	}

	m := &models.StudentClassroom{ClassroomID: chain.Classroom.ID, StudentID: student.ID}
	if err := s.repo.create(ctx, nil, m, "classroom membership"); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) membershipTarget(ctx context.Context, id uint) (*models.StudentClassroom, authz.Target, error) {
	m, err := s.repo.GetMembership(ctx, nil, id)
	if err != nil {
		return nil, authz.Target{}, err
	}
	chain, err := s.repo.ClassroomChain(ctx, nil, m.ClassroomID)
	if err != nil {
		return nil, authz.Target{}, err
	}
	t := chain.Target()
	t.StudentID = m.StudentID
	return m, t, nil
}

func (s *Service) GetMembership(ctx context.Context, caller identity.Identity, id uint) (*models.StudentClassroom, error) {
	m, t, err := s.membershipTarget(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.visible(caller, authz.ResourceStudentClassroom, t, "classroom membership"); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) ListMemberships(ctx context.Context, caller identity.Identity, classroomID uint) ([]models.StudentClassroom, error) {
	return s.repo.ListMemberships(ctx, authz.ListScope(caller, authz.ResourceStudentClassroom), classroomID)
}

func (s *Service) Unenroll(ctx context.Context, caller identity.Identity, id uint) error {
	_, t, err := s.membershipTarget(ctx, id)
	if err != nil {
		return err
	}
	if err := s.check(caller, authz.ResourceStudentClassroom, authz.ActionDelete, t, "classroom membership"); err != nil {
		return err
	}
	return s.repo.delete(ctx, nil, &models.StudentClassroom{}, id, "classroom membership")
}
