// Package tenancy manages the profiles of the tenancy tree (institutes,
// their teachers and students) and the shared major catalogue.
package tenancy

import (
	"context"
	"time"

	"gorm.io/gorm"

	"exam-system/internal/apperr"
	"exam-system/internal/authz"
	"exam-system/internal/identity"
	"exam-system/internal/models"
	"exam-system/internal/validation"
	"exam-system/pkg/logger"
)

type Service struct {
	repo  *Repository
	authz *authz.Engine
	log   *logger.Logger
}

func NewService(repo *Repository, engine *authz.Engine, log *logger.Logger) *Service {
	return &Service{repo: repo, authz: engine, log: log.With("service", "TenancyService")}
}

func instituteTarget(inst *models.Institute) authz.Target {
	return authz.Target{InstituteID: inst.ID}
}

func teacherTarget(t *models.Teacher) authz.Target {
	return authz.Target{InstituteID: t.InstituteID, TeacherID: t.ID}
}

func studentTarget(s *models.Student) authz.Target {
	return authz.Target{InstituteID: s.InstituteID, StudentID: s.ID}
}

// check hides out-of-scope records behind NotFound, then authorizes action.
func (s *Service) check(caller identity.Identity, res authz.Resource, action authz.Action, t authz.Target, what string) error {
	if !s.authz.Decide(caller, res, authz.ActionRead, t).Allowed {
		return apperr.NotFound(what)
	}
	if action == authz.ActionRead {
		return nil
	}
	return s.authz.Authorize(caller, res, action, t)
}

type uniqueField struct {
	model  interface{}
	column string
	value  string
	field  string
	msg    string
}

func (s *Service) unique(ctx context.Context, tx *gorm.DB, exceptID uint, checks ...uniqueField) error {
	var fields []apperr.FieldError
	for _, c := range checks {
		taken, err := s.repo.Taken(ctx, tx, c.model, c.column, c.value, exceptID)
		if err != nil {
			return err
		}
		if taken {
			fields = append(fields, apperr.FieldError{Field: c.field, Error: c.msg})
		}
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid input", fields...)
	}
	return nil
}

// deleteAccount removes a profile through its account; the profile row
// follows by cascade.
func (s *Service) deleteAccount(ctx context.Context, tx *gorm.DB, accountID uint) error {
	return s.repo.Delete(ctx, tx, &models.Account{}, accountID, "account")
}

// Institutes.

type InstituteUpdate struct {
	Name             *string `json:"name" validate:"omitempty,min=1,max=255"`
	RegistrationCode *string `json:"registration_code" validate:"omitempty,min=1,max=50"`
	Address          *string `json:"address" validate:"omitempty,max=1000"`
	Phone            *string `json:"phone" validate:"omitempty,max=20"`
	Website          *string `json:"website" validate:"omitempty,url"`
}

func (s *Service) GetInstitute(ctx context.Context, caller identity.Identity, id uint) (*models.Institute, error) {
	inst, err := s.repo.GetInstitute(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(caller, authz.ResourceInstitute, authz.ActionRead, instituteTarget(inst), "institute"); err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *Service) ListInstitutes(ctx context.Context, caller identity.Identity, f InstituteFilter) ([]models.Institute, error) {
	return s.repo.ListInstitutes(ctx, authz.ListScope(caller, authz.ResourceInstitute), f)
}

func (s *Service) UpdateInstitute(ctx context.Context, caller identity.Identity, id uint, in InstituteUpdate) (*models.Institute, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	var out *models.Institute
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		inst, err := s.repo.GetInstitute(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.check(caller, authz.ResourceInstitute, authz.ActionUpdate, instituteTarget(inst), "institute"); err != nil {
			return err
		}
		var checks []uniqueField
		if in.Name != nil {
			inst.Name = validation.CleanString(*in.Name)
			checks = append(checks, uniqueField{&models.Institute{}, "name", inst.Name, "name", "an institute with this name already exists"})
		}
		if in.RegistrationCode != nil {
			inst.RegistrationCode = validation.CleanString(*in.RegistrationCode)
			checks = append(checks, uniqueField{&models.Institute{}, "registration_code", inst.RegistrationCode, "registration_code", "this registration code is already registered"})
		}
		if err := s.unique(ctx, tx, inst.ID, checks...); err != nil {
			return err
		}
		if in.Address != nil {
			inst.Address = *in.Address
		}
		if in.Phone != nil {
			inst.Phone = *in.Phone
		}
		if in.Website != nil {
			inst.Website = *in.Website
		}
		if err := s.repo.Save(ctx, tx, inst, "institute"); err != nil {
			return err
		}
		out = inst
		return nil
	})
	return out, err
}

// DeleteInstitute removes an institute and its account. Institutes that
// still have teachers or students are protected.
func (s *Service) DeleteInstitute(ctx context.Context, caller identity.Identity, id uint) error {
	return s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		inst, err := s.repo.GetInstitute(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.check(caller, authz.ResourceInstitute, authz.ActionDelete, instituteTarget(inst), "institute"); err != nil {
			return err
		}
		teachers, err := s.repo.Count(ctx, tx, &models.Teacher{}, "institute_id = ?", id)
		if err != nil {
			return err
		}
		students, err := s.repo.Count(ctx, tx, &models.Student{}, "institute_id = ?", id)
		if err != nil {
			return err
		}
		if teachers > 0 || students > 0 {
			return apperr.ReferentialProtection("this institute still has teachers or students")
		}
		if err := s.deleteAccount(ctx, tx, inst.AccountID); err != nil {
			return err
		}
		s.log.Info("institute deleted", "institute_id", id, "account_id", caller.AccountID)
		return nil
	})
}

// Teachers.

type TeacherUpdate struct {
	NationalCode *string `json:"national_code" validate:"omitempty,len=10,numeric"`
	PhoneNumber  *string `json:"phone_number" validate:"omitempty,max=20"`
	Expertise    *string `json:"expertise" validate:"omitempty,max=100"`
}

func (s *Service) GetTeacher(ctx context.Context, caller identity.Identity, id uint) (*models.Teacher, error) {
	t, err := s.repo.GetTeacher(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(caller, authz.ResourceTeacher, authz.ActionRead, teacherTarget(t), "teacher"); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) ListTeachers(ctx context.Context, caller identity.Identity, f ProfileFilter) ([]models.Teacher, error) {
	return s.repo.ListTeachers(ctx, authz.ListScope(caller, authz.ResourceTeacher), f)
}

func (s *Service) UpdateTeacher(ctx context.Context, caller identity.Identity, id uint, in TeacherUpdate) (*models.Teacher, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	var out *models.Teacher
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		t, err := s.repo.GetTeacher(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.check(caller, authz.ResourceTeacher, authz.ActionUpdate, teacherTarget(t), "teacher"); err != nil {
			return err
		}
		if in.NationalCode != nil {
			t.NationalCode = *in.NationalCode
			if err := s.unique(ctx, tx, t.ID, uniqueField{&models.Teacher{}, "national_code", t.NationalCode, "national_code", "this national code is already registered"}); err != nil {
				return err
			}
		}
		if in.PhoneNumber != nil {
			t.PhoneNumber = *in.PhoneNumber
		}
		if in.Expertise != nil {
			t.Expertise = *in.Expertise
		}
		if err := s.repo.Save(ctx, tx, t, "teacher"); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// DeleteTeacher removes a teacher and its account. Teachers that still own
// classrooms are protected.
func (s *Service) DeleteTeacher(ctx context.Context, caller identity.Identity, id uint) error {
	return s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		t, err := s.repo.GetTeacher(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.check(caller, authz.ResourceTeacher, authz.ActionDelete, teacherTarget(t), "teacher"); err != nil {
			return err
		}
		n, err := s.repo.Count(ctx, tx, &models.Classroom{}, "teacher_id = ?", id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.ReferentialProtection("this teacher still has classrooms")
		}
		return s.deleteAccount(ctx, tx, t.AccountID)
	})
}

// Students.

type StudentUpdate struct {
	NationalCode *string `json:"national_code" validate:"omitempty,len=10,numeric"`
	PhoneNumber  *string `json:"phone_number" validate:"omitempty,max=20"`
	MajorID      *uint   `json:"major_id"`
	DateOfBirth  *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Gender       *string `json:"gender" validate:"omitempty,max=10"`
}

func (s *Service) GetStudent(ctx context.Context, caller identity.Identity, id uint) (*models.Student, error) {
	st, err := s.repo.GetStudent(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(caller, authz.ResourceStudent, authz.ActionRead, studentTarget(st), "student"); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Service) ListStudents(ctx context.Context, caller identity.Identity, f ProfileFilter) ([]models.Student, error) {
	return s.repo.ListStudents(ctx, authz.ListScope(caller, authz.ResourceStudent), f)
}

func (s *Service) UpdateStudent(ctx context.Context, caller identity.Identity, id uint, in StudentUpdate) (*models.Student, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	var out *models.Student
	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		st, err := s.repo.GetStudent(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.check(caller, authz.ResourceStudent, authz.ActionUpdate, studentTarget(st), "student"); err != nil {
			return err
		}
		if in.NationalCode != nil {
			st.NationalCode = *in.NationalCode
			if err := s.unique(ctx, tx, st.ID, uniqueField{&models.Student{}, "national_code", st.NationalCode, "national_code", "this national code is already registered"}); err != nil {
				return err
			}
		}
		if in.MajorID != nil {
			m, err := s.repo.GetMajor(ctx, tx, *in.MajorID)
			if apperr.Is(err, apperr.KindNotFound) {
				return apperr.Field("major_id", "major does not exist")
			}
			if err != nil {
				return err
			}
			st.MajorID = m.ID
			st.Major = m
		}
		if in.DateOfBirth != nil {
			if *in.DateOfBirth == "" {
				st.DateOfBirth = nil
			} else {
				dob, err := time.Parse("2006-01-02", *in.DateOfBirth)
				if err != nil {
					return apperr.Field("date_of_birth", "must be a date in YYYY-MM-DD format")
				}
				st.DateOfBirth = &dob
			}
		}
		if in.PhoneNumber != nil {
			st.PhoneNumber = *in.PhoneNumber
		}
		if in.Gender != nil {
			st.Gender = *in.Gender
		}
		if err := s.repo.Save(ctx, tx, st, "student"); err != nil {
			return err
		}
		out = st
		return nil
	})
	return out, err
}

// DeleteStudent removes a student and its account together with the
// student's answers and results. Students still enrolled in a classroom are
// protected.
func (s *Service) DeleteStudent(ctx context.Context, caller identity.Identity, id uint) error {
	return s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		st, err := s.repo.GetStudent(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.check(caller, authz.ResourceStudent, authz.ActionDelete, studentTarget(st), "student"); err != nil {
			return err
		}
		n, err := s.repo.Count(ctx, tx, &models.StudentClassroom{}, "student_id = ?", id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.ReferentialProtection("this student is still enrolled in classrooms")
		}
		return s.deleteAccount(ctx, tx, st.AccountID)
	})
}

// Majors.

type MajorInput struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (s *Service) CreateMajor(ctx context.Context, caller identity.Identity, in MajorInput) (*models.Major, error) {
	in.Name = validation.CleanString(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(caller, authz.ResourceMajor, authz.ActionCreate, authz.Target{}); err != nil {
		return nil, err
	}
	m := &models.Major{Name: in.Name}
	if err := s.repo.Create(ctx, nil, m, "major"); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) GetMajor(ctx context.Context, caller identity.Identity, id uint) (*models.Major, error) {
	m, err := s.repo.GetMajor(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(caller, authz.ResourceMajor, authz.ActionRead, authz.Target{}, "major"); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) ListMajors(ctx context.Context, caller identity.Identity) ([]models.Major, error) {
	if err := s.authz.Authorize(caller, authz.ResourceMajor, authz.ActionRead, authz.Target{}); err != nil {
		return nil, err
	}
	return s.repo.ListMajors(ctx)
}

func (s *Service) UpdateMajor(ctx context.Context, caller identity.Identity, id uint, in MajorInput) (*models.Major, error) {
	in.Name = validation.CleanString(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	m, err := s.repo.GetMajor(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(caller, authz.ResourceMajor, authz.ActionUpdate, authz.Target{}, "major"); err != nil {
		return nil, err
	}
	m.Name = in.Name
	if err := s.repo.Save(ctx, nil, m, "major"); err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteMajor is refused while any student is enrolled in the major.
func (s *Service) DeleteMajor(ctx context.Context, caller identity.Identity, id uint) error {
	return s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.GetMajor(ctx, tx, id); err != nil {
			return err
		}
		if err := s.check(caller, authz.ResourceMajor, authz.ActionDelete, authz.Target{}, "major"); err != nil {
			return err
		}
		n, err := s.repo.Count(ctx, tx, &models.Student{}, "major_id = ?", id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.ReferentialProtection("this major is still assigned to students")
		}
		return s.repo.Delete(ctx, tx, &models.Major{}, id, "major")
	})
}

// Accounts.

// SetAccountActive enables or disables login for an account. Only admins
// may do so, and never for their own account.
func (s *Service) SetAccountActive(ctx context.Context, caller identity.Identity, accountID uint, active bool) (*models.Account, error) {
	if !caller.IsAdmin() {
		return nil, apperr.Permission("only an admin may enable or disable accounts")
	}
	if accountID == caller.AccountID {
		return nil, apperr.Field("account_id", "you cannot change your own account's status")
	}
	acc, err := s.repo.GetAccount(ctx, nil, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, acc.ID, active); err != nil {
		return nil, err
	}
	acc.IsActive = active
	s.log.Info("account status changed", "account_id", acc.ID, "active", active, "by", caller.AccountID)
	return acc, nil
}
