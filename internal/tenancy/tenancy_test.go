package tenancy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"exam-system/internal/apperr"
	"exam-system/internal/authz"
	"exam-system/internal/models"
	"exam-system/internal/testutil"
	"exam-system/pkg/logger"
)

func newService(t *testing.T) (*Service, *testutil.Fixture) {
	t.Helper()
	f := testutil.Seed(t)
	return NewService(NewRepository(f.DB), authz.NewEngine(), logger.Nop()), f
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}

func str(s string) *string { return &s }

func TestInstituteDeleteIsProtected(t *testing.T) {
	svc, f := newService(t)
	ctx := context.Background()
	inst, instID := f.Institute()
	teacher, _ := f.Teacher(inst)

	requireKind(t, svc.DeleteInstitute(ctx, f.Admin, inst.ID), apperr.KindReferentialProtection)
	_, err := svc.GetInstitute(ctx, f.Admin, inst.ID)
	require.NoError(t, err)
	_, err = svc.GetTeacher(ctx, f.Admin, teacher.ID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTeacher(ctx, instID, teacher.ID))
	require.NoError(t, svc.DeleteInstitute(ctx, instID, inst.ID))

	_, err = svc.GetInstitute(ctx, f.Admin, inst.ID)
	requireKind(t, err, apperr.KindNotFound)
	var accounts int64
	require.NoError(t, f.DB.Model(&models.Account{}).Where("id IN ?", []uint{inst.AccountID, teacher.AccountID}).Count(&accounts).Error)
	require.Zero(t, accounts)
}

func TestTeacherAndStudentDeleteProtection(t *testing.T) {
	svc, f := newService(t)
	ctx := context.Background()
	tn := f.Tenant()

	requireKind(t, svc.DeleteTeacher(ctx, f.Admin, tn.Teacher.ID), apperr.KindReferentialProtection)
	requireKind(t, svc.DeleteStudent(ctx, f.Admin, tn.Student.ID), apperr.KindReferentialProtection)

	require.NoError(t, f.DB.Where("student_id = ?", tn.Student.ID).Delete(&models.StudentClassroom{}).Error)
	require.NoError(t, svc.DeleteStudent(ctx, tn.InstituteIdentity, tn.Student.ID))
}

func TestProfileScope(t *testing.T) {
	svc, f := newService(t)
	ctx := context.Background()
	a := f.Tenant()
	b := f.Tenant()

	_, err := svc.GetInstitute(ctx, a.InstituteIdentity, b.Institute.ID)
	requireKind(t, err, apperr.KindNotFound)
	_, err = svc.GetInstitute(ctx, a.TeacherIdentity, a.Institute.ID)
	requireKind(t, err, apperr.KindNotFound)

	_, err = svc.GetTeacher(ctx, a.InstituteIdentity, a.Teacher.ID)
	require.NoError(t, err)
	_, err = svc.GetTeacher(ctx, a.InstituteIdentity, b.Teacher.ID)
	requireKind(t, err, apperr.KindNotFound)

	_, err = svc.GetStudent(ctx, a.StudentIdentity, a.Student.ID)
	require.NoError(t, err)
	classmate, _ := f.Student(a.Institute)
	_, err = svc.GetStudent(ctx, a.StudentIdentity, classmate.ID)
	requireKind(t, err, apperr.KindNotFound)
	_, err = svc.GetStudent(ctx, a.TeacherIdentity, a.Student.ID)
	requireKind(t, err, apperr.KindNotFound)

	institutes, err := svc.ListInstitutes(ctx, f.Admin, InstituteFilter{})
	require.NoError(t, err)
	require.Len(t, institutes, 2)
	institutes, err = svc.ListInstitutes(ctx, a.InstituteIdentity, InstituteFilter{})
	require.NoError(t, err)
	require.Len(t, institutes, 1)
	require.Equal(t, a.Institute.ID, institutes[0].ID)

	students, err := svc.ListStudents(ctx, a.InstituteIdentity, ProfileFilter{})
	require.NoError(t, err)
	require.Len(t, students, 2)
	students, err = svc.ListStudents(ctx, a.StudentIdentity, ProfileFilter{})
	require.NoError(t, err)
	require.Len(t, students, 1)
	students, err = svc.ListStudents(ctx, a.TeacherIdentity, ProfileFilter{})
	require.NoError(t, err)
	require.Empty(t, students)

	teachers, err := svc.ListTeachers(ctx, a.TeacherIdentity, ProfileFilter{})
	require.NoError(t, err)
	require.Len(t, teachers, 1)
	teachers, err = svc.ListTeachers(ctx, f.Admin, ProfileFilter{InstituteID: b.Institute.ID})
	require.NoError(t, err)
	require.Len(t, teachers, 1)
	require.Equal(t, b.Teacher.ID, teachers[0].ID)
}

func TestUpdateProfiles(t *testing.T) {
	svc, f := newService(t)
	ctx := context.Background()
	a := f.Tenant()
	b := f.Tenant()

	_, err := svc.UpdateInstitute(ctx, a.InstituteIdentity, a.Institute.ID, InstituteUpdate{Name: str(b.Institute.Name)})
	require.Error(t, err)
	require.Equal(t, "name", apperr.As(err).Fields[0].Field)

	inst, err := svc.UpdateInstitute(ctx, a.InstituteIdentity, a.Institute.ID, InstituteUpdate{Name: str(" Renamed "), Phone: str("021")})
	require.NoError(t, err)
	require.Equal(t, "Renamed", inst.Name)
	require.Equal(t, "021", inst.Phone)

	_, err = svc.UpdateTeacher(ctx, a.TeacherIdentity, a.Teacher.ID, TeacherUpdate{NationalCode: str(b.Teacher.NationalCode)})
	requireKind(t, err, apperr.KindValidation)
	teacher, err := svc.UpdateTeacher(ctx, a.TeacherIdentity, a.Teacher.ID, TeacherUpdate{Expertise: str("Geometry")})
	require.NoError(t, err)
	require.Equal(t, "Geometry", teacher.Expertise)

	_, err = svc.UpdateTeacher(ctx, a.StudentIdentity, a.Teacher.ID, TeacherUpdate{Expertise: str("x")})
	requireKind(t, err, apperr.KindNotFound)

	missing := uint(9999)
	_, err = svc.UpdateStudent(ctx, a.StudentIdentity, a.Student.ID, StudentUpdate{MajorID: &missing})
	requireKind(t, err, apperr.KindValidation)
	student, err := svc.UpdateStudent(ctx, a.StudentIdentity, a.Student.ID, StudentUpdate{DateOfBirth: str("2007-09-01")})
	require.NoError(t, err)
	require.Equal(t, 2007, student.DateOfBirth.Year())
}

func TestMajors(t *testing.T) {
	svc, f := newService(t)
	ctx := context.Background()
	tn := f.Tenant()

	_, err := svc.CreateMajor(ctx, tn.TeacherIdentity, MajorInput{Name: "Art"})
	requireKind(t, err, apperr.KindPermission)
	m, err := svc.CreateMajor(ctx, tn.InstituteIdentity, MajorInput{Name: "Art"})
	require.NoError(t, err)

	majors, err := svc.ListMajors(ctx, tn.StudentIdentity)
	require.NoError(t, err)
	require.Len(t, majors, 2)

	_, err = svc.UpdateMajor(ctx, tn.InstituteIdentity, m.ID, MajorInput{Name: "Fine Art"})
	requireKind(t, err, apperr.KindPermission)
	m, err = svc.UpdateMajor(ctx, f.Admin, m.ID, MajorInput{Name: "Fine Art"})
	require.NoError(t, err)
	require.Equal(t, "Fine Art", m.Name)

	requireKind(t, svc.DeleteMajor(ctx, f.Admin, f.Major.ID), apperr.KindReferentialProtection)
	require.NoError(t, svc.DeleteMajor(ctx, f.Admin, m.ID))
}

func TestSetAccountActive(t *testing.T) {
	svc, f := newService(t)
	ctx := context.Background()
	tn := f.Tenant()

	_, err := svc.SetAccountActive(ctx, tn.InstituteIdentity, tn.Student.AccountID, false)
	requireKind(t, err, apperr.KindPermission)
	_, err = svc.SetAccountActive(ctx, f.Admin, f.Admin.AccountID, false)
	requireKind(t, err, apperr.KindValidation)

	acc, err := svc.SetAccountActive(ctx, f.Admin, tn.Student.AccountID, false)
	require.NoError(t, err)
	require.False(t, acc.IsActive)

	var stored models.Account
	require.NoError(t, f.DB.First(&stored, tn.Student.AccountID).Error)
	require.False(t, stored.IsActive)
}
