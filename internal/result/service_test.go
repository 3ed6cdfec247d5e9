package result

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"exam-system/internal/apperr"
	"exam-system/internal/authz"
	"exam-system/internal/exam"
	"exam-system/internal/models"
	"exam-system/internal/testutil"
	"exam-system/pkg/logger"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type env struct {
	svc   *Service
	f     *testutil.Fixture
	clock *testutil.Clock
	rec   *testutil.Recorder
	tn    testutil.Tenant
	exam  models.Exam
}

// setup builds an exam worth 10 in total whose results are released at
// t0+2h.
func setup(t *testing.T) *env {
	t.Helper()
	f := testutil.Seed(t)
	rec := &testutil.Recorder{}
	svc := NewService(NewRepository(f.DB), exam.NewRepository(f.DB), authz.NewEngine(), rec, logger.Nop())
	clock := testutil.NewClock(t0)
	svc.SetClock(clock.Now)

	e := &env{svc: svc, f: f, clock: clock, rec: rec, tn: f.Tenant()}
	showAt := t0.Add(2 * time.Hour)
	e.exam = f.Exam(e.tn.Classroom, e.tn.Teacher.AccountID, t0.Add(-time.Hour), t0.Add(time.Hour), &showAt)
	f.Question(e.exam, models.QuestionDescriptive, 4)
	f.Question(e.exam, models.QuestionTrueFalse, 6)
	return e
}

func (e *env) result(t *testing.T, s models.Student, score float64) models.UserExamResult {
	t.Helper()
	res := models.UserExamResult{StudentID: s.ID, ExamID: e.exam.ID, Score: score}
	require.NoError(t, e.f.DB.Create(&res).Error)
	return res
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}

func score(v float64) *float64 { return &v }

func TestGetIsGatedForStudents(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	res := e.result(t, e.tn.Student, 7)

	_, err := e.svc.Get(ctx, e.tn.StudentIdentity, res.ID)
	requireKind(t, err, apperr.KindPermission)

	got, err := e.svc.Get(ctx, e.tn.TeacherIdentity, res.ID)
	require.NoError(t, err)
	require.Equal(t, 7.0, got.Score)
	_, err = e.svc.Get(ctx, e.tn.InstituteIdentity, res.ID)
	require.NoError(t, err)
	_, err = e.svc.Get(ctx, e.f.Admin, res.ID)
	require.NoError(t, err)

	e.clock.Set(t0.Add(2 * time.Hour))
	got, err = e.svc.Get(ctx, e.tn.StudentIdentity, res.ID)
	require.NoError(t, err)
	require.Equal(t, 7.0, got.Score)
}

func TestGetOutOfScope(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	res := e.result(t, e.tn.Student, 3)
	e.clock.Set(t0.Add(3 * time.Hour))

	classmate, classmateID := e.f.Student(e.tn.Institute)
	e.f.Enroll(e.tn.Classroom, classmate)
	_, err := e.svc.Get(ctx, classmateID, res.ID)
	requireKind(t, err, apperr.KindNotFound)

	other := e.f.Tenant()
	_, err = e.svc.Get(ctx, other.TeacherIdentity, res.ID)
	requireKind(t, err, apperr.KindNotFound)
	_, err = e.svc.Get(ctx, other.InstituteIdentity, res.ID)
	requireKind(t, err, apperr.KindNotFound)

	_, colleagueID := e.f.Teacher(e.tn.Institute)
	_, err = e.svc.Get(ctx, colleagueID, res.ID)
	requireKind(t, err, apperr.KindNotFound)
}

func TestListDropsGatedResults(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.result(t, e.tn.Student, 5)

	open := e.f.Exam(e.tn.Classroom, e.tn.Teacher.AccountID, t0.Add(-time.Hour), t0.Add(time.Hour), nil)
	require.NoError(t, e.f.DB.Create(&models.UserExamResult{StudentID: e.tn.Student.ID, ExamID: open.ID, Score: 1}).Error)

	classmate, _ := e.f.Student(e.tn.Institute)
	e.result(t, classmate, 9)

	mine, err := e.svc.List(ctx, e.tn.StudentIdentity, Filter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, open.ID, mine[0].ExamID)

	all, err := e.svc.List(ctx, e.tn.TeacherIdentity, Filter{ExamID: e.exam.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)

	e.clock.Set(t0.Add(2 * time.Hour))
	mine, err = e.svc.List(ctx, e.tn.StudentIdentity, Filter{})
	require.NoError(t, err)
	require.Len(t, mine, 2)

	other := e.f.Tenant()
	none, err := e.svc.List(ctx, other.InstituteIdentity, Filter{})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestOverwrite(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	res := e.result(t, e.tn.Student, 4)

	_, err := e.svc.Overwrite(ctx, e.tn.StudentIdentity, res.ID, OverwriteInput{Score: score(10)})
	requireKind(t, err, apperr.KindPermission)

	_, err = e.svc.Overwrite(ctx, e.tn.TeacherIdentity, res.ID, OverwriteInput{Score: score(10.5)})
	requireKind(t, err, apperr.KindValidation)
	_, err = e.svc.Overwrite(ctx, e.tn.TeacherIdentity, res.ID, OverwriteInput{Score: score(-1)})
	requireKind(t, err, apperr.KindValidation)
	_, err = e.svc.Overwrite(ctx, e.tn.TeacherIdentity, res.ID, OverwriteInput{})
	requireKind(t, err, apperr.KindValidation)

	other := e.f.Tenant()
	_, err = e.svc.Overwrite(ctx, other.TeacherIdentity, res.ID, OverwriteInput{Score: score(1)})
	requireKind(t, err, apperr.KindNotFound)

	got, err := e.svc.Overwrite(ctx, e.tn.TeacherIdentity, res.ID, OverwriteInput{Score: score(10)})
	require.NoError(t, err)
	require.Equal(t, 10.0, got.Score)

	var stored models.UserExamResult
	require.NoError(t, e.f.DB.First(&stored, res.ID).Error)
	require.Equal(t, 10.0, stored.Score)

	evs := e.rec.Events()
	require.Len(t, evs, 1)
	require.Equal(t, res.ID, evs[0].ResultID)
	require.Equal(t, 10.0, evs[0].Score)
}

func TestLeaderboard(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	second, _ := e.f.Student(e.tn.Institute)
	third, _ := e.f.Student(e.tn.Institute)
	e.result(t, e.tn.Student, 4)
	e.result(t, second, 9)
	e.result(t, third, 6)

	board, err := e.svc.Leaderboard(ctx, e.tn.TeacherIdentity, e.exam.ID)
	require.NoError(t, err)
	require.Len(t, board, 3)
	require.Equal(t, second.ID, board[0].StudentID)
	require.Equal(t, 9.0, board[0].Score)
	require.NotEmpty(t, board[0].Username)
	require.Equal(t, third.ID, board[1].StudentID)
	require.Equal(t, e.tn.Student.ID, board[2].StudentID)

	_, err = e.svc.Leaderboard(ctx, e.tn.StudentIdentity, e.exam.ID)
	requireKind(t, err, apperr.KindPermission)

	other := e.f.Tenant()
	_, err = e.svc.Leaderboard(ctx, other.TeacherIdentity, e.exam.ID)
	requireKind(t, err, apperr.KindNotFound)

	_, err = e.svc.Leaderboard(ctx, e.f.Admin, 9999)
	requireKind(t, err, apperr.KindNotFound)
}
