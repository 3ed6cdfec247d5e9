package scoring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"exam-system/internal/apperr"
	"exam-system/internal/authz"
	"exam-system/internal/exam"
	"exam-system/internal/models"
	"exam-system/internal/testutil"
	"exam-system/pkg/events"
	"exam-system/pkg/logger"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type env struct {
	svc    *Service
	f      *testutil.Fixture
	clock  *testutil.Clock
	rec    *testutil.Recorder
	tn     testutil.Tenant
	exam   models.Exam
	choice models.Question
	a, b   models.Option
	essay  models.Question
}

// setup builds an exam open from t0-1h to t0+1h with one multiple-choice
// question (A correct, B wrong) and one descriptive question, both worth 5.
func setup(t *testing.T, showAt *time.Time) *env {
	t.Helper()
	f := testutil.Seed(t)
	rec := &testutil.Recorder{}
	svc := NewService(NewRepository(f.DB), exam.NewRepository(f.DB), authz.NewEngine(), rec, logger.Nop())
	clock := testutil.NewClock(t0)
	svc.SetClock(clock.Now)

	e := &env{svc: svc, f: f, clock: clock, rec: rec, tn: f.Tenant()}
	e.exam = f.Exam(e.tn.Classroom, e.tn.Teacher.AccountID, t0.Add(-time.Hour), t0.Add(time.Hour), showAt)
	e.choice = f.Question(e.exam, models.QuestionMultipleChoice, 5)
	e.a = f.Option(e.choice, "A", true)
	e.b = f.Option(e.choice, "B", false)
	e.essay = f.Question(e.exam, models.QuestionDescriptive, 5)
	return e
}

func (e *env) score(t *testing.T, studentID uint) float64 {
	t.Helper()
	var res models.UserExamResult
	err := e.f.DB.Where("student_id = ? AND exam_id = ?", studentID, e.exam.ID).First(&res).Error
	require.NoError(t, err)
	return res.Score
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}

func requireField(t *testing.T, err error, field string) {
	t.Helper()
	requireKind(t, err, apperr.KindValidation)
	for _, fe := range apperr.As(err).Fields {
		if fe.Field == field {
			return
		}
	}
	t.Fatalf("field %q: missing from %+v", field, apperr.As(err).Fields)
}

func ptr(f float64) *float64 { return &f }

func TestResultTracksAnswers(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	student := e.tn.StudentIdentity

	sel, err := e.svc.SubmitSelection(ctx, student, SelectionInput{QuestionID: e.choice.ID, OptionID: e.b.ID})
	require.NoError(t, err)
	require.Equal(t, e.exam.ID, sel.ExamID)
	require.Equal(t, 0.0, e.score(t, e.tn.Student.ID))

	_, err = e.svc.ChangeSelection(ctx, student, sel.ID, SelectionUpdate{OptionID: e.a.ID})
	require.NoError(t, err)
	require.Equal(t, 5.0, e.score(t, e.tn.Student.ID))

	_, err = e.svc.ChangeSelection(ctx, student, sel.ID, SelectionUpdate{OptionID: e.b.ID})
	require.NoError(t, err)
	require.Equal(t, 0.0, e.score(t, e.tn.Student.ID))

	ans, err := e.svc.SubmitAnswer(ctx, student, AnswerInput{QuestionID: e.essay.ID, AnswerText: "because"})
	require.NoError(t, err)
	require.Nil(t, ans.Score)
	require.Equal(t, 0.0, e.score(t, e.tn.Student.ID))

	_, err = e.svc.UpdateAnswer(ctx, e.tn.TeacherIdentity, ans.ID, AnswerUpdate{Score: ptr(3)})
	require.NoError(t, err)
	require.Equal(t, 3.0, e.score(t, e.tn.Student.ID))

	_, err = e.svc.UpdateAnswer(ctx, e.tn.TeacherIdentity, ans.ID, AnswerUpdate{Score: ptr(6)})
	requireField(t, err, "score")
	require.Equal(t, 3.0, e.score(t, e.tn.Student.ID))

	_, err = e.svc.UpdateAnswer(ctx, e.tn.TeacherIdentity, ans.ID, AnswerUpdate{Score: ptr(-1)})
	requireField(t, err, "score")

	_, err = e.svc.UpdateAnswer(ctx, e.tn.InstituteIdentity, ans.ID, AnswerUpdate{Score: ptr(1.5)})
	require.NoError(t, err)
	require.Equal(t, 1.5, e.score(t, e.tn.Student.ID))
}

func TestReselectingSameOptionIsNeutral(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	student := e.tn.StudentIdentity

	sel, err := e.svc.SubmitSelection(ctx, student, SelectionInput{QuestionID: e.choice.ID, OptionID: e.a.ID})
	require.NoError(t, err)
	require.Equal(t, 5.0, e.score(t, e.tn.Student.ID))

	for i := 0; i < 3; i++ {
		_, err = e.svc.ChangeSelection(ctx, student, sel.ID, SelectionUpdate{OptionID: e.a.ID})
		require.NoError(t, err)
	}
	require.Equal(t, 5.0, e.score(t, e.tn.Student.ID))

	_, err = e.svc.SubmitSelection(ctx, student, SelectionInput{QuestionID: e.choice.ID, OptionID: e.b.ID})
	requireField(t, err, "question_id")
	require.Equal(t, 5.0, e.score(t, e.tn.Student.ID))
}

func TestSubmissionChecks(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	student := e.tn.StudentIdentity
	other := e.f.Tenant()
	foreign := e.f.Option(e.f.Question(e.exam, models.QuestionTrueFalse, 1), "True", true)

	_, err := e.svc.SubmitAnswer(ctx, student, AnswerInput{QuestionID: e.choice.ID, AnswerText: "A"})
	requireField(t, err, "question_id")

	_, err = e.svc.SubmitSelection(ctx, student, SelectionInput{QuestionID: e.essay.ID, OptionID: e.a.ID})
	requireField(t, err, "question_id")

	_, err = e.svc.SubmitSelection(ctx, student, SelectionInput{QuestionID: e.choice.ID, OptionID: foreign.ID})
	requireField(t, err, "answer_option_id")

	_, err = e.svc.SubmitAnswer(ctx, student, AnswerInput{QuestionID: e.essay.ID})
	requireField(t, err, "answer_text")
	_, err = e.svc.SubmitAnswer(ctx, student, AnswerInput{QuestionID: e.essay.ID, AnswerText: " \t\n "})
	requireField(t, err, "answer_text")

	// Another institute's student cannot see the question at all.
	_, err = e.svc.SubmitAnswer(ctx, other.StudentIdentity, AnswerInput{QuestionID: e.essay.ID, AnswerText: "x"})
	requireField(t, err, "question_id")

	// Nobody answers for someone else except an admin.
	_, err = e.svc.SubmitAnswer(ctx, e.tn.TeacherIdentity, AnswerInput{QuestionID: e.essay.ID, StudentID: e.tn.Student.ID, AnswerText: "x"})
	requireKind(t, err, apperr.KindPermission)

	classmate, classmateID := e.f.Student(e.tn.Institute)
	_, err = e.svc.SubmitAnswer(ctx, student, AnswerInput{QuestionID: e.essay.ID, StudentID: classmate.ID, AnswerText: "x"})
	requireKind(t, err, apperr.KindPermission)

	_, err = e.svc.SubmitAnswer(ctx, e.f.Admin, AnswerInput{QuestionID: e.essay.ID, AnswerText: "x"})
	requireField(t, err, "student_id")

	_, err = e.svc.SubmitAnswer(ctx, e.f.Admin, AnswerInput{QuestionID: e.essay.ID, StudentID: other.Student.ID, AnswerText: "x"})
	requireField(t, err, "student_id")

	a, err := e.svc.SubmitAnswer(ctx, e.f.Admin, AnswerInput{QuestionID: e.essay.ID, StudentID: classmate.ID, AnswerText: "x"})
	require.NoError(t, err)
	require.Equal(t, classmate.ID, a.StudentID)

	_, err = e.svc.SubmitAnswer(ctx, classmateID, AnswerInput{QuestionID: e.essay.ID, AnswerText: "again"})
	requireField(t, err, "question_id")
}

func TestExamWindow(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	student := e.tn.StudentIdentity

	e.clock.Set(t0.Add(-2 * time.Hour))
	_, err := e.svc.SubmitAnswer(ctx, student, AnswerInput{QuestionID: e.essay.ID, AnswerText: "early"})
	requireKind(t, err, apperr.KindPermission)

	e.clock.Set(t0)
	ans, err := e.svc.SubmitAnswer(ctx, student, AnswerInput{QuestionID: e.essay.ID, AnswerText: "on time"})
	require.NoError(t, err)
	sel, err := e.svc.SubmitSelection(ctx, student, SelectionInput{QuestionID: e.choice.ID, OptionID: e.b.ID})
	require.NoError(t, err)

	text := "edited"
	_, err = e.svc.UpdateAnswer(ctx, student, ans.ID, AnswerUpdate{AnswerText: &text})
	require.NoError(t, err)

	e.clock.Set(t0.Add(time.Hour))
	_, err = e.svc.UpdateAnswer(ctx, student, ans.ID, AnswerUpdate{AnswerText: &text})
	requireKind(t, err, apperr.KindPermission)
	_, err = e.svc.ChangeSelection(ctx, student, sel.ID, SelectionUpdate{OptionID: e.a.ID})
	requireKind(t, err, apperr.KindPermission)

	// Graders are not bound by the window.
	_, err = e.svc.ChangeSelection(ctx, e.tn.TeacherIdentity, sel.ID, SelectionUpdate{OptionID: e.a.ID})
	require.NoError(t, err)
	require.Equal(t, 5.0, e.score(t, e.tn.Student.ID))
}

func TestStudentCannotGradeOrEditScored(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	student := e.tn.StudentIdentity

	ans, err := e.svc.SubmitAnswer(ctx, student, AnswerInput{QuestionID: e.essay.ID, AnswerText: "x"})
	require.NoError(t, err)

	_, err = e.svc.UpdateAnswer(ctx, student, ans.ID, AnswerUpdate{Score: ptr(5)})
	requireKind(t, err, apperr.KindPermission)

	_, err = e.svc.UpdateAnswer(ctx, e.tn.TeacherIdentity, ans.ID, AnswerUpdate{Score: ptr(2)})
	require.NoError(t, err)

	text := "better"
	_, err = e.svc.UpdateAnswer(ctx, student, ans.ID, AnswerUpdate{AnswerText: &text})
	requireKind(t, err, apperr.KindPermission)

	_, err = e.svc.UpdateAnswer(ctx, e.tn.TeacherIdentity, ans.ID, AnswerUpdate{})
	requireKind(t, err, apperr.KindValidation)

	// Graders of another tenant do not see the answer.
	other := e.f.Tenant()
	_, err = e.svc.UpdateAnswer(ctx, other.TeacherIdentity, ans.ID, AnswerUpdate{Score: ptr(1)})
	requireKind(t, err, apperr.KindNotFound)
	require.Equal(t, 2.0, e.score(t, e.tn.Student.ID))
}

func TestDeleteReversesCredit(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	student := e.tn.StudentIdentity

	sel, err := e.svc.SubmitSelection(ctx, student, SelectionInput{QuestionID: e.choice.ID, OptionID: e.a.ID})
	require.NoError(t, err)
	ans, err := e.svc.SubmitAnswer(ctx, student, AnswerInput{QuestionID: e.essay.ID, AnswerText: "x"})
	require.NoError(t, err)
	_, err = e.svc.UpdateAnswer(ctx, e.tn.TeacherIdentity, ans.ID, AnswerUpdate{Score: ptr(4)})
	require.NoError(t, err)
	require.Equal(t, 9.0, e.score(t, e.tn.Student.ID))

	requireKind(t, e.svc.DeleteSelection(ctx, e.tn.TeacherIdentity, sel.ID), apperr.KindPermission)
	requireKind(t, e.svc.DeleteAnswer(ctx, student, ans.ID), apperr.KindPermission)

	require.NoError(t, e.svc.DeleteSelection(ctx, e.f.Admin, sel.ID))
	require.Equal(t, 4.0, e.score(t, e.tn.Student.ID))
	require.NoError(t, e.svc.DeleteAnswer(ctx, e.f.Admin, ans.ID))
	require.Equal(t, 0.0, e.score(t, e.tn.Student.ID))

	requireKind(t, e.svc.DeleteAnswer(ctx, e.f.Admin, ans.ID), apperr.KindNotFound)
}

func TestScoreHiddenUntilRelease(t *testing.T) {
	showAt := t0.Add(2 * time.Hour)
	e := setup(t, &showAt)
	ctx := context.Background()
	student := e.tn.StudentIdentity

	ans, err := e.svc.SubmitAnswer(ctx, student, AnswerInput{QuestionID: e.essay.ID, AnswerText: "x"})
	require.NoError(t, err)
	_, err = e.svc.UpdateAnswer(ctx, e.tn.TeacherIdentity, ans.ID, AnswerUpdate{Score: ptr(4)})
	require.NoError(t, err)

	got, err := e.svc.GetAnswer(ctx, student, ans.ID)
	require.NoError(t, err)
	require.Nil(t, got.Score)
	list, err := e.svc.ListAnswers(ctx, student, AnswerFilter{ExamID: e.exam.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Nil(t, list[0].Score)

	got, err = e.svc.GetAnswer(ctx, e.tn.TeacherIdentity, ans.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Score)

	e.clock.Set(showAt)
	got, err = e.svc.GetAnswer(ctx, student, ans.ID)
	require.NoError(t, err)
	require.Equal(t, 4.0, *got.Score)
}

func TestListScopes(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	classmate, classmateID := e.f.Student(e.tn.Institute)
	e.f.Enroll(e.tn.Classroom, classmate)

	_, err := e.svc.SubmitSelection(ctx, e.tn.StudentIdentity, SelectionInput{QuestionID: e.choice.ID, OptionID: e.a.ID})
	require.NoError(t, err)
	_, err = e.svc.SubmitSelection(ctx, classmateID, SelectionInput{QuestionID: e.choice.ID, OptionID: e.b.ID})
	require.NoError(t, err)

	mine, err := e.svc.ListSelections(ctx, e.tn.StudentIdentity, AnswerFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, e.tn.Student.ID, mine[0].StudentID)

	all, err := e.svc.ListSelections(ctx, e.tn.TeacherIdentity, AnswerFilter{QuestionID: e.choice.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)

	other := e.f.Tenant()
	none, err := e.svc.ListSelections(ctx, other.TeacherIdentity, AnswerFilter{})
	require.NoError(t, err)
	require.Empty(t, none)

	_, err = e.svc.GetSelection(ctx, classmateID, mine[0].ID)
	requireKind(t, err, apperr.KindNotFound)
}

func TestResultEventsPublished(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	sel, err := e.svc.SubmitSelection(ctx, e.tn.StudentIdentity, SelectionInput{QuestionID: e.choice.ID, OptionID: e.a.ID})
	require.NoError(t, err)
	_, err = e.svc.ChangeSelection(ctx, e.tn.StudentIdentity, sel.ID, SelectionUpdate{OptionID: e.b.ID})
	require.NoError(t, err)
	_, err = e.svc.ChangeSelection(ctx, e.tn.StudentIdentity, sel.ID, SelectionUpdate{OptionID: 9999})
	requireField(t, err, "answer_option_id")

	got := e.rec.Events()
	require.Len(t, got, 2)
	require.Equal(t, events.TypeResultUpdated, got[0].Type)
	require.Equal(t, e.exam.ID, got[0].ExamID)
	require.Equal(t, 5.0, got[0].Score)
	require.Equal(t, 0.0, got[1].Score)
}

func TestConcurrentSubmissionsAccumulate(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	const n = 8
	questions := make([]models.Question, n)
	options := make([]models.Option, n)
	for i := range questions {
		questions[i] = e.f.Question(e.exam, models.QuestionTrueFalse, 2)
		options[i] = e.f.Option(questions[i], "True", true)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range questions {
		wg.Add(1)
		go func(q models.Question, o models.Option) {
			defer wg.Done()
			_, err := e.svc.SubmitSelection(ctx, e.tn.StudentIdentity, SelectionInput{QuestionID: q.ID, OptionID: o.ID})
			errs <- err
		}(questions[i], options[i])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, float64(2*n), e.score(t, e.tn.Student.ID))

	var count int64
	require.NoError(t, e.f.DB.Model(&models.UserExamResult{}).Where("student_id = ?", e.tn.Student.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestConcurrentDuplicateSubmissionCreditsOnce(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.svc.SubmitSelection(ctx, e.tn.StudentIdentity, SelectionInput{QuestionID: e.choice.ID, OptionID: e.a.ID})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		kind := apperr.KindOf(err)
		require.True(t, kind == apperr.KindValidation || kind == apperr.KindConflict, "error: %v", err)
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 5.0, e.score(t, e.tn.Student.ID))

	var count int64
	require.NoError(t, e.f.DB.Model(&models.UserOptions{}).Where("student_id = ? AND question_id = ?", e.tn.Student.ID, e.choice.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestConcurrentSelectionChangesSerialize(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	sel, err := e.svc.SubmitSelection(ctx, e.tn.StudentIdentity, SelectionInput{QuestionID: e.choice.ID, OptionID: e.b.ID})
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		next := e.a.ID
		if i%2 == 1 {
			next = e.b.ID
		}
		wg.Add(1)
		go func(optionID uint) {
			defer wg.Done()
			_, err := e.svc.ChangeSelection(ctx, e.tn.StudentIdentity, sel.ID, SelectionUpdate{OptionID: optionID})
			errs <- err
		}(next)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			requireKind(t, err, apperr.KindConflict)
		}
	}

	var final models.UserOptions
	require.NoError(t, e.f.DB.First(&final, sel.ID).Error)
	want := 0.0
	if final.OptionID == e.a.ID {
		want = 5.0
	}
	require.Equal(t, want, e.score(t, e.tn.Student.ID))
}
