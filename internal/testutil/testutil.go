// Package testutil builds in-memory sqlite stores populated with a tenancy
// chain for package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"exam-system/internal/identity"
	"exam-system/internal/models"
	"exam-system/pkg/database"
	"exam-system/pkg/events"
	"exam-system/pkg/logger"
)

// Password is the plain-text password of every seeded account.
const Password = "s3cret-pass"

// NewDB opens a fresh migrated in-memory database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.NewSQLiteDB("", logger.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type Fixture struct {
	t     testing.TB
	DB    *gorm.DB
	Admin identity.Identity
	Major models.Major

	seq  int
	hash string
}

// Seed returns a fixture holding one admin account and one major.
func Seed(t testing.TB) *Fixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	f := &Fixture{t: t, DB: NewDB(t), hash: string(hash)}
	admin := f.Account(identity.RoleAdmin)
	f.Admin = identity.Admin(admin.ID)
	f.Major = models.Major{Name: "Mathematics"}
	f.create(&f.Major)
	return f
}

func (f *Fixture) next() int {
	f.seq++
	return f.seq
}

func (f *Fixture) create(v interface{}) {
	f.t.Helper()
	if err := f.DB.Create(v).Error; err != nil {
		f.t.Fatalf("create %T: %v", v, err)
	}
}

func (f *Fixture) Account(role identity.Role) models.Account {
	f.t.Helper()
	n := f.next()
	acc := models.Account{
		Username:  fmt.Sprintf("%s%d", role, n),
		Email:     fmt.Sprintf("%s%d@example.com", role, n),
		FirstName: "Test",
		LastName:  fmt.Sprintf("User%d", n),
		Password:  f.hash,
		Role:      role,
		IsActive:  true,
	}
	f.create(&acc)
	return acc
}

func (f *Fixture) Institute() (models.Institute, identity.Identity) {
	f.t.Helper()
	acc := f.Account(identity.RoleInstitute)
	n := f.next()
	inst := models.Institute{
		AccountID:        acc.ID,
		Name:             fmt.Sprintf("Institute %d", n),
		RegistrationCode: fmt.Sprintf("REG-%d", n),
	}
	f.create(&inst)
	return inst, identity.Institute(acc.ID, inst.ID)
}

func (f *Fixture) Teacher(inst models.Institute) (models.Teacher, identity.Identity) {
	f.t.Helper()
	acc := f.Account(identity.RoleTeacher)
	teacher := models.Teacher{
		AccountID:    acc.ID,
		InstituteID:  inst.ID,
		NationalCode: fmt.Sprintf("%010d", f.next()),
		Expertise:    "Algebra",
	}
	f.create(&teacher)
	return teacher, identity.Teacher(acc.ID, teacher.ID, inst.ID)
}

func (f *Fixture) Student(inst models.Institute) (models.Student, identity.Identity) {
	f.t.Helper()
	acc := f.Account(identity.RoleStudent)
	student := models.Student{
		AccountID:    acc.ID,
		InstituteID:  inst.ID,
		NationalCode: fmt.Sprintf("%010d", f.next()),
		MajorID:      f.Major.ID,
		Gender:       "female",
	}
	f.create(&student)
	return student, identity.Student(acc.ID, student.ID, inst.ID)
}

func (f *Fixture) Classroom(teacher models.Teacher) models.Classroom {
	f.t.Helper()
	c := models.Classroom{
		Name:      fmt.Sprintf("Class %d", f.next()),
		TeacherID: teacher.ID,
		Grade:     models.GradeTenth,
	}
	f.create(&c)
	return c
}

func (f *Fixture) Enroll(c models.Classroom, s models.Student) models.StudentClassroom {
	f.t.Helper()
	m := models.StudentClassroom{ClassroomID: c.ID, StudentID: s.ID}
	f.create(&m)
	return m
}

// Exam creates an active exam in c running from start to end.
func (f *Fixture) Exam(c models.Classroom, creatorAccountID uint, start, end time.Time, showAt *time.Time) models.Exam {
	f.t.Helper()
	e := models.Exam{
		Title:           fmt.Sprintf("Exam %d", f.next()),
		StartTime:       start,
		EndTime:         end,
		DurationMinutes: uint(end.Sub(start) / time.Minute),
		ResultShowTime:  showAt,
		IsActive:        true,
		CreatorID:       creatorAccountID,
		ClassroomID:     c.ID,
	}
	f.create(&e)
	return e
}

func (f *Fixture) Question(e models.Exam, typ models.QuestionType, maxScore float64) models.Question {
	f.t.Helper()
	q := models.Question{
		ExamID:   e.ID,
		Text:     fmt.Sprintf("Question %d", f.next()),
		Type:     typ,
		MaxScore: maxScore,
	}
	f.create(&q)
	return q
}

func (f *Fixture) Option(q models.Question, text string, correct bool) models.Option {
	f.t.Helper()
	o := models.Option{QuestionID: q.ID, Text: text, IsCorrect: correct}
	f.create(&o)
	return o
}

// Tenant is a fully linked institute → teacher → classroom chain with one
// enrolled student.
type Tenant struct {
	Institute         models.Institute
	InstituteIdentity identity.Identity
	Teacher           models.Teacher
	TeacherIdentity   identity.Identity
	Student           models.Student
	StudentIdentity   identity.Identity
	Classroom         models.Classroom
}

func (f *Fixture) Tenant() Tenant {
	f.t.Helper()
	var tn Tenant
	tn.Institute, tn.InstituteIdentity = f.Institute()
	tn.Teacher, tn.TeacherIdentity = f.Teacher(tn.Institute)
	tn.Student, tn.StudentIdentity = f.Student(tn.Institute)
	tn.Classroom = f.Classroom(tn.Teacher)
	f.Enroll(tn.Classroom, tn.Student)
	return tn
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock { return &Clock{now: now} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Recorder is an events.Publisher that keeps every published event.
type Recorder struct {
	mu     sync.Mutex
	events []events.ResultEvent
}

func (r *Recorder) PublishResult(_ context.Context, ev events.ResultEvent) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Events() []events.ResultEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.ResultEvent(nil), r.events...)
}
