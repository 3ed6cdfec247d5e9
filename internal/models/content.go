package models

import (
	"time"
)

type Grade string

const (
	GradeFirst    Grade = "first_grade"
	GradeSecond   Grade = "second_grade"
	GradeThird    Grade = "third_grade"
	GradeFourth   Grade = "fourth_grade"
	GradeFifth    Grade = "fifth_grade"
	GradeSixth    Grade = "sixth_grade"
	GradeSeventh  Grade = "seventh_grade"
	GradeEighth   Grade = "eighth_grade"
	GradeNinth    Grade = "ninth_grade"
	GradeTenth    Grade = "tenth_grade"
	GradeEleventh Grade = "eleventh_grade"
	GradeTwelfth  Grade = "twelfth_grade"
	GradeBachelor Grade = "bachelor"
	GradeMaster   Grade = "master"
	GradePhD      Grade = "phd"
)

var Grades = []Grade{
	GradeFirst, GradeSecond, GradeThird, GradeFourth, GradeFifth, GradeSixth,
	GradeSeventh, GradeEighth, GradeNinth,
	GradeTenth, GradeEleventh, GradeTwelfth,
	GradeBachelor, GradeMaster, GradePhD,
}

func (g Grade) Valid() bool {
	for _, v := range Grades {
		if v == g {
			return true
		}
	}
	return false
}

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "MultipleChoice"
	QuestionDescriptive    QuestionType = "Descriptive"
	QuestionTrueFalse      QuestionType = "TrueFalse"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMultipleChoice, QuestionDescriptive, QuestionTrueFalse:
		return true
	}
	return false
}

// HasOptions reports whether answers to this question type are option selections.
func (t QuestionType) HasOptions() bool {
	return t == QuestionMultipleChoice || t == QuestionTrueFalse
}

type Classroom struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	CreatedAt   time.Time `json:"created_at"`
	Name        string    `json:"name" gorm:"size:100;not null"`
	TeacherID   uint      `json:"teacher_id" gorm:"index;not null"`
	Teacher     *Teacher  `json:"teacher,omitempty" gorm:"constraint:OnDelete:RESTRICT"`
	Grade       Grade     `json:"grade" gorm:"size:30;not null"`
	Description *string   `json:"description,omitempty"`
}

type StudentClassroom struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	ClassroomID uint       `json:"classroom_id" gorm:"uniqueIndex:idx_student_classroom;not null"`
	Classroom   *Classroom `json:"classroom,omitempty" gorm:"constraint:OnDelete:RESTRICT"`
	StudentID   uint       `json:"student_id" gorm:"uniqueIndex:idx_student_classroom;not null"`
	Student     *Student   `json:"student,omitempty" gorm:"constraint:OnDelete:RESTRICT"`
}

type ExamCategory struct {
	ID        uint     `json:"id" gorm:"primaryKey"`
	Name      string   `json:"name" gorm:"size:100;not null"`
	CreatorID uint     `json:"creator_id" gorm:"index;not null"`
	Creator   *Account `json:"creator,omitempty" gorm:"constraint:OnDelete:RESTRICT"`
}

type Exam struct {
	ID              uint          `json:"id" gorm:"primaryKey"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	Title           string        `json:"title" gorm:"size:200;not null"`
	Description     string        `json:"description" gorm:"size:500"`
	StartTime       time.Time     `json:"start_time" gorm:"not null"`
	EndTime         time.Time     `json:"end_time" gorm:"not null"`
	DurationMinutes uint          `json:"duration_minutes" gorm:"not null"`
	ResultShowTime  *time.Time    `json:"result_show_time,omitempty"`
	IsActive        bool          `json:"is_active" gorm:"not null"`
	CategoryID      *uint         `json:"category_id,omitempty" gorm:"index"`
	Category        *ExamCategory `json:"category,omitempty" gorm:"constraint:OnDelete:SET NULL"`
	CreatorID       uint          `json:"creator_id" gorm:"index;not null"`
	ClassroomID     uint          `json:"classroom_id" gorm:"index;not null"`
	Classroom       *Classroom    `json:"classroom,omitempty" gorm:"constraint:OnDelete:RESTRICT"`
}

// Ended reports whether the exam window has closed at now.
func (e Exam) Ended(now time.Time) bool {
	return !now.Before(e.EndTime)
}

type Question struct {
	ID       uint         `json:"id" gorm:"primaryKey"`
	ExamID   uint         `json:"exam_id" gorm:"index;not null"`
	Exam     *Exam        `json:"exam,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	Text     string       `json:"text" gorm:"not null"`
	Type     QuestionType `json:"question_type" gorm:"size:20;not null"`
	MaxScore float64      `json:"score" gorm:"not null"`
	Options  []Option     `json:"options,omitempty" gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE"`
}

type Option struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"index;not null"`
	Text       string `json:"text" gorm:"size:255;not null"`
	IsCorrect  bool   `json:"is_correct" gorm:"not null"`
}

type Feedback struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	StudentID uint      `json:"student_id" gorm:"index;not null"`
	Student   *Student  `json:"student,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	ExamID    uint      `json:"exam_id" gorm:"index;not null"`
	Exam      *Exam     `json:"exam,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	Text      string    `json:"text" gorm:"not null"`
}

func (Feedback) TableName() string { return "feedbacks" }
