package models

import "time"

// UserAnswer is a free-text answer to a Descriptive question. Score stays nil
// until a grader assigns one.
type UserAnswer struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	StudentID  uint      `json:"student_id" gorm:"uniqueIndex:idx_user_answer_student_question;not null"`
	Student    *Student  `json:"student,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	QuestionID uint      `json:"question_id" gorm:"uniqueIndex:idx_user_answer_student_question;index;not null"`
	Question   *Question `json:"question,omitempty" gorm:"constraint:OnDelete:RESTRICT"`
	AnswerText string    `json:"answer_text" gorm:"not null"`
	Score      *float64  `json:"score"`
}

// UserOptions is the selected option for a MultipleChoice or TrueFalse question.
type UserOptions struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	StudentID  uint      `json:"student_id" gorm:"uniqueIndex:idx_user_options_student_question;not null"`
	Student    *Student  `json:"student,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	ExamID     uint      `json:"exam_id" gorm:"index;not null"`
	QuestionID uint      `json:"question_id" gorm:"uniqueIndex:idx_user_options_student_question;index;not null"`
	Question   *Question `json:"question,omitempty" gorm:"constraint:OnDelete:RESTRICT"`
	OptionID   uint      `json:"answer_option_id" gorm:"index;not null"`
	Option     *Option   `json:"answer_option,omitempty" gorm:"constraint:OnDelete:RESTRICT"`
}

// UserExamResult is the engine-maintained running total for one student on one exam.
type UserExamResult struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	StudentID uint      `json:"student_id" gorm:"uniqueIndex:idx_user_exam_result;not null"`
	Student   *Student  `json:"student,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	ExamID    uint      `json:"exam_id" gorm:"uniqueIndex:idx_user_exam_result;index;not null"`
	Exam      *Exam     `json:"exam,omitempty" gorm:"constraint:OnDelete:RESTRICT"`
	Score     float64   `json:"score" gorm:"not null;default:0"`
}

type LeaderboardEntry struct {
	StudentID uint    `json:"student_id"`
	Username  string  `json:"username"`
	Score     float64 `json:"score"`
}

// All lists every model in migration order.
func All() []interface{} {
	return []interface{}{
		&Account{},
		&Institute{},
		&Major{},
		&Teacher{},
		&Student{},
		&Classroom{},
		&StudentClassroom{},
		&ExamCategory{},
		&Exam{},
		&Question{},
		&Option{},
		&UserAnswer{},
		&UserOptions{},
		&UserExamResult{},
		&Feedback{},
	}
}

func (UserOptions) TableName() string { return "user_options" }
