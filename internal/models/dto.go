package models

// OptionView is an Option as shown to a particular reader. IsCorrect is nil
// when the reader may not see it yet.
type OptionView struct {
	ID         uint   `json:"id"`
	QuestionID uint   `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  *bool  `json:"is_correct,omitempty"`
}

type QuestionView struct {
	ID       uint         `json:"id"`
	ExamID   uint         `json:"exam_id"`
	Text     string       `json:"text"`
	Type     QuestionType `json:"question_type"`
	MaxScore float64      `json:"score"`
	Options  []OptionView `json:"options,omitempty"`
}

func (o Option) ToView(revealCorrect bool) OptionView {
	v := OptionView{
		ID:         o.ID,
		QuestionID: o.QuestionID,
		Text:       o.Text,
	}
	if revealCorrect {
		correct := o.IsCorrect
		v.IsCorrect = &correct
	}
	return v
}

func (q Question) ToView(revealCorrect bool) QuestionView {
	optionViews := make([]OptionView, len(q.Options))
	for i, opt := range q.Options {
		optionViews[i] = opt.ToView(revealCorrect)
	}
	return QuestionView{
		ID:       q.ID,
		ExamID:   q.ExamID,
		Text:     q.Text,
		Type:     q.Type,
		MaxScore: q.MaxScore,
		Options:  optionViews,
	}
}
