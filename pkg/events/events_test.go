package events

import "testing"

func TestChannelRoundTrip(t *testing.T) {
	for _, id := range []uint{1, 42, 987654} {
		got, err := ExamFromChannel(Channel(id))
		if err != nil {
			t.Fatalf("ExamFromChannel(%d): %v", id, err)
		}
		if got != id {
			t.Fatalf("exam id: want=%d got=%d", id, got)
		}
	}
}

func TestExamFromChannelRejectsForeignChannels(t *testing.T) {
	for _, ch := range []string{"", "exam:1", "quiz:1:results", "exam:x:results", "exam:1:answers"} {
		if _, err := ExamFromChannel(ch); err == nil {
			t.Fatalf("ExamFromChannel(%q): want error", ch)
		}
	}
}
