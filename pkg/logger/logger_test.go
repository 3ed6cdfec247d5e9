package logger

import "testing"

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	got := sanitizeKVs([]interface{}{"username", "sara", "password", "hunter2", "jwt_token", "abc", "dangling"})
	want := []interface{}{"username", "sara", "password", "[REDACTED]", "jwt_token", "[REDACTED]", "dangling"}
	if len(got) != len(want) {
		t.Fatalf("len: want=%d got=%d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("kv[%d]: want=%v got=%v", i, want[i], got[i])
		}
	}
}
