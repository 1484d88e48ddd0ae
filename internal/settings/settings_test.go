package settings

import "testing"

func TestMaskKey(t *testing.T) {
	cases := map[string]string{
		"":             "",
		"abc":          "****",
		"sk-123456789": "****6789",
	}
	for key, want := range cases {
		if got := MaskKey(key); got != want {
			t.Fatalf("MaskKey(%q) = %q, want %q", key, got, want)
		}
	}

	s := Settings{APIKey: "sk-abcdef", SelectedProvider: "Groq"}
	if r := s.Redacted(); r.APIKey != "****cdef" || r.SelectedProvider != "Groq" {
		t.Fatalf("unexpected redacted settings %+v", r)
	}
	if s.APIKey != "sk-abcdef" {
		t.Fatalf("Redacted modified the original: %q", s.APIKey)
	}
}
