package textutil

import (
	"testing"
	"unicode/utf8"
)

func TestEnsureUTF8ValidPassthrough(t *testing.T) {
	for _, s := range []string{"", "hello", "café", "日本語", "emoji 🎉"} {
		if got := EnsureUTF8(s); got != s {
			t.Errorf("EnsureUTF8(%q) = %q, want unchanged", s, got)
		}
	}
}

func TestEnsureUTF8RepairsLatin1(t *testing.T) {
	// "Garçon" encoded as ISO-8859-1 / Windows-1252.
	in := "Gar\xe7on"
	got := EnsureUTF8(in)
	if got != "Garçon" {
		t.Errorf("EnsureUTF8(%q) = %q, want %q", in, got, "Garçon")
	}
	if !utf8.ValidString(got) {
		t.Errorf("result is not valid UTF-8: %q", got)
	}
}

func TestEnsureUTF8AlwaysValid(t *testing.T) {
	inputs := []string{
		"\xff\xfe\xfd",
		"mixed valid \xc3 invalid",
		"\x80\x81",
	}
	for _, in := range inputs {
		if got := EnsureUTF8(in); !utf8.ValidString(got) {
			t.Errorf("EnsureUTF8(%q) = %q, not valid UTF-8", in, got)
		}
	}
}

func TestSanitizeUTF8(t *testing.T) {
	got := SanitizeUTF8("ok\xffbad")
	if got != "ok�bad" {
		t.Errorf("SanitizeUTF8 = %q, want %q", got, "ok�bad")
	}
}

func TestGetEncodingByName(t *testing.T) {
	known := []string{"windows-1252", "ISO-8859-1", "Shift_JIS", "EUC-KR", "GBK", "Big5", "KOI8-R"}
	for _, name := range known {
		if GetEncodingByName(name) == nil {
			t.Errorf("GetEncodingByName(%q) = nil, want an encoding", name)
		}
	}
	if GetEncodingByName("no-such-charset") != nil {
		t.Error("unknown charset should return nil")
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"one line", "one line"},
		{"first\nsecond", "first"},
		{"\r\n\nleading newlines\nrest", "leading newlines"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FirstLine(tt.in); got != tt.want {
			t.Errorf("FirstLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
