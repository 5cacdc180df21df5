package format

import "testing"

func TestEscapeMarkdown(t *testing.T) {
	cases := []struct {
		in      string
		version int
		want    string
	}{
		{"plain", MarkdownV1, "plain"},
		{"my_sheet*v[1]`", MarkdownV1, "my\\_sheet\\*v\\[1]\\`"},
		{"a.b-c!", MarkdownV2, "a\\.b\\-c\\!"},
		{"(x)", MarkdownV2, "\\(x\\)"},
	}
	for _, tc := range cases {
		got, err := EscapeMarkdown(tc.in, tc.version)
		if err != nil {
			t.Fatalf("EscapeMarkdown(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("EscapeMarkdown(%q, %d) = %q, want %q", tc.in, tc.version, got, tc.want)
		}
	}
	if _, err := EscapeMarkdown("x", 3); err == nil {
		t.Fatal("expected error for unknown version")
	}
}

func TestMustEscapeURL(t *testing.T) {
	in := "https://docs.google.com/spreadsheets/d/abc_DEF/edit"
	want := "https://docs.google.com/spreadsheets/d/abc\\_DEF/edit"
	if got := MustEscape(in); got != want {
		t.Fatalf("MustEscape = %q, want %q", got, want)
	}
}
