package keyboard

import (
	"testing"

	"github.com/m3rciful/sheetbot/core/scene"
)

func TestFromScene(t *testing.T) {
	markup := FromScene([][]scene.Button{
		{{Text: "Retry", Action: "verify_access"}, {Text: "Change", Action: "change_spreadsheet"}},
		{{Text: "Open", URL: "https://docs.google.com/spreadsheets/d/abc"}},
		{{Text: "broken"}},
	})
	if markup == nil {
		t.Fatal("expected markup")
	}
	if got := len(markup.InlineKeyboard); got != 2 {
		t.Fatalf("rows = %d, want 2", got)
	}
	first := markup.InlineKeyboard[0]
	if len(first) != 2 || first[0].Unique != "verify_access" || first[1].Unique != "change_spreadsheet" {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if link := markup.InlineKeyboard[1][0]; link.URL != "https://docs.google.com/spreadsheets/d/abc" || link.Unique != "" {
		t.Fatalf("unexpected link button: %+v", link)
	}
}

func TestFromSceneEmpty(t *testing.T) {
	if FromScene(nil) != nil {
		t.Fatal("nil rows should give nil markup")
	}
	if FromScene([][]scene.Button{{{Text: "no target"}}}) != nil {
		t.Fatal("rows without targets should give nil markup")
	}
}

func TestInlineButtonsOnePerRow(t *testing.T) {
	markup := InlineButtons([]InlineBtn{{Text: "a", Unique: "a"}, {Text: "b", Unique: "b"}})
	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d, want 2", len(markup.InlineKeyboard))
	}
}
