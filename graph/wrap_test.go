package graph

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestWrapShortLabelUnchanged(t *testing.T) {
	if got := WrapLabel("Start", NodeLabelWidth); got != "Start" {
		t.Errorf("Short label must not be wrapped, got '%s'", got)
	}
}

func TestWrapBreaksAtWidth(t *testing.T) {
	label := "una etichetta decisamente lunga"
	wrapped := WrapLabel(label, 12)

	for _, line := range strings.Split(wrapped, "\n") {
		if len(line) > 12 {
			t.Errorf("Line exceeds width: '%s' (%d)", line, len(line))
		}
	}
}

func TestWrapPrefersDotBreak(t *testing.T) {
	wrapped := WrapLabel("chapter.one.intro.scene", 12)
	lines := strings.Split(wrapped, "\n")

	// Spezzando sui punti la prima riga termina con un punto
	if !strings.HasSuffix(lines[0], ".") {
		t.Errorf("Expected break after dot, got first line '%s'", lines[0])
	}
}

func TestWrapHardSplitWithoutBreakpoints(t *testing.T) {
	wrapped := WrapLabel("abcdefghijklmnopqrstuvwxyz", 10)
	lines := strings.Split(wrapped, "\n")

	if lines[0] != "abcdefghij" {
		t.Errorf("Expected hard split at width, got '%s'", lines[0])
	}
	if strings.Join(lines, "") != "abcdefghijklmnopqrstuvwxyz" {
		t.Errorf("Hard split must not lose characters: %v", lines)
	}
}

// Le etichette con caratteri multibyte non vanno tagliate a metà di una
// runa: ogni riga deve restare UTF-8 valida e la larghezza è in rune
func TestWrapMultibyteLabel(t *testing.T) {
	label := "città_perduta_però_più_lontana"
	wrapped := WrapLabel(label, 12)

	for _, line := range strings.Split(wrapped, "\n") {
		if !utf8.ValidString(line) {
			t.Errorf("Line is not valid UTF-8: %q", line)
		}
		if utf8.RuneCountInString(line) > 12 {
			t.Errorf("Line exceeds rune width: '%s' (%d rune)", line, utf8.RuneCountInString(line))
		}
	}

	t.Logf("✅ Etichetta multibyte spezzata:\n%s", wrapped)
}

// Taglio secco su un'etichetta interamente multibyte senza punti di rottura
func TestWrapHardSplitMultibyte(t *testing.T) {
	label := strings.Repeat("è", 25)
	wrapped := WrapLabel(label, 10)
	lines := strings.Split(wrapped, "\n")

	for _, line := range lines {
		if !utf8.ValidString(line) {
			t.Fatalf("Hard split produced invalid UTF-8: %q", line)
		}
	}
	if strings.Join(lines, "") != label {
		t.Errorf("Hard split must not lose characters: %v", lines)
	}
	if utf8.RuneCountInString(lines[0]) != 10 {
		t.Errorf("Expected 10 runes in first line, got %d", utf8.RuneCountInString(lines[0]))
	}
}

func TestWrapUnderscoreBreak(t *testing.T) {
	wrapped := WrapLabel("boss_fight_final_arena", 12)

	for _, line := range strings.Split(wrapped, "\n") {
		if len(line) > 12 {
			t.Errorf("Line exceeds width: '%s'", line)
		}
	}
}
