package compiler

import (
	"testing"

	json "github.com/goccy/go-json"

	"bardic-editor/parser"
)

func decodeStory(t *testing.T, data string) *CompiledStory {
	t.Helper()
	story := &CompiledStory{}
	if err := json.Unmarshal([]byte(data), story); err != nil {
		t.Fatalf("JSON non decodificabile: %v", err)
	}
	return story
}

// ============================================
// Normalizzazione base
// ============================================

func TestNormalizeFlatChoices(t *testing.T) {
	story := decodeStory(t, `{
		"passages": {
			"Start": {"choices": [
				{"text": "Vai", "target": "Middle"},
				{"text": "", "target": "End", "type": "jump"}
			]},
			"Middle": {}
		},
		"start_passage": "Start"
	}`)

	normalized := story.Normalize()

	choices := normalized.Passages["Start"].Choices
	if len(choices) != 2 {
		t.Fatalf("Expected 2 choices, got %d", len(choices))
	}

	if choices[0].Text != "Vai" || choices[0].IsJump || choices[0].IsConditional {
		t.Errorf("Wrong plain choice: %+v", choices[0])
	}
	if !choices[1].IsJump || choices[1].Text != parser.JumpGlyph {
		t.Errorf("Wrong jump choice: %+v", choices[1])
	}
}

func TestNormalizeMissingTextIsJump(t *testing.T) {
	story := decodeStory(t, `{
		"passages": {
			"A": {"choices": [{"target": "B"}]}
		}
	}`)

	choice := story.Normalize().Passages["A"].Choices[0]
	if !choice.IsJump {
		t.Error("A choice without text must be a jump")
	}
	if choice.Text != parser.JumpGlyph {
		t.Errorf("Expected placeholder glyph, got '%s'", choice.Text)
	}
}

func TestNormalizeConditionFlag(t *testing.T) {
	story := decodeStory(t, `{
		"passages": {
			"A": {"choices": [{"text": "Fight", "target": "B", "condition": "hp > 0"}]}
		}
	}`)

	choice := story.Normalize().Passages["A"].Choices[0]
	if !choice.IsConditional {
		t.Error("A choice with a condition must be conditional")
	}
}

// L'etichetta può arrivare come lista ordinata di token con campo value
func TestNormalizeTokenizedText(t *testing.T) {
	story := decodeStory(t, `{
		"passages": {
			"A": {"choices": [{
				"text": [{"value": "Apri la "}, {"value": "porta"}],
				"target": "B"
			}]}
		}
	}`)

	choice := story.Normalize().Passages["A"].Choices[0]
	if choice.Text != "Apri la porta" {
		t.Errorf("Expected concatenated token values, got '%s'", choice.Text)
	}

	t.Logf("✅ Token ricomposti: '%s'", choice.Text)
}

func TestNormalizeParams(t *testing.T) {
	story := decodeStory(t, `{
		"passages": {
			"Shop": {"params": ["item", "price"]}
		}
	}`)

	passage := story.Normalize().Passages["Shop"]
	if !passage.HasParams {
		t.Error("Expected HasParams = true")
	}
	if passage.FullName != "Shop(item, price)" {
		t.Errorf("Wrong full name: '%s'", passage.FullName)
	}
}

// ============================================
// Scelte annidate nell'albero di contenuto
// ============================================

func TestNormalizeChoicesInsideLoop(t *testing.T) {
	story := decodeStory(t, `{
		"passages": {
			"A": {
				"choices": [{"text": "statica", "target": "S"}],
				"content": [{
					"type": "loop",
					"choices": [{"text": "nel loop", "target": "L"}]
				}]
			}
		}
	}`)

	choices := story.Normalize().Passages["A"].Choices
	if len(choices) != 2 {
		t.Fatalf("Expected 2 choices, got %d", len(choices))
	}

	// Le scelte statiche vengono prima di quelle scoperte nell'albero
	if choices[0].Target != "S" || choices[1].Target != "L" {
		t.Errorf("Wrong choice order: %+v", choices)
	}
}

func TestNormalizeChoicesInsideConditionalBranches(t *testing.T) {
	story := decodeStory(t, `{
		"passages": {
			"A": {
				"content": [{
					"type": "conditional",
					"branches": [
						{"choices": [{"text": "ramo if", "target": "B"}]},
						{"choices": [{"text": "ramo else", "target": "C"}]}
					]
				}]
			}
		}
	}`)

	choices := story.Normalize().Passages["A"].Choices
	if len(choices) != 2 {
		t.Fatalf("Expected 2 choices, got %d", len(choices))
	}
	if choices[0].Target != "B" || choices[1].Target != "C" {
		t.Errorf("Wrong branch order: %+v", choices)
	}
}

// Annidamento a profondità arbitraria: loop dentro ramo dentro loop
func TestNormalizeDeeplyNestedChoices(t *testing.T) {
	story := decodeStory(t, `{
		"passages": {
			"A": {
				"content": [{
					"type": "loop",
					"content": [{
						"type": "conditional",
						"branches": [{
							"content": [{
								"type": "loop",
								"choices": [{"text": "profonda", "target": "Deep"}]
							}]
						}]
					}]
				}]
			}
		}
	}`)

	choices := story.Normalize().Passages["A"].Choices
	if len(choices) != 1 {
		t.Fatalf("Expected 1 deeply nested choice, got %d", len(choices))
	}
	if choices[0].Target != "Deep" {
		t.Errorf("Wrong nested choice: %+v", choices[0])
	}

	t.Log("✅ Scelte estratte a profondità arbitraria")
}

// I nodi di tipo sconosciuto non trasportano scelte e vengono ignorati
func TestNormalizeIgnoresOtherNodeTypes(t *testing.T) {
	story := decodeStory(t, `{
		"passages": {
			"A": {
				"content": [
					{"type": "text"},
					{"type": "code"},
					{"type": "loop", "choices": [{"text": "x", "target": "B"}]}
				]
			}
		}
	}`)

	choices := story.Normalize().Passages["A"].Choices
	if len(choices) != 1 {
		t.Fatalf("Expected 1 choice, got %d", len(choices))
	}
}

// ============================================
// Ordine e start
// ============================================

// L'ordine delle chiavi del JSON viene conservato
func TestPassageMapPreservesOrder(t *testing.T) {
	story := decodeStory(t, `{
		"passages": {"Zeta": {}, "Alpha": {}, "Mid": {}}
	}`)

	expected := []string{"Zeta", "Alpha", "Mid"}
	if len(story.Passages.Order) != 3 {
		t.Fatalf("Expected 3 passages, got %d", len(story.Passages.Order))
	}
	for i, name := range expected {
		if story.Passages.Order[i] != name {
			t.Errorf("Order[%d]: expected '%s', got '%s'", i, name, story.Passages.Order[i])
		}
	}
}

func TestStartDeclaredByCompiler(t *testing.T) {
	story := decodeStory(t, `{
		"passages": {"First": {}, "Entry": {}},
		"start_passage": "Entry"
	}`)

	// Lo start dichiarato vince sull'ordine del documento
	if story.Start() != "Entry" {
		t.Errorf("Expected declared start 'Entry', got '%s'", story.Start())
	}
}

func TestStartFallsBackToFirstPassage(t *testing.T) {
	story := decodeStory(t, `{"passages": {"First": {}, "Second": {}}}`)

	if story.Start() != "First" {
		t.Errorf("Expected fallback start 'First', got '%s'", story.Start())
	}
}
