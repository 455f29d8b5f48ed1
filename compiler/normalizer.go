package compiler

import (
	"fmt"
	"strings"

	"bardic-editor/parser"
)

// Normalize converte la storia compilata nella stessa forma piatta
// passaggio → scelte prodotta dal parser strutturale. Le scelte statiche
// dichiarate sul passaggio vengono prima, seguite da quelle scoperte
// nell'albero di contenuto in ordine di visita.
func (cs *CompiledStory) Normalize() *parser.Story {
	story := parser.NewStory()

	for _, name := range cs.Passages.Order {
		record := cs.Passages.ByName[name]
		passage := &parser.Passage{
			Name:     name,
			FullName: name,
		}

		if len(record.Params) > 0 {
			passage.HasParams = true
			passage.Params = record.Params
			passage.FullName = fmt.Sprintf("%s(%s)", name, strings.Join(record.Params, ", "))
		}

		compiled := append([]CompiledChoice{}, record.Choices...)
		compiled = append(compiled, collectChoices(record.Content)...)
		for _, choice := range compiled {
			passage.Choices = append(passage.Choices, normalizeChoice(choice))
		}

		story.Add(passage)
	}

	return story
}

// collectChoices visita ricorsivamente i nodi di contenuto e accumula
// le scelte annidate a qualsiasi profondità. Dispatch chiuso sul tipo
// del nodo: solo loop e conditional trasportano scelte.
func collectChoices(nodes []ContentNode) []CompiledChoice {
	var found []CompiledChoice

	for _, node := range nodes {
		switch node.Type {
		case NodeLoop:
			found = append(found, node.Choices...)
			found = append(found, collectChoices(node.Content)...)

		case NodeConditional:
			for _, branch := range node.Branches {
				found = append(found, branch.Choices...)
				found = append(found, collectChoices(branch.Content)...)
			}
		}
	}

	return found
}

// normalizeChoice traduce una scelta compilata nella forma comune.
// Un jump è una scelta dichiarata di tipo "jump" oppure senza testo.
func normalizeChoice(c CompiledChoice) parser.Choice {
	text := choiceText(c.Text)
	isJump := c.Type == "jump" || text == ""
	if text == "" {
		text = parser.JumpGlyph
	}

	return parser.Choice{
		Text:          text,
		Target:        c.Target,
		IsConditional: c.Condition != "",
		IsJump:        isJump,
	}
}

// choiceText ricostruisce l'etichetta di una scelta: stringa semplice
// oppure lista ordinata di token, ciascuno con un campo "value" da
// concatenare in sequenza
func choiceText(text interface{}) string {
	switch v := text.(type) {
	case string:
		return v
	case []interface{}:
		var sb strings.Builder
		for _, token := range v {
			if obj, ok := token.(map[string]interface{}); ok {
				if value, ok := obj["value"].(string); ok {
					sb.WriteString(value)
				}
			}
		}
		return sb.String()
	}
	return ""
}
