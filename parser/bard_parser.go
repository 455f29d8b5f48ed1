package parser

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// JumpGlyph è l'etichetta segnaposto per i salti diretti senza testo
const JumpGlyph = "→"

// codeFence delimita i blocchi di codice embedded nei file .bard.
// Il contenuto tra due fence non viene mai esaminato dal parser.
const codeFence = "```"

var (
	// Regex per il formato :: Nome oppure :: Nome(p1, p2=default)
	passageHeaderRegex = regexp.MustCompile(`^::\s+([\w.]+)\s*(?:\(([^)]*)\))?`)

	// -> Destinazione
	jumpRegex = regexp.MustCompile(`^->\s*([\w.]+)`)

	// + {condizione} [Etichetta] -> Destinazione (anche con *)
	conditionalChoiceRegex = regexp.MustCompile(`^[+*]\s*\{([^}]*)\}\s*\[([^\]]*)\]\s*->\s*([\w.]+)`)

	// + [Etichetta] -> Destinazione (anche con *)
	plainChoiceRegex = regexp.MustCompile(`^[+*]\s*\[([^\]]*)\]\s*->\s*([\w.]+)`)

	// Freccia in fondo a una riga qualsiasi (corpi @if/@elif/@else e loop):
	// cattura l'identificatore finale senza parsare la grammatica di controllo
	trailingArrowRegex = regexp.MustCompile(`->\s*([\w.]+)\s*$`)

	// Etichetta tra parentesi quadre, usata dallo scan di fallback
	bracketLabelRegex = regexp.MustCompile(`\[([^\]]*)\]`)
)

// BardParser estrae la struttura dei passaggi da un file .bard
// senza una grammatica completa: riconoscimento riga per riga,
// passata singola in avanti, nessun backtracking.
type BardParser struct {
	filepath string
}

// NewBardParser crea un nuovo parser per il file indicato
func NewBardParser(filepath string) *BardParser {
	return &BardParser{filepath: filepath}
}

// ParseFile legge e parsa il file .bard
func (bp *BardParser) ParseFile() (*Story, error) {
	file, err := os.Open(bp.filepath)
	if err != nil {
		return nil, fmt.Errorf("errore apertura file: %w", err)
	}
	defer file.Close()

	story := NewStory()
	scanner := bufio.NewScanner(file)
	var current *Passage
	inCodeBlock := false

	for scanner.Scan() {
		current = bp.parseLine(scanner.Text(), story, current, &inCodeBlock)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("errore lettura file: %w", err)
	}

	return story, nil
}

// Parse parsa direttamente il testo sorgente completo
func (bp *BardParser) Parse(text string) *Story {
	story := NewStory()
	var current *Passage
	inCodeBlock := false

	for _, line := range strings.Split(text, "\n") {
		current = bp.parseLine(line, story, current, &inCodeBlock)
	}

	return story
}

// parseLine esamina una singola riga e restituisce il passaggio corrente
// (eventualmente nuovo). Le righe dentro un blocco di codice vengono
// saltate del tutto: una freccia in un blocco di codice non è una scelta.
func (bp *BardParser) parseLine(rawLine string, story *Story, current *Passage, inCodeBlock *bool) *Passage {
	line := strings.TrimSpace(rawLine)

	// Apertura/chiusura blocco di codice (stesso marker per entrambe)
	if strings.HasPrefix(line, codeFence) {
		*inCodeBlock = !*inCodeBlock
		return current
	}
	if *inCodeBlock {
		return current
	}

	if line == "" {
		return current
	}

	// Nuova intestazione passaggio
	if strings.HasPrefix(line, "::") {
		if matches := passageHeaderRegex.FindStringSubmatch(line); matches != nil {
			passage := newPassage(matches[1], matches[2])
			story.Add(passage)
			return passage
		}
		return current
	}

	// Contenuto prima della prima intestazione: scartato
	if current == nil {
		return nil
	}

	// Pattern di scelta in ordine di priorità: vince il primo che matcha
	switch {
	case jumpRegex.MatchString(line):
		m := jumpRegex.FindStringSubmatch(line)
		current.Choices = append(current.Choices, Choice{
			Text:   JumpGlyph,
			Target: m[1],
			IsJump: true,
		})

	case conditionalChoiceRegex.MatchString(line):
		m := conditionalChoiceRegex.FindStringSubmatch(line)
		current.Choices = append(current.Choices, Choice{
			Text:          m[2],
			Target:        m[3],
			IsConditional: true,
		})

	case plainChoiceRegex.MatchString(line):
		m := plainChoiceRegex.FindStringSubmatch(line)
		current.Choices = append(current.Choices, Choice{
			Text:   m[1],
			Target: m[2],
		})

	case strings.Contains(line, "->"):
		// Scan di fallback: cattura destinazioni dentro i corpi @if/@elif/
		// @else e dei loop. Con un'etichetta quadra la trattiamo come
		// condizionale, altrimenti come salto.
		m := trailingArrowRegex.FindStringSubmatch(line)
		if m == nil {
			break
		}
		if label := bracketLabelRegex.FindStringSubmatch(line); label != nil {
			current.Choices = append(current.Choices, Choice{
				Text:          label[1],
				Target:        m[1],
				IsConditional: true,
			})
		} else {
			current.Choices = append(current.Choices, Choice{
				Text:   JumpGlyph,
				Target: m[1],
				IsJump: true,
			})
		}
	}

	return current
}

// newPassage costruisce un passaggio dall'intestazione parsata.
// rawParams è il contenuto grezzo della lista parametri (senza parentesi).
func newPassage(name, rawParams string) *Passage {
	passage := &Passage{
		Name:     name,
		FullName: name,
	}

	if rawParams != "" {
		var params []string
		for _, param := range strings.Split(rawParams, ",") {
			// Scarta il valore di default dopo '='
			if idx := strings.Index(param, "="); idx >= 0 {
				param = param[:idx]
			}
			param = strings.TrimSpace(param)
			if param != "" {
				params = append(params, param)
			}
		}
		if len(params) > 0 {
			passage.Params = params
			passage.HasParams = true
			passage.FullName = fmt.Sprintf("%s(%s)", name, strings.TrimSpace(rawParams))
		}
	}

	return passage
}
