package compiler

import (
	"fmt"
	"os"

	"bardic-editor/parser"
)

// Metodi di compilazione riportati in CompilationResult
const (
	MethodCompiler     = "bardic-compiler"
	MethodSimpleParser = "simple-parser"
)

// CompilationResult è l'esito di una richiesta di compilazione,
// qualunque sia la strategia usata
type CompilationResult struct {
	Success  bool           `json:"success"`
	Story    *parser.Story  `json:"story,omitempty"`
	Start    string         `json:"start,omitempty"`
	Method   string         `json:"method"`
	Error    *CompileError  `json:"error,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Compiled *CompiledStory `json:"-"` // Disponibile solo in modalità compilata
}

// Selector sceglie la strategia di compilazione: compilatore esterno
// quando disponibile, parser strutturale come ripiego. Il wrapper può
// essere nil (nessun interprete risolto): in quel caso si ripiega sempre.
type Selector struct {
	wrapper     *BardicWrapper
	useCompiler bool
}

// NewSelector crea un selettore. useCompiler=false disabilita del tutto
// il compilatore esterno (preferenza di configurazione).
func NewSelector(wrapper *BardicWrapper, useCompiler bool) *Selector {
	return &Selector{
		wrapper:     wrapper,
		useCompiler: useCompiler,
	}
}

// Compile produce il risultato per il file indicato secondo la policy:
//  1. compilatore disabilitato → parser strutturale, sempre successo
//  2. interprete assente o bardic non installato → ripiego con warning
//  3. compilatore disponibile → invocazione; errori di sintassi e timeout
//     sono fatali, ma il caso passaggio-mancante ripiega sul parser
//     strutturale perché produce comunque un grafo utilizzabile
func (s *Selector) Compile(sourcePath string) *CompilationResult {
	if !s.useCompiler {
		return s.simpleParse(sourcePath, nil)
	}

	if s.wrapper == nil {
		return s.simpleParse(sourcePath, []string{
			"Nessun interprete Python selezionato: grafo generato col parser strutturale. " +
				"Configura python_path per usare il compilatore bardic.",
		})
	}

	if !s.wrapper.IsBardicInstalled() {
		return s.simpleParse(sourcePath, []string{
			"bardic non è installato nell'ambiente selezionato: grafo generato col parser " +
				"strutturale. Installa con: pip install bardic",
		})
	}

	compiled, cerr := s.wrapper.CompileToJSON(sourcePath)
	if cerr != nil {
		if cerr.MissingPassage {
			// Errore di authoring, non di grammatica: il parser semplice
			// produce comunque un grafo (meno preciso). Un solo warning,
			// niente avvisi su interprete/compilatore già verificati.
			return s.simpleParse(sourcePath, []string{
				fmt.Sprintf("Il compilatore segnala un passaggio non risolto (%s): "+
					"grafo generato col parser strutturale.", cerr.Message),
			})
		}
		return &CompilationResult{
			Success: false,
			Method:  MethodCompiler,
			Error:   cerr,
		}
	}

	return &CompilationResult{
		Success:  true,
		Story:    compiled.Normalize(),
		Start:    compiled.Start(),
		Method:   MethodCompiler,
		Compiled: compiled,
	}
}

// simpleParse esegue il parser strutturale. Il parsing non "fallisce"
// mai: al peggio produce un grafo vuoto o parziale. L'unico errore
// possibile è la lettura del file.
func (s *Selector) simpleParse(sourcePath string, warnings []string) *CompilationResult {
	text, err := os.ReadFile(sourcePath)
	if err != nil {
		return &CompilationResult{
			Success: false,
			Method:  MethodSimpleParser,
			Error: &CompileError{
				Kind:    ErrUnknown,
				Message: fmt.Sprintf("file non leggibile: %v", err),
			},
			Warnings: warnings,
		}
	}

	story := parser.NewBardParser(sourcePath).Parse(string(text))

	return &CompilationResult{
		Success:  true,
		Story:    story,
		Start:    story.StartPassage(),
		Method:   MethodSimpleParser,
		Warnings: warnings,
	}
}
