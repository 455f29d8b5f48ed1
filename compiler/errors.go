package compiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Tipi di errore di compilazione
const (
	ErrPythonNotFound     = "python-not-found"
	ErrBardicNotInstalled = "bardic-not-installed"
	ErrSyntax             = "syntax-error"
	ErrTimeout            = "timeout"
	ErrUnknown            = "unknown"
)

// CompileError descrive un fallimento della compilazione esterna.
// File e Line, quando presenti, permettono al client il jump-to-location.
type CompileError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Hint    string `json:"hint,omitempty"`

	// MissingPassage marca il sotto-caso non fatale: il compilatore ha
	// trovato un riferimento a un passaggio inesistente. Errore di
	// authoring, non di grammatica: il selettore ripiega sul parser
	// strutturale invece di fermarsi.
	MissingPassage bool `json:"missing_passage,omitempty"`
}

// Error implementa l'interfaccia error
func (e *CompileError) Error() string {
	if e.File != "" && e.Line > 0 {
		return fmt.Sprintf("%s: %s:%d: %s", e.Kind, e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

var (
	// Formato errore strutturato del compilatore: Error in <file>:<riga>: <messaggio>
	syntaxErrorRegex = regexp.MustCompile(`Error in (.+?):(\d+):\s*(.+)`)

	// Il compilatore segnala un passaggio referenziato ma mai definito
	missingPassageRegex = regexp.MustCompile(`(?i)passage\s+'?"?([\w.]+)'?"?\s+(?:not found|does not exist)`)
)

// classifyStderr traduce lo stderr del compilatore in un CompileError
func classifyStderr(stderr string) *CompileError {
	if strings.TrimSpace(stderr) == "" {
		return &CompileError{
			Kind:    ErrUnknown,
			Message: "il compilatore è terminato con errore senza produrre output",
		}
	}

	if m := syntaxErrorRegex.FindStringSubmatch(stderr); m != nil {
		line, _ := strconv.Atoi(m[2])
		return &CompileError{
			Kind:           ErrSyntax,
			Message:        strings.TrimSpace(m[3]),
			File:           m[1],
			Line:           line,
			Hint:           "Correggi l'errore di sintassi e salva di nuovo il file",
			MissingPassage: missingPassageRegex.MatchString(m[3]),
		}
	}

	if strings.Contains(stderr, "No module named") {
		return &CompileError{
			Kind:    ErrBardicNotInstalled,
			Message: strings.TrimSpace(stderr),
			Hint:    "Installa bardic nell'ambiente selezionato: pip install bardic",
		}
	}

	if missingPassageRegex.MatchString(stderr) {
		return &CompileError{
			Kind:           ErrSyntax,
			Message:        strings.TrimSpace(stderr),
			Hint:           "Definisci il passaggio mancante o correggi il riferimento",
			MissingPassage: true,
		}
	}

	return &CompileError{
		Kind:    ErrUnknown,
		Message: strings.TrimSpace(stderr),
	}
}
