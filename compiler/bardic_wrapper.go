package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Timeout per le invocazioni del compilatore esterno
const (
	DefaultCompileTimeout = 10 * time.Second
	MaxCompileTimeout     = 60 * time.Second
	versionProbeTimeout   = 2 * time.Second
)

// BardicWrapper gestisce l'integrazione con il compilatore bardic
// (processo esterno, un'invocazione per richiesta di compilazione)
type BardicWrapper struct {
	pythonPath string
	timeout    time.Duration
}

// NewBardicWrapper crea un nuovo wrapper. Se pythonPath è vuoto cerca
// un interprete Python nel PATH. Il timeout viene riportato nei limiti
// [default, max] se fuori range.
func NewBardicWrapper(pythonPath string, timeout time.Duration) (*BardicWrapper, error) {
	if pythonPath == "" {
		path, err := exec.LookPath("python3")
		if err != nil {
			path, err = exec.LookPath("python")
			if err != nil {
				return nil, fmt.Errorf("nessun interprete Python trovato nel PATH")
			}
		}
		pythonPath = path
	}

	if timeout <= 0 {
		timeout = DefaultCompileTimeout
	}
	if timeout > MaxCompileTimeout {
		timeout = MaxCompileTimeout
	}

	return &BardicWrapper{
		pythonPath: pythonPath,
		timeout:    timeout,
	}, nil
}

// PythonPath restituisce il path dell'interprete risolto
func (bw *BardicWrapper) PythonPath() string {
	return bw.pythonPath
}

// ProbeVersion verifica che bardic sia invocabile nell'ambiente
// selezionato: exit code 0 e almeno un byte su stdout o stderr
// entro il timeout della sonda
func (bw *BardicWrapper) ProbeVersion() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), versionProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bw.pythonPath, "-m", "bardic", "--version")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("bardic non invocabile: %w", err)
	}

	output := strings.TrimSpace(stdout.String())
	if output == "" {
		output = strings.TrimSpace(stderr.String())
	}
	if output == "" {
		return "", fmt.Errorf("nessun output da bardic --version")
	}

	return output, nil
}

// IsBardicInstalled verifica la disponibilità del compilatore
func (bw *BardicWrapper) IsBardicInstalled() bool {
	_, err := bw.ProbeVersion()
	return err == nil
}

// CompileToJSON invoca il compilatore esterno sul file sorgente e
// decodifica il JSON prodotto. L'output passa da un file temporaneo con
// componente temporale nel nome, così compilazioni concorrenti non
// collidono; la cancellazione del temporaneo è best-effort.
func (bw *BardicWrapper) CompileToJSON(sourcePath string) (*CompiledStory, *CompileError) {
	outputPath := filepath.Join(os.TempDir(),
		fmt.Sprintf("bardic_compile_%d.json", time.Now().UnixNano()))
	defer os.Remove(outputPath)

	ctx, cancel := context.WithTimeout(context.Background(), bw.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bw.pythonPath,
		"-m", "bardic", "compile", sourcePath, "-o", outputPath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	// Il timer di timeout è l'unico punto di cancellazione: il processo
	// viene terminato forzatamente
	if ctx.Err() == context.DeadlineExceeded {
		return nil, &CompileError{
			Kind:    ErrTimeout,
			Message: fmt.Sprintf("compilazione oltre il timeout di %v", bw.timeout),
			Hint:    "Aumenta compile_timeout_seconds nella configurazione",
		}
	}

	if err != nil {
		// Mancato avvio del processo: exec.Error per i binari non risolti
		// nel PATH, fs.PathError per i path espliciti inesistenti o non
		// eseguibili. In entrambi i casi stderr è vuoto e non va
		// classificato come errore del compilatore.
		var execErr *exec.Error
		var pathErr *fs.PathError
		if errors.As(err, &execErr) || errors.As(err, &pathErr) {
			return nil, &CompileError{
				Kind:    ErrPythonNotFound,
				Message: fmt.Sprintf("interprete non eseguibile: %v", err),
				Hint:    "Verifica python_path nella configurazione",
			}
		}
		return nil, classifyStderr(stderr.String())
	}

	data, readErr := os.ReadFile(outputPath)
	if readErr != nil {
		return nil, &CompileError{
			Kind:    ErrUnknown,
			Message: fmt.Sprintf("output del compilatore non leggibile: %v", readErr),
		}
	}

	story := &CompiledStory{}
	if jsonErr := json.Unmarshal(data, story); jsonErr != nil {
		// Il compilatore ha riportato successo ma l'output è inutilizzabile:
		// inconsistenza interna, nessun ripiego
		return nil, &CompileError{
			Kind:    ErrUnknown,
			Message: fmt.Sprintf("JSON del compilatore non decodificabile: %v", jsonErr),
		}
	}

	return story, nil
}
