package watcher

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"bardic-editor/compiler"
	"bardic-editor/graph"
)

// FileWatcher monitora cambiamenti ai file .bard e ricompila il grafo
type FileWatcher struct {
	watcher      *fsnotify.Watcher
	watchedPaths []string
	selector     *compiler.Selector
	debounceTime time.Duration
	eventChan    chan WatchEvent
	stopChan     chan bool
	autoCompile  bool

	// mu protegge isRunning e debounce: i timer di debounce scattano in
	// goroutine proprie, concorrenti con il loop eventi e con Stop()
	mu        sync.Mutex
	isRunning bool
	debounce  map[string]*time.Timer
}

// WatchEvent rappresenta un evento del watcher
type WatchEvent struct {
	Type      string       `json:"type"` // "created", "modified", "deleted", "renamed", "graph_updated", "compile_error"
	Path      string       `json:"path"`
	Timestamp time.Time    `json:"timestamp"`
	Graph     *graph.Graph `json:"graph,omitempty"`    // Solo per graph_updated
	Method    string       `json:"method,omitempty"`   // Strategia usata per la ricompilazione
	Warnings  []string     `json:"warnings,omitempty"` // Warning di ripiego
	Error     string       `json:"error,omitempty"`    // Solo per compile_error
}

// WatcherConfig configurazione per il watcher
type WatcherConfig struct {
	Paths        []string           // Path da monitorare
	Selector     *compiler.Selector // Strategia di compilazione da usare
	DebounceTime time.Duration      // Tempo di debounce (default: 500ms)
	AutoCompile  bool               // Ricompila il grafo automaticamente
}

// NewFileWatcher crea un nuovo file watcher
func NewFileWatcher(config WatcherConfig) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("errore creazione watcher: %w", err)
	}

	// Default debounce time
	if config.DebounceTime == 0 {
		config.DebounceTime = 500 * time.Millisecond
	}

	fw := &FileWatcher{
		watcher:      watcher,
		watchedPaths: config.Paths,
		selector:     config.Selector,
		debounceTime: config.DebounceTime,
		eventChan:    make(chan WatchEvent, 100),
		stopChan:     make(chan bool),
		autoCompile:  config.AutoCompile,
		debounce:     make(map[string]*time.Timer),
	}

	// Aggiungi i path da monitorare
	for _, path := range config.Paths {
		if err := watcher.Add(path); err != nil {
			return nil, fmt.Errorf("errore aggiunta path %s: %w", path, err)
		}
		log.Printf("👀 Watching: %s", path)
	}

	return fw, nil
}

// Start avvia il file watcher
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	if fw.isRunning {
		fw.mu.Unlock()
		return fmt.Errorf("watcher già in esecuzione")
	}
	fw.isRunning = true
	fw.mu.Unlock()

	log.Println("🚀 File watcher avviato!")

	go func() {
		for {
			select {
			case event, ok := <-fw.watcher.Events:
				if !ok {
					return
				}

				// Ignora file non .bard
				if !strings.HasSuffix(event.Name, ".bard") {
					continue
				}

				// Determina tipo evento
				var eventType string
				switch {
				case event.Op&fsnotify.Create == fsnotify.Create:
					eventType = "created"
				case event.Op&fsnotify.Write == fsnotify.Write:
					eventType = "modified"
				case event.Op&fsnotify.Remove == fsnotify.Remove:
					eventType = "deleted"
				case event.Op&fsnotify.Rename == fsnotify.Rename:
					eventType = "renamed"
				default:
					continue
				}

				log.Printf("📝 File %s: %s", eventType, filepath.Base(event.Name))

				fw.emit(WatchEvent{
					Type:      eventType,
					Path:      event.Name,
					Timestamp: time.Now(),
				})

				// Debounce per ricompilazione
				if (eventType == "modified" || eventType == "created") && fw.autoCompile {
					fw.scheduleRebuild(event.Name)
				}

			case err, ok := <-fw.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("❌ Errore watcher: %v", err)

			case <-fw.stopChan:
				log.Println("🛑 File watcher fermato")
				return
			}
		}
	}()

	return nil
}

// scheduleRebuild arma (o riarma) il timer di debounce per il file.
// Il callback scatta in una goroutine propria: mappa sotto mutex.
func (fw *FileWatcher) scheduleRebuild(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if timer, exists := fw.debounce[path]; exists {
		timer.Stop()
	}
	fw.debounce[path] = time.AfterFunc(fw.debounceTime, func() {
		fw.mu.Lock()
		delete(fw.debounce, path)
		fw.mu.Unlock()

		// Nessuna serializzazione: salvataggi ravvicinati possono
		// ricompilare in parallelo, vince l'ultimo
		fw.rebuildGraph(path)
	})
}

// emit pubblica un evento se il watcher è ancora attivo. Il controllo e
// l'invio avvengono sotto lo stesso mutex di Stop(), che chiude il canale
// solo dopo aver azzerato isRunning: nessun invio su canale chiuso. A
// canale pieno l'evento viene scartato per non bloccare sotto lock.
func (fw *FileWatcher) emit(event WatchEvent) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if !fw.isRunning {
		return
	}
	select {
	case fw.eventChan <- event:
	default:
		log.Printf("⚠️  Canale eventi pieno, evento %s scartato", event.Type)
	}
}

// Stop ferma il file watcher
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.isRunning {
		fw.mu.Unlock()
		return fmt.Errorf("watcher non in esecuzione")
	}
	fw.isRunning = false

	// Ferma i debounce armati: i callback già in volo troveranno
	// isRunning falso e non emetteranno nulla
	for path, timer := range fw.debounce {
		timer.Stop()
		delete(fw.debounce, path)
	}
	fw.mu.Unlock()

	fw.stopChan <- true

	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("errore chiusura watcher: %w", err)
	}

	close(fw.eventChan)
	return nil
}

// Events restituisce il canale degli eventi
func (fw *FileWatcher) Events() <-chan WatchEvent {
	return fw.eventChan
}

// IsRunning verifica se il watcher è attivo
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.isRunning
}

// AddPath aggiunge un path da monitorare
func (fw *FileWatcher) AddPath(path string) error {
	if err := fw.watcher.Add(path); err != nil {
		return fmt.Errorf("errore aggiunta path: %w", err)
	}
	fw.watchedPaths = append(fw.watchedPaths, path)
	log.Printf("👀 Watching: %s", path)
	return nil
}

// RemovePath rimuove un path dal monitoraggio
func (fw *FileWatcher) RemovePath(path string) error {
	if err := fw.watcher.Remove(path); err != nil {
		return fmt.Errorf("errore rimozione path: %w", err)
	}

	// Rimuovi dalla lista
	for i, p := range fw.watchedPaths {
		if p == path {
			fw.watchedPaths = append(fw.watchedPaths[:i], fw.watchedPaths[i+1:]...)
			break
		}
	}

	log.Printf("👁️  Stopped watching: %s", path)
	return nil
}

// rebuildGraph ricompila il file modificato e ricostruisce il grafo
func (fw *FileWatcher) rebuildGraph(filePath string) {
	if fw.selector == nil {
		return
	}

	log.Printf("🔄 Ricompilazione: %s", filepath.Base(filePath))

	start := time.Now()
	result := fw.selector.Compile(filePath)
	elapsed := time.Since(start)

	if !result.Success {
		log.Printf("❌ Compilazione fallita (%v): %v", elapsed, result.Error)

		fw.emit(WatchEvent{
			Type:      "compile_error",
			Path:      filePath,
			Timestamp: time.Now(),
			Method:    result.Method,
			Error:     result.Error.Error(),
		})
		return
	}

	storyGraph := graph.Build(result.Story, result.Start)

	log.Printf("✅ Grafo ricostruito in %v (%s, %d nodi, %d archi)",
		elapsed, result.Method, len(storyGraph.Nodes), len(storyGraph.Edges))
	if len(result.Warnings) > 0 {
		for _, warning := range result.Warnings {
			log.Printf("⚠️  %s", warning)
		}
	}

	fw.emit(WatchEvent{
		Type:      "graph_updated",
		Path:      filePath,
		Timestamp: time.Now(),
		Graph:     storyGraph,
		Method:    result.Method,
		Warnings:  result.Warnings,
	})
}
