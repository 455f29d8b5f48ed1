package api

import (
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"bardic-editor/compiler"
	"bardic-editor/graph"
	"bardic-editor/parser"
	"bardic-editor/preview"
	"bardic-editor/watcher"
)

// Server rappresenta il server API del backend Bardic
type Server struct {
	router         *gin.Engine
	selector       *compiler.Selector
	wrapper        *compiler.BardicWrapper // nil se nessun interprete risolto
	watcher        *watcher.FileWatcher
	watcherMutex   sync.Mutex
	previewSession *preview.Session
	previewMutex   sync.Mutex
	previewTimeout time.Duration
	wsClients      map[*websocket.Conn]bool
	wsMutex        sync.Mutex
	wsUpgrader     websocket.Upgrader
	port           int
}

// ServerConfig configurazione del server
type ServerConfig struct {
	Port           int
	Selector       *compiler.Selector
	Wrapper        *compiler.BardicWrapper
	PreviewTimeout time.Duration
	EnableCORS     bool
	Debug          bool
}

// NewServer crea un nuovo server API
func NewServer(config ServerConfig) *Server {
	// Imposta modalità Gin
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// CORS se abilitato
	if config.EnableCORS {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"*"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
		}))
	}

	server := &Server{
		router:         router,
		selector:       config.Selector,
		wrapper:        config.Wrapper,
		previewTimeout: config.PreviewTimeout,
		wsClients:      make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
		port: config.Port,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// setupRoutes configura tutti gli endpoint
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		// Health check
		api.GET("/health", s.healthCheck)

		// Story endpoints
		api.POST("/story/parse", s.parseStory)
		api.POST("/story/compile", s.compileStory)
		api.POST("/story/graph", s.storyGraph)

		// Preview endpoints
		api.POST("/preview/start", s.startPreview)
		api.POST("/preview/passage", s.previewPassage)
		api.POST("/preview/choice", s.previewChoice)
		api.GET("/preview/current", s.previewCurrent)
		api.POST("/preview/stop", s.stopPreview)

		// Watcher endpoints
		api.POST("/watch/start", s.startWatcher)
		api.POST("/watch/stop", s.stopWatcher)
		api.GET("/watch/status", s.getWatcherStatus)

		// Utils endpoints
		api.GET("/version", s.getVersion)
	}

	// WebSocket endpoint
	s.router.GET("/ws", s.handleWebSocket)
}

// Start avvia il server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	log.Printf("🚀 Server avviato su http://localhost%s", addr)
	log.Printf("📚 API disponibile su http://localhost%s/api", addr)
	log.Printf("🔌 WebSocket su ws://localhost%s/ws", addr)
	return s.router.Run(addr)
}

// ============================================
// Handlers
// ============================================

// healthCheck verifica lo stato del server
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": "0.1.0",
	})
}

// StoryRequest richiesta con path del file .bard
type StoryRequest struct {
	FilePath string `json:"file_path" binding:"required"`
}

// parseStory parsa un file .bard col solo parser strutturale
func (s *Server) parseStory(c *gin.Context) {
	var req StoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	story, err := parser.NewBardParser(req.FilePath).ParseFile()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"passages":      story.Passages,
		"order":         story.Order,
		"start_passage": story.StartPassage(),
		"count":         len(story.Passages),
	})
}

// compileStory compila un file .bard con la strategia selezionata
// (compilatore esterno quando disponibile, parser strutturale altrimenti)
func (s *Server) compileStory(c *gin.Context) {
	var req StoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := s.selector.Compile(req.FilePath)
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}

	c.JSON(http.StatusOK, result)
}

// storyGraph compila e costruisce il grafo della storia
func (s *Server) storyGraph(c *gin.Context) {
	var req StoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := s.selector.Compile(req.FilePath)
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"method":  result.Method,
			"error":   result.Error,
		})
		return
	}

	storyGraph := graph.Build(result.Story, result.Start)

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"method":   result.Method,
		"warnings": result.Warnings,
		"graph":    storyGraph,
	})
}

// getVersion ottiene la versione del compilatore bardic
func (s *Server) getVersion(c *gin.Context) {
	if s.wrapper == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Nessun interprete Python selezionato",
		})
		return
	}

	version, err := s.wrapper.ProbeVersion()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"version": version,
	})
}

// ============================================
// Preview Handlers
// ============================================

// startPreview avvia una sessione di anteprima per il file indicato.
// Una sessione già aperta viene chiusa e sostituita.
func (s *Server) startPreview(c *gin.Context) {
	var req StoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if s.wrapper == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Anteprima non disponibile: nessun interprete Python selezionato",
		})
		return
	}

	// L'anteprima richiede la storia compilata: il parser strutturale
	// non basta al motore di esecuzione
	compiled, cerr := s.wrapper.CompileToJSON(req.FilePath)
	if cerr != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": cerr})
		return
	}

	payload, err := compiled.PreviewPayload()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	session, err := preview.Start(s.wrapper.PythonPath(), payload, s.previewTimeout)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.previewMutex.Lock()
	if s.previewSession != nil {
		s.previewSession.Close()
	}
	s.previewSession = session
	s.previewMutex.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"start_passage": compiled.Start(),
	})
}

// PreviewPassageRequest richiesta di render di un passaggio
type PreviewPassageRequest struct {
	Passage string                 `json:"passage" binding:"required"`
	State   map[string]interface{} `json:"state"`
}

// previewPassage renderizza un passaggio con lo stato fornito
func (s *Server) previewPassage(c *gin.Context) {
	var req PreviewPassageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session := s.currentPreview()
	if session == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nessuna sessione di anteprima attiva"})
		return
	}

	result, err := session.Preview(req.Passage, req.State)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// PreviewChoiceRequest richiesta di selezione scelta
type PreviewChoiceRequest struct {
	Index *int `json:"index" binding:"required"`
}

// previewChoice seleziona una scelta e naviga
func (s *Server) previewChoice(c *gin.Context) {
	var req PreviewChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session := s.currentPreview()
	if session == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nessuna sessione di anteprima attiva"})
		return
	}

	result, err := session.Choose(*req.Index)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// previewCurrent restituisce il passaggio corrente senza navigare
func (s *Server) previewCurrent(c *gin.Context) {
	session := s.currentPreview()
	if session == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nessuna sessione di anteprima attiva"})
		return
	}

	result, err := session.Current()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// stopPreview chiude la sessione di anteprima
func (s *Server) stopPreview(c *gin.Context) {
	s.previewMutex.Lock()
	defer s.previewMutex.Unlock()

	if s.previewSession == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nessuna sessione di anteprima attiva"})
		return
	}

	s.previewSession.Close()
	s.previewSession = nil

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Sessione di anteprima chiusa",
	})
}

// currentPreview restituisce la sessione attiva (o nil)
func (s *Server) currentPreview() *preview.Session {
	s.previewMutex.Lock()
	defer s.previewMutex.Unlock()
	return s.previewSession
}

// ============================================
// Watcher Handlers
// ============================================

// StartWatcherRequest richiesta avvio watcher
type StartWatcherRequest struct {
	Paths       []string `json:"paths" binding:"required"`
	AutoCompile bool     `json:"auto_compile"`
}

// startWatcher avvia il file watcher
func (s *Server) startWatcher(c *gin.Context) {
	s.watcherMutex.Lock()
	defer s.watcherMutex.Unlock()

	if s.watcher != nil && s.watcher.IsRunning() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Watcher già in esecuzione"})
		return
	}

	var req StartWatcherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Crea watcher
	fw, err := watcher.NewFileWatcher(watcher.WatcherConfig{
		Paths:       req.Paths,
		Selector:    s.selector,
		AutoCompile: req.AutoCompile,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := fw.Start(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.watcher = fw

	// Invia eventi ai client WebSocket
	go s.broadcastWatcherEvents()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Watcher avviato",
		"paths":   req.Paths,
	})
}

// stopWatcher ferma il file watcher
func (s *Server) stopWatcher(c *gin.Context) {
	s.watcherMutex.Lock()
	defer s.watcherMutex.Unlock()

	if s.watcher == nil || !s.watcher.IsRunning() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Watcher non in esecuzione"})
		return
	}

	if err := s.watcher.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.watcher = nil

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Watcher fermato",
	})
}

// getWatcherStatus ottiene lo stato del watcher
func (s *Server) getWatcherStatus(c *gin.Context) {
	s.watcherMutex.Lock()
	defer s.watcherMutex.Unlock()

	isRunning := s.watcher != nil && s.watcher.IsRunning()

	c.JSON(http.StatusOK, gin.H{
		"running": isRunning,
	})
}

// ============================================
// WebSocket
// ============================================

// handleWebSocket gestisce connessioni WebSocket
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Errore upgrade WebSocket: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("🔌 Client WebSocket connesso (totale: %d)", s.registerClient(conn))

	// Mantieni la connessione aperta
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			log.Printf("🔌 Client WebSocket disconnesso (totale: %d)", s.unregisterClient(conn))
			break
		}
	}
}

// registerClient aggiunge un client alla mappa e restituisce il totale.
// La mappa è condivisa con il goroutine di broadcast: ogni accesso
// passa dal mutex.
func (s *Server) registerClient(conn *websocket.Conn) int {
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()
	s.wsClients[conn] = true
	return len(s.wsClients)
}

// unregisterClient rimuove un client e restituisce il totale rimasto
func (s *Server) unregisterClient(conn *websocket.Conn) int {
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()
	delete(s.wsClients, conn)
	return len(s.wsClients)
}

// clientSnapshot restituisce i client correnti senza tenere il lock
// durante le scritture di rete
func (s *Server) clientSnapshot() []*websocket.Conn {
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for client := range s.wsClients {
		clients = append(clients, client)
	}
	return clients
}

// broadcastWatcherEvents invia eventi del watcher ai client WebSocket
func (s *Server) broadcastWatcherEvents() {
	if s.watcher == nil {
		return
	}

	for event := range s.watcher.Events() {
		message := gin.H{
			"type":      event.Type,
			"path":      filepath.Base(event.Path),
			"full_path": event.Path,
			"timestamp": event.Timestamp,
		}
		if event.Graph != nil {
			message["graph"] = event.Graph
			message["method"] = event.Method
			message["warnings"] = event.Warnings
		}
		if event.Error != "" {
			message["error"] = event.Error
		}

		// Broadcast a tutti i client connessi
		for _, client := range s.clientSnapshot() {
			if err := client.WriteJSON(message); err != nil {
				log.Printf("Errore invio WebSocket: %v", err)
				client.Close()
				s.unregisterClient(client)
			}
		}
	}
}
