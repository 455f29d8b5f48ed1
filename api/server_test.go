package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"bardic-editor/compiler"
)

func newTestServer() *Server {
	gin.SetMode(gin.TestMode)
	return NewServer(ServerConfig{
		Port:     0,
		Selector: compiler.NewSelector(nil, false),
	})
}

func postJSON(s *Server, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer()

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
}

func TestStoryGraphEndpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storia.bard")
	text := ":: Start\n+ [Go] -> Middle\n:: Middle\n-> End\n"
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatal(err)
	}

	s := newTestServer()
	w := postJSON(s, "/api/story/graph", `{"file_path": "`+path+`"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool   `json:"success"`
		Method  string `json:"method"`
		Graph   struct {
			Nodes           []map[string]interface{} `json:"nodes"`
			Edges           []map[string]interface{} `json:"edges"`
			StartPassage    string                   `json:"startPassage"`
			MissingPassages []string                 `json:"missingPassages"`
		} `json:"graph"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Risposta non decodificabile: %v", err)
	}

	if !resp.Success || resp.Method != compiler.MethodSimpleParser {
		t.Errorf("Wrong envelope: success=%v method=%s", resp.Success, resp.Method)
	}
	if len(resp.Graph.Nodes) != 3 || len(resp.Graph.Edges) != 2 {
		t.Errorf("Wrong graph shape: %d nodes, %d edges", len(resp.Graph.Nodes), len(resp.Graph.Edges))
	}
	if resp.Graph.StartPassage != "Start" {
		t.Errorf("Wrong start passage: '%s'", resp.Graph.StartPassage)
	}
	if len(resp.Graph.MissingPassages) != 1 || resp.Graph.MissingPassages[0] != "End" {
		t.Errorf("Wrong missing passages: %v", resp.Graph.MissingPassages)
	}

	t.Logf("✅ Grafo servito: start=%s", resp.Graph.StartPassage)
}

func TestStoryGraphRequiresFilePath(t *testing.T) {
	s := newTestServer()
	w := postJSON(s, "/api/story/graph", `{}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing file_path, got %d", w.Code)
	}
}

// Registrazioni, rimozioni e snapshot della mappa dei client WebSocket
// avvengono da goroutine diverse (handler HTTP e broadcast del watcher):
// devono poter girare in parallelo senza corrompere la mappa
func TestWebSocketClientMapConcurrentAccess(t *testing.T) {
	s := newTestServer()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				conn := &websocket.Conn{}
				s.registerClient(conn)
				s.clientSnapshot()
				s.unregisterClient(conn)
			}
		}()
	}
	wg.Wait()

	if remaining := len(s.clientSnapshot()); remaining != 0 {
		t.Errorf("Expected empty client map, got %d clients", remaining)
	}
}

func TestPreviewWithoutSessionFails(t *testing.T) {
	s := newTestServer()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/preview/current", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without an active session, got %d", w.Code)
	}
}
