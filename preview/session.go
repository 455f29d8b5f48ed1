package preview

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// DefaultRequestTimeout è il timeout per singola richiesta di anteprima
const DefaultRequestTimeout = 5 * time.Second

// closeGracePeriod è l'attesa massima per l'uscita pulita del processo
const closeGracePeriod = 2 * time.Second

// RenderResult è l'output di un passaggio renderizzato dal motore
type RenderResult struct {
	Content    string        `json:"content"`
	Choices    []interface{} `json:"choices"`
	PassageID  string        `json:"passage_id"`
	HasChoices bool          `json:"has_choices"`
}

// response è una riga di risposta del server di anteprima:
// {content, choices, passage_id} per un render, {error, message}
// in caso di fallimento. Le risposte non portano alcun id.
type response struct {
	Status     string        `json:"status,omitempty"`
	Content    string        `json:"content,omitempty"`
	Choices    []interface{} `json:"choices,omitempty"`
	PassageID  string        `json:"passage_id,omitempty"`
	HasChoices bool          `json:"has_choices,omitempty"`
	Error      string        `json:"error,omitempty"`
	Message    string        `json:"message,omitempty"`
}

// pendingRequest è una richiesta in volo. Il server risponde alle
// richieste una a una, nell'ordine in cui le riceve: la correlazione è
// quindi FIFO. gen è un contatore di generazione, solo diagnostico.
// abandoned marca una richiesta scaduta: la sua risposta, quando
// arriva, viene attribuita a lei e scartata, mai alla successiva.
type pendingRequest struct {
	gen       int64
	ch        chan *response
	abandoned bool
}

// Session è una sessione di anteprima viva: un processo figlio a lunga
// vita che riceve comandi e risponde in JSON line-delimited. La sessione
// è posseduta esplicitamente dal chiamante: va chiusa con Close().
type Session struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	timeout time.Duration

	writeMu sync.Mutex // serializza le scritture su stdin

	mu      sync.Mutex
	nextGen int64
	queue   []*pendingRequest // Richieste in volo, in ordine di invio
	closed  bool

	exited chan struct{}
}

// Start avvia il server di anteprima, gli invia la storia compilata e
// attende il segnale di ready. storyJSON è il messaggio iniziale completo
// (passages, initial_passage, imports, metadata, version).
func Start(pythonPath string, storyJSON []byte, timeout time.Duration) (*Session, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	cmd := exec.Command(pythonPath, "-m", "bardic.preview")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("errore pipe stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("errore pipe stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("errore avvio server anteprima: %w", err)
	}

	session := &Session{
		cmd:     cmd,
		stdin:   stdin,
		timeout: timeout,
		exited:  make(chan struct{}),
	}

	if _, err := stdin.Write(append(storyJSON, '\n')); err != nil {
		session.kill()
		return nil, fmt.Errorf("errore invio storia: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	// Handshake: la prima riga deve essere {"status":"ready"}
	if !scanner.Scan() {
		session.kill()
		return nil, fmt.Errorf("il server di anteprima è terminato prima del ready")
	}
	var ready response
	if err := json.Unmarshal(scanner.Bytes(), &ready); err != nil {
		session.kill()
		return nil, fmt.Errorf("handshake non decodificabile: %w", err)
	}
	if ready.Error != "" {
		session.kill()
		return nil, fmt.Errorf("avvio motore fallito: %s: %s", ready.Error, ready.Message)
	}
	if ready.Status != "ready" {
		session.kill()
		return nil, fmt.Errorf("handshake inatteso: %q", ready.Status)
	}

	go session.readLoop(scanner)

	return session, nil
}

// Preview renderizza un passaggio con lo stato fornito
func (s *Session) Preview(passage string, state map[string]interface{}) (*RenderResult, error) {
	if state == nil {
		state = map[string]interface{}{}
	}
	return s.request(map[string]interface{}{
		"type":    "preview",
		"passage": passage,
		"state":   state,
	})
}

// Choose seleziona una scelta per indice e naviga
func (s *Session) Choose(index int) (*RenderResult, error) {
	return s.request(map[string]interface{}{
		"type":  "choice",
		"index": index,
	})
}

// Current restituisce il passaggio corrente senza navigare
func (s *Session) Current() (*RenderResult, error) {
	return s.request(map[string]interface{}{
		"type": "current",
	})
}

// Close termina la sessione: invia exit, chiude stdin e attende l'uscita
// del processo; scaduto il periodo di grazia lo termina forzatamente
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// Uscita cooperativa, best-effort
	s.writeMu.Lock()
	s.stdin.Write([]byte(`{"type":"exit"}` + "\n"))
	s.stdin.Close()
	s.writeMu.Unlock()

	waited := make(chan error, 1)
	go func() { waited <- s.cmd.Wait() }()

	select {
	case err := <-waited:
		return err
	case <-time.After(closeGracePeriod):
		s.cmd.Process.Kill()
		return <-waited
	}
}

// request invia un comando e attende la risposta corrispondente. Il
// server elabora una richiesta per volta nell'ordine di arrivo, quindi
// la risposta in testa alla coda appartiene alla richiesta in testa.
// Allo scadere del timeout la richiesta resta in coda marcata come
// abbandonata: la sua risposta tardiva verrà consumata e scartata,
// senza poter corrompere una richiesta successiva.
func (s *Session) request(msg map[string]interface{}) (*RenderResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("sessione di anteprima chiusa")
	}
	s.nextGen++
	pending := &pendingRequest{
		gen: s.nextGen,
		ch:  make(chan *response, 1),
	}
	s.queue = append(s.queue, pending)
	s.mu.Unlock()

	line, err := json.Marshal(msg)
	if err != nil {
		s.remove(pending)
		return nil, fmt.Errorf("errore serializzazione richiesta: %w", err)
	}

	s.writeMu.Lock()
	_, err = s.stdin.Write(append(line, '\n'))
	s.writeMu.Unlock()
	if err != nil {
		s.remove(pending)
		return nil, fmt.Errorf("errore invio richiesta: %w", err)
	}

	select {
	case resp := <-pending.ch:
		if resp.Error != "" {
			return nil, fmt.Errorf("errore motore anteprima: %s: %s", resp.Error, resp.Message)
		}
		return &RenderResult{
			Content:    resp.Content,
			Choices:    resp.Choices,
			PassageID:  resp.PassageID,
			HasChoices: resp.HasChoices,
		}, nil

	case <-time.After(s.timeout):
		s.abandon(pending)
		return nil, fmt.Errorf("timeout richiesta anteprima (%v)", s.timeout)

	case <-s.exited:
		s.abandon(pending)
		return nil, fmt.Errorf("il server di anteprima è terminato")
	}
}

// readLoop consegna ogni risposta alla richiesta più vecchia in coda.
// Le risposte di richieste abbandonate vengono scartate; una risposta
// senza richiesta in volo è rumore e viene ignorata.
func (s *Session) readLoop(scanner *bufio.Scanner) {
	defer close(s.exited)

	for scanner.Scan() {
		var resp response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}

		s.mu.Lock()
		var pending *pendingRequest
		if len(s.queue) > 0 {
			pending = s.queue[0]
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()

		if pending == nil || pending.abandoned {
			continue
		}
		pending.ch <- &resp
	}
}

// abandon marca una richiesta scaduta. Resta in coda: la sua risposta,
// se mai arriva, la consumerà al posto delle successive.
func (s *Session) abandon(p *pendingRequest) {
	s.mu.Lock()
	p.abandoned = true
	s.mu.Unlock()
}

// remove toglie dalla coda una richiesta mai arrivata al server
// (serializzazione o scrittura fallite): nessuna risposta da consumare
func (s *Session) remove(p *pendingRequest) {
	s.mu.Lock()
	for i, queued := range s.queue {
		if queued == p {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}

// kill termina il processo durante un avvio fallito
func (s *Session) kill() {
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
}
