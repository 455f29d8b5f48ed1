package parser

// Choice rappresenta una transizione in uscita da un passaggio
type Choice struct {
	Text          string `json:"text"`           // Etichetta visibile (freccia per i jump)
	Target        string `json:"target"`         // Nome del passaggio di destinazione
	IsConditional bool   `json:"is_conditional"` // Scelta protetta da una condizione runtime
	IsJump        bool   `json:"is_jump"`        // Salto diretto senza testo visibile
}

// Passage rappresenta un singolo passaggio Bardic
type Passage struct {
	Name      string   `json:"name"`
	FullName  string   `json:"full_name"` // Nome completo, con eventuale lista parametri
	HasParams bool     `json:"has_params"`
	Params    []string `json:"params,omitempty"`
	Choices   []Choice `json:"choices"`
}

// Story rappresenta l'intera storia come mappa passaggio → scelte.
// Order mantiene l'ordine di inserimento: serve per determinare il
// passaggio iniziale e per produrre grafi deterministici.
type Story struct {
	Passages map[string]*Passage `json:"passages"`
	Order    []string            `json:"order"`
}

// NewStory crea una storia vuota
func NewStory() *Story {
	return &Story{
		Passages: make(map[string]*Passage),
	}
}

// Add inserisce un passaggio nella storia. Se il nome esiste già vince
// l'ultima dichiarazione: le scelte precedenti vengono scartate ma il
// passaggio conserva la posizione originale nell'ordine del documento.
func (s *Story) Add(p *Passage) {
	if _, exists := s.Passages[p.Name]; !exists {
		s.Order = append(s.Order, p.Name)
	}
	s.Passages[p.Name] = p
}

// StartPassage restituisce il primo passaggio in ordine di documento
func (s *Story) StartPassage() string {
	if len(s.Order) == 0 {
		return ""
	}
	return s.Order[0]
}
