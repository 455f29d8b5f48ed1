package compiler

import (
	"bytes"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Tipi dei nodi di contenuto che possono annidare scelte
const (
	NodeLoop        = "loop"
	NodeConditional = "conditional"
)

// CompiledStory è la rappresentazione JSON prodotta dal compilatore bardic
type CompiledStory struct {
	Passages     PassageMap             `json:"passages"`
	StartPassage string                 `json:"start_passage,omitempty"`
	Imports      []string               `json:"imports,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Version      string                 `json:"version,omitempty"`
}

// PassageRecord è un singolo passaggio come emesso dal compilatore
type PassageRecord struct {
	Name    string           `json:"name,omitempty"`
	Choices []CompiledChoice `json:"choices,omitempty"`
	Content []ContentNode    `json:"content,omitempty"`
	Params  []string         `json:"params,omitempty"`
}

// CompiledChoice è una scelta come emessa dal compilatore.
// Text può essere una stringa semplice oppure una lista ordinata di
// token con campo "value" (testo segmentato dal compilatore).
type CompiledChoice struct {
	Text      interface{} `json:"text,omitempty"`
	Target    string      `json:"target"`
	Type      string      `json:"type,omitempty"`
	Condition string      `json:"condition,omitempty"`
}

// ContentNode è un nodo dell'albero di contenuto di un passaggio.
// Solo i tipi loop e conditional trasportano scelte annidate; il
// dispatch avviene sul campo Type, profondità di annidamento illimitata.
type ContentNode struct {
	Type     string           `json:"type"`
	Choices  []CompiledChoice `json:"choices,omitempty"`
	Content  []ContentNode    `json:"content,omitempty"`
	Branches []Branch         `json:"branches,omitempty"`
}

// Branch è un ramo di un nodo conditional
type Branch struct {
	Content []ContentNode    `json:"content,omitempty"`
	Choices []CompiledChoice `json:"choices,omitempty"`
}

// PassageMap è una mappa nome → passaggio che conserva l'ordine delle
// chiavi del JSON. L'ordine serve per lo start di ripiego e per produrre
// grafi deterministici a parità di input.
type PassageMap struct {
	ByName map[string]*PassageRecord
	Order  []string
}

// UnmarshalJSON decodifica la mappa passaggi chiave per chiave,
// registrando l'ordine di apparizione nel documento
func (pm *PassageMap) UnmarshalJSON(data []byte) error {
	pm.ByName = make(map[string]*PassageRecord)
	pm.Order = nil

	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("passages non decodificabile: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("passages non è un oggetto JSON")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("chiave passaggio non decodificabile: %w", err)
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("chiave passaggio non stringa: %v", keyTok)
		}

		record := &PassageRecord{}
		if err := dec.Decode(record); err != nil {
			return fmt.Errorf("passaggio '%s' non decodificabile: %w", name, err)
		}

		if _, exists := pm.ByName[name]; !exists {
			pm.Order = append(pm.Order, name)
		}
		pm.ByName[name] = record
	}

	// Consuma la '}' finale
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("passages troncato: %w", err)
	}

	return nil
}

// MarshalJSON riserializza la mappa nell'ordine registrato
func (pm PassageMap) MarshalJSON() ([]byte, error) {
	var buf strings.Builder
	buf.WriteByte('{')
	for i, name := range pm.Order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(pm.ByName[name])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return []byte(buf.String()), nil
}

// PreviewPayload serializza la storia nel messaggio iniziale atteso dal
// server di anteprima (stessa forma del JSON compilato, ma con la chiave
// initial_passage al posto di start_passage)
func (cs *CompiledStory) PreviewPayload() ([]byte, error) {
	payload := struct {
		Passages       PassageMap             `json:"passages"`
		InitialPassage string                 `json:"initial_passage"`
		Imports        []string               `json:"imports,omitempty"`
		Metadata       map[string]interface{} `json:"metadata,omitempty"`
		Version        string                 `json:"version,omitempty"`
	}{
		Passages:       cs.Passages,
		InitialPassage: cs.Start(),
		Imports:        cs.Imports,
		Metadata:       cs.Metadata,
		Version:        cs.Version,
	}
	return json.Marshal(payload)
}

// Start restituisce lo start dichiarato dal compilatore, oppure il primo
// passaggio in ordine di documento se la dichiarazione manca
func (cs *CompiledStory) Start() string {
	if cs.StartPassage != "" {
		return cs.StartPassage
	}
	if len(cs.Passages.Order) > 0 {
		return cs.Passages.Order[0]
	}
	return ""
}
