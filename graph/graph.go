package graph

import (
	"bardic-editor/parser"
)

// Ampiezze di wrapping per le etichette (solo presentazione)
const (
	NodeLabelWidth = 20
	EdgeLabelWidth = 12
)

// Node rappresenta un nodo del grafo della storia
type Node struct {
	ID        string `json:"id"`
	Label     string `json:"label"` // Etichetta wrappata per il renderer
	FullName  string `json:"full_name"`
	HasParams bool   `json:"has_params"`
	IsMissing bool   `json:"is_missing"` // Destinazione referenziata ma mai definita
	IsOrphan  bool   `json:"is_orphan"`  // Nessun arco entrante e non è lo start
}

// Edge rappresenta un arco orientato tra due passaggi
type Edge struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Label         string `json:"label"`
	IsConditional bool   `json:"is_conditional"`
	IsJump        bool   `json:"is_jump"`
}

// Graph è la vista materializzata dell'intera storia,
// il contratto verso il renderer esterno
type Graph struct {
	Nodes           []Node   `json:"nodes"`
	Edges           []Edge   `json:"edges"`
	StartPassage    string   `json:"startPassage"`
	MissingPassages []string `json:"missingPassages"`
	OrphanPassages  []string `json:"orphanPassages"`
}

// Build costruisce il grafo a partire dalla mappa passaggio → scelte.
// Trasformazione pura e idempotente: stesso input, stesso grafo.
// startPassage arriva dal chiamante perché le due modalità di compilazione
// non concordano su chi sia lo start (primo in ordine di documento per il
// parser semplice, dichiarato dal compilatore in modalità compilata).
func Build(story *parser.Story, startPassage string) *Graph {
	g := &Graph{
		Nodes:           []Node{},
		Edges:           []Edge{},
		StartPassage:    startPassage,
		MissingPassages: []string{},
		OrphanPassages:  []string{},
	}

	// Prima passata: raccogli le destinazioni che risolvono a un passaggio
	// esistente (servono per gli orfani) e tutte le destinazioni in assoluto
	// (servono per i passaggi mancanti). Slice + set per mantenere l'ordine.
	referenced := make(map[string]bool)
	seenTargets := make(map[string]bool)
	var allTargets []string

	for _, name := range story.Order {
		for _, choice := range story.Passages[name].Choices {
			if !seenTargets[choice.Target] {
				seenTargets[choice.Target] = true
				allTargets = append(allTargets, choice.Target)
			}
			if _, exists := story.Passages[choice.Target]; exists {
				referenced[choice.Target] = true
			}
		}
	}

	// Un nodo per ogni passaggio definito
	for _, name := range story.Order {
		passage := story.Passages[name]
		g.Nodes = append(g.Nodes, Node{
			ID:        name,
			Label:     WrapLabel(name, NodeLabelWidth),
			FullName:  passage.FullName,
			HasParams: passage.HasParams,
			IsOrphan:  !referenced[name] && name != startPassage,
		})
	}

	// Un arco per ogni coppia (from,to) unica: in caso di scelte duplicate
	// verso la stessa destinazione vince la prima incontrata
	edgeSeen := make(map[[2]string]bool)
	for _, name := range story.Order {
		for _, choice := range story.Passages[name].Choices {
			key := [2]string{name, choice.Target}
			if edgeSeen[key] {
				continue
			}
			edgeSeen[key] = true
			g.Edges = append(g.Edges, Edge{
				From:          name,
				To:            choice.Target,
				Label:         WrapLabel(choice.Text, EdgeLabelWidth),
				IsConditional: choice.IsConditional,
				IsJump:        choice.IsJump,
			})
		}
	}

	// Nodi sintetici per le destinazioni mai definite
	for _, target := range allTargets {
		if _, exists := story.Passages[target]; exists {
			continue
		}
		g.MissingPassages = append(g.MissingPassages, target)
		g.Nodes = append(g.Nodes, Node{
			ID:        target,
			Label:     WrapLabel(target, NodeLabelWidth),
			FullName:  target,
			IsMissing: true,
		})
	}

	// Lista orfani in ordine di documento
	for _, node := range g.Nodes {
		if node.IsOrphan {
			g.OrphanPassages = append(g.OrphanPassages, node.ID)
		}
	}

	return g
}
