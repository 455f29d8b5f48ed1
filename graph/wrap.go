package graph

import "strings"

// WrapLabel spezza un'etichetta su più righe per il display a larghezza
// fissa del renderer. Greedy: riempie ogni riga fino a width caratteri,
// preferendo spezzare su '.', '_' o spazio; se nel segmento non c'è un
// punto di rottura accettabile taglia secco a width caratteri. La
// larghezza è in rune, non in byte: un taglio a metà di un carattere
// multibyte produrrebbe etichette UTF-8 invalide.
func WrapLabel(label string, width int) string {
	if width <= 0 {
		return label
	}

	runes := []rune(label)
	if len(runes) <= width {
		return label
	}

	var lines []string
	rest := runes

	for len(rest) > width {
		cut := lastBreakPoint(rest[:width+1])
		if cut <= 0 {
			cut = width
		}
		lines = append(lines, strings.TrimSpace(string(rest[:cut])))
		rest = trimLeadingSpaces(rest[cut:])
	}
	if len(rest) > 0 {
		lines = append(lines, string(rest))
	}

	return strings.Join(lines, "\n")
}

// lastBreakPoint trova l'ultimo punto di rottura utile nel segmento.
// Dopo '.' e '_' si spezza includendo il carattere nella riga corrente;
// sullo spazio si spezza prima dello spazio.
func lastBreakPoint(segment []rune) int {
	best := -1
	for i, r := range segment {
		switch r {
		case '.', '_':
			if i+1 < len(segment) {
				best = i + 1
			}
		case ' ':
			best = i
		}
	}
	return best
}

func trimLeadingSpaces(runes []rune) []rune {
	for len(runes) > 0 && runes[0] == ' ' {
		runes = runes[1:]
	}
	return runes
}
