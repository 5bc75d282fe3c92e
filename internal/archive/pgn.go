package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-chess-arena/internal/domain"
	"github.com/park285/cheese-chess-arena/internal/rules"
)

// PGNResult maps the outcome to the PGN result token.
func PGNResult(g *domain.Game) string {
	switch g.Outcome {
	case domain.OutcomeWhiteWins, domain.OutcomeBlackResigned:
		return "1-0"
	case domain.OutcomeBlackWins, domain.OutcomeWhiteResigned:
		return "0-1"
	case domain.OutcomeDraw:
		return "1/2-1/2"
	}
	return "*"
}

// Termination names how a game ended: checkmate, stalemate, insufficient_material,
// resignation, or "" while it runs.
func Termination(g *domain.Game) string {
	switch g.Status {
	case domain.StatusResigned:
		return "resignation"
	case domain.StatusCompleted:
		if g.Outcome == domain.OutcomeWhiteWins || g.Outcome == domain.OutcomeBlackWins {
			return string(rules.Checkmate)
		}
		if board, err := rules.ParseBoard(g.BoardState); err == nil {
			if t := board.Termination(); t != rules.NotTerminal {
				return string(t)
			}
		}
		return "draw"
	}
	return ""
}

// BuildPGN renders the game as PGN text. Running games get the "*" result.
func BuildPGN(g *domain.Game) string {
	if g == nil {
		return ""
	}
	result := PGNResult(g)
	date := g.CreatedAt
	if date.IsZero() {
		date = time.Now()
	}
	var b strings.Builder
	b.WriteString("[Event \"Cheese Chess Arena\"]\n")
	b.WriteString("[Site \"web\"]\n")
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(nameOr(g.White)))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(nameOr(g.Black)))
	if t := Termination(g); t != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(t))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", result)

	for i := 0; i < len(g.Moves); i += 2 {
		fmt.Fprintf(&b, "%d. %s", i/2+1, strings.TrimSpace(g.Moves[i].Notation))
		if i+1 < len(g.Moves) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(g.Moves[i+1].Notation))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func nameOr(id domain.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	return id.ID
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
