package main

// Phase is the Session's position in the game state machine. RoundInPlay
// from the design splits into the selection/buzz/answer/judge sub-states;
// round transitions are instantaneous (an event, not a resting phase).
type Phase string

const (
	PhaseLobby            Phase = "lobby"
	PhaseAwaitingSelect   Phase = "awaiting_selection"
	PhaseBuzzWindow       Phase = "buzz_window"
	PhaseAnswering        Phase = "answering"
	PhaseJudging          Phase = "judging"
	PhaseDailyDoubleWager Phase = "daily_double_wager"
	PhaseFinalWagers      Phase = "final_wagers"
	PhaseFinalAnswers     Phase = "final_answers"
	PhaseFinalJudging     Phase = "final_judging"
	PhaseGameOver         Phase = "game_over"
)

// Clue is immutable once its board is built, except for the revealed flag
// which flips false→true exactly once.
type Clue struct {
	ID          string
	Category    int
	Row         int
	Value       int
	Prompt      string
	Response    string
	Revealed    bool
	DailyDouble bool
}

type Category struct {
	Title string
	Clues []*Clue
}

// Board is one round's category-by-value grid.
type Board struct {
	Round      int
	Categories []Category
}

func (b *Board) clue(id string) *Clue {
	for ci := range b.Categories {
		for _, c := range b.Categories[ci].Clues {
			if c.ID == id {
				return c
			}
		}
	}
	return nil
}

// complete reports whether every clue on the board has been revealed, which
// is exactly the round-transition trigger.
func (b *Board) complete() bool {
	for ci := range b.Categories {
		for _, c := range b.Categories[ci].Clues {
			if !c.Revealed {
				return false
			}
		}
	}
	return true
}

// highestRemainingValue bounds daily-double wagers: a player may always risk
// at least the biggest unrevealed clue on the board, even with a low score.
func (b *Board) highestRemainingValue() int {
	highest := 0
	for ci := range b.Categories {
		for _, c := range b.Categories[ci].Clues {
			if !c.Revealed && c.Value > highest {
				highest = c.Value
			}
		}
	}
	return highest
}

// PublicClue is the board cell clients see; the response is withheld until
// the clue resolves.
type PublicClue struct {
	ID          string `json:"id"`
	Value       int    `json:"value"`
	Revealed    bool   `json:"revealed"`
	DailyDouble bool   `json:"daily_double,omitempty"`
}

type PublicCategory struct {
	Title string       `json:"title"`
	Clues []PublicClue `json:"clues"`
}

func (b *Board) public() []PublicCategory {
	cats := make([]PublicCategory, 0, len(b.Categories))
	for _, cat := range b.Categories {
		pc := PublicCategory{Title: cat.Title, Clues: make([]PublicClue, 0, len(cat.Clues))}
		for _, c := range cat.Clues {
			pc.Clues = append(pc.Clues, PublicClue{
				ID:          c.ID,
				Value:       c.Value,
				Revealed:    c.Revealed,
				DailyDouble: c.Revealed && c.DailyDouble,
			})
		}
		cats = append(cats, pc)
	}
	return cats
}
