package main

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed boards/*
var boards embed.FS

const defaultBoardPath = "boards/default.json"

// GameFile is the on-disk clue set: one board per round plus the final clue.
// Authoring tooling is out of scope; anything structurally valid is accepted.
type GameFile struct {
	Rounds []RoundDef `json:"rounds"`
	Final  FinalDef   `json:"final"`
}

type RoundDef struct {
	Categories []CategoryDef `json:"categories"`
}

type CategoryDef struct {
	Title string    `json:"title"`
	Clues []ClueDef `json:"clues"`
}

type ClueDef struct {
	Prompt      string `json:"prompt"`
	Response    string `json:"response"`
	Value       int    `json:"value,omitempty"`
	DailyDouble bool   `json:"daily_double,omitempty"`
}

type FinalDef struct {
	Category string `json:"category"`
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

func loadGameFile(path string) (*GameFile, error) {
	var (
		data []byte
		err  error
	)

	if path == "" {
		data, err = boards.ReadFile(defaultBoardPath)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	gf := &GameFile{}
	if err := json.Unmarshal(data, gf); err != nil {
		return nil, fmt.Errorf("parsing game file: %w", err)
	}

	if len(gf.Rounds) == 0 {
		return nil, fmt.Errorf("game file defines no rounds")
	}
	for r, round := range gf.Rounds {
		if len(round.Categories) == 0 {
			return nil, fmt.Errorf("round %d has no categories", r+1)
		}
		for _, cat := range round.Categories {
			if len(cat.Clues) == 0 {
				return nil, fmt.Errorf("category %q has no clues", cat.Title)
			}
		}
	}
	if gf.Final.Prompt == "" || gf.Final.Response == "" {
		return nil, fmt.Errorf("game file is missing the final clue")
	}

	return gf, nil
}

// buildBoards turns clue definitions into runtime boards. Unset clue values
// default to (row+1) x 200, doubled each round, matching the usual grid.
func buildBoards(gf *GameFile) []*Board {
	built := make([]*Board, 0, len(gf.Rounds))

	for r, round := range gf.Rounds {
		board := &Board{Round: r + 1}
		for ci, cat := range round.Categories {
			category := Category{Title: cat.Title}
			for row, def := range cat.Clues {
				value := def.Value
				if value == 0 {
					value = (row + 1) * 200 * (r + 1)
				}
				category.Clues = append(category.Clues, &Clue{
					ID:          fmt.Sprintf("r%dc%dv%d", r+1, ci+1, row+1),
					Category:    ci,
					Row:         row,
					Value:       value,
					Prompt:      def.Prompt,
					Response:    def.Response,
					DailyDouble: def.DailyDouble,
				})
			}
			board.Categories = append(board.Categories, category)
		}
		built = append(built, board)
	}

	return built
}
