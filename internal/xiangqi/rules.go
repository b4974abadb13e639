package xiangqi

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
)

const (
	Rows = 10
	Cols = 9
)

const (
	TypeJu    = "ju"
	TypeMa    = "ma"
	TypeXiang = "xiang"
	TypeShi   = "shi"
	TypeJiang = "jiang"
	TypePao   = "pao"
	TypeZu    = "zu"
)

var ErrMalformedBoard = errors.New("malformed board")

type Piece struct {
	Type  string       `json:"type"`
	Color entity.Color `json:"color"`
	Name  string       `json:"name"`
}

// Board is indexed [row][col]. Black starts on rows 0-3, red on rows 6-9.
type Board [Rows][Cols]*Piece

var backRank = [Cols]string{TypeJu, TypeMa, TypeXiang, TypeShi, TypeJiang, TypeShi, TypeXiang, TypeMa, TypeJu}

var names = map[entity.Color]map[string]string{
	entity.ColorBlack: {
		TypeJu: "車", TypeMa: "馬", TypeXiang: "象", TypeShi: "士", TypeJiang: "將", TypePao: "砲", TypeZu: "卒",
	},
	entity.ColorRed: {
		TypeJu: "車", TypeMa: "馬", TypeXiang: "相", TypeShi: "仕", TypeJiang: "帥", TypePao: "炮", TypeZu: "兵",
	},
}

func newPiece(pieceType string, color entity.Color) *Piece {
	return &Piece{Type: pieceType, Color: color, Name: names[color][pieceType]}
}

// NewBoard - returns the canonical starting layout.
func NewBoard() *Board {
	var board Board

	place := func(color entity.Color, back, cannons, soldiers int) {
		for col, pieceType := range backRank {
			board[back][col] = newPiece(pieceType, color)
		}

		board[cannons][1] = newPiece(TypePao, color)
		board[cannons][7] = newPiece(TypePao, color)

		for col := 0; col < Cols; col += 2 {
			board[soldiers][col] = newPiece(TypeZu, color)
		}
	}

	place(entity.ColorBlack, 0, 2, 3)
	place(entity.ColorRed, 9, 7, 6)

	return &board
}

// Rules is the default move arbiter. It enforces ownership and board bounds only;
// piece movement patterns are left to a stricter implementation.
type Rules struct{}

func New() *Rules {
	return &Rules{}
}

func (that *Rules) InitialBoard() (json.RawMessage, error) {
	raw, err := json.Marshal(NewBoard())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal board: %w", err)
	}

	return raw, nil
}

// ValidateMove - decides the outcome of moving from -> to for color.
// An illegal move is reported through Outcome.Legal, an error means the board could not be read.
func (that *Rules) ValidateMove(raw json.RawMessage, from, to entity.Position, color entity.Color) (*entity.MoveOutcome, error) {
	var board Board
	if err := json.Unmarshal(raw, &board); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBoard, err)
	}

	if !validateMove(&board, from, to, color) {
		return &entity.MoveOutcome{Legal: false}, nil
	}

	captured := board[to.Row][to.Col]
	board[to.Row][to.Col] = board[from.Row][from.Col]
	board[from.Row][from.Col] = nil

	next, err := json.Marshal(&board)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal board: %w", err)
	}

	outcome := &entity.MoveOutcome{
		Legal: true,
		Board: next,
	}

	if captured != nil {
		if outcome.Captured, err = json.Marshal(captured); err != nil {
			return nil, fmt.Errorf("failed to marshal captured piece: %w", err)
		}

		outcome.GameOver = captured.Type == TypeJiang
	}

	return outcome, nil
}

// validateMove - checks bounds and ownership.
func validateMove(board *Board, from, to entity.Position, color entity.Color) bool {
	if !onBoard(from) || !onBoard(to) || from == to {
		return false
	}

	piece := board[from.Row][from.Col]
	if piece == nil || piece.Color != color {
		return false
	}

	target := board[to.Row][to.Col]

	return target == nil || target.Color != color
}

func onBoard(pos entity.Position) bool {
	return pos.Row >= 0 && pos.Row < Rows && pos.Col >= 0 && pos.Col < Cols
}
