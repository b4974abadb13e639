package xiangqi

import (
	"encoding/json"
	"testing"

	"github.com/rocketscienceinc/xiangqi-backend/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pos(row, col int) entity.Position {
	return entity.Position{Row: row, Col: col}
}

func decode(t *testing.T, raw json.RawMessage) *Board {
	t.Helper()

	var board Board
	require.NoError(t, json.Unmarshal(raw, &board))

	return &board
}

func TestNewBoard(t *testing.T) {
	// Given: the starting layout
	board := NewBoard()

	// Then: the generals face each other on the centre file
	require.NotNil(t, board[0][4])
	assert.Equal(t, &Piece{Type: TypeJiang, Color: entity.ColorBlack, Name: "將"}, board[0][4])
	assert.Equal(t, &Piece{Type: TypeJiang, Color: entity.ColorRed, Name: "帥"}, board[9][4])

	// Then: cannons and soldiers are in place
	assert.Equal(t, TypePao, board[2][1].Type)
	assert.Equal(t, TypePao, board[7][7].Type)
	for col := 0; col < Cols; col += 2 {
		assert.Equal(t, TypeZu, board[3][col].Type)
		assert.Equal(t, entity.ColorRed, board[6][col].Color)
		assert.Nil(t, board[4][col])
	}

	// Then: 16 pieces per side
	counts := map[entity.Color]int{}
	for _, row := range board {
		for _, piece := range row {
			if piece != nil {
				counts[piece.Color]++
			}
		}
	}
	assert.Equal(t, 16, counts[entity.ColorRed])
	assert.Equal(t, 16, counts[entity.ColorBlack])
}

func TestRules_ValidateMove(t *testing.T) {
	rules := New()

	start, err := rules.InitialBoard()
	require.NoError(t, err)

	t.Run("Red soldier advances", func(t *testing.T) {
		// When: red moves the centre soldier
		outcome, err := rules.ValidateMove(start, pos(6, 4), pos(5, 4), entity.ColorRed)

		// Then: the move is legal and the board changes
		require.NoError(t, err)
		require.True(t, outcome.Legal)
		assert.False(t, outcome.GameOver)
		assert.Nil(t, outcome.Captured)

		board := decode(t, outcome.Board)
		assert.Nil(t, board[6][4])
		assert.Equal(t, TypeZu, board[5][4].Type)
	})

	t.Run("Rejected moves", func(t *testing.T) {
		cases := []struct {
			name     string
			from, to entity.Position
			color    entity.Color
		}{
			{name: "empty square", from: pos(5, 4), to: pos(4, 4), color: entity.ColorRed},
			{name: "opponent piece", from: pos(3, 4), to: pos(4, 4), color: entity.ColorRed},
			{name: "own capture", from: pos(9, 0), to: pos(6, 0), color: entity.ColorRed},
			{name: "off board", from: pos(6, 8), to: pos(6, 9), color: entity.ColorRed},
			{name: "no movement", from: pos(6, 4), to: pos(6, 4), color: entity.ColorRed},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				outcome, err := rules.ValidateMove(start, tc.from, tc.to, tc.color)

				require.NoError(t, err)
				assert.False(t, outcome.Legal)
				assert.Nil(t, outcome.Board)
			})
		}
	})

	t.Run("Capturing the general ends the game", func(t *testing.T) {
		// Given: a red chariot next to the black general
		board := &Board{}
		board[0][4] = newPiece(TypeJiang, entity.ColorBlack)
		board[0][0] = newPiece(TypeJu, entity.ColorRed)
		raw, err := json.Marshal(board)
		require.NoError(t, err)

		// When: red captures the general
		outcome, err := rules.ValidateMove(raw, pos(0, 0), pos(0, 4), entity.ColorRed)

		// Then: the game is over and the captured piece is reported
		require.NoError(t, err)
		require.True(t, outcome.Legal)
		assert.True(t, outcome.GameOver)

		var captured Piece
		require.NoError(t, json.Unmarshal(outcome.Captured, &captured))
		assert.Equal(t, TypeJiang, captured.Type)
	})

	t.Run("Malformed board", func(t *testing.T) {
		_, err := rules.ValidateMove(json.RawMessage(`{"not":"a board"}`), pos(0, 0), pos(0, 1), entity.ColorRed)

		require.ErrorIs(t, err, ErrMalformedBoard)
	})
}
