package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	t.Run("Wrapped sentinel keeps its code", func(t *testing.T) {
		// Given: a sentinel wrapped twice
		err := fmt.Errorf("failed to join room: %w", fmt.Errorf("room ABC: %w", ErrRoomFull))

		// Then: the code and the message are the sentinel's
		assert.Equal(t, "RoomFull", Code(err))
		assert.Equal(t, "Room is full", Message(err))
	})

	t.Run("Storage failure hides the cause", func(t *testing.T) {
		// Given: a storage failure carrying a driver error
		err := fmt.Errorf("%w: %w", ErrStorageFailure, errors.New("dial tcp 127.0.0.1:6379: connection refused"))

		// Then: the client sees only the stable text
		assert.Equal(t, "StorageFailure", Code(err))
		assert.NotContains(t, Message(err), "dial tcp")
		assert.False(t, IsDomain(err))
	})

	t.Run("Unknown error is internal", func(t *testing.T) {
		err := errors.New("boom")

		assert.Equal(t, CodeInternal, Code(err))
		assert.Equal(t, "Internal server error", Message(err))
		assert.False(t, IsDomain(err))
	})

	t.Run("Every sentinel has a distinct code", func(t *testing.T) {
		seen := make(map[string]bool)
		for _, d := range descriptions {
			code := Code(d.err)
			assert.False(t, seen[code], code)
			seen[code] = true
		}
	})
}
