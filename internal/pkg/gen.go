package pkg

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	roomIDLength   = 8
	roomIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// GenerateRoomID - generates a short, shareable room code of uppercase base-36 characters.
func GenerateRoomID() string {
	var sb strings.Builder
	sb.Grow(roomIDLength)

	limit := big.NewInt(int64(len(roomIDAlphabet)))
	for range roomIDLength {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic(err) // crypto/rand never fails on supported platforms
		}

		sb.WriteByte(roomIDAlphabet[n.Int64()])
	}

	return sb.String()
}

// NormalizeRoomID - room codes are case-insensitive.
func NormalizeRoomID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// GenerateNewSessionID - generates an id for one live connection.
func GenerateNewSessionID() string {
	return uuid.NewString()
}

// GenerateSessionToken - generates the client-held token that reclaims a slot after reconnecting.
func GenerateSessionToken() string {
	return uuid.NewString()
}
