package devserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tOgg1/dmsync/internal/db"
	"github.com/tOgg1/dmsync/internal/models"
)

var errInvalidCursor = errors.New("invalid cursor")

// cursorToken is the decoded form of an older-messages cursor. End marks a
// cursor issued with the last page of history.
type cursorToken struct {
	db.Position
	End bool `json:"end,omitempty"`
}

// encodeCursor returns the opaque cursor for a page ending at p.
func encodeCursor(p db.Position) models.Cursor {
	return encodeToken(cursorToken{Position: p})
}

// endCursor is handed out with the oldest page. Requesting it answers the
// empty terminal page without touching the database.
func endCursor() models.Cursor {
	return encodeToken(cursorToken{End: true})
}

func encodeToken(tok cursorToken) models.Cursor {
	data, _ := json.Marshal(tok)
	return models.Cursor(base64.RawURLEncoding.EncodeToString(data))
}

func decodeCursor(c models.Cursor) (cursorToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(string(c))
	if err != nil {
		return cursorToken{}, fmt.Errorf("%w: %w", errInvalidCursor, err)
	}
	var tok cursorToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return cursorToken{}, fmt.Errorf("%w: %w", errInvalidCursor, err)
	}
	if tok.End {
		return cursorToken{End: true}, nil
	}
	if tok.ItemID == "" || tok.Timestamp <= 0 {
		return cursorToken{}, errInvalidCursor
	}
	return tok, nil
}
