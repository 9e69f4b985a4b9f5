package ledger

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Cursor is the sequence number of the last record a reader has seen.
// The zero cursor is positioned before the first record.
type Cursor uint64

// Token encodes the cursor as 8 bytes big-endian.
type Token [8]byte

// Token returns the binary form of c.
func (c Cursor) Token() Token {
	var t Token
	binary.BigEndian.PutUint64(t[:], uint64(c))
	return t
}

// CursorFromToken decodes a Token.
func CursorFromToken(t Token) Cursor { return Cursor(binary.BigEndian.Uint64(t[:])) }

func (c Cursor) String() string { return strconv.FormatUint(uint64(c), 10) }

// ParseCursor parses the decimal form. An empty string is the zero cursor.
func ParseCursor(s string) (Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, &ValidationError{Field: "cursor", Reason: fmt.Sprintf("%q is not a sequence number", s)}
	}
	return Cursor(n), nil
}

// Ptr returns a pointer to a copy of c.
func (c Cursor) Ptr() *Cursor { return &c }
