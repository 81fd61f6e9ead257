package circulation

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrMalformedToken = errors.New("malformed circulation token")

type TokenKind string

const (
	TokenKindBorrow TokenKind = "BORROW"
	TokenKindReturn TokenKind = "RETURN"
)

// TokenTTL is the validity window of a freshly minted token, closed-open:
// [generatedAt, generatedAt+TokenTTL).
const TokenTTL = 24 * time.Hour

// Token is the decoded form of the opaque proof string a user presents to
// staff. The wire form is the colon-delimited payload
// "KIND:record:book:user" in URL-safe base64, the same payload the scanner UI
// embeds in its QR bitmap.
type Token struct {
	Kind     TokenKind
	RecordID uuid.UUID
	BookID   uuid.UUID
	UserID   uuid.UUID
}

func (t Token) Encode() string {
	payload := fmt.Sprintf("%s:%s:%s:%s", t.Kind, t.RecordID, t.BookID, t.UserID)
	return base64.URLEncoding.EncodeToString([]byte(payload))
}

// DecodeToken rejects anything that does not match the exact four-field
// shape; the caller separately checks the kind it expects.
func DecodeToken(encoded string) (Token, error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return Token{}, ErrMalformedToken
	}

	parts := strings.Split(string(raw), ":")
	if len(parts) != 4 {
		return Token{}, ErrMalformedToken
	}

	kind := TokenKind(parts[0])
	if kind != TokenKindBorrow && kind != TokenKindReturn {
		return Token{}, ErrMalformedToken
	}

	recordID, err := uuid.Parse(parts[1])
	if err != nil {
		return Token{}, ErrMalformedToken
	}
	bookID, err := uuid.Parse(parts[2])
	if err != nil {
		return Token{}, ErrMalformedToken
	}
	userID, err := uuid.Parse(parts[3])
	if err != nil {
		return Token{}, ErrMalformedToken
	}

	return Token{
		Kind:     kind,
		RecordID: recordID,
		BookID:   bookID,
		UserID:   userID,
	}, nil
}
