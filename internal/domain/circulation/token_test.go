//go:build unit

package circulation_test

import (
	"encoding/base64"
	"testing"

	"libcirc/internal/domain/circulation"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_EncodeDecodeRoundTrip(t *testing.T) {
	original := circulation.Token{
		Kind:     circulation.TokenKindBorrow,
		RecordID: uuid.New(),
		BookID:   uuid.New(),
		UserID:   uuid.New(),
	}

	decoded, err := circulation.DecodeToken(original.Encode())
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeToken_Rejects(t *testing.T) {
	valid := circulation.Token{
		Kind:     circulation.TokenKindReturn,
		RecordID: uuid.New(),
		BookID:   uuid.New(),
		UserID:   uuid.New(),
	}

	testCases := []struct {
		name    string
		encoded string
	}{
		{
			name:    "not base64",
			encoded: "!!not-base64!!",
		},
		{
			name:    "too few fields",
			encoded: base64.URLEncoding.EncodeToString([]byte("BORROW:" + uuid.NewString())),
		},
		{
			name:    "unknown kind",
			encoded: base64.URLEncoding.EncodeToString([]byte("RENEW:" + uuid.NewString() + ":" + uuid.NewString() + ":" + uuid.NewString())),
		},
		{
			name:    "garbage ids",
			encoded: base64.URLEncoding.EncodeToString([]byte("BORROW:a:b:c")),
		},
		{
			name:    "empty string",
			encoded: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := circulation.DecodeToken(tc.encoded)
			assert.ErrorIs(t, err, circulation.ErrMalformedToken)
		})
	}

	// Sanity check that the valid form still decodes.
	_, err := circulation.DecodeToken(valid.Encode())
	assert.NoError(t, err)
}
