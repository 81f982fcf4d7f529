package tokens

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

// IDTokenClaims is the payload of an identity token as issued, without any
// claim validation applied.
type IDTokenClaims = jwt.MapClaims

// DecodeUnverified decodes the header and payload of an identity token
// without checking its signature. It exists for display only; nothing it
// returns should be trusted.
func DecodeUnverified(idToken string) (*JWTHeader, IDTokenClaims, error) {
	if parts := strings.Split(idToken, "."); len(parts) != 3 {
		return nil, nil, errors.Mark(
			errors.Newf("JWT expected three parts, found %d", len(parts)),
			errTokenMalformed,
		)
	}

	claims := IDTokenClaims{}
	token, _, err := jwt.NewParser().ParseUnverified(idToken, claims)
	if err != nil {
		return nil, nil, errors.Mark(errors.Wrap(err, "decode identity token"), errTokenMalformed)
	}

	header := &JWTHeader{}
	header.Algorithm, _ = token.Header["alg"].(string)
	header.Type, _ = token.Header["typ"].(string)
	header.KeyID, _ = token.Header["kid"].(string)
	return header, claims, nil
}
