package tokens

import (
	"crypto/rsa"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

var (
	errCrypto           = errors.New("crypto error")
	errAudienceRequired = errors.New("target audience required")
	errTokenMalformed   = errors.New("token malformed")
)

// ErrCrypto marks failures to parse the signing key or to sign.
func ErrCrypto() error { return errCrypto }

// ErrAudienceRequired is returned when an assertion is built without a
// target audience.
func ErrAudienceRequired() error { return errAudienceRequired }

// ErrTokenMalformed is returned when an identity token cannot be decoded.
func ErrTokenMalformed() error { return errTokenMalformed }

// JWTHeader is the JOSE header of a compact token.
type JWTHeader struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ"`
	KeyID     string `json:"kid,omitempty"`
}

// ParseRSAPrivateKey decodes a PEM encoded RSA key in PKCS#1 or PKCS#8 form.
func ParseRSAPrivateKey(pemKey string) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemKey))
	if err != nil {
		err = errors.Wrap(err, "failed to parse private key")
		err = errors.WithHint(err, "private_key must be a PEM encoded RSA key")
		return nil, errors.Mark(err, errCrypto)
	}
	return key, nil
}
