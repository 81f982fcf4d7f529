package tokens

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"

	"git.sr.ht/~jakintosh/idtoken/pkg/keyfile"
)

// AssertionLifetime is the fixed validity window of a signed assertion.
const AssertionLifetime = 60 * time.Second

// AssertionClaims is the claim set of a JWT-bearer assertion that asks the
// token endpoint for an identity token scoped to TargetAudience.
type AssertionClaims struct {
	Issuer         string `json:"iss"`
	Audience       string `json:"aud"`
	IssuedAt       int64  `json:"iat"`
	Expiration     int64  `json:"exp"`
	TargetAudience string `json:"target_audience"`
}

func (c AssertionClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Expiration, 0)), nil
}
func (c AssertionClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}
func (c AssertionClaims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c AssertionClaims) GetIssuer() (string, error)              { return c.Issuer, nil }
func (c AssertionClaims) GetSubject() (string, error)             { return "", nil }
func (c AssertionClaims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{c.Audience}, nil
}

var _ jwt.Claims = AssertionClaims{}

// ==============================================

// Builder assembles and signs assertions. The zero value is not usable;
// create one with NewBuilder.
type Builder struct {
	now    func() time.Time
	logger *log.Logger
}

// NewBuilder returns a Builder reading the wall clock. A nil logger falls
// back to the default logger.
func NewBuilder(logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.Default()
	}
	return &Builder{
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the time source.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build signs a fresh assertion for key scoped to audience.
func (b *Builder) Build(
	key *keyfile.ServiceAccountKey,
	audience string,
) (string, error) {
	return b.Sign(key, b.Claims(key, audience))
}

// Claims assembles the claim set for key and audience at the current time.
func (b *Builder) Claims(
	key *keyfile.ServiceAccountKey,
	audience string,
) AssertionClaims {
	issuedAt := b.now().Unix()
	return AssertionClaims{
		Issuer:         key.ClientEmail,
		Audience:       key.TokenURI,
		IssuedAt:       issuedAt,
		Expiration:     issuedAt + int64(AssertionLifetime/time.Second),
		TargetAudience: audience,
	}
}

// Sign serializes claims and signs them with RS256 using the key's private
// key. The header carries the key's private_key_id as kid when present.
func (b *Builder) Sign(
	key *keyfile.ServiceAccountKey,
	claims AssertionClaims,
) (string, error) {
	if claims.TargetAudience == "" {
		return "", errors.WithStack(errAudienceRequired)
	}

	b.logger.Debug("signing assertion",
		"iss", claims.Issuer,
		"aud", claims.Audience,
		"iat", claims.IssuedAt,
		"exp", claims.Expiration,
		"target_audience", claims.TargetAudience,
	)

	signingKey, err := ParseRSAPrivateKey(key.PrivateKey)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if key.PrivateKeyID != "" {
		token.Header["kid"] = key.PrivateKeyID
	}

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "failed to sign assertion"), errCrypto)
	}
	return signed, nil
}
