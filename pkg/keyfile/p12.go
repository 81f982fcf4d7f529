package keyfile

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/pkcs12"
)

// P12Password is the fixed password Google uses for every legacy .p12
// service-account key.
const P12Password = "notasecret"

// LoadP12 reads a legacy PKCS#12 service-account key. The format carries no
// account metadata, so the client email must be supplied; an empty tokenURI
// falls back to DefaultTokenURI.
func LoadP12(
	path string,
	clientEmail string,
	tokenURI string,
) (*ServiceAccountKey, error) {
	data, err := readKeyFile(path)
	if err != nil {
		return nil, err
	}

	privateKey, _, err := pkcs12.Decode(data, P12Password)
	if err != nil {
		return nil, malformed(errors.Wrapf(err, "decode PKCS#12 key '%s'", path))
	}
	rsaKey, ok := privateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, malformed(errors.Newf("PKCS#12 key '%s' is %T, not RSA", path, privateKey))
	}

	der, err := x509.MarshalPKCS8PrivateKey(rsaKey)
	if err != nil {
		return nil, malformed(errors.Wrap(err, "re-encode PKCS#12 key"))
	}

	if tokenURI == "" {
		tokenURI = DefaultTokenURI
	}
	key := &ServiceAccountKey{
		Type:        serviceAccountType,
		PrivateKey:  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		ClientEmail: clientEmail,
		TokenURI:    tokenURI,
	}
	if err := key.Validate(); err != nil {
		return nil, errors.Wrapf(err, "key file '%s'", path)
	}
	return key, nil
}
