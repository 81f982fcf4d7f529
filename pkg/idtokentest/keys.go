package idtokentest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

const (
	keyBits = 2048

	// P12Password protects every legacy .p12 key Google issued.
	P12Password = "notasecret"
)

var (
	sharedKey     *rsa.PrivateKey
	sharedKeyOnce sync.Once
)

// SharedKey returns a cached RSA key for tests.
// Using a shared key avoids the overhead of key generation per test.
func SharedKey() *rsa.PrivateKey {
	sharedKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, keyBits)
		if err != nil {
			panic("idtokentest: failed to generate key: " + err.Error())
		}
		sharedKey = key
	})
	return sharedKey
}

// GenerateKey creates a fresh RSA key.
// Use this when tests need isolated keys (e.g., testing wrong-key scenarios).
func GenerateKey() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, keyBits)
}

// PKCS8PEM encodes key the way Google writes it into service-account keys.
func PKCS8PEM(key *rsa.PrivateKey) string {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		panic("idtokentest: failed to marshal key: " + err.Error())
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

// PKCS1PEM encodes key as a traditional "RSA PRIVATE KEY" block.
func PKCS1PEM(key *rsa.PrivateKey) string {
	der := x509.MarshalPKCS1PrivateKey(key)
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}))
}

// KeyFile is a service-account JSON key document.
type KeyFile struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id,omitempty"`
	PrivateKeyID            string `json:"private_key_id,omitempty"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id,omitempty"`
	AuthURI                 string `json:"auth_uri,omitempty"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url,omitempty"`
	UniverseDomain          string `json:"universe_domain,omitempty"`
}

// NewKeyFile builds a complete key document for clientEmail.
func NewKeyFile(
	clientEmail string,
	tokenURI string,
	key *rsa.PrivateKey,
) KeyFile {
	return KeyFile{
		Type:                    "service_account",
		ProjectID:               "idtoken-test",
		PrivateKeyID:            uuid.NewString(),
		PrivateKey:              PKCS8PEM(key),
		ClientEmail:             clientEmail,
		ClientID:                "100000000000000000001",
		AuthURI:                 "https://accounts.google.com/o/oauth2/auth",
		TokenURI:                tokenURI,
		AuthProviderX509CertURL: "https://www.googleapis.com/oauth2/v1/certs",
		UniverseDomain:          "googleapis.com",
	}
}

// Write stores the key document at path with owner-only permissions.
func (kf KeyFile) Write(path string) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// WriteTestKeyFile writes kf into a fresh temporary directory and returns its
// path.
func WriteTestKeyFile(t testing.TB, kf KeyFile) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "key.json")
	if err := kf.Write(path); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}
	return path
}

// WriteTestFile writes raw content into a fresh temporary directory and
// returns its path.
func WriteTestFile(t testing.TB, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// P12 encodes key and a self-signed certificate for clientEmail as a legacy
// PKCS#12 bundle protected by P12Password.
func P12(clientEmail string, key *rsa.PrivateKey) ([]byte, error) {
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(now.UnixNano()),
		Subject:      pkix.Name{CommonName: clientEmail},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, errors.Wrap(err, "create certificate")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errors.Wrap(err, "parse certificate")
	}
	data, err := gopkcs12.Legacy.Encode(key, cert, nil, P12Password)
	if err != nil {
		return nil, errors.Wrap(err, "encode PKCS#12")
	}
	return data, nil
}

// WriteTestP12 writes a legacy PKCS#12 key for clientEmail into a fresh
// temporary directory and returns its path.
func WriteTestP12(t testing.TB, clientEmail string, key *rsa.PrivateKey) string {
	t.Helper()
	data, err := P12(clientEmail, key)
	if err != nil {
		t.Fatalf("failed to build p12: %v", err)
	}
	return WriteTestFile(t, "key.p12", data)
}
