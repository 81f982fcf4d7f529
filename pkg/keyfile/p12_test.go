package keyfile

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~jakintosh/idtoken/pkg/idtokentest"
)

func TestLoadP12(t *testing.T) {
	require.Equal(t, P12Password, idtokentest.P12Password)
	path := idtokentest.WriteTestP12(t, testEmail, idtokentest.SharedKey())

	key, err := LoadP12(path, testEmail, "")
	require.NoError(t, err)

	assert.Equal(t, "service_account", key.Type)
	assert.Equal(t, testEmail, key.ClientEmail)
	assert.Equal(t, DefaultTokenURI, key.TokenURI)
	assert.Equal(t, idtokentest.PKCS8PEM(idtokentest.SharedKey()), key.PrivateKey)

	block, _ := pem.Decode([]byte(key.PrivateKey))
	require.NotNil(t, block)
	assert.Equal(t, "PRIVATE KEY", block.Type)
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	require.NoError(t, err)
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	require.True(t, ok)
	assert.True(t, rsaKey.Equal(idtokentest.SharedKey()))
}

func TestLoadP12TokenURI(t *testing.T) {
	path := idtokentest.WriteTestP12(t, testEmail, idtokentest.SharedKey())

	key, err := LoadP12(path, testEmail, "http://127.0.0.1:8080/token")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080/token", key.TokenURI)
}

func TestLoadP12WithoutClientEmail(t *testing.T) {
	path := idtokentest.WriteTestP12(t, testEmail, idtokentest.SharedKey())

	_, err := LoadP12(path, "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyFileMalformed))
}

func TestLoadP12NotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.p12")

	_, err := LoadP12(path, testEmail, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyFileNotFound))
}

func TestLoadP12Garbage(t *testing.T) {
	path := idtokentest.WriteTestFile(t, "key.p12", []byte("definitely not pkcs12"))

	_, err := LoadP12(path, testEmail, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyFileMalformed))
	assert.Contains(t, err.Error(), "decode PKCS#12 key")
}

func TestLoadP12JSONKeyIsMalformed(t *testing.T) {
	path := idtokentest.WriteTestKeyFile(t, validKeyFile())

	_, err := LoadP12(path, testEmail, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyFileMalformed))
}
