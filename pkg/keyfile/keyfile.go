// Package keyfile loads service-account credentials and validates them once,
// up front, so later steps never trip over a missing field.
package keyfile

import (
	"encoding/json"
	"encoding/pem"
	"net/url"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// DefaultTokenURI is Google's OAuth 2.0 token endpoint. It is used for key
// formats that do not carry their own token_uri.
const DefaultTokenURI = "https://oauth2.googleapis.com/token"

const serviceAccountType = "service_account"

var (
	// ErrKeyFileNotFound marks a key file that is missing or unreadable.
	ErrKeyFileNotFound = errors.New("key file not found")
	// ErrKeyFileMalformed marks a key file that was read but is not a usable
	// service-account key.
	ErrKeyFileMalformed = errors.New("key file malformed")
)

// ServiceAccountKey is the subset of a service-account JSON key that the
// token exchange needs. ClientEmail, PrivateKey and TokenURI are required;
// the rest is carried along when present.
type ServiceAccountKey struct {
	Type         string `json:"type,omitempty"`
	ProjectID    string `json:"project_id,omitempty"`
	PrivateKeyID string `json:"private_key_id,omitempty"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id,omitempty"`
	TokenURI     string `json:"token_uri"`
}

// Load reads and validates the JSON key at path.
func Load(path string) (*ServiceAccountKey, error) {
	data, err := readKeyFile(path)
	if err != nil {
		return nil, err
	}
	key, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "key file '%s'", path)
	}
	return key, nil
}

// Parse decodes and validates a JSON key document.
func Parse(data []byte) (*ServiceAccountKey, error) {
	key := new(ServiceAccountKey)
	if err := json.Unmarshal(data, key); err != nil {
		return nil, malformed(errors.Wrap(err, "invalid JSON"))
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return key, nil
}

// Validate reports every problem with the key in a single error marked
// ErrKeyFileMalformed.
func (key *ServiceAccountKey) Validate() error {
	var missing []string
	if key.ClientEmail == "" {
		missing = append(missing, "client_email")
	}
	if key.PrivateKey == "" {
		missing = append(missing, "private_key")
	}
	if key.TokenURI == "" {
		missing = append(missing, "token_uri")
	}
	if len(missing) > 0 {
		return malformed(errors.Newf("missing required field(s): %s", strings.Join(missing, ", ")))
	}

	if key.Type != "" && key.Type != serviceAccountType {
		return malformed(errors.Newf("unexpected credential type %q, want %q", key.Type, serviceAccountType))
	}

	tokenURI, err := url.Parse(key.TokenURI)
	if err != nil {
		return malformed(errors.Wrap(err, "token_uri is not a URL"))
	}
	if !tokenURI.IsAbs() || (tokenURI.Scheme != "https" && tokenURI.Scheme != "http") || tokenURI.Host == "" {
		return malformed(errors.Newf("token_uri %q is not an absolute http(s) URL", key.TokenURI))
	}

	if block, _ := pem.Decode([]byte(key.PrivateKey)); block == nil {
		return malformed(errors.New("private_key is not PEM encoded"))
	}

	return nil
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err = errors.Wrapf(err, "key file not found at '%s'", path)
		err = errors.WithHint(err, "check the path passed to --keyfile")
		return nil, errors.Mark(err, ErrKeyFileNotFound)
	}
	return data, nil
}

func malformed(err error) error {
	err = errors.WithHint(err, "that does not look like a service account key file")
	return errors.Mark(err, ErrKeyFileMalformed)
}
