package idtokentest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	// DefaultIssuer is the iss claim of minted identity tokens.
	DefaultIssuer = "https://accounts.google.com"

	// DefaultTokenLifetime is the lifetime of minted identity tokens.
	DefaultTokenLifetime = time.Hour

	TokenPath     = "/token"
	TokenInfoPath = "/tokeninfo"

	grantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

var (
	sharedServerKey     *rsa.PrivateKey
	sharedServerKeyOnce sync.Once
)

func getSharedServerKey() *rsa.PrivateKey {
	sharedServerKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, keyBits)
		if err != nil {
			panic("idtokentest: failed to generate server key: " + err.Error())
		}
		sharedServerKey = key
	})
	return sharedServerKey
}

// Config holds configuration for a fake server.
type Config struct {
	Issuer        string
	SigningKey    *rsa.PrivateKey // generated when nil
	TokenLifetime time.Duration
	Logger        *log.Logger // log.Default() when nil
}

type cannedResponse struct {
	status int
	body   string
}

// Server imitates Google's OAuth token endpoint and tokeninfo endpoint.
//
// The token endpoint accepts JWT-bearer assertions signed by a trusted
// service account and answers with an RS256 identity token whose aud is the
// assertion's target_audience. The tokeninfo endpoint verifies tokens minted
// here and describes them with string-valued fields, as Google does.
type Server struct {
	issuer     string
	signingKey *rsa.PrivateKey
	keyID      string
	lifetime   time.Duration
	router     *mux.Router
	logger     *log.Logger

	mu                sync.Mutex
	baseURL           string
	trusted           map[string]*rsa.PublicKey
	tokenOverride     *cannedResponse
	tokenInfoOverride *cannedResponse
	lastForm          url.Values
	lastIDToken       string

	tokenCalls     atomic.Int64
	tokenInfoCalls atomic.Int64
}

// NewServer creates a server. Its handler can be served by any listener;
// call SetBaseURL once the address is known.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.TokenLifetime == 0 {
		cfg.TokenLifetime = DefaultTokenLifetime
	}
	if cfg.SigningKey == nil {
		key, err := GenerateKey()
		if err != nil {
			return nil, errors.Wrap(err, "generate signing key")
		}
		cfg.SigningKey = key
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	s := &Server{
		issuer:     cfg.Issuer,
		signingKey: cfg.SigningKey,
		keyID:      uuid.NewString(),
		lifetime:   cfg.TokenLifetime,
		logger:     cfg.Logger,
		trusted:    make(map[string]*rsa.PublicKey),
	}

	r := mux.NewRouter()
	r.HandleFunc(TokenPath, s.handleToken).Methods(http.MethodPost)
	r.HandleFunc(TokenInfoPath, s.handleTokenInfo).Methods(http.MethodGet)
	s.router = r

	return s, nil
}

// NewTestServer starts a server on a loopback address for the duration of
// the test.
func NewTestServer(t testing.TB) *Server {
	t.Helper()
	s, err := NewServer(Config{SigningKey: getSharedServerKey()})
	if err != nil {
		t.Fatalf("failed to create idtokentest server: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	s.SetBaseURL(ts.URL)
	return s
}

// Handler returns the router serving both endpoints.
func (s *Server) Handler() http.Handler { return s.router }

// KeyID returns the kid header of minted identity tokens.
func (s *Server) KeyID() string { return s.keyID }

// PublicKey returns the key that verifies minted identity tokens.
func (s *Server) PublicKey() *rsa.PublicKey {
	return &s.signingKey.PublicKey
}

// SetBaseURL records where the server is reachable. The token endpoint
// requires assertions to name BaseURL+TokenPath as their aud.
func (s *Server) SetBaseURL(baseURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = baseURL
}

// URL returns the base URL set by SetBaseURL.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL
}

// TokenURL returns the token endpoint, the aud expected in assertions.
func (s *Server) TokenURL() string { return s.URL() + TokenPath }

// TokenInfoURL returns the tokeninfo endpoint.
func (s *Server) TokenInfoURL() string { return s.URL() + TokenInfoPath }

// Trust accepts assertions issued by clientEmail and signed by key.
func (s *Server) Trust(clientEmail string, key *rsa.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trusted[clientEmail] = key
}

// NewKeyFile trusts key for clientEmail and returns a key document pointing
// at this server's token endpoint.
func (s *Server) NewKeyFile(clientEmail string, key *rsa.PrivateKey) KeyFile {
	s.Trust(clientEmail, &key.PublicKey)
	return NewKeyFile(clientEmail, s.TokenURL(), key)
}

// RespondToken makes the token endpoint answer every request with status and
// body, skipping all checks.
func (s *Server) RespondToken(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenOverride = &cannedResponse{status: status, body: body}
}

// RespondTokenInfo does the same for the tokeninfo endpoint.
func (s *Server) RespondTokenInfo(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenInfoOverride = &cannedResponse{status: status, body: body}
}

// TokenCalls counts requests to the token endpoint.
func (s *Server) TokenCalls() int { return int(s.tokenCalls.Load()) }

// TokenInfoCalls counts requests to the tokeninfo endpoint.
func (s *Server) TokenInfoCalls() int { return int(s.tokenInfoCalls.Load()) }

// LastTokenForm returns the form of the most recent token request.
func (s *Server) LastTokenForm() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastForm
}

// LastIDToken returns the most recently minted identity token.
func (s *Server) LastIDToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastIDToken
}

//
// token endpoint

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.tokenCalls.Add(1)

	if err := r.ParseForm(); err != nil {
		s.writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	s.mu.Lock()
	s.lastForm = r.PostForm
	canned := s.tokenOverride
	s.mu.Unlock()

	if canned != nil {
		writeRaw(w, canned.status, canned.body)
		return
	}

	if grantType := r.PostForm.Get("grant_type"); grantType != grantTypeJWTBearer {
		s.writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", fmt.Sprintf("Invalid grant_type: %s", grantType))
		return
	}
	assertion := r.PostForm.Get("assertion")
	if assertion == "" {
		s.writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Missing required parameter: assertion")
		return
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(
		assertion,
		claims,
		s.assertionKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(s.tokenURLFor(r)),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		s.writeOAuthError(w, http.StatusBadRequest, "invalid_grant", err.Error())
		return
	}

	target, _ := claims["target_audience"].(string)
	if target == "" {
		s.writeOAuthError(w, http.StatusBadRequest, "invalid_scope", "Invalid OAuth scope or ID token audience provided.")
		return
	}
	clientEmail, _ := claims.GetIssuer()

	idToken, err := s.mintIDToken(clientEmail, target)
	if err != nil {
		s.logger.Error("failed to mint id token", "client_email", clientEmail, "err", err)
		s.writeOAuthError(w, http.StatusInternalServerError, "internal_failure", "could not mint token")
		return
	}

	s.mu.Lock()
	s.lastIDToken = idToken
	s.mu.Unlock()

	s.logger.Debug("minted id token", "client_email", clientEmail, "aud", target)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"id_token":   idToken,
		"expires_in": int(s.lifetime / time.Second),
	})
}

func (s *Server) assertionKey(token *jwt.Token) (any, error) {
	issuer, err := token.Claims.GetIssuer()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.trusted[issuer]
	if !ok {
		return nil, errors.Newf("unknown service account %q", issuer)
	}
	return key, nil
}

func (s *Server) tokenURLFor(r *http.Request) string {
	if base := s.URL(); base != "" {
		return base + TokenPath
	}
	return "http://" + r.Host + TokenPath
}

func (s *Server) mintIDToken(clientEmail string, audience string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":            s.issuer,
		"aud":            audience,
		"azp":            clientEmail,
		"sub":            clientEmail,
		"email":          clientEmail,
		"email_verified": true,
		"iat":            now.Unix(),
		"exp":            now.Add(s.lifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyID
	return token.SignedString(s.signingKey)
}

//
// tokeninfo endpoint

func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	s.tokenInfoCalls.Add(1)

	s.mu.Lock()
	canned := s.tokenInfoOverride
	s.mu.Unlock()

	if canned != nil {
		writeRaw(w, canned.status, canned.body)
		return
	}

	idToken := r.URL.Query().Get("id_token")
	if idToken == "" {
		s.writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Missing id_token")
		return
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(
		idToken,
		claims,
		func(*jwt.Token) (any, error) { return s.PublicKey(), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithJSONNumber(),
	)
	if err != nil {
		s.writeOAuthError(w, http.StatusBadRequest, "invalid_token", "Invalid Value")
		return
	}

	info := make(map[string]string, len(claims)+3)
	for name, value := range claims {
		info[name] = fmt.Sprint(value)
	}
	info["alg"] = jwt.SigningMethodRS256.Alg()
	info["typ"] = "JWT"
	if kid, ok := token.Header["kid"].(string); ok {
		info["kid"] = kid
	}
	s.writeJSON(w, http.StatusOK, info)
}

//
// helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func (s *Server) writeOAuthError(w http.ResponseWriter, status int, code string, description string) {
	s.logger.Debug("rejecting request", "status", status, "error", code)
	s.writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
