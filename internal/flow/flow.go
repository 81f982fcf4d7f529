// Package flow runs the service-account to identity-token exchange: load
// the key, sign an assertion, redeem it, and optionally inspect the result.
package flow

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"

	"git.sr.ht/~jakintosh/idtoken/pkg/client"
	"git.sr.ht/~jakintosh/idtoken/pkg/keyfile"
	"git.sr.ht/~jakintosh/idtoken/pkg/tokens"
)

// Options configures a single run. Either KeyFile or P12File must be set.
type Options struct {
	KeyFile string

	// P12File selects a legacy PKCS#12 key, which needs ClientEmail and
	// optionally TokenURI alongside it.
	P12File     string
	ClientEmail string
	TokenURI    string

	Audience      string
	SkipTokenInfo bool

	Out       io.Writer
	Logger    *log.Logger
	Builder   *tokens.Builder
	Exchanger client.Exchanger
	Inspector client.Inspector
}

// Result records how far a run got and what each step produced. Output of a
// step that never ran is left zero.
type Result struct {
	State     State
	LastStep  State
	Key       *keyfile.ServiceAccountKey
	Claims    tokens.AssertionClaims
	Assertion string
	Response  client.TokenResponse
	IDClaims  tokens.IDTokenClaims
	TokenInfo client.TokenInfo
}

type runner struct {
	opts   Options
	out    *printer
	logger *log.Logger
	result *Result
}

// Run executes the flow once. On failure the returned Result holds
// State == StateFailed and everything produced before the failing step;
// whatever was already printed stays printed.
func Run(
	ctx context.Context,
	opts Options,
) (*Result, error) {
	r := newRunner(opts)
	if err := r.run(ctx); err != nil {
		r.logger.Debug("run failed", "after", r.result.LastStep)
		r.result.State = StateFailed
		return r.result, err
	}
	r.result.State = StateDone
	r.logger.Debug("run finished", "state", r.result.State)
	return r.result, nil
}

func newRunner(opts Options) *runner {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Builder == nil {
		opts.Builder = tokens.NewBuilder(opts.Logger)
	}
	if opts.Exchanger == nil || opts.Inspector == nil {
		c := client.New(client.WithLogger(opts.Logger))
		if opts.Exchanger == nil {
			opts.Exchanger = c
		}
		if opts.Inspector == nil {
			opts.Inspector = c
		}
	}
	return &runner{
		opts:   opts,
		out:    &printer{w: opts.Out},
		logger: opts.Logger,
		result: &Result{State: StateStart, LastStep: StateStart},
	}
}

func (r *runner) advance(next State) {
	r.logger.Debug("state transition", "from", r.result.LastStep, "to", next)
	r.result.LastStep = next
	r.result.State = next
}

func (r *runner) run(ctx context.Context) error {
	// 1. load the key
	key, err := r.loadKey()
	if err != nil {
		return err
	}
	r.result.Key = key
	r.advance(StateKeyLoaded)

	// 2. build and sign the assertion
	claims := r.opts.Builder.Claims(key, r.opts.Audience)
	r.result.Claims = claims
	if err := r.out.JSON("JWT Payload", claims); err != nil {
		return err
	}
	assertion, err := r.opts.Builder.Sign(key, claims)
	if err != nil {
		return err
	}
	r.result.Assertion = assertion
	if err := r.out.Text("Signed Assertion", assertion); err != nil {
		return err
	}
	r.advance(StateAssertionBuilt)

	// 3. redeem it
	response, err := r.opts.Exchanger.Exchange(ctx, key.TokenURI, assertion)
	if err != nil {
		return err
	}
	r.result.Response = response
	if err := r.out.JSON("Token Response", response); err != nil {
		return err
	}
	r.advance(StateExchanged)

	// 4. inspect, if there is anything to inspect
	idToken, ok := response.IDToken()
	if !ok {
		r.logger.Info("token response has no id_token, skipping inspection")
		r.advance(StateSkippedInspection)
		return nil
	}
	if err := r.showIDToken(idToken); err != nil {
		return err
	}
	if r.opts.SkipTokenInfo {
		r.logger.Info("tokeninfo lookup disabled, skipping inspection")
		r.advance(StateSkippedInspection)
		return nil
	}

	info, err := r.opts.Inspector.Inspect(ctx, idToken)
	if err != nil {
		return err
	}
	r.result.TokenInfo = info
	if err := r.out.JSON("Token Info", info); err != nil {
		return err
	}
	r.advance(StateInspected)
	return nil
}

func (r *runner) loadKey() (*keyfile.ServiceAccountKey, error) {
	switch {
	case r.opts.P12File != "":
		r.logger.Debug("loading PKCS#12 key", "path", r.opts.P12File, "client_email", r.opts.ClientEmail)
		return keyfile.LoadP12(r.opts.P12File, r.opts.ClientEmail, r.opts.TokenURI)
	case r.opts.KeyFile != "":
		r.logger.Debug("loading key file", "path", r.opts.KeyFile)
		return keyfile.Load(r.opts.KeyFile)
	default:
		return nil, errors.New("no key file given")
	}
}

// showIDToken prints the raw identity token and its unverified claims. A
// token that does not decode is only worth a warning.
func (r *runner) showIDToken(idToken string) error {
	if err := r.out.Text("ID Token", idToken); err != nil {
		return err
	}
	_, claims, err := tokens.DecodeUnverified(idToken)
	if err != nil {
		r.logger.Warn("could not decode id_token", "err", err)
		return nil
	}
	r.result.IDClaims = claims
	return r.out.JSON("ID Token Claims", claims)
}
