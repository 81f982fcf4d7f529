// Package failure classifies errors from the token flow into a fixed set of
// kinds and reports them to the operator.
package failure

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"

	"git.sr.ht/~jakintosh/idtoken/pkg/client"
	"git.sr.ht/~jakintosh/idtoken/pkg/keyfile"
	"git.sr.ht/~jakintosh/idtoken/pkg/tokens"
)

// Kind is the category of a failed run.
type Kind int

const (
	KindUnexpected Kind = iota
	KindKeyFileNotFound
	KindKeyFileMalformed
	KindCrypto
	KindHTTPStatus
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindKeyFileNotFound:
		return "KeyFileNotFound"
	case KindKeyFileMalformed:
		return "KeyFileMalformed"
	case KindCrypto:
		return "CryptoError"
	case KindHTTPStatus:
		return "HttpStatusError"
	case KindTransport:
		return "TransportError"
	default:
		return "UnexpectedError"
	}
}

// Classify maps err onto its Kind. Anything not produced by a known failure
// site is KindUnexpected.
func Classify(err error) Kind {
	var statusErr *client.StatusError
	switch {
	case err == nil:
		return KindUnexpected
	case errors.Is(err, keyfile.ErrKeyFileNotFound):
		return KindKeyFileNotFound
	case errors.Is(err, keyfile.ErrKeyFileMalformed):
		return KindKeyFileMalformed
	case errors.Is(err, tokens.ErrCrypto()):
		return KindCrypto
	case errors.As(err, &statusErr):
		return KindHTTPStatus
	case errors.Is(err, client.ErrTransport):
		return KindTransport
	default:
		return KindUnexpected
	}
}

// Report writes a short description of err to w, followed by any hints.
// Every kind except KindKeyFileNotFound also gets the full stack trace.
func Report(w io.Writer, err error) {
	if err == nil {
		return
	}

	kind := Classify(err)
	if kind == KindKeyFileNotFound {
		fmt.Fprintf(w, "Error: %v\n", err)
	} else {
		fmt.Fprintf(w, "An error occurred (%s): %v\n", kind, err)
	}

	for _, hint := range errors.GetAllHints(err) {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}

	var statusErr *client.StatusError
	if errors.As(err, &statusErr) && len(statusErr.Body) > 0 {
		fmt.Fprintf(w, "Response Body:\n%s\n", statusErr.Body)
	}

	if kind != KindKeyFileNotFound {
		fmt.Fprintf(w, "Stack Trace:\n%+v\n", err)
	}
}

// ExitCode returns the process exit status for err.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
