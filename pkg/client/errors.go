package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
	"golang.org/x/oauth2"
)

var (
	// ErrHTTPStatus matches any *StatusError.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
	// ErrTransport marks connection, DNS, timeout and body read failures.
	ErrTransport = errors.New("transport failure")
	// ErrResponseMalformed marks a 2xx response whose body is not a JSON object.
	ErrResponseMalformed = errors.New("response malformed")
)

// StatusError is returned for any non-2xx response. The OAuth error fields
// are filled in when the body follows RFC 6749 section 5.2.
type StatusError struct {
	Method           string
	URL              string
	StatusCode       int
	Status           string
	Body             []byte
	ErrorCode        string
	ErrorDescription string

	retrieve *oauth2.RetrieveError
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Status)
	if e.ErrorCode != "" {
		msg += ": " + e.ErrorCode
	}
	if e.ErrorDescription != "" {
		msg += fmt.Sprintf(" (%s)", e.ErrorDescription)
	}
	return msg
}

// Is reports ErrHTTPStatus as matching.
func (e *StatusError) Is(target error) bool {
	return target == ErrHTTPStatus
}

// Unwrap exposes the error as an *oauth2.RetrieveError. It returns nil for
// values not produced by the client.
func (e *StatusError) Unwrap() error {
	if e.retrieve == nil {
		return nil
	}
	return e.retrieve
}

type oauthErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorURI         string `json:"error_uri"`
}

func newStatusError(
	req *http.Request,
	res *http.Response,
	body []byte,
) error {
	var parsed oauthErrorBody
	_ = json.Unmarshal(body, &parsed)

	statusErr := &StatusError{
		Method:           req.Method,
		URL:              redact(req.URL),
		StatusCode:       res.StatusCode,
		Status:           res.Status,
		Body:             body,
		ErrorCode:        parsed.Error,
		ErrorDescription: parsed.ErrorDescription,
		retrieve: &oauth2.RetrieveError{
			Response:         res,
			Body:             body,
			ErrorCode:        parsed.Error,
			ErrorDescription: parsed.ErrorDescription,
			ErrorURI:         parsed.ErrorURI,
		},
	}
	return errors.WithStack(statusErr)
}

func transportError(req *http.Request, err error) error {
	err = errors.Wrapf(err, "%s %s", req.Method, redact(req.URL))
	return errors.Mark(err, ErrTransport)
}
