package main

import (
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// credentialParams are query parameters that carry tokens or grant material
var credentialParams = []string{"accessToken", "access_token", "refresh_token", "token", "code", "state"}

const redacted = "REDACTED"

// redactingFormatter formats request logs with chi's default formatter after
// masking credentials in the query string
type redactingFormatter struct {
	next middleware.LogFormatter
}

func newRequestLogger(out io.Writer) func(http.Handler) http.Handler {
	return middleware.RequestLogger(redactingFormatter{
		next: &middleware.DefaultLogFormatter{
			Logger:  log.New(out, "", log.LstdFlags),
			NoColor: true,
		},
	})
}

func (f redactingFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return f.next.NewLogEntry(redactQuery(r))
}

// redactQuery returns r, or a shallow copy of it whose URL has credential
// parameters masked
func redactQuery(r *http.Request) *http.Request {
	if r.URL.RawQuery == "" {
		return r
	}
	query := r.URL.Query()
	masked := false
	for _, name := range credentialParams {
		if query.Has(name) {
			query.Set(name, redacted)
			masked = true
		}
	}
	if !masked {
		return r
	}

	u := *r.URL
	u.RawQuery = query.Encode()
	clone := r.WithContext(r.Context())
	clone.URL = &u
	clone.RequestURI = u.RequestURI()
	return clone
}
