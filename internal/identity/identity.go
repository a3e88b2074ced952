// Package identity guards the API surface. The default provider is a
// single static bearer token compared in constant time; Verify returns
// the subject a credential belongs to so rate limiting can key on it.
package identity

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/docchat/docchat/pkg/logx"
)

var ErrInvalidCredential = errors.New("invalid credential")

type Provider interface {
	// Issue mints a credential for a subject.
	Issue(subject string) (string, error)

	// Verify checks an Authorization header value and returns the
	// subject it authenticates, or ErrInvalidCredential.
	Verify(authHeader string) (string, error)
}

// StaticToken authenticates every request against one shared token.
// An empty token disables authentication entirely, which is loudly
// logged at construction.
type StaticToken struct {
	token  string
	logger *logx.Logger
}

func NewStaticToken(token string) *StaticToken {
	p := &StaticToken{token: token, logger: logx.New("identity")}
	if token == "" {
		p.logger.Warn("no auth token configured, authentication is DISABLED")
	}
	return p
}

func (p *StaticToken) Issue(subject string) (string, error) {
	if p.token == "" {
		return "", errors.New("no token configured")
	}
	return p.token, nil
}

func (p *StaticToken) Verify(authHeader string) (string, error) {
	if p.token == "" {
		return "anonymous", nil
	}
	if authHeader == "" {
		return "", ErrInvalidCredential
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", ErrInvalidCredential
	}
	presented := strings.TrimPrefix(authHeader, "Bearer ")
	if subtle.ConstantTimeCompare([]byte(presented), []byte(p.token)) != 1 {
		return "", ErrInvalidCredential
	}
	return "api-client", nil
}
