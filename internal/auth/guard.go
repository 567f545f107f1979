package auth

import (
	"context"
	"errors"
	"strings"
)

const bearerPrefix = "Bearer "

// RejectReason classifies guard rejections for the transport boundary. The
// values double as the client-facing error codes.
type RejectReason string

const (
	ReasonAuthenticationRequired RejectReason = "authentication_required"
	ReasonInvalidToken           RejectReason = "invalid_token"
	ReasonTokenRevoked           RejectReason = "token_revoked"
	ReasonInternalError          RejectReason = "internal_server_error"
)

// Outcome is the result of a request-time authentication check. Guards
// return outcomes instead of throwing errors across the HTTP boundary; a
// single transport layer converts them to responses.
type Outcome struct {
	OK     bool
	Claims *Claims
	Token  string

	Reason RejectReason
	// Detail preserves the specific sub-reason for logging; it is never
	// exposed to clients.
	Detail string
}

func rejected(reason RejectReason, detail string) Outcome {
	return Outcome{Reason: reason, Detail: detail}
}

// Guard performs the per-request authentication check:
// extract bearer token, verify signature and expiry, consult the revocation
// ledger. Every protected request runs the full sequence; no authenticated
// status is carried between requests.
type Guard struct {
	codec  *Codec
	ledger RevocationLedger
}

// NewGuard constructs a Guard.
func NewGuard(codec *Codec, ledger RevocationLedger) (*Guard, error) {
	if codec == nil || ledger == nil {
		return nil, errors.New("auth: guard requires codec and ledger")
	}
	return &Guard{codec: codec, ledger: ledger}, nil
}

// Check runs the guard against an Authorization header value.
func (g *Guard) Check(ctx context.Context, authorization string) Outcome {
	token, err := ExtractBearerToken(authorization)
	if err != nil {
		return rejected(ReasonAuthenticationRequired, err.Error())
	}

	claims, err := g.codec.Verify(token)
	if err != nil {
		return rejected(ReasonInvalidToken, err.Error())
	}

	revoked, err := g.ledger.IsRevoked(ctx, claims.ID)
	if err != nil {
		// Fail closed: a ledger read failure rejects the request.
		return rejected(ReasonInternalError, ErrLedgerUnavailable.Error()+": "+err.Error())
	}
	if revoked {
		return rejected(ReasonTokenRevoked, "token id "+claims.ID+" is revoked")
	}

	return Outcome{OK: true, Claims: claims, Token: token}
}

// ExtractBearerToken pulls the token out of an Authorization header value.
func ExtractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerPrefix)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
