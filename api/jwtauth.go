package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog/log"

	"github.com/emprius/emprius-social-backend/gateway"
)

const (
	userIDHeader    = "X-User-Id"
	sessionIDHeader = "X-Session-Id"

	userIDClaim    = "userId"
	sessionIDClaim = "sessionId"
)

// authenticator checks the JWT token and the session it carries. The session must still exist,
// so a token stops working as soon as its session is signed out.
// If successful, the user and session identifiers are added to the HTTP header as `X-User-Id`
// and `X-Session-Id`, so that they can be used by the next handlers.
func (a *API) authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			writeError(w, ErrUnauthorized)
			return
		}
		if err := jwt.Validate(token,
			jwt.WithRequiredClaim(userIDClaim),
			jwt.WithRequiredClaim(sessionIDClaim),
		); err != nil {
			writeError(w, ErrUnauthorized.WithErr(err))
			return
		}
		userID, _ := claims[userIDClaim].(string)
		sessionID, _ := claims[sessionIDClaim].(string)

		session, err := a.gw.GetSession(r.Context(), sessionID)
		if err != nil {
			writeError(w, toHTTPError(err))
			return
		}
		if session.UserID != userID {
			log.Warn().Str("sessionId", sessionID).Str("userId", userID).Msg("token user does not match session")
			writeError(w, ErrUnauthorized)
			return
		}
		r.Header.Set(userIDHeader, userID)
		r.Header.Set(sessionIDHeader, sessionID)
		next.ServeHTTP(w, r)
	})
}

// makeToken creates a JWT token for the given session.
// The token is signed with the API secret (HS256) and expires with
// the session.
func (a *API) makeToken(session *gateway.Session) (*LoginResponse, error) {
	j := jwt.New()
	if err := j.Set(userIDClaim, session.UserID); err != nil {
		return nil, ErrInternalServerError.WithErr(fmt.Errorf("failed to set userId claim: %w", err))
	}
	if err := j.Set(sessionIDClaim, session.ID); err != nil {
		return nil, ErrInternalServerError.WithErr(fmt.Errorf("failed to set sessionId claim: %w", err))
	}
	if err := j.Set(jwt.ExpirationKey, session.ExpiresAt.Unix()); err != nil {
		return nil, ErrInternalServerError.WithErr(fmt.Errorf("failed to set expiration claim: %w", err))
	}
	jmap, err := j.AsMap(context.Background())
	if err != nil {
		return nil, ErrInternalServerError.WithErr(fmt.Errorf("failed to convert token to map: %w", err))
	}
	_, token, err := a.auth.Encode(jmap)
	if err != nil {
		return nil, ErrInternalServerError.WithErr(fmt.Errorf("failed to sign token: %w", err))
	}
	return &LoginResponse{Token: token, Expirity: session.ExpiresAt}, nil
}
