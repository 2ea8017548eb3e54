package web

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"deep-research-service/internal/domain/model"
	"deep-research-service/internal/infra/logging"
)

// Principal is the resolved caller identity. Ownership checks and job
// attribution only need the user id.
type Principal struct {
	UserID           string   `json:"user_id"`
	IdentityProvider string   `json:"identity_provider,omitempty"`
	UserDetails      string   `json:"user_details,omitempty"`
	Roles            []string `json:"roles"`
}

type principalCtxKey struct{}

func principalFrom(ctx context.Context) *Principal {
	if p, ok := ctx.Value(principalCtxKey{}).(*Principal); ok {
		return p
	}
	return &Principal{UserID: model.AnonymousUserID, Roles: []string{"anonymous"}}
}

// withPrincipal attaches the resolved identity to the request, both for
// handlers and for the logging context.
func withPrincipal(r *http.Request, p *Principal) *http.Request {
	ctx := context.WithValue(r.Context(), principalCtxKey{}, p)
	return r.WithContext(logging.WithUserID(ctx, p.UserID))
}

// principalMiddleware resolves the caller in priority order: gateway
// principal header, API key, then anonymous when allowed.
func (s *Server) principalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := parsePrincipalHeader(r.Header.Get("x-ms-client-principal")); p != nil {
			next.ServeHTTP(w, withPrincipal(r, p))
			return
		}

		if key := providedAPIKey(r); key != "" && s.apiKey != "" &&
			subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) == 1 {
			p := &Principal{UserID: "api_key", Roles: []string{"api_key"}}
			next.ServeHTTP(w, withPrincipal(r, p))
			return
		}

		if s.allowAnonymous {
			p := &Principal{UserID: model.AnonymousUserID, Roles: []string{"anonymous"}}
			next.ServeHTTP(w, withPrincipal(r, p))
			return
		}
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	})
}

func providedAPIKey(r *http.Request) string {
	if key := r.Header.Get("x-api-key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "apikey ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// parsePrincipalHeader decodes the gateway's base64url principal document.
// Any decode failure yields nil so the next resolution step runs.
func parsePrincipalHeader(headerVal string) *Principal {
	if headerVal == "" {
		return nil
	}
	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).
		DecodeString(strings.TrimRight(headerVal, "="))
	if err != nil {
		return nil
	}
	var doc struct {
		UserID           string `json:"userId"`
		UserIDSnake      string `json:"user_id"`
		IdentityProvider string `json:"identityProvider"`
		UserDetails      string `json:"userDetails"`
		UserRoles        []string `json:"userRoles"`
		Claims           []struct {
			Val string `json:"val"`
		} `json:"claims"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	userID := doc.UserID
	if userID == "" {
		userID = doc.UserIDSnake
	}
	if userID == "" && len(doc.Claims) > 0 {
		userID = doc.Claims[0].Val
	}
	if userID == "" {
		userID = model.AnonymousUserID
	}
	return &Principal{
		UserID:           userID,
		IdentityProvider: doc.IdentityProvider,
		UserDetails:      doc.UserDetails,
		Roles:            doc.UserRoles,
	}
}
