package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role tags an authenticated caller.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleMechanic Role = "mechanic"
)

// Actor is the resolved identity of an authenticated caller: one id plus an
// explicit role tag. Handlers branch on the tag, never on the shape of a
// looked-up profile.
type Actor struct {
	Kind Role
	ID   uuid.UUID
}

// Claims extends the registered claims with role information. The subject is
// the actor's uuid.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Middleware validates bearer tokens, resolves the Actor and injects it into
// the request context. When roles are given, callers outside them get 403.
func Middleware(secret string, roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := tokenFromHeader(r.Header.Get("Authorization"))
			if tokenString == "" {
				http.Error(w, "missing token", http.StatusUnauthorized)
				return
			}
			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			actorID, err := uuid.Parse(claims.Subject)
			if err != nil {
				http.Error(w, "invalid token subject", http.StatusUnauthorized)
				return
			}
			if len(allowed) > 0 {
				if _, ok := allowed[claims.Role]; !ok {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
			}
			ctx := context.WithValue(r.Context(), actorKey{}, Actor{Kind: claims.Role, ID: actorID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext retrieves the resolved actor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// Token mints a signed token for the actor, used by tests and tooling.
func Token(secret string, actor Actor) (string, error) {
	claims := Claims{
		Role: actor.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: actor.ID.String(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type actorKey struct{}

func tokenFromHeader(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
