package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/tharu616/shopping-mall-platform/internal/core/domain"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Claims carried by access tokens. The subject is the caller's email.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AccessGate turns bearer tokens issued by the identity service into a
// domain.Principal. Token issuance happens elsewhere.
type AccessGate struct {
	secret []byte
}

func NewAccessGate(secret []byte) *AccessGate {
	return &AccessGate{secret: secret}
}

func (g *AccessGate) Authenticate(authorization string) (domain.Principal, error) {
	tokenStr, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || strings.TrimSpace(tokenStr) == "" {
		return domain.Principal{}, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(tokenStr), claims, func(t *jwt.Token) (interface{}, error) {
		return g.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return domain.Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	email := strings.TrimSpace(claims.Subject)
	if email == "" {
		return domain.Principal{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	return domain.Principal{Email: email, Role: role}, nil
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok
}

func (g *AccessGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := g.Authenticate(r.Header.Get("Authorization"))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Message: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (g *AccessGate) UnaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	var authorization string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("authorization"); len(values) > 0 {
			authorization = values[0]
		}
	}

	p, err := g.Authenticate(authorization)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}
	return handler(WithPrincipal(ctx, p), req)
}
