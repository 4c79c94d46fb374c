package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jwalitptl/scheduler-api/internal/handler"
	apperrors "github.com/jwalitptl/scheduler-api/pkg/errors"
)

// ContextOwnerID holds the authenticated owner's uuid.UUID.
const ContextOwnerID = "owner_id"

type AuthConfig struct {
	Secret string
	// Issuer, when set, must match the token's iss claim.
	Issuer string
}

type AuthMiddleware struct {
	secret []byte
	parser *jwt.Parser
}

func NewAuthMiddleware(config AuthConfig) *AuthMiddleware {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	return &AuthMiddleware{
		secret: []byte(config.Secret),
		parser: jwt.NewParser(opts...),
	}
}

// Authenticate verifies the bearer token and stores the owner id in the context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "missing authorization header", nil)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(c, "invalid authorization format", nil)
			return
		}

		ownerID, err := m.ownerFromToken(parts[1])
		if err != nil {
			unauthorized(c, "invalid token", err)
			return
		}

		c.Set(ContextOwnerID, ownerID)
		c.Next()
	}
}

func unauthorized(c *gin.Context, message string, err error) {
	handler.RespondError(c, apperrors.Unauthorized(message, err))
	c.Abort()
}

func (m *AuthMiddleware) ownerFromToken(raw string) (uuid.UUID, error) {
	claims := jwt.MapClaims{}
	if _, err := m.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}); err != nil {
		return uuid.Nil, err
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		if v, ok := claims["user_id"].(string); ok {
			subject = v
		}
	}
	if subject == "" {
		return uuid.Nil, errors.New("token has no subject")
	}

	ownerID, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subject: %w", err)
	}
	return ownerID, nil
}

// OwnerID returns the owner stored by Authenticate.
func OwnerID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextOwnerID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
