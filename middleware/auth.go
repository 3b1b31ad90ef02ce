package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariebrainware/campus-gateway/model"
	"github.com/ariebrainware/campus-gateway/security"
	"github.com/ariebrainware/campus-gateway/util"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

// AccessClaims are the claims carried by bearer tokens from the identity provider.
type AccessClaims struct {
	UserID uint   `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// NewAccessToken signs an HS256 bearer token for userID.
func NewAccessToken(userID uint, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(util.GetJWTSecretByte())
}

func parseAccessToken(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return util.GetJWTSecretByte(), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, errors.New("invalid access token")
	}
	return claims, nil
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// IdentifyUser resolves the client IP and, when a valid bearer token is present, the account.
// Requests with a missing or invalid token continue anonymously; RequireAuth and RequireAdmin
// reject them where needed.
func IdentifyUser(resolver *security.IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := security.Identity{IP: resolver.ClientIP(c.Request.RemoteAddr, c.GetHeader("X-Forwarded-For"))}

		if raw := bearerToken(c); raw != "" {
			claims, err := parseAccessToken(raw)
			if err == nil {
				id.UserID = claims.UserID
				c.Set(UserIDKey, claims.UserID)
				c.Set(RoleKey, claims.Role)
			} else {
				util.Logger().Debug("ignoring invalid bearer token", zap.Error(err))
			}
		}
		c.Set(IdentityKey, id)
		c.Next()
	}
}

// RequireAuth rejects anonymous callers.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetUserID(c); !ok {
			util.CallUserNotAuthorized(c, util.APIErrorParams{
				Msg: "Unauthorized",
				Err: errors.New("missing or invalid bearer token"),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects callers that are not administrators.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetUserID(c); !ok {
			util.CallUserNotAuthorized(c, util.APIErrorParams{
				Msg: "Unauthorized",
				Err: errors.New("missing or invalid bearer token"),
			})
			c.Abort()
			return
		}
		if role, _ := GetRole(c); role != model.RoleAdmin {
			util.CallForbidden(c, util.APIErrorParams{
				Msg: "Admin access required",
				Err: fmt.Errorf("role %q is not allowed", role),
			})
			return
		}
		c.Next()
	}
}
