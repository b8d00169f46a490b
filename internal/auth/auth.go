package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clasedesurf/reservations/internal/apperr"
	"github.com/clasedesurf/reservations/internal/config"
	"github.com/clasedesurf/reservations/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const CookieName = "auth_token"

// AuthHandler turns session tokens issued by the login service into
// identities. It never issues sessions for credentials itself.
type AuthHandler struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewAuthHandler(cfg *config.Config, db *gorm.DB) *AuthHandler {
	return &AuthHandler{
		db:  db,
		cfg: cfg,
	}
}

// GenerateToken signs a session token. Used for sliding renewal and tests.
func (h *AuthHandler) GenerateToken(userID uint, role Role) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    string(role),
		"exp":     time.Now().Add(h.cfg.SessionDuration()).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.cfg.JWTSecret))
}

type session struct {
	identity  Identity
	expiresAt time.Time
}

func (h *AuthHandler) parse(tokenString string) (*session, error) {
	if h.cfg.JWTSecret == "" {
		return nil, apperr.New(apperr.Unauthorized, "authentication is not configured")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(h.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.New(apperr.Unauthorized, "invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperr.New(apperr.Unauthorized, "invalid token claims")
	}
	userIDFloat, ok := claims["user_id"].(float64)
	if !ok || userIDFloat < 1 {
		return nil, apperr.New(apperr.Unauthorized, "invalid token claims")
	}

	// Tokens without a role predate roles and belong to students.
	role := RoleStudent
	if r, ok := claims["role"].(string); ok && r != "" {
		role = Role(r)
	}
	if !role.Valid() {
		return nil, apperr.Newf(apperr.Unauthorized, "unknown role %q", role)
	}

	s := &session{identity: Identity{UserID: uint(userIDFloat), Role: role}}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.expiresAt = exp.Time
	}
	return s, nil
}

// Resolve validates a token and completes the identity. School admins get
// the school they own; one without a school can act on nothing.
func (h *AuthHandler) Resolve(ctx context.Context, tokenString string) (Identity, error) {
	s, err := h.parse(tokenString)
	if err != nil {
		return Identity{}, err
	}
	if err := h.attachSchool(ctx, &s.identity); err != nil {
		return Identity{}, err
	}
	return s.identity, nil
}

func (h *AuthHandler) attachSchool(ctx context.Context, id *Identity) error {
	if id.Role != RoleSchoolAdmin || h.db == nil {
		return nil
	}
	var school models.School
	err := h.db.WithContext(ctx).Where("owner_id = ?", id.UserID).Order("id").First(&school).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up school of user %d: %w", id.UserID, err)
	}
	id.SchoolID = school.ID
	return nil
}

// Require returns the caller when it has one of roles, or any role when
// roles is empty.
func Require(ctx context.Context, roles ...Role) (Identity, error) {
	id, ok := IdentityFrom(ctx)
	if !ok || id.UserID == 0 {
		return Identity{}, apperr.New(apperr.Unauthorized, "authentication required")
	}
	if len(roles) == 0 {
		return id, nil
	}
	for _, r := range roles {
		if id.Role == r {
			return id, nil
		}
	}
	return Identity{}, apperr.New(apperr.Forbidden, "your role cannot do this")
}

type MeInput struct{}

type MeOutput struct {
	Body struct {
		UserID   uint `json:"userId"`
		Role     Role `json:"role"`
		SchoolID uint `json:"schoolId,omitempty"`
	}
}

// HandleMe returns the identity the request was made with.
func (h *AuthHandler) HandleMe(ctx context.Context, input *MeInput) (*MeOutput, error) {
	id, err := Require(ctx)
	if err != nil {
		return nil, err
	}
	resp := &MeOutput{}
	resp.Body.UserID = id.UserID
	resp.Body.Role = id.Role
	resp.Body.SchoolID = id.SchoolID
	return resp, nil
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
