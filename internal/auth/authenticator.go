package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// TokenResponse is returned by the token endpoint.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	TokenType   string    `json:"token_type"`
}

// Authenticator guards operator endpoints. A single operator password,
// stored as a bcrypt hash, is exchanged for a short-lived JWT.
type Authenticator struct {
	passwordHash []byte
	tokens       *JWTManager
}

// NewAuthenticator returns nil when secret or passwordHash is empty, which
// callers treat as authentication disabled.
func NewAuthenticator(secret, passwordHash string, ttl time.Duration) (*Authenticator, error) {
	if secret == "" || passwordHash == "" {
		return nil, nil
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, errors.New("operator password hash is not a bcrypt hash")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Authenticator{
		passwordHash: []byte(passwordHash),
		tokens:       NewJWTManager(secret, ttl),
	}, nil
}

// HashPassword returns the bcrypt hash to configure for password.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Login exchanges the operator password for an access token.
func (a *Authenticator) Login(password string) (*TokenResponse, error) {
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	token, expiresAt, err := a.tokens.GenerateAccessToken(RoleOperator, RoleOperator)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{AccessToken: token, ExpiresAt: expiresAt, TokenType: "Bearer"}, nil
}

// HandleToken serves POST {"password": "..."}.
func (a *Authenticator) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := a.Login(req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// RequireOperator rejects requests without a valid operator bearer token.
func (a *Authenticator) RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}
		claims, err := a.tokens.ValidateAccessToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		if claims.Role != RoleOperator {
			writeError(w, http.StatusForbidden, "Operator role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
