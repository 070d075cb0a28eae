package fakeapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/rupesh-2/matrimonial-UI/internal/logging"
)

type registerRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	Gender               string `json:"gender"`
	Age                  int    `json:"age"`
	Location             string `json:"location"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User  userJSON `json:"user"`
	Token string   `json:"token"`
}

// register handles POST /api/register.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid register payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	fields := map[string][]string{}
	if strings.TrimSpace(req.Name) == "" {
		fields["name"] = []string{"The name field is required."}
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		fields["email"] = []string{"The email must be a valid email address."}
	}
	if len(req.Password) < 8 {
		fields["password"] = []string{"The password must be at least 8 characters."}
	} else if req.Password != req.PasswordConfirmation {
		fields["password"] = []string{"The password confirmation does not match."}
	}
	if req.Age != 0 && req.Age < 18 {
		fields["age"] = []string{"The age must be at least 18."}
	}
	if len(fields) > 0 {
		logger.Warn("register validation failed", "email", req.Email, "fields", len(fields))
		respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]any{"message": "The given data was invalid.", "errors": fields})
		return
	}

	user, err := s.world.CreateUser(SeedUser{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Gender:   req.Gender,
		Age:      req.Age,
		Location: req.Location,
	})
	if errors.Is(err, ErrConflict) {
		logger.Warn("register existing account", "email", req.Email)
		respondJSON(ctx, w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The email has already been taken.",
			"errors":  map[string][]string{"email": {"The email has already been taken."}},
		})
		return
	}
	if err != nil {
		logger.Error("register failed to create user", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create account")
		return
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		logger.Error("register failed to issue token", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create session")
		return
	}
	respondJSON(ctx, w, http.StatusCreated, authResponse{User: toUserJSON(user, true, false), Token: token})
}

// login handles POST /api/login.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(s.limiter, r, "login") {
		logger.Warn("login rate limited", "ip", clientIP(r))
		respondError(ctx, w, http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respondError(ctx, w, http.StatusUnprocessableEntity, "email and password are required")
		return
	}

	user, err := s.world.Authenticate(req.Email, req.Password)
	if err != nil {
		logger.Warn("login rejected", "email", req.Email)
		respondError(ctx, w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		logger.Error("login failed to issue token", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create session")
		return
	}
	respondJSON(ctx, w, http.StatusOK, authResponse{User: toUserJSON(user, true, s.online(user.ID)), Token: token})
}

// logout handles POST /api/logout.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.tokens.Revoke(bearerToken(r))
	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// refresh handles POST /api/refresh.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, err := s.tokens.Refresh(bearerToken(r))
	if err != nil {
		logging.FromContext(ctx).Warn("refresh failed", "error", err)
		respondError(ctx, w, http.StatusUnauthorized, "Unauthenticated.")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"token": token})
}

// currentUser handles GET /api/user.
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := s.world.User(userIDFrom(ctx))
	if err != nil {
		respondError(ctx, w, http.StatusUnauthorized, "Unauthenticated.")
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"user": toUserJSON(user, true, s.online(user.ID))})
}
