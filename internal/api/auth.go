package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/rupesh-2/matrimonial-UI/internal/apierr"
	"github.com/rupesh-2/matrimonial-UI/internal/gateway"
	"github.com/rupesh-2/matrimonial-UI/internal/models"
)

// AuthResult is the identity and credential issued by login or registration.
type AuthResult struct {
	Identity models.Identity
	Token    string
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	Gender               string `json:"gender,omitempty"`
	Age                  int    `json:"age,omitempty"`
	Location             string `json:"location,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authEnvelope struct {
	User        *wireUser `json:"user"`
	Token       string    `json:"token"`
	AccessToken string    `json:"access_token"`
	Data        *struct {
		User  *wireUser `json:"user"`
		Token string    `json:"token"`
	} `json:"data"`
}

func (e authEnvelope) result() (AuthResult, error) {
	user, token := e.User, strings.TrimSpace(e.Token)
	if token == "" {
		token = strings.TrimSpace(e.AccessToken)
	}
	if e.Data != nil {
		if user == nil {
			user = e.Data.User
		}
		if token == "" {
			token = strings.TrimSpace(e.Data.Token)
		}
	}
	if token == "" {
		return AuthResult{}, apierr.Application(http.StatusOK, "invalid_response", "server did not return an authentication token")
	}
	if user == nil {
		return AuthResult{}, apierr.Application(http.StatusOK, "invalid_response", "server did not return the user")
	}
	return AuthResult{Identity: user.identity(), Token: token}, nil
}

// Login exchanges email and password for a credential.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var env authEnvelope
	if err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/api/login",
		Body:   loginRequest{Email: email, Password: password},
	}, &env); err != nil {
		return AuthResult{}, err
	}
	return env.result()
}

// Register creates an account and returns its credential.
func (c *Client) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	var env authEnvelope
	if err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/api/register",
		Body:   in,
	}, &env); err != nil {
		return AuthResult{}, err
	}
	return env.result()
}

// Logout revokes the current credential server-side.
func (c *Client) Logout(ctx context.Context) error {
	return c.gw.Do(ctx, gateway.Request{Method: http.MethodPost, Path: "/api/logout"}, nil)
}

// CurrentUser returns the identity owning the current credential.
func (c *Client) CurrentUser(ctx context.Context) (models.Identity, error) {
	var env struct {
		wireUser
		User *wireUser `json:"user"`
		Data *wireUser `json:"data"`
	}
	if err := c.gw.Do(ctx, gateway.Request{Path: "/api/user"}, &env); err != nil {
		return models.Identity{}, err
	}
	switch {
	case env.User != nil:
		return env.User.identity(), nil
	case env.Data != nil:
		return env.Data.identity(), nil
	case env.ID != 0:
		return env.wireUser.identity(), nil
	default:
		return models.Identity{}, apierr.Application(http.StatusOK, "invalid_response", "server did not return the user")
	}
}

// RefreshToken asks the server for a fresh credential.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	var env authEnvelope
	if err := c.gw.Do(ctx, gateway.Request{Method: http.MethodPost, Path: "/api/refresh"}, &env); err != nil {
		return "", err
	}
	token := strings.TrimSpace(env.Token)
	if token == "" {
		token = strings.TrimSpace(env.AccessToken)
	}
	if token == "" && env.Data != nil {
		token = strings.TrimSpace(env.Data.Token)
	}
	if token == "" {
		return "", apierr.Application(http.StatusOK, "invalid_response", "server did not return an authentication token")
	}
	return token, nil
}
