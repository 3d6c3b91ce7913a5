package api

import (
	"net/http"

	"brokeradmin/core"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Username string `json:"username" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

// RefreshTokenRequest is the body of POST /api/auth/token
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// login godoc
//
//	@Summary		Log in
//	@Description	Exchanges email and password for an access and refresh token pair.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			credentials	body		LoginRequest	true	"Credentials"
//	@Success		200			{object}	core.TokenPair
//	@Failure		400			{object}	ErrorResponse	"Invalid parameters"
//	@Failure		401			{object}	ErrorResponse	"Invalid credentials"
//	@Router			/api/auth/login [post]
func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := a.decodeJSONBody(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		a.writeError(w, r, core.NewInvalidParameterError("Invalid login request"))
		return
	}

	pair, err := a.svc.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		a.requestLogger(r).Infow("AUDIT: login",
			"action", "login",
			"outcome", "failure",
			"username", req.Username,
			"source_ip", getRealIP(r, a.config.API.TrustProxy),
			"error", err.Error())
		a.writeError(w, r, err)
		return
	}
	a.requestLogger(r).Infow("AUDIT: login",
		"action", "login",
		"outcome", "success",
		"username", req.Username,
		"source_ip", getRealIP(r, a.config.API.TrustProxy))
	a.respondJSON(w, pair, http.StatusOK)
}

// refreshToken godoc
//
//	@Summary		Refresh a token pair
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			refresh	body		RefreshTokenRequest	true	"Refresh token"
//	@Success		200		{object}	core.TokenPair
//	@Failure		400		{object}	ErrorResponse	"Invalid parameters"
//	@Failure		401		{object}	ErrorResponse	"Invalid refresh token"
//	@Router			/api/auth/token [post]
func (a *API) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := a.decodeJSONBody(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		a.writeError(w, r, core.NewInvalidParameterError("Parameter 'refreshToken' can't be empty!"))
		return
	}

	pair, err := a.svc.Auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, pair, http.StatusOK)
}
