package api

import (
	"net/http"

	"brokeradmin/core"
	"brokeradmin/service"

	"github.com/gorilla/mux"
)

// createAdmin godoc
//
//	@Summary		Create an administrator
//	@Description	Creates a SYS_ADMIN account with the given password.
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			admin	body		core.AdminDraft	true	"Administrator to create"
//	@Success		200		{object}	core.User
//	@Failure		400	{object}	ErrorResponse	"Invalid parameters"
//	@Failure		401	{object}	ErrorResponse	"Authentication required"
//	@Failure		403	{object}	ErrorResponse	"Permission denied"
//	@Failure		500	{object}	ErrorResponse	"Internal server error"
//	@Router			/api/admin [post]
func (a *API) createAdmin(w http.ResponseWriter, r *http.Request) {
	var draft core.AdminDraft
	if err := a.decodeJSONBody(w, r, &draft); err != nil {
		a.writeError(w, r, err)
		return
	}

	user, err := a.svc.Admins.CreateAdmin(r.Context(), draft)
	if err != nil {
		a.audit(r, "create_admin", "failure", "email", draft.Email, "error", err.Error())
		a.writeError(w, r, err)
		return
	}
	a.audit(r, "create_admin", "success", "resource_id", user.ID.String(), "email", user.Email)
	a.respondJSON(w, user, http.StatusOK)
}

// listAdmins godoc
//
//	@Summary		List administrators
//	@Description	Returns one page of SYS_ADMIN accounts.
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			pageSize		query		int		true	"Page size"
//	@Param			page			query		int		true	"Zero based page number"
//	@Param			textSearch		query		string	false	"Case-insensitive email substring"
//	@Param			sortProperty	query		string	false	"Sort property"
//	@Param			sortOrder		query		string	false	"ASC or DESC"
//	@Success		200				{object}	core.PageData[core.User]
//	@Failure		400	{object}	ErrorResponse	"Invalid parameters"
//	@Failure		401	{object}	ErrorResponse	"Authentication required"
//	@Failure		403	{object}	ErrorResponse	"Permission denied"
//	@Failure		500	{object}	ErrorResponse	"Internal server error"
//	@Router			/api/admin [get]
func (a *API) listAdmins(w http.ResponseWriter, r *http.Request) {
	link, err := parsePageLink(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	page, err := a.svc.Admins.ListAdmins(r.Context(), link)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, page, http.StatusOK)
}

// getAdmin godoc
//
//	@Summary		Get an administrator
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			userId	path		string	true	"User ID (UUID format)"
//	@Success		200		{object}	core.User
//	@Failure		400	{object}	ErrorResponse	"Invalid parameters"
//	@Failure		401	{object}	ErrorResponse	"Authentication required"
//	@Failure		403	{object}	ErrorResponse	"Permission denied"
//	@Failure		404	{object}	ErrorResponse	"Item not found"
//	@Failure		500	{object}	ErrorResponse	"Internal server error"
//	@Router			/api/admin/user/{userId} [get]
func (a *API) getAdmin(w http.ResponseWriter, r *http.Request) {
	id, err := service.ParseUserID(mux.Vars(r)["userId"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	user, err := a.svc.Admins.GetAdmin(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, user, http.StatusOK)
}

// deleteAdmin godoc
//
//	@Summary		Delete an administrator
//	@Description	Disconnects every live session of the account, then deletes it. Deleting the own account is refused.
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			userId	path		string	true	"User ID (UUID format)"
//	@Success		200		{object}	service.DeleteSummary
//	@Failure		400	{object}	ErrorResponse	"Invalid parameters"
//	@Failure		401	{object}	ErrorResponse	"Authentication required"
//	@Failure		403	{object}	ErrorResponse	"Permission denied"
//	@Failure		404	{object}	ErrorResponse	"Item not found"
//	@Failure		500	{object}	ErrorResponse	"Internal server error"
//	@Router			/api/admin/{userId} [delete]
func (a *API) deleteAdmin(w http.ResponseWriter, r *http.Request) {
	id, err := service.ParseUserID(mux.Vars(r)["userId"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	requesterID, _ := GetUserID(r.Context())

	summary, err := a.svc.Admins.DeleteAdmin(r.Context(), id, requesterID)
	if err != nil {
		a.audit(r, "delete_admin", "failure", "resource_id", id.String(), "error", err.Error())
		a.writeError(w, r, err)
		return
	}
	a.audit(r, "delete_admin", "success",
		"resource_id", id.String(),
		"sessions", summary.Sessions,
		"failed_disconnects", summary.FailedDisconnects)
	a.respondJSON(w, summary, http.StatusOK)
}

// getAdminSettings godoc
//
//	@Summary		Get settings by key
//	@Description	Returns the stored settings record. Secrets are redacted.
//	@Tags			settings
//	@Produce		json
//	@Security		BearerAuth
//	@Param			key	path		string	true	"Settings key, e.g. mail or mqttAuthorization"
//	@Success		200	{object}	core.AdminSettings
//	@Failure		401	{object}	ErrorResponse	"Authentication required"
//	@Failure		403	{object}	ErrorResponse	"Permission denied"
//	@Failure		404	{object}	ErrorResponse	"Item not found"
//	@Failure		500	{object}	ErrorResponse	"Internal server error"
//	@Router			/api/admin/settings/{key} [get]
func (a *API) getAdminSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.svc.Settings.GetAdminSettings(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, settings, http.StatusOK)
}

// saveAdminSettings godoc
//
//	@Summary		Save settings
//	@Description	Creates or replaces a settings record. Omitted secrets keep their stored value.
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			settings	body		core.AdminSettings	true	"Settings record"
//	@Success		200		{object}	core.AdminSettings
//	@Failure		400	{object}	ErrorResponse	"Invalid parameters"
//	@Failure		401	{object}	ErrorResponse	"Authentication required"
//	@Failure		403	{object}	ErrorResponse	"Permission denied"
//	@Failure		500	{object}	ErrorResponse	"Internal server error"
//	@Router			/api/admin/settings [post]
func (a *API) saveAdminSettings(w http.ResponseWriter, r *http.Request) {
	var settings core.AdminSettings
	if err := a.decodeJSONBody(w, r, &settings); err != nil {
		a.writeError(w, r, err)
		return
	}

	saved, err := a.svc.Settings.SaveAdminSettings(r.Context(), &settings)
	if err != nil {
		a.audit(r, "save_admin_settings", "failure", "key", settings.Key, "error", err.Error())
		a.writeError(w, r, err)
		return
	}
	a.audit(r, "save_admin_settings", "success", "key", saved.Key)
	a.respondJSON(w, saved, http.StatusOK)
}

// sendTestMail godoc
//
//	@Summary		Send a test mail
//	@Description	Sends a test message to the authenticated administrator using the candidate MAIL settings.
//	@Tags			settings
//	@Accept			json
//	@Security		BearerAuth
//	@Param			settings	body	core.AdminSettings	true	"Candidate MAIL settings"
//	@Success		200
//	@Failure		400	{object}	ErrorResponse	"Invalid parameters"
//	@Failure		401	{object}	ErrorResponse	"Authentication required"
//	@Failure		403	{object}	ErrorResponse	"Permission denied"
//	@Failure		404	{object}	ErrorResponse	"Item not found"
//	@Failure		500	{object}	ErrorResponse	"Internal server error"
//	@Router			/api/admin/settings/testMail [post]
func (a *API) sendTestMail(w http.ResponseWriter, r *http.Request) {
	var candidate core.AdminSettings
	if err := a.decodeJSONBody(w, r, &candidate); err != nil {
		a.writeError(w, r, err)
		return
	}
	email, _ := GetEmail(r.Context())

	if err := a.svc.MailProbe.SendTestMail(r.Context(), &candidate, email); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// getSecuritySettings godoc
//
//	@Summary		Get security settings
//	@Tags			security
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	core.SecuritySettings
//	@Failure		401	{object}	ErrorResponse	"Authentication required"
//	@Failure		403	{object}	ErrorResponse	"Permission denied"
//	@Failure		500	{object}	ErrorResponse	"Internal server error"
//	@Router			/api/admin/securitySettings [get]
func (a *API) getSecuritySettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.svc.Security.GetSecuritySettings(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, settings, http.StatusOK)
}

// saveSecuritySettings godoc
//
//	@Summary		Save security settings
//	@Tags			security
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			settings	body		core.SecuritySettings	true	"Security settings"
//	@Success		200		{object}	core.SecuritySettings
//	@Failure		400	{object}	ErrorResponse	"Invalid parameters"
//	@Failure		401	{object}	ErrorResponse	"Authentication required"
//	@Failure		403	{object}	ErrorResponse	"Permission denied"
//	@Failure		500	{object}	ErrorResponse	"Internal server error"
//	@Router			/api/admin/securitySettings [post]
func (a *API) saveSecuritySettings(w http.ResponseWriter, r *http.Request) {
	var settings core.SecuritySettings
	if err := a.decodeJSONBody(w, r, &settings); err != nil {
		a.writeError(w, r, err)
		return
	}

	saved, err := a.svc.Security.SaveSecuritySettings(r.Context(), settings)
	if err != nil {
		a.audit(r, "save_security_settings", "failure", "error", err.Error())
		a.writeError(w, r, err)
		return
	}
	a.audit(r, "save_security_settings", "success")
	a.respondJSON(w, saved, http.StatusOK)
}

// issueUserToken godoc
//
//	@Summary		Issue a token pair for a user
//	@Description	Available only while user token access is enabled.
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			userId	path		string	true	"User ID (UUID format)"
//	@Success		200		{object}	core.TokenPair
//	@Failure		400	{object}	ErrorResponse	"Invalid parameters"
//	@Failure		401	{object}	ErrorResponse	"Authentication required"
//	@Failure		403	{object}	ErrorResponse	"Permission denied"
//	@Failure		404	{object}	ErrorResponse	"Item not found"
//	@Failure		500	{object}	ErrorResponse	"Internal server error"
//	@Router			/api/admin/user/{userId}/token [get]
func (a *API) issueUserToken(w http.ResponseWriter, r *http.Request) {
	// Checked before the id is parsed.
	if !a.svc.Tokens.UserTokenAccessEnabled() {
		a.writeError(w, r, core.NewPermissionDeniedError(permissionDeniedMessage))
		return
	}
	id, err := service.ParseUserID(mux.Vars(r)["userId"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	pair, err := a.svc.Tokens.IssueToken(r.Context(), id)
	if err != nil {
		a.audit(r, "issue_user_token", "failure", "resource_id", id.String(), "error", err.Error())
		a.writeError(w, r, err)
		return
	}
	a.audit(r, "issue_user_token", "success", "resource_id", id.String())
	a.respondJSON(w, pair, http.StatusOK)
}

// tokenAccessEnabled godoc
//
//	@Summary		Report whether user token access is enabled
//	@Tags			admin
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{boolean}	boolean
//	@Failure		401	{object}	ErrorResponse	"Authentication required"
//	@Failure		403	{object}	ErrorResponse	"Permission denied"
//	@Router			/api/admin/user/tokenAccessEnabled [get]
func (a *API) tokenAccessEnabled(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, a.svc.Tokens.UserTokenAccessEnabled(), http.StatusOK)
}
