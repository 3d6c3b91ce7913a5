package api

import (
	"errors"
	"net/http"

	"brokeradmin/core"
	"brokeradmin/session"
	"brokeradmin/storage"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// ConnectionRequest is the body of POST /api/ws/connection
type ConnectionRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	ClientID string `json:"clientId" validate:"required,max=255"`
}

// createConnection godoc
//
//	@Summary		Register a connection descriptor
//	@Description	The descriptor is owned by the authenticated user. Client ids are unique across owners.
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			connection	body		ConnectionRequest	true	"Connection descriptor"
//	@Success		200			{object}	core.WebSocketConnection
//	@Failure		400	{object}	ErrorResponse	"Invalid parameters"
//	@Failure		401	{object}	ErrorResponse	"Authentication required"
//	@Failure		500	{object}	ErrorResponse	"Internal server error"
//	@Router			/api/ws/connection [post]
func (a *API) createConnection(w http.ResponseWriter, r *http.Request) {
	var req ConnectionRequest
	if err := a.decodeJSONBody(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		a.writeError(w, r, core.NewInvalidParameterError("Invalid connection request"))
		return
	}
	userID, _ := GetUserID(r.Context())

	conn, err := a.svc.Connections.SaveConnection(r.Context(), &core.WebSocketConnection{
		Name:     req.Name,
		ClientID: req.ClientID,
		UserID:   userID,
	})
	if errors.Is(err, storage.ErrDuplicateClientID) {
		a.writeError(w, r, core.NewInvalidParameterError("Client id %s is already registered", req.ClientID))
		return
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.respondJSON(w, conn, http.StatusOK)
}

// serveSession godoc
//
//	@Summary		Open a live session
//	@Description	Upgrades to a websocket for the given descriptor. Only the owner may open it; the access token may be passed as the token query parameter.
//	@Tags			sessions
//	@Security		BearerAuth
//	@Param			connectionId	query	string	true	"Connection ID (UUID format)"
//	@Success		101
//	@Failure		400			{object}	ErrorResponse	"Invalid parameters"
//	@Failure		403			{object}	ErrorResponse	"Permission denied"
//	@Failure		404			{object}	ErrorResponse	"Connection not found"
//	@Router			/api/ws [get]
func (a *API) serveSession(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("connectionId")
	if raw == "" {
		a.writeError(w, r, core.NewInvalidParameterError("Parameter 'connectionId' can't be empty!"))
		return
	}
	connectionID, err := uuid.Parse(raw)
	if err != nil {
		a.writeError(w, r, core.NewInvalidParameterError("Incorrect connectionId %s", raw))
		return
	}

	conn, err := a.ownedConnection(r, connectionID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	// ServeWS writes its own response once the upgrade has been attempted; only the
	// refusals below happen before it.
	err = a.svc.Sessions.ServeWS(w, r, conn.ClientID, conn.UserID)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrClientIDInUse):
		a.writeError(w, r, core.NewPermissionDeniedError(permissionDeniedMessage))
	case errors.Is(err, session.ErrHubNotRunning):
		a.writeError(w, r, core.NewDelegatedFailureError("Session service is not running", err))
	default:
		a.requestLogger(r).Warnw("Session upgrade failed", "client_id", conn.ClientID, "error", err)
	}
}

// deleteConnection godoc
//
//	@Summary		Delete a connection descriptor
//	@Description	Closes the live session of the descriptor, then removes it. Only the owner may delete it.
//	@Tags			sessions
//	@Security		BearerAuth
//	@Param			connectionId	path	string	true	"Connection ID (UUID format)"
//	@Success		200
//	@Failure		400	{object}	ErrorResponse	"Invalid parameters"
//	@Failure		401	{object}	ErrorResponse	"Authentication required"
//	@Failure		403	{object}	ErrorResponse	"Permission denied"
//	@Failure		404	{object}	ErrorResponse	"Item not found"
//	@Failure		500	{object}	ErrorResponse	"Internal server error"
//	@Router			/api/ws/connection/{connectionId} [delete]
func (a *API) deleteConnection(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["connectionId"]
	connectionID, err := uuid.Parse(raw)
	if err != nil {
		a.writeError(w, r, core.NewInvalidParameterError("Incorrect connectionId %s", raw))
		return
	}

	conn, err := a.ownedConnection(r, connectionID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if err := a.svc.Sessions.Disconnect(r.Context(), conn.ClientID); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		a.writeError(w, r, core.NewDelegatedFailureError("Failed to close the session of connection "+connectionID.String(), err))
		return
	}
	if err := a.svc.Connections.DeleteConnection(r.Context(), connectionID); err != nil {
		if errors.Is(err, storage.ErrConnectionNotFound) {
			err = core.NewNotFoundError("WebSocket connection with id [%s] is not found", connectionID)
		}
		a.writeError(w, r, err)
		return
	}

	a.requestLogger(r).Infow("Connection deleted", "connection_id", connectionID, "client_id", conn.ClientID)
	w.WriteHeader(http.StatusOK)
}

// ownedConnection loads a descriptor that belongs to the authenticated user.
func (a *API) ownedConnection(r *http.Request, id uuid.UUID) (*core.WebSocketConnection, error) {
	conn, err := a.svc.Connections.GetConnection(r.Context(), id)
	if errors.Is(err, storage.ErrConnectionNotFound) {
		return nil, core.NewNotFoundError("WebSocket connection with id [%s] is not found", id)
	}
	if err != nil {
		return nil, err
	}

	userID, _ := GetUserID(r.Context())
	if conn.UserID != userID {
		return nil, core.NewPermissionDeniedError(permissionDeniedMessage)
	}
	return conn, nil
}
