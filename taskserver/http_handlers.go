// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package taskserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mobiletoly/go-overtask/internal/auth"
	"github.com/mobiletoly/go-overtask/overtask"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// HTTPTaskHandlers serves the /api REST contract
type HTTPTaskHandlers struct {
	service *TaskService
	logger  *slog.Logger
}

// NewHTTPTaskHandlers creates a new instance of task handlers
func NewHTTPTaskHandlers(service *TaskService, logger *slog.Logger) *HTTPTaskHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTaskHandlers{service: service, logger: logger}
}

// Register mounts every /api route on mux, each wrapped by wrap
func (h *HTTPTaskHandlers) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	if wrap == nil {
		wrap = func(next http.Handler) http.Handler { return next }
	}
	routes := map[string]http.HandlerFunc{
		"POST /api/users":                           h.HandleCreateOrGetUser,
		"GET /api/users/{id}":                       h.HandleGetUser,
		"GET /api/tasks/user/{userId}":              h.HandleTasksByUser,
		"GET /api/tasks/{id}":                       h.HandleGetTask,
		"POST /api/tasks":                           h.HandleCreateTask,
		"PUT /api/tasks/{id}":                       h.HandleUpdateTask,
		"DELETE /api/tasks/{id}":                    h.HandleDeleteTask,
		"POST /api/tasks/{id}/checklist":            h.HandleAddChecklistItem,
		"PUT /api/tasks/{id}/checklist/{itemId}":    h.HandleUpdateChecklistItem,
		"DELETE /api/tasks/{id}/checklist/{itemId}": h.HandleDeleteChecklistItem,
	}
	for pattern, handler := range routes {
		mux.Handle(pattern, wrap(handler))
	}
}

func (h *HTTPTaskHandlers) HandleCreateOrGetUser(w http.ResponseWriter, r *http.Request) {
	var req overtask.CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, created, err := h.service.CreateOrGetUser(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, u)
}

func (h *HTTPTaskHandlers) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

func (h *HTTPTaskHandlers) HandleTasksByUser(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.TasksByUser(r.Context(), r.PathValue("userId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tasks)
}

func (h *HTTPTaskHandlers) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

func (h *HTTPTaskHandlers) HandleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req overtask.CreateTaskRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.service.CreateTask(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, t)
}

func (h *HTTPTaskHandlers) HandleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req overtask.UpdateTaskRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.service.UpdateTask(r.Context(), r.PathValue("id"), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

func (h *HTTPTaskHandlers) HandleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteTask(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPTaskHandlers) HandleAddChecklistItem(w http.ResponseWriter, r *http.Request) {
	var req overtask.CreateChecklistItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.AddChecklistItem(r.Context(), r.PathValue("id"), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, item)
}

func (h *HTTPTaskHandlers) HandleUpdateChecklistItem(w http.ResponseWriter, r *http.Request) {
	var req overtask.UpdateChecklistItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.UpdateChecklistItem(r.Context(), r.PathValue("id"), r.PathValue("itemId"), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, item)
}

func (h *HTTPTaskHandlers) HandleDeleteChecklistItem(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteChecklistItem(r.Context(), r.PathValue("id"), r.PathValue("itemId")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHealth provides a simple health check endpoint
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(overtask.HealthResponse{Status: "healthy", Service: "go-overtask-server"})
}

type tokenRequest struct {
	User   string `json:"user"`
	Device string `json:"device"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
	User      string `json:"user"`
	Device    string `json:"device"`
}

// HandleIssueToken returns a device token for any user; there is no password
// check, this endpoint exists for local development.
func HandleIssueToken(jwtAuth *JWTAuth, ttl time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, logger, http.StatusBadRequest, "invalid_request", "invalid JSON")
			return
		}
		if req.User == "" {
			writeError(w, logger, http.StatusBadRequest, "invalid_request", "user required")
			return
		}
		if req.Device == "" {
			req.Device = "device-" + strconv.FormatInt(time.Now().UnixNano(), 36)
		}
		tok, err := jwtAuth.GenerateToken(req.User, req.Device, ttl)
		if err != nil {
			writeError(w, logger, http.StatusInternalServerError, "token_error", err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResponse{Token: tok, ExpiresIn: int64(ttl.Seconds()), User: req.User, Device: req.Device})
		logger.Info("Issued device token", "user", req.User, "device", req.Device)
	}
}

func (h *HTTPTaskHandlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Failed to parse request body")
		return false
	}
	return true
}

// writeServiceError maps the error taxonomy onto HTTP status codes
func (h *HTTPTaskHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *overtask.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, h.logger, http.StatusBadRequest, "validation_failed", verr.Error())
	case errors.Is(err, overtask.ErrNotFound):
		writeError(w, h.logger, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ErrConflict):
		writeError(w, h.logger, http.StatusConflict, "conflict", err.Error())
	default:
		deviceID, _ := auth.GetDeviceID(r.Context())
		h.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "device_id", deviceID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func (h *HTTPTaskHandlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(overtask.ErrorResponse{Error: errorCode, Message: message})

	logger.Debug("HTTP error response",
		"status_code", statusCode,
		"error_code", errorCode,
		"message", message)
}
