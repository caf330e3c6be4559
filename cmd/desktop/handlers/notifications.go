package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kuapa/kuapa/backend/internal/notifications"
)

// NotificationHandler handles the in-app notification list.
type NotificationHandler struct {
	notes *notifications.Store
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(notes *notifications.Store) *NotificationHandler {
	return &NotificationHandler{notes: notes}
}

// Register mounts the notification routes on r.
func (h *NotificationHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/notifications", h.ListNotifications).Methods(http.MethodGet)
	r.HandleFunc("/api/notifications", h.ClearNotifications).Methods(http.MethodDelete)
	r.HandleFunc("/api/notifications/read", h.MarkAllRead).Methods(http.MethodPost)
	r.HandleFunc("/api/notifications/{id}/read", h.MarkRead).Methods(http.MethodPost)
	r.HandleFunc("/api/notifications/{id}", h.DeleteNotification).Methods(http.MethodDelete)
}

// ListNotifications handles GET /api/notifications
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.notes.State())
}

// MarkRead handles POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.notes.MarkAsRead(mux.Vars(r)["id"])
	writeJSON(w, http.StatusOK, map[string]int{"unreadCount": h.notes.UnreadCount()})
}

// MarkAllRead handles POST /api/notifications/read
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	h.notes.MarkAllAsRead()
	writeJSON(w, http.StatusOK, map[string]int{"unreadCount": 0})
}

// DeleteNotification handles DELETE /api/notifications/{id}
func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	h.notes.Remove(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

// ClearNotifications handles DELETE /api/notifications
func (h *NotificationHandler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	h.notes.Clear()
	w.WriteHeader(http.StatusNoContent)
}
