package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/planline/planline/internal/domain"
	apperrors "github.com/planline/planline/internal/errors"
	"github.com/planline/planline/internal/storage"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (h *handlers) listNotifications(w http.ResponseWriter, r *http.Request) error {
	userID := mustUserID(r)

	limit := int64(0)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 || n > 200 {
			return apperrors.ValidationError("INVALID_LIMIT", "limit must be between 1 and 200")
		}
		limit = n
	}

	list, err := h.deps.Notifications.ListForUser(r.Context(), userID, limit)
	if err != nil {
		return err
	}
	unread, err := h.deps.Notifications.UnreadCount(r.Context(), userID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"notifications": list,
		"unread_count":  unread,
	})
}

func (h *handlers) markNotificationRead(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "notificationID")
	if err != nil {
		return err
	}
	if err := h.deps.Notifications.MarkRead(r.Context(), id, mustUserID(r)); err != nil {
		return err
	}
	return writeJSON(w, http.StatusNoContent, nil)
}

func (h *handlers) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) error {
	if err := h.deps.Notifications.MarkAllRead(r.Context(), mustUserID(r)); err != nil {
		return err
	}
	return writeJSON(w, http.StatusNoContent, nil)
}

// listLogs returns a page of the project's activity log.
func (h *handlers) listLogs(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	filter := storage.LogFilter{
		Entity: domain.AuditEntity(q.Get("entity")),
		Action: domain.AuditAction(q.Get("action")),
	}
	if raw := q.Get("userId"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return apperrors.ValidationError("INVALID_ID", "malformed userId")
		}
		filter.TriggerID = id
	}
	if raw := q.Get("entityId"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return apperrors.ValidationError("INVALID_ID", "malformed entityId")
		}
		filter.EntityID = id
	}
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return apperrors.ValidationError("INVALID_TIME", "since must be RFC 3339")
		}
		filter.Since = t
	}
	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return apperrors.ValidationError("INVALID_TIME", "until must be RFC 3339")
		}
		filter.Until = t
	}

	page := int64(1)
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			return apperrors.ValidationError("INVALID_PAGE", "page must be a positive integer")
		}
		page = n
	}
	perPage := int64(50)
	if raw := q.Get("per_page"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 || n > 200 {
			return apperrors.ValidationError("INVALID_PAGE", "per_page must be between 1 and 200")
		}
		perPage = n
	}

	entries, total, err := h.deps.Logs.ListForProject(r.Context(), projectFrom(r).ID, filter, page, perPage)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"logs":     entries,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}
