package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/planline/planline/internal/domain"
	apperrors "github.com/planline/planline/internal/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type sprintRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Type        domain.SprintType `json:"type"`
	StartDate   time.Time         `json:"start_date"`
	EndDate     time.Time         `json:"end_date"`
}

func (h *handlers) createSprint(w http.ResponseWriter, r *http.Request) error {
	if err := requireRole(r, domain.RoleOwner, domain.RoleAdmin, domain.RoleBoardmaster); err != nil {
		return err
	}
	var req sprintRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return apperrors.ValidationError("INVALID_SPRINT", "name is required")
	}
	if req.Type == "" {
		req.Type = domain.SprintTimeboxed
	}
	if req.Type == domain.SprintTimeboxed && !req.EndDate.After(req.StartDate) {
		return apperrors.ValidationError("INVALID_SPRINT", "end date must be after start date")
	}

	project := projectFrom(r)
	sprint := &domain.Sprint{
		ProjectID:   project.ID,
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		StartDate:   req.StartDate.UTC(),
		EndDate:     req.EndDate.UTC(),
	}
	if err := h.deps.Sprints.Create(r.Context(), sprint); err != nil {
		return err
	}

	userID := mustUserID(r)
	h.deps.Broadcaster.SendToProject(domain.EvSprintCreated,
		project.ID.Hex(), sprint, userID.Hex())
	h.deps.Recorder.RecordLog(domain.AuditLog{
		ProjectID:  &project.ID,
		Entity:     domain.EntitySprint,
		EntityID:   sprint.ID,
		EntityName: sprint.Name,
		Action:     domain.ActionCreate,
		Trigger:    domain.TriggerUser,
		TriggerID:  &userID,
	})
	return writeJSON(w, http.StatusCreated, sprint)
}

func (h *handlers) listSprints(w http.ResponseWriter, r *http.Request) error {
	sprints, err := h.deps.Sprints.ListForProject(r.Context(), projectFrom(r).ID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, sprints)
}

func (h *handlers) updateSprint(w http.ResponseWriter, r *http.Request) error {
	if err := requireRole(r, domain.RoleOwner, domain.RoleAdmin, domain.RoleBoardmaster); err != nil {
		return err
	}
	sprintID, err := pathID(r, "sprintID")
	if err != nil {
		return err
	}
	var req struct {
		Name        *string    `json:"name"`
		Description *string    `json:"description"`
		StartDate   *time.Time `json:"start_date"`
		EndDate     *time.Time `json:"end_date"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	set := bson.M{}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return apperrors.ValidationError("INVALID_SPRINT", "name cannot be empty")
		}
		set["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		set["description"] = *req.Description
	}
	if req.StartDate != nil {
		set["start_date"] = req.StartDate.UTC()
	}
	if req.EndDate != nil {
		set["end_date"] = req.EndDate.UTC()
	}
	if len(set) == 0 {
		return apperrors.ValidationError("EMPTY_UPDATE", "no fields to update")
	}

	sprint, err := h.deps.Sprints.Update(r.Context(), sprintID, set)
	if err != nil {
		return err
	}

	project := projectFrom(r)
	h.deps.Broadcaster.SendToProject(domain.EvSprintChanged,
		project.ID.Hex(), sprint, mustUserID(r).Hex())
	return writeJSON(w, http.StatusOK, sprint)
}

// activateSprint makes the sprint the project's current one.
func (h *handlers) activateSprint(w http.ResponseWriter, r *http.Request) error {
	if err := requireRole(r, domain.RoleOwner, domain.RoleAdmin, domain.RoleBoardmaster); err != nil {
		return err
	}
	sprintID, err := pathID(r, "sprintID")
	if err != nil {
		return err
	}
	sprint, err := h.deps.Sprints.FindByID(r.Context(), sprintID)
	if err != nil {
		return err
	}
	if sprint.IsCompleted {
		return apperrors.ConflictError("a completed sprint cannot be activated")
	}

	project := projectFrom(r)
	if sprint.ProjectID != project.ID {
		return apperrors.NotFoundError("sprint")
	}
	if err := h.deps.Projects.SetCurrentSprint(r.Context(), project.ID, &sprint.ID); err != nil {
		return err
	}

	updated, err := h.deps.Projects.FindByID(r.Context(), project.ID)
	if err != nil {
		return err
	}
	userID := mustUserID(r)
	h.broadcastProjectChange(updated, userID)
	h.notifyMembers(updated, userID, domain.Notification{
		ProjectID:  project.ID,
		EntityID:   &sprint.ID,
		EntityName: sprint.Name,
		Type:       domain.NotifySprintStart,
	})
	return writeJSON(w, http.StatusOK, updated)
}

// completeSprint closes the sprint; if it was the project's current sprint
// the project's pointer is cleared.
func (h *handlers) completeSprint(w http.ResponseWriter, r *http.Request) error {
	if err := requireRole(r, domain.RoleOwner, domain.RoleAdmin, domain.RoleBoardmaster); err != nil {
		return err
	}
	sprintID, err := pathID(r, "sprintID")
	if err != nil {
		return err
	}
	sprint, err := h.deps.Sprints.FindByID(r.Context(), sprintID)
	if err != nil {
		return err
	}
	project := projectFrom(r)
	if sprint.ProjectID != project.ID {
		return apperrors.NotFoundError("sprint")
	}

	// The body may name a successor sprint for unfinished items; without one
	// they drop back to the backlog.
	var next *primitive.ObjectID
	if r.ContentLength > 0 {
		var req struct {
			NextSprintID string `json:"next_sprint_id"`
		}
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		if req.NextSprintID != "" {
			id, err := primitive.ObjectIDFromHex(req.NextSprintID)
			if err != nil {
				return apperrors.ValidationError("INVALID_ID", "malformed next_sprint_id")
			}
			if id == sprintID {
				return apperrors.ValidationError("INVALID_SPRINT", "items cannot roll into the sprint being completed")
			}
			successor, err := h.deps.Sprints.FindByID(r.Context(), id)
			if err != nil {
				return err
			}
			if successor.ProjectID != project.ID {
				return apperrors.NotFoundError("sprint")
			}
			if successor.IsCompleted {
				return apperrors.ConflictError("items cannot roll into a completed sprint")
			}
			next = &id
		}
	}

	if err := h.deps.Sprints.Complete(r.Context(), sprintID); err != nil {
		return err
	}
	moved, err := h.deps.Items.RollUnfinished(r.Context(), sprintID, next)
	if err != nil {
		return err
	}
	if moved > 0 {
		h.log.Info("rolled unfinished items",
			zap.String("sprint_id", sprintID.Hex()),
			zap.Int64("items", moved))
	}
	if project.CurrentSprintID != nil && *project.CurrentSprintID == sprintID {
		if err := h.deps.Projects.SetCurrentSprint(r.Context(), project.ID, nil); err != nil {
			return err
		}
	}

	completed, err := h.deps.Sprints.FindByID(r.Context(), sprintID)
	if err != nil {
		return err
	}
	userID := mustUserID(r)
	h.deps.Broadcaster.SendToProject(domain.EvSprintChanged,
		project.ID.Hex(), completed, userID.Hex())
	h.notifyMembers(project, userID, domain.Notification{
		ProjectID:  project.ID,
		EntityID:   &sprint.ID,
		EntityName: sprint.Name,
		Type:       domain.NotifySprintComplete,
	})
	h.deps.Recorder.RecordLog(domain.AuditLog{
		ProjectID:   &project.ID,
		Entity:      domain.EntitySprint,
		EntityID:    sprint.ID,
		EntityName:  sprint.Name,
		Action:      domain.ActionUpdate,
		Trigger:     domain.TriggerUser,
		TriggerID:   &userID,
		Description: "sprint completed",
	})
	return writeJSON(w, http.StatusOK, completed)
}

func (h *handlers) deleteSprint(w http.ResponseWriter, r *http.Request) error {
	if err := requireRole(r, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return err
	}
	sprintID, err := pathID(r, "sprintID")
	if err != nil {
		return err
	}
	sprint, err := h.deps.Sprints.FindByID(r.Context(), sprintID)
	if err != nil {
		return err
	}
	project := projectFrom(r)
	if sprint.ProjectID != project.ID {
		return apperrors.NotFoundError("sprint")
	}
	if project.CurrentSprintID != nil && *project.CurrentSprintID == sprintID {
		return apperrors.ConflictError("the active sprint cannot be deleted")
	}
	if err := h.deps.Sprints.SoftDelete(r.Context(), sprintID); err != nil {
		return err
	}

	userID := mustUserID(r)
	h.deps.Broadcaster.SendToProject(domain.EvSprintChanged,
		project.ID.Hex(), map[string]any{"id": sprintID.Hex(), "deleted": true}, userID.Hex())
	h.deps.Recorder.RecordLog(domain.AuditLog{
		ProjectID:  &project.ID,
		Entity:     domain.EntitySprint,
		EntityID:   sprint.ID,
		EntityName: sprint.Name,
		Action:     domain.ActionDelete,
		Trigger:    domain.TriggerUser,
		TriggerID:  &userID,
	})
	return writeJSON(w, http.StatusNoContent, nil)
}

// notifyMembers fans a notification template out to every project member
// except the originator.
func (h *handlers) notifyMembers(project *domain.Project, causedBy primitive.ObjectID, template domain.Notification) {
	template.TriggerID = &causedBy
	ids := make([]string, 0, len(project.Users))
	for _, m := range project.Users {
		ids = append(ids, m.UserID.Hex())
	}
	h.deps.Recorder.NotifyAll(ids, template)
}
