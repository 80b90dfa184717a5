package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/planline/planline/internal/domain"
	apperrors "github.com/planline/planline/internal/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type projectContextKey string

const projectKey projectContextKey = "project"

// requireMembership loads the project from the URL and rejects callers that
// are not members. Handlers below it read the project from the context
// instead of fetching it again.
func (h *handlers) requireMembership(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		projectID, err := pathID(r, "projectID")
		if err != nil {
			apperrors.HandleHTTPError(w, r, err)
			return
		}
		project, err := h.deps.Projects.FindByID(r.Context(), projectID)
		if err != nil {
			apperrors.HandleHTTPError(w, r, err)
			return
		}
		if _, ok := project.Member(mustUserID(r)); !ok {
			apperrors.HandleHTTPError(w, r,
				apperrors.AuthorizationError("access project", "not a project member"))
			return
		}
		ctx := context.WithValue(r.Context(), projectKey, project)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// projectFrom returns the project loaded by requireMembership.
func projectFrom(r *http.Request) *domain.Project {
	return r.Context().Value(projectKey).(*domain.Project)
}

// requireRole checks the caller holds one of the given roles in the project.
func requireRole(r *http.Request, roles ...domain.ProjectRole) error {
	member, _ := projectFrom(r).Member(mustUserID(r))
	for _, role := range roles {
		if member.Role == role {
			return nil
		}
	}
	return apperrors.AuthorizationError("modify project", "insufficient role")
}

type createProjectRequest struct {
	Name        string                  `json:"name"`
	Code        string                  `json:"code"`
	Description string                  `json:"description"`
	StartDate   time.Time               `json:"start_date"`
	EndDate     time.Time               `json:"end_date"`
	Settings    *domain.ProjectSettings `json:"settings"`
}

func (h *handlers) createProject(w http.ResponseWriter, r *http.Request) error {
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if req.Name == "" || req.Code == "" {
		return apperrors.ValidationError("INVALID_PROJECT", "name and code are required")
	}
	if len(req.Code) > 10 {
		return apperrors.ValidationError("INVALID_PROJECT", "code must be at most 10 characters")
	}

	project := &domain.Project{
		OwnerID:      mustUserID(r),
		Name:         req.Name,
		Code:         req.Code,
		Description:  req.Description,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		BoardColumns: []string{"To Do", "In Progress", "QA", "Done"},
		QAColumn:     "QA",
		DoneColumn:   "Done",
	}
	if req.Settings != nil {
		project.Settings = *req.Settings
	} else {
		project.Settings = domain.ProjectSettings{UseSprints: true, SprintLength: 14}
	}

	if err := h.deps.Projects.Create(r.Context(), project); err != nil {
		return err
	}

	userID := mustUserID(r)
	h.deps.Recorder.RecordLog(domain.AuditLog{
		ProjectID:  &project.ID,
		Entity:     domain.EntityProject,
		EntityID:   project.ID,
		EntityName: project.Name,
		Action:     domain.ActionCreate,
		Trigger:    domain.TriggerUser,
		TriggerID:  &userID,
	})
	h.log.Info("project created",
		zap.String("project_id", project.ID.Hex()),
		zap.String("code", project.Code))
	return writeJSON(w, http.StatusCreated, project)
}

func (h *handlers) listProjects(w http.ResponseWriter, r *http.Request) error {
	projects, err := h.deps.Projects.ListForUser(r.Context(), mustUserID(r))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, projects)
}

func (h *handlers) getProject(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(w, http.StatusOK, projectFrom(r))
}

type updateProjectRequest struct {
	Name          *string                 `json:"name"`
	Description   *string                 `json:"description"`
	BoardColumns  []string                `json:"board_columns"`
	QAColumn      *string                 `json:"qa_column"`
	BlockedColumn *string                 `json:"blocked_column"`
	DoneColumn    *string                 `json:"done_column"`
	Settings      *domain.ProjectSettings `json:"settings"`
	EndDate       *time.Time              `json:"end_date"`
}

func (h *handlers) updateProject(w http.ResponseWriter, r *http.Request) error {
	if err := requireRole(r, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return err
	}
	var req updateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	set := bson.M{}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return apperrors.ValidationError("INVALID_PROJECT", "name cannot be empty")
		}
		set["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		set["description"] = *req.Description
	}
	if req.BoardColumns != nil {
		if len(req.BoardColumns) == 0 {
			return apperrors.ValidationError("INVALID_PROJECT", "at least one board column is required")
		}
		set["board_columns"] = req.BoardColumns
	}
	if req.QAColumn != nil {
		set["qa_column"] = *req.QAColumn
	}
	if req.BlockedColumn != nil {
		set["blocked_column"] = *req.BlockedColumn
	}
	if req.DoneColumn != nil {
		set["done_column"] = *req.DoneColumn
	}
	if req.Settings != nil {
		set["settings"] = *req.Settings
	}
	if req.EndDate != nil {
		set["end_date"] = req.EndDate.UTC()
	}
	if len(set) == 0 {
		return apperrors.ValidationError("EMPTY_UPDATE", "no fields to update")
	}

	project := projectFrom(r)
	updated, err := h.deps.Projects.Update(r.Context(), project.ID, set)
	if err != nil {
		return err
	}

	userID := mustUserID(r)
	h.broadcastProjectChange(updated, userID)
	h.deps.Recorder.RecordLog(domain.AuditLog{
		ProjectID:  &updated.ID,
		Entity:     domain.EntityProject,
		EntityID:   updated.ID,
		EntityName: updated.Name,
		Action:     domain.ActionUpdate,
		Trigger:    domain.TriggerUser,
		TriggerID:  &userID,
	})
	return writeJSON(w, http.StatusOK, updated)
}

type memberRequest struct {
	UserID string             `json:"userId"`
	Role   domain.ProjectRole `json:"role"`
}

func (h *handlers) upsertMember(w http.ResponseWriter, r *http.Request) error {
	if err := requireRole(r, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return err
	}
	var req memberRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	memberID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		return apperrors.ValidationError("INVALID_ID", "malformed userId")
	}
	switch req.Role {
	case domain.RoleAdmin, domain.RoleBoardmaster, domain.RoleQA, domain.RoleMember:
	case domain.RoleOwner:
		return apperrors.ValidationError("INVALID_ROLE", "ownership cannot be assigned")
	default:
		return apperrors.ValidationError("INVALID_ROLE", "unknown role")
	}

	// The account must exist before it can join.
	if _, err := h.deps.Users.FindByID(r.Context(), memberID); err != nil {
		return err
	}

	project := projectFrom(r)
	if err := h.deps.Projects.UpsertMember(r.Context(), project.ID,
		domain.ProjectUser{UserID: memberID, Role: req.Role, IsActive: true}); err != nil {
		return err
	}

	updated, err := h.deps.Projects.FindByID(r.Context(), project.ID)
	if err != nil {
		return err
	}
	userID := mustUserID(r)
	h.broadcastProjectChange(updated, userID)
	h.deps.Recorder.Notify(domain.Notification{
		ProjectID:  project.ID,
		UserID:     memberID,
		TriggerID:  &userID,
		EntityID:   &project.ID,
		EntityName: project.Name,
		Type:       domain.NotifyAssignment,
	})
	return writeJSON(w, http.StatusOK, updated)
}

func (h *handlers) removeMember(w http.ResponseWriter, r *http.Request) error {
	if err := requireRole(r, domain.RoleOwner, domain.RoleAdmin); err != nil {
		return err
	}
	memberID, err := pathID(r, "userID")
	if err != nil {
		return err
	}

	project := projectFrom(r)
	if err := h.deps.Projects.RemoveMember(r.Context(), project.ID, memberID); err != nil {
		return err
	}

	updated, err := h.deps.Projects.FindByID(r.Context(), project.ID)
	if err != nil {
		return err
	}
	h.broadcastProjectChange(updated, mustUserID(r))
	return writeJSON(w, http.StatusOK, updated)
}

func (h *handlers) listMembers(w http.ResponseWriter, r *http.Request) error {
	project := projectFrom(r)
	ids := make([]primitive.ObjectID, 0, len(project.Users))
	for _, m := range project.Users {
		ids = append(ids, m.UserID)
	}
	users, err := h.deps.Users.FindByIDs(r.Context(), ids)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, users)
}

// broadcastProjectChange pushes the fresh project to everyone viewing it,
// except the user who made the change.
func (h *handlers) broadcastProjectChange(project *domain.Project, causedBy primitive.ObjectID) {
	h.deps.Broadcaster.SendToProject(domain.EvProjectChanged,
		project.ID.Hex(), project, causedBy.Hex())
}
