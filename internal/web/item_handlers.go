package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/planline/planline/internal/domain"
	apperrors "github.com/planline/planline/internal/errors"
	"github.com/planline/planline/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var validItemTypes = map[domain.ItemType]bool{
	domain.ItemEpic: true, domain.ItemMilestone: true, domain.ItemStory: true,
	domain.ItemFeature: true, domain.ItemSubFeature: true, domain.ItemImprovement: true,
	domain.ItemTask: true, domain.ItemSubTask: true, domain.ItemBug: true,
	domain.ItemTest: true, domain.ItemCustomerRequirement: true,
	domain.ItemFunctionalRequirement: true, domain.ItemNonFunctionalRequirement: true,
}

var validPriorities = map[domain.ItemPriority]bool{
	domain.PriorityLow: true, domain.PriorityMedium: true, domain.PriorityHigh: true,
	domain.PriorityCritical: true, domain.PriorityBlocker: true,
}

type createItemRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Type        domain.ItemType     `json:"type"`
	Priority    domain.ItemPriority `json:"priority"`
	AssigneeID  *string             `json:"assigneeId"`
	EpicID      *string             `json:"epicId"`
	SprintIDs   []string            `json:"sprintId"`
	Complexity  float64             `json:"complexity"`
	Estimate    float64             `json:"estimate"`
	Labels      []string            `json:"labels"`
	Column      string              `json:"column"`
}

func (h *handlers) createItem(w http.ResponseWriter, r *http.Request) error {
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return apperrors.ValidationError("INVALID_ITEM", "name is required")
	}
	if !validItemTypes[req.Type] {
		return apperrors.ValidationError("INVALID_ITEM", "unknown item type")
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityMedium
	}
	if !validPriorities[req.Priority] {
		return apperrors.ValidationError("INVALID_ITEM", "unknown priority")
	}

	project := projectFrom(r)
	if project.Settings.ForceEpicLink && req.EpicID == nil &&
		req.Type != domain.ItemEpic && req.Type != domain.ItemMilestone {
		return apperrors.ValidationError("EPIC_REQUIRED", "this project requires items to be linked to an epic")
	}

	item := &domain.Item{
		ProjectID:   project.ID,
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Priority:    req.Priority,
		ReporterID:  mustUserID(r),
		Complexity:  req.Complexity,
		Estimate:    req.Estimate,
		Labels:      req.Labels,
		Column:      req.Column,
	}
	if item.Column == "" && len(project.BoardColumns) > 0 {
		item.Column = project.BoardColumns[0]
	}
	if req.AssigneeID != nil {
		id, err := primitive.ObjectIDFromHex(*req.AssigneeID)
		if err != nil {
			return apperrors.ValidationError("INVALID_ID", "malformed assigneeId")
		}
		item.AssigneeID = &id
	}
	if req.EpicID != nil {
		id, err := primitive.ObjectIDFromHex(*req.EpicID)
		if err != nil {
			return apperrors.ValidationError("INVALID_ID", "malformed epicId")
		}
		epic, err := h.deps.Items.FindByID(r.Context(), id)
		if err != nil {
			return err
		}
		if epic.Type != domain.ItemEpic {
			return apperrors.ValidationError("INVALID_ITEM", "epicId must reference an epic")
		}
		item.EpicID = &id
	}
	if len(req.SprintIDs) > 1 && !project.Settings.EnableMultiSprintItems {
		return apperrors.ValidationError("INVALID_ITEM", "this project allows one sprint per item")
	}
	for _, raw := range req.SprintIDs {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return apperrors.ValidationError("INVALID_ID", "malformed sprintId")
		}
		item.SprintIDs = append(item.SprintIDs, id)
	}

	code, err := h.deps.Items.NextCode(r.Context(), project.ID, project.Code)
	if err != nil {
		return err
	}
	item.Code = code

	if err := h.deps.Items.Create(r.Context(), item); err != nil {
		return err
	}

	userID := mustUserID(r)
	h.deps.Broadcaster.SendToProject(domain.EvItemCreated,
		project.ID.Hex(), item, userID.Hex())
	h.deps.Recorder.RecordLog(domain.AuditLog{
		ProjectID:  &project.ID,
		Entity:     domain.EntityItem,
		EntityID:   item.ID,
		EntityName: item.Code,
		Action:     domain.ActionCreate,
		Trigger:    domain.TriggerUser,
		TriggerID:  &userID,
	})
	if item.AssigneeID != nil && *item.AssigneeID != userID {
		h.deps.Recorder.Notify(domain.Notification{
			ProjectID:  project.ID,
			UserID:     *item.AssigneeID,
			TriggerID:  &userID,
			EntityID:   &item.ID,
			EntityName: item.Code,
			Type:       domain.NotifyAssignment,
		})
	}
	h.log.Info("item created",
		zap.String("item_id", item.ID.Hex()),
		zap.String("code", item.Code))
	return writeJSON(w, http.StatusCreated, item)
}

func (h *handlers) listItems(w http.ResponseWriter, r *http.Request) error {
	filter := storage.ItemFilter{}
	q := r.URL.Query()
	if raw := q.Get("sprintId"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return apperrors.ValidationError("INVALID_ID", "malformed sprintId")
		}
		filter.SprintID = &id
	}
	if raw := q.Get("epicId"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return apperrors.ValidationError("INVALID_ID", "malformed epicId")
		}
		filter.EpicID = &id
	}
	if raw := q.Get("assigneeId"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return apperrors.ValidationError("INVALID_ID", "malformed assigneeId")
		}
		filter.AssigneeID = &id
	}
	if raw := q.Get("type"); raw != "" {
		t := domain.ItemType(raw)
		if !validItemTypes[t] {
			return apperrors.ValidationError("INVALID_ITEM", "unknown item type")
		}
		filter.Type = t
	}
	filter.Backlog = q.Get("backlog") == "1"

	items, err := h.deps.Items.ListForProject(r.Context(), projectFrom(r).ID, filter)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, items)
}

// itemInProject loads the item and checks it belongs to the routed project.
func (h *handlers) itemInProject(r *http.Request) (*domain.Item, error) {
	itemID, err := pathID(r, "itemID")
	if err != nil {
		return nil, err
	}
	item, err := h.deps.Items.FindByID(r.Context(), itemID)
	if err != nil {
		return nil, err
	}
	if item.ProjectID != projectFrom(r).ID {
		return nil, apperrors.NotFoundError("item")
	}
	return item, nil
}

func (h *handlers) getItem(w http.ResponseWriter, r *http.Request) error {
	item, err := h.itemInProject(r)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, item)
}

type updateItemRequest struct {
	Name        *string               `json:"name"`
	Description *string               `json:"description"`
	Priority    *domain.ItemPriority  `json:"priority"`
	Resolution  *domain.ItemResolution `json:"resolution"`
	AssigneeID  *string               `json:"assigneeId"`
	EpicID      *string               `json:"epicId"`
	SprintIDs   []string              `json:"sprintId"`
	Complexity  *float64              `json:"complexity"`
	Estimate    *float64              `json:"estimate"`
	Labels      []string              `json:"labels"`
	Column      *string               `json:"column"`
}

func (h *handlers) updateItem(w http.ResponseWriter, r *http.Request) error {
	item, err := h.itemInProject(r)
	if err != nil {
		return err
	}
	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	project := projectFrom(r)
	userID := mustUserID(r)
	set := bson.M{}
	unset := bson.M{}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return apperrors.ValidationError("INVALID_ITEM", "name cannot be empty")
		}
		set["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		set["description"] = *req.Description
	}
	if req.Priority != nil {
		if !validPriorities[*req.Priority] {
			return apperrors.ValidationError("INVALID_ITEM", "unknown priority")
		}
		set["priority"] = *req.Priority
	}
	if req.Resolution != nil {
		set["resolution"] = *req.Resolution
	}
	if req.Complexity != nil {
		set["complexity"] = *req.Complexity
	}
	if req.Estimate != nil {
		set["estimate"] = *req.Estimate
		// A new estimate restarts the remaining-work clock.
		if *req.Estimate != item.Estimate {
			set["hours_left"] = *req.Estimate
		}
	}
	if req.Labels != nil {
		set["labels"] = req.Labels
	}

	newAssignee := primitive.NilObjectID
	if req.AssigneeID != nil {
		if *req.AssigneeID == "" {
			unset["assigneeId"] = ""
		} else {
			id, err := primitive.ObjectIDFromHex(*req.AssigneeID)
			if err != nil {
				return apperrors.ValidationError("INVALID_ID", "malformed assigneeId")
			}
			set["assigneeId"] = id
			if item.AssigneeID == nil || *item.AssigneeID != id {
				newAssignee = id
			}
		}
	}
	if req.EpicID != nil {
		if *req.EpicID == "" {
			unset["epicId"] = ""
		} else {
			id, err := primitive.ObjectIDFromHex(*req.EpicID)
			if err != nil {
				return apperrors.ValidationError("INVALID_ID", "malformed epicId")
			}
			set["epicId"] = id
		}
	}
	if req.SprintIDs != nil {
		if len(req.SprintIDs) > 1 && !project.Settings.EnableMultiSprintItems {
			return apperrors.ValidationError("INVALID_ITEM", "this project allows one sprint per item")
		}
		ids := make([]primitive.ObjectID, 0, len(req.SprintIDs))
		for _, raw := range req.SprintIDs {
			id, err := primitive.ObjectIDFromHex(raw)
			if err != nil {
				return apperrors.ValidationError("INVALID_ID", "malformed sprintId")
			}
			ids = append(ids, id)
		}
		set["sprintId"] = ids
	}
	if req.Column != nil {
		if !project.HasColumn(*req.Column) {
			return apperrors.ValidationError("INVALID_COLUMN", "column is not on the project board")
		}
		column := *req.Column
		// QA routing: items closed by a non-QA member land in the QA column
		// first when the project asks for it.
		if project.Settings.AutoMoveToQA && column == project.DoneColumn && project.QAColumn != "" {
			member, _ := project.Member(userID)
			if member.Role != domain.RoleQA {
				column = project.QAColumn
			}
		}
		set["column"] = column
		if column == project.DoneColumn {
			set["done_date"] = time.Now().UTC()
		} else if item.DoneDate != nil {
			unset["done_date"] = ""
		}
	}

	if len(set) == 0 && len(unset) == 0 {
		return apperrors.ValidationError("EMPTY_UPDATE", "no fields to update")
	}

	updated, err := h.deps.Items.Update(r.Context(), item.ID, set, unset)
	if err != nil {
		return err
	}

	h.deps.Broadcaster.SendToProject(domain.EvItemChanged,
		project.ID.Hex(), updated, userID.Hex())
	h.deps.Recorder.RecordLog(domain.AuditLog{
		ProjectID:  &project.ID,
		Entity:     domain.EntityItem,
		EntityID:   updated.ID,
		EntityName: updated.Code,
		Action:     domain.ActionUpdate,
		Trigger:    domain.TriggerUser,
		TriggerID:  &userID,
	})
	if !newAssignee.IsZero() && newAssignee != userID {
		h.deps.Recorder.Notify(domain.Notification{
			ProjectID:  project.ID,
			UserID:     newAssignee,
			TriggerID:  &userID,
			EntityID:   &updated.ID,
			EntityName: updated.Code,
			Type:       domain.NotifyAssignment,
		})
	}
	return writeJSON(w, http.StatusOK, updated)
}

func (h *handlers) deleteItem(w http.ResponseWriter, r *http.Request) error {
	item, err := h.itemInProject(r)
	if err != nil {
		return err
	}
	if err := h.deps.Items.SoftDelete(r.Context(), item.ID); err != nil {
		return err
	}

	project := projectFrom(r)
	userID := mustUserID(r)
	h.deps.Broadcaster.SendToProject(domain.EvItemDeleted,
		project.ID.Hex(), map[string]any{"id": item.ID.Hex()}, userID.Hex())
	h.deps.Recorder.RecordLog(domain.AuditLog{
		ProjectID:  &project.ID,
		Entity:     domain.EntityItem,
		EntityID:   item.ID,
		EntityName: item.Code,
		Action:     domain.ActionDelete,
		Trigger:    domain.TriggerUser,
		TriggerID:  &userID,
	})
	return writeJSON(w, http.StatusNoContent, nil)
}

func (h *handlers) addComment(w http.ResponseWriter, r *http.Request) error {
	item, err := h.itemInProject(r)
	if err != nil {
		return err
	}
	var req struct {
		Comment string `json:"comment"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Comment) == "" {
		return apperrors.ValidationError("INVALID_COMMENT", "comment cannot be empty")
	}

	userID := mustUserID(r)
	updated, err := h.deps.Items.AddComment(r.Context(), item.ID, domain.ItemComment{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Comment:   req.Comment,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	project := projectFrom(r)
	h.deps.Broadcaster.SendToProject(domain.EvItemChanged,
		project.ID.Hex(), updated, userID.Hex())
	if updated.AssigneeID != nil && *updated.AssigneeID != userID {
		h.deps.Recorder.Notify(domain.Notification{
			ProjectID:  project.ID,
			UserID:     *updated.AssigneeID,
			TriggerID:  &userID,
			EntityID:   &updated.ID,
			EntityName: updated.Code,
			Type:       domain.NotifyComment,
		})
	}
	return writeJSON(w, http.StatusOK, updated)
}

// removeComment deletes a comment; only its author or a project owner/admin
// may do so.
func (h *handlers) removeComment(w http.ResponseWriter, r *http.Request) error {
	item, err := h.itemInProject(r)
	if err != nil {
		return err
	}
	commentID, err := pathID(r, "commentID")
	if err != nil {
		return err
	}

	userID := mustUserID(r)
	var comment *domain.ItemComment
	for i := range item.Comments {
		if item.Comments[i].ID == commentID {
			comment = &item.Comments[i]
			break
		}
	}
	if comment == nil {
		return apperrors.NotFoundError("comment")
	}
	if comment.UserID != userID {
		if err := requireRole(r, domain.RoleOwner, domain.RoleAdmin); err != nil {
			return err
		}
	}

	updated, err := h.deps.Items.RemoveComment(r.Context(), item.ID, commentID)
	if err != nil {
		return err
	}
	project := projectFrom(r)
	h.deps.Broadcaster.SendToProject(domain.EvItemChanged,
		project.ID.Hex(), updated, userID.Hex())
	return writeJSON(w, http.StatusOK, updated)
}

type relationRequest struct {
	Type   domain.RelationType `json:"type"`
	ItemID string              `json:"itemId"`
}

func (h *handlers) addRelation(w http.ResponseWriter, r *http.Request) error {
	item, err := h.itemInProject(r)
	if err != nil {
		return err
	}
	var req relationRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	otherID, err := primitive.ObjectIDFromHex(req.ItemID)
	if err != nil {
		return apperrors.ValidationError("INVALID_ID", "malformed itemId")
	}
	if otherID == item.ID {
		return apperrors.ValidationError("INVALID_RELATION", "an item cannot relate to itself")
	}
	other, err := h.deps.Items.FindByID(r.Context(), otherID)
	if err != nil {
		return err
	}
	if other.ProjectID != item.ProjectID {
		return apperrors.ValidationError("INVALID_RELATION", "related items must share a project")
	}

	if err := h.deps.Items.AddRelation(r.Context(), item.ID,
		domain.ItemRelation{Type: req.Type, ItemID: otherID}); err != nil {
		return err
	}

	updated, err := h.deps.Items.FindByID(r.Context(), item.ID)
	if err != nil {
		return err
	}
	h.deps.Broadcaster.SendToProject(domain.EvItemChanged,
		projectFrom(r).ID.Hex(), updated, mustUserID(r).Hex())
	return writeJSON(w, http.StatusOK, updated)
}

func (h *handlers) removeRelation(w http.ResponseWriter, r *http.Request) error {
	item, err := h.itemInProject(r)
	if err != nil {
		return err
	}
	var req relationRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	otherID, err := primitive.ObjectIDFromHex(req.ItemID)
	if err != nil {
		return apperrors.ValidationError("INVALID_ID", "malformed itemId")
	}

	if err := h.deps.Items.RemoveRelation(r.Context(), item.ID,
		domain.ItemRelation{Type: req.Type, ItemID: otherID}); err != nil {
		return err
	}

	updated, err := h.deps.Items.FindByID(r.Context(), item.ID)
	if err != nil {
		return err
	}
	h.deps.Broadcaster.SendToProject(domain.EvItemChanged,
		projectFrom(r).ID.Hex(), updated, mustUserID(r).Hex())
	return writeJSON(w, http.StatusOK, updated)
}

func (h *handlers) setHoursLeft(w http.ResponseWriter, r *http.Request) error {
	project := projectFrom(r)
	if !project.Settings.EnableHourTracking {
		return apperrors.ValidationError("HOURS_DISABLED", "hour tracking is disabled for this project")
	}
	item, err := h.itemInProject(r)
	if err != nil {
		return err
	}
	var req struct {
		HoursLeft float64 `json:"hours_left"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.HoursLeft < 0 {
		return apperrors.ValidationError("INVALID_HOURS", "hours_left cannot be negative")
	}

	updated, err := h.deps.Items.SetHoursLeft(r.Context(), item.ID, req.HoursLeft)
	if err != nil {
		return err
	}
	h.deps.Broadcaster.SendToProject(domain.EvItemChanged,
		project.ID.Hex(), updated, mustUserID(r).Hex())
	return writeJSON(w, http.StatusOK, updated)
}

// summarizeItem generates and stores an AI summary of the item.
func (h *handlers) summarizeItem(w http.ResponseWriter, r *http.Request) error {
	item, err := h.itemInProject(r)
	if err != nil {
		return err
	}
	summary, err := h.deps.Summarizer.SummarizeItem(r.Context(), item)
	if err != nil {
		return err
	}
	updated, err := h.deps.Items.Update(r.Context(), item.ID,
		bson.M{"ai_summary": summary}, nil)
	if err != nil {
		return err
	}
	h.deps.Broadcaster.SendToProject(domain.EvItemChanged,
		projectFrom(r).ID.Hex(), updated, mustUserID(r).Hex())
	return writeJSON(w, http.StatusOK, updated)
}
