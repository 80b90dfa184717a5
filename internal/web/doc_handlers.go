package web

import (
	"net/http"
	"strings"

	"github.com/planline/planline/internal/domain"
	apperrors "github.com/planline/planline/internal/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type createDocRequest struct {
	Name          string `json:"name"`
	StructurePath string `json:"structure_path"`
	Content       string `json:"content"`
	IsFolder      bool   `json:"is_folder"`
}

func (h *handlers) createDoc(w http.ResponseWriter, r *http.Request) error {
	var req createDocRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return apperrors.ValidationError("INVALID_DOC", "name is required")
	}
	if strings.Contains(req.Name, "/") {
		return apperrors.ValidationError("INVALID_DOC", "name cannot contain slashes")
	}
	if req.IsFolder && req.Content != "" {
		return apperrors.ValidationError("INVALID_DOC", "folders cannot have content")
	}

	project := projectFrom(r)
	doc := &domain.CollabDoc{
		OwnerID:       mustUserID(r),
		ProjectID:     project.ID,
		Name:          req.Name,
		StructurePath: req.StructurePath,
		Content:       req.Content,
		IsFolder:      req.IsFolder,
	}
	if err := h.deps.Docs.Create(r.Context(), doc); err != nil {
		return err
	}

	userID := mustUserID(r)
	h.deps.Broadcaster.SendToProject(domain.EvCollabDocCreated,
		project.ID.Hex(), doc, userID.Hex())
	h.deps.Recorder.RecordLog(domain.AuditLog{
		ProjectID:  &project.ID,
		Entity:     domain.EntityCollabDoc,
		EntityID:   doc.ID,
		EntityName: doc.Name,
		Action:     domain.ActionCreate,
		Trigger:    domain.TriggerUser,
		TriggerID:  &userID,
	})
	return writeJSON(w, http.StatusCreated, doc)
}

func (h *handlers) listDocs(w http.ResponseWriter, r *http.Request) error {
	docs, err := h.deps.Docs.ListForProject(r.Context(), projectFrom(r).ID)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, docs)
}

// docInProject loads the document and checks project ownership and read
// access.
func (h *handlers) docInProject(r *http.Request) (*domain.CollabDoc, error) {
	docID, err := pathID(r, "docID")
	if err != nil {
		return nil, err
	}
	doc, err := h.deps.Docs.FindByID(r.Context(), docID)
	if err != nil {
		return nil, err
	}
	if doc.ProjectID != projectFrom(r).ID {
		return nil, apperrors.NotFoundError("document")
	}
	if !canReadDoc(doc, projectFrom(r), mustUserID(r)) {
		return nil, apperrors.AuthorizationError("read document", "no access to this document")
	}
	return doc, nil
}

// canReadDoc applies the document's visibility rules. An empty allow list
// means every project member can read.
func canReadDoc(doc *domain.CollabDoc, project *domain.Project, userID primitive.ObjectID) bool {
	if doc.OwnerID == userID {
		return true
	}
	if len(doc.Roles) == 0 && len(doc.Users) == 0 {
		return true
	}
	member, _ := project.Member(userID)
	for _, role := range doc.Roles {
		if member.Role == role {
			return true
		}
	}
	for _, id := range doc.Users {
		if id == userID {
			return true
		}
	}
	return false
}

// canEditDoc applies the edit allow lists on top of read access.
func canEditDoc(doc *domain.CollabDoc, project *domain.Project, userID primitive.ObjectID) bool {
	if doc.OwnerID == userID {
		return true
	}
	if len(doc.EditRoles) == 0 && len(doc.EditUsers) == 0 {
		return canReadDoc(doc, project, userID)
	}
	member, _ := project.Member(userID)
	for _, role := range doc.EditRoles {
		if member.Role == role {
			return true
		}
	}
	for _, id := range doc.EditUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func (h *handlers) getDoc(w http.ResponseWriter, r *http.Request) error {
	doc, err := h.docInProject(r)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, doc)
}

type updateDocRequest struct {
	Name      *string              `json:"name"`
	Content   *string              `json:"content"`
	Roles     []domain.ProjectRole `json:"roles"`
	Users     []string             `json:"users"`
	EditRoles []domain.ProjectRole `json:"edit_roles"`
	EditUsers []string             `json:"edit_users"`
}

func (h *handlers) updateDoc(w http.ResponseWriter, r *http.Request) error {
	doc, err := h.docInProject(r)
	if err != nil {
		return err
	}
	project := projectFrom(r)
	userID := mustUserID(r)
	if !canEditDoc(doc, project, userID) {
		return apperrors.AuthorizationError("edit document", "no edit access to this document")
	}

	var req updateDocRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	set := bson.M{}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return apperrors.ValidationError("INVALID_DOC", "name cannot be empty")
		}
		set["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Content != nil {
		if doc.IsFolder {
			return apperrors.ValidationError("INVALID_DOC", "folders cannot have content")
		}
		// Content writes require holding the edit lock so concurrent editors
		// do not overwrite each other.
		if doc.EditedBy == nil || *doc.EditedBy != userID {
			return apperrors.ConflictError("document is not locked by you for editing")
		}
		set["content"] = *req.Content
	}
	// Only the owner reshapes the allow lists.
	if req.Roles != nil || req.Users != nil || req.EditRoles != nil || req.EditUsers != nil {
		if doc.OwnerID != userID {
			return apperrors.AuthorizationError("share document", "only the owner can change document access")
		}
		if req.Roles != nil {
			set["roles"] = req.Roles
		}
		if req.EditRoles != nil {
			set["edit_roles"] = req.EditRoles
		}
		if req.Users != nil {
			ids, err := parseObjectIDs(req.Users)
			if err != nil {
				return err
			}
			set["users"] = ids
		}
		if req.EditUsers != nil {
			ids, err := parseObjectIDs(req.EditUsers)
			if err != nil {
				return err
			}
			set["edit_users"] = ids
		}
	}
	if len(set) == 0 {
		return apperrors.ValidationError("EMPTY_UPDATE", "no fields to update")
	}

	updated, err := h.deps.Docs.Update(r.Context(), doc.ID, set)
	if err != nil {
		return err
	}

	h.deps.Broadcaster.SendToProject(domain.EvCollabDocChanged,
		project.ID.Hex(), updated, userID.Hex())
	h.deps.Recorder.RecordLog(domain.AuditLog{
		ProjectID:  &project.ID,
		Entity:     domain.EntityCollabDoc,
		EntityID:   updated.ID,
		EntityName: updated.Name,
		Action:     domain.ActionUpdate,
		Trigger:    domain.TriggerUser,
		TriggerID:  &userID,
	})
	return writeJSON(w, http.StatusOK, updated)
}

func (h *handlers) deleteDoc(w http.ResponseWriter, r *http.Request) error {
	doc, err := h.docInProject(r)
	if err != nil {
		return err
	}
	project := projectFrom(r)
	userID := mustUserID(r)
	member, _ := project.Member(userID)
	if doc.OwnerID != userID && member.Role != domain.RoleOwner && member.Role != domain.RoleAdmin {
		return apperrors.AuthorizationError("delete document", "only the document owner or a project admin can delete")
	}

	if err := h.deps.Docs.Delete(r.Context(), doc); err != nil {
		return err
	}

	h.deps.Broadcaster.SendToProject(domain.EvCollabDocDeleted,
		project.ID.Hex(), map[string]any{"id": doc.ID.Hex()}, userID.Hex())
	h.deps.Recorder.RecordLog(domain.AuditLog{
		ProjectID:  &project.ID,
		Entity:     domain.EntityCollabDoc,
		EntityID:   doc.ID,
		EntityName: doc.Name,
		Action:     domain.ActionDelete,
		Trigger:    domain.TriggerUser,
		TriggerID:  &userID,
	})
	return writeJSON(w, http.StatusNoContent, nil)
}

// summarizeDoc generates and stores an AI summary of the document.
func (h *handlers) summarizeDoc(w http.ResponseWriter, r *http.Request) error {
	doc, err := h.docInProject(r)
	if err != nil {
		return err
	}
	if doc.IsFolder {
		return apperrors.ValidationError("INVALID_DOC", "folders cannot be summarized")
	}
	summary, err := h.deps.Summarizer.SummarizeDoc(r.Context(), doc)
	if err != nil {
		return err
	}
	updated, err := h.deps.Docs.Update(r.Context(), doc.ID, bson.M{"ai_summary": summary})
	if err != nil {
		return err
	}
	h.deps.Broadcaster.SendToProject(domain.EvCollabDocChanged,
		projectFrom(r).ID.Hex(), updated, mustUserID(r).Hex())
	return writeJSON(w, http.StatusOK, updated)
}

func parseObjectIDs(raw []string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, s := range raw {
		id, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			return nil, apperrors.ValidationError("INVALID_ID", "malformed user id in list")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
