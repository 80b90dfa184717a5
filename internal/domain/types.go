package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProjectRole is a member's role within a single project.
type ProjectRole string

const (
	RoleOwner       ProjectRole = "OWNER"
	RoleAdmin       ProjectRole = "ADMIN"
	RoleBoardmaster ProjectRole = "BOARDMASTER"
	RoleQA          ProjectRole = "QA"
	RoleMember      ProjectRole = "MEMBER"
)

// ItemType classifies a work item.
type ItemType string

const (
	ItemEpic                     ItemType = "EPIC"
	ItemMilestone                ItemType = "MILESTONE"
	ItemStory                    ItemType = "STORY"
	ItemFeature                  ItemType = "FEATURE"
	ItemSubFeature               ItemType = "SUB_FEATURE"
	ItemImprovement              ItemType = "IMPROVEMENT"
	ItemTask                     ItemType = "TASK"
	ItemSubTask                  ItemType = "SUB_TASK"
	ItemBug                      ItemType = "BUG"
	ItemTest                     ItemType = "TEST"
	ItemCustomerRequirement      ItemType = "CUSTOMER_REQUIREMENT"
	ItemFunctionalRequirement    ItemType = "FUNCTIONAL_REQUIREMENT"
	ItemNonFunctionalRequirement ItemType = "NON_FUNCTIONAL_REQUIREMENT"
)

// ItemPriority orders items on the board.
type ItemPriority string

const (
	PriorityLow      ItemPriority = "LOW"
	PriorityMedium   ItemPriority = "MEDIUM"
	PriorityHigh     ItemPriority = "HIGH"
	PriorityCritical ItemPriority = "CRITICAL"
	PriorityBlocker  ItemPriority = "BLOCKER"
)

// ItemResolution records how a closed item ended up.
type ItemResolution string

const (
	ResolutionFixed           ItemResolution = "FIXED"
	ResolutionWontFix         ItemResolution = "WONT_FIX"
	ResolutionDone            ItemResolution = "DONE"
	ResolutionWontDo          ItemResolution = "WONT_DO"
	ResolutionDuplicate       ItemResolution = "DUPLICATE"
	ResolutionIncomplete      ItemResolution = "INCOMPLETE"
	ResolutionIssuesFound     ItemResolution = "ISSUES_FOUND"
	ResolutionNoIssuesFound   ItemResolution = "NO_ISSUES_FOUND"
	ResolutionCannotReproduce ItemResolution = "CANNOT_REPRODUCE"
)

// RelationType links two items. Directional types have an opposite that is
// written onto the counterpart item.
type RelationType string

const (
	RelatesTo          RelationType = "RELATES_TO"
	Blocks             RelationType = "BLOCKS"
	IsBlockedBy        RelationType = "IS_BLOCKED_BY"
	Clones             RelationType = "CLONES"
	IsClonedBy         RelationType = "IS_CLONED_BY"
	DependsOn          RelationType = "DEPENDS_ON"
	IsDependencyFor    RelationType = "IS_DEPENDENCY_FOR"
	Duplicates         RelationType = "DUPLICATES"
	IsDuplicatedBy     RelationType = "IS_DUPLICATED_BY"
	Causes             RelationType = "CAUSES"
	IsCausedBy         RelationType = "IS_CAUSED_BY"
	Solves             RelationType = "SOLVES"
	IsSolvedBy         RelationType = "IS_SOLVED_BY"
	Tests              RelationType = "TESTS"
	IsTestedBy         RelationType = "IS_TESTED_BY"
	Implements         RelationType = "IMPLEMENTS"
	IsImplementedBy    RelationType = "IS_IMPLEMENTED_BY"
	IsParentOf         RelationType = "IS_PARENT_OF"
	IsChildOf          RelationType = "IS_CHILD_OF"
	HasToBeDoneWith    RelationType = "HAS_TO_BE_DONE_WITH"
	HasToBeDoneBefore  RelationType = "HAS_TO_BE_DONE_BEFORE"
	HasToBeDoneAfter   RelationType = "HAS_TO_BE_DONE_AFTER"
)

// relationOpposites maps a relation type to the type stored on the other item.
// Symmetric types map to themselves.
var relationOpposites = map[RelationType]RelationType{
	RelatesTo:         RelatesTo,
	Blocks:            IsBlockedBy,
	IsBlockedBy:       Blocks,
	Clones:            IsClonedBy,
	IsClonedBy:        Clones,
	DependsOn:         IsDependencyFor,
	IsDependencyFor:   DependsOn,
	Duplicates:        IsDuplicatedBy,
	IsDuplicatedBy:    Duplicates,
	Causes:            IsCausedBy,
	IsCausedBy:        Causes,
	Solves:            IsSolvedBy,
	IsSolvedBy:        Solves,
	Tests:             IsTestedBy,
	IsTestedBy:        Tests,
	Implements:        IsImplementedBy,
	IsImplementedBy:   Implements,
	IsParentOf:        IsChildOf,
	IsChildOf:         IsParentOf,
	HasToBeDoneWith:   HasToBeDoneWith,
	HasToBeDoneBefore: HasToBeDoneAfter,
	HasToBeDoneAfter:  HasToBeDoneBefore,
}

// Opposite returns the relation type recorded on the counterpart item.
func (t RelationType) Opposite() RelationType {
	if opp, ok := relationOpposites[t]; ok {
		return opp
	}
	return RelatesTo
}

// User is an account that can log in and join projects.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ProjectUser is one membership entry inside a project.
type ProjectUser struct {
	UserID   primitive.ObjectID `bson:"userId" json:"userId"`
	Role     ProjectRole        `bson:"role" json:"role"`
	IsActive bool               `bson:"is_active" json:"is_active"`
}

// ProjectSettings holds the per-project behavior toggles.
type ProjectSettings struct {
	UseSprints             bool `bson:"use_sprints" json:"use_sprints"`
	SprintLength           int  `bson:"sprint_length" json:"sprint_length"`
	ForceEpicLink          bool `bson:"force_epic_link" json:"force_epic_link"`
	EnableMultiSprintItems bool `bson:"enable_multi_sprint_items" json:"enable_multi_sprint_items"`
	EnableHourTracking     bool `bson:"enable_hour_tracking" json:"enable_hour_tracking"`
	AutoMoveToQA           bool `bson:"auto_move_to_qa" json:"auto_move_to_qa"`
}

// Project is the top-level container for items, sprints and documents.
type Project struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	OwnerID         primitive.ObjectID  `bson:"ownerId" json:"ownerId"`
	Users           []ProjectUser       `bson:"users" json:"users"`
	CurrentSprintID *primitive.ObjectID `bson:"currentSprintId,omitempty" json:"currentSprintId,omitempty"`
	Name            string              `bson:"name" json:"name"`
	Code            string              `bson:"code" json:"code"`
	Description     string              `bson:"description,omitempty" json:"description,omitempty"`
	BoardColumns    []string            `bson:"board_columns" json:"board_columns"`
	QAColumn        string              `bson:"qa_column,omitempty" json:"qa_column,omitempty"`
	BlockedColumn   string              `bson:"blocked_column,omitempty" json:"blocked_column,omitempty"`
	DoneColumn      string              `bson:"done_column,omitempty" json:"done_column,omitempty"`
	Settings        ProjectSettings     `bson:"settings" json:"settings"`
	StartDate       time.Time           `bson:"start_date" json:"start_date"`
	EndDate         time.Time           `bson:"end_date" json:"end_date"`
	CreatedAt       time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// Member returns the membership entry for a user, if any.
func (p *Project) Member(userID primitive.ObjectID) (ProjectUser, bool) {
	for _, u := range p.Users {
		if u.UserID == userID {
			return u, true
		}
	}
	return ProjectUser{}, false
}

// HasColumn reports whether the board has a column with this name.
func (p *Project) HasColumn(name string) bool {
	for _, col := range p.BoardColumns {
		if col == name {
			return true
		}
	}
	return false
}

// SprintType distinguishes timeboxed sprints from continuous flow.
type SprintType string

const (
	SprintTimeboxed  SprintType = "SPRINT"
	SprintContinuous SprintType = "CONTINUOUS"
)

// Sprint is a timeboxed (or continuous) slice of a project's work.
type Sprint struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProjectID   primitive.ObjectID `bson:"projectId" json:"projectId"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Type        SprintType         `bson:"type" json:"type"`
	StartDate   time.Time          `bson:"start_date" json:"start_date"`
	EndDate     time.Time          `bson:"end_date" json:"end_date"`
	IsCompleted bool               `bson:"is_completed,omitempty" json:"is_completed"`
	Deleted     bool               `bson:"deleted,omitempty" json:"deleted"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ItemRelation links this item to another one.
type ItemRelation struct {
	Type   RelationType       `bson:"type" json:"type"`
	ItemID primitive.ObjectID `bson:"itemId" json:"itemId"`
}

// ItemComment is a single comment on an item.
type ItemComment struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"userId" json:"userId"`
	Comment   string             `bson:"comment" json:"comment"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

// Item is a single unit of work on a project board.
type Item struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	ProjectID   primitive.ObjectID   `bson:"projectId" json:"projectId"`
	SprintIDs   []primitive.ObjectID `bson:"sprintId,omitempty" json:"sprintId,omitempty"`
	Code        string               `bson:"code" json:"code"`
	Name        string               `bson:"name" json:"name"`
	Description string               `bson:"description,omitempty" json:"description,omitempty"`
	AISummary   string               `bson:"ai_summary,omitempty" json:"ai_summary,omitempty"`
	Type        ItemType             `bson:"type" json:"type"`
	ReporterID  primitive.ObjectID   `bson:"reporterId" json:"reporterId"`
	AssigneeID  *primitive.ObjectID  `bson:"assigneeId,omitempty" json:"assigneeId,omitempty"`
	Complexity  float64              `bson:"complexity,omitempty" json:"complexity,omitempty"`
	Estimate    float64              `bson:"estimate,omitempty" json:"estimate,omitempty"`
	HoursLeft   float64              `bson:"hours_left,omitempty" json:"hours_left,omitempty"`
	Column      string               `bson:"column,omitempty" json:"column,omitempty"`
	Priority    ItemPriority         `bson:"priority" json:"priority"`
	Labels      []string             `bson:"labels,omitempty" json:"labels,omitempty"`
	Resolution  ItemResolution       `bson:"resolution,omitempty" json:"resolution,omitempty"`
	EpicID      *primitive.ObjectID  `bson:"epicId,omitempty" json:"epicId,omitempty"`
	Relations   []ItemRelation       `bson:"relations,omitempty" json:"relations,omitempty"`
	Comments    []ItemComment        `bson:"comments,omitempty" json:"comments,omitempty"`
	DoneDate    *time.Time           `bson:"done_date,omitempty" json:"done_date,omitempty"`
	Deleted     bool                 `bson:"deleted,omitempty" json:"deleted"`
	CreatedAt   time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// CollabDoc is a collaborative markdown document (or folder) inside a project.
// EditedBy is the single-holder edit lock; nil means nobody is editing.
type CollabDoc struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	OwnerID       primitive.ObjectID   `bson:"ownerId" json:"ownerId"`
	ProjectID     primitive.ObjectID   `bson:"projectId" json:"projectId"`
	Name          string               `bson:"name" json:"name"`
	StructurePath string               `bson:"structure_path" json:"structure_path"`
	Content       string               `bson:"content,omitempty" json:"content,omitempty"`
	AISummary     string               `bson:"ai_summary,omitempty" json:"ai_summary,omitempty"`
	IsFolder      bool                 `bson:"is_folder" json:"is_folder"`
	Roles         []ProjectRole        `bson:"roles,omitempty" json:"roles,omitempty"`
	Users         []primitive.ObjectID `bson:"users,omitempty" json:"users,omitempty"`
	EditRoles     []ProjectRole        `bson:"edit_roles,omitempty" json:"edit_roles,omitempty"`
	EditUsers     []primitive.ObjectID `bson:"edit_users,omitempty" json:"edit_users,omitempty"`
	EditedBy      *primitive.ObjectID  `bson:"is_edited_by,omitempty" json:"is_edited_by,omitempty"`
	CreatedAt     time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// Path returns the display path of a document within the project tree.
func (d *CollabDoc) Path() string {
	if d.StructurePath == "/" {
		return "/" + d.Name
	}
	return "/" + d.StructurePath + "/" + d.Name
}

// NotificationType classifies a notification.
type NotificationType string

const (
	NotifyMention        NotificationType = "MENTION"
	NotifyComment        NotificationType = "COMMENT"
	NotifyAssignment     NotificationType = "ASSIGNMENT"
	NotifySprintStart    NotificationType = "SPRINT_START"
	NotifySprintComplete NotificationType = "SPRINT_COMPLETE"
	NotifyItem           NotificationType = "ITEM"
)

// Notification is a per-user alert about activity in a project.
type Notification struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ProjectID  primitive.ObjectID  `bson:"projectId" json:"projectId"`
	UserID     primitive.ObjectID  `bson:"userId" json:"userId"`
	TriggerID  *primitive.ObjectID `bson:"triggerId,omitempty" json:"triggerId,omitempty"`
	EntityID   *primitive.ObjectID `bson:"entityId,omitempty" json:"entityId,omitempty"`
	EntityName string              `bson:"entity_name,omitempty" json:"entity_name,omitempty"`
	Type       NotificationType    `bson:"notification_type" json:"notification_type"`
	IsRead     bool                `bson:"is_read" json:"is_read"`
	CreatedAt  time.Time           `bson:"createdAt" json:"createdAt"`
}

// AuditEntity names the kind of record an audit entry refers to.
type AuditEntity string

const (
	EntityItem      AuditEntity = "ITEM"
	EntityProject   AuditEntity = "PROJECT"
	EntitySprint    AuditEntity = "SPRINT"
	EntityUser      AuditEntity = "USER"
	EntityCollabDoc AuditEntity = "COLLABDOCS"
)

// AuditAction names what happened to the record.
type AuditAction string

const (
	ActionCreate AuditAction = "CREATE"
	ActionUpdate AuditAction = "UPDATE"
	ActionDelete AuditAction = "DELETE"
	ActionLogin  AuditAction = "LOGIN"
	ActionLogout AuditAction = "LOGOUT"
)

// AuditTrigger says whether a user or the system caused the entry.
type AuditTrigger string

const (
	TriggerSystem AuditTrigger = "SYSTEM"
	TriggerUser   AuditTrigger = "USER"
)

// AuditLog is one immutable history entry.
type AuditLog struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ProjectID   *primitive.ObjectID `bson:"projectId,omitempty" json:"projectId,omitempty"`
	Entity      AuditEntity         `bson:"affectedEntity" json:"affectedEntity"`
	EntityID    primitive.ObjectID  `bson:"affectedEntityId" json:"affectedEntityId"`
	EntityName  string              `bson:"affectedEntityName,omitempty" json:"affectedEntityName,omitempty"`
	Action      AuditAction         `bson:"action" json:"action"`
	Trigger     AuditTrigger        `bson:"logTrigger" json:"logTrigger"`
	TriggerID   *primitive.ObjectID `bson:"logTriggerId,omitempty" json:"logTriggerId,omitempty"`
	Description string              `bson:"description,omitempty" json:"description,omitempty"`
	CreatedAt   time.Time           `bson:"createdAt" json:"createdAt"`
}
