package models

import "time"

// Role is the slot a profile occupies in its couple
type Role string

const (
	RoleUnassigned Role = "unassigned"
	RoleCreator    Role = "creator"
	RolePartner    Role = "partner"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleUnassigned, RoleCreator, RolePartner:
		return true
	}
	return false
}

// Assignee marks who a task belongs to
type Assignee string

const (
	AssigneeSelf    Assignee = "self"
	AssigneePartner Assignee = "partner"
	AssigneeShared  Assignee = "shared"
)

// Valid reports whether a is a known assignee
func (a Assignee) Valid() bool {
	switch a {
	case AssigneeSelf, AssigneePartner, AssigneeShared:
		return true
	}
	return false
}

// MaxNicknameLength is counted in characters, not bytes
const MaxNicknameLength = 10

// Identity is what the external identity provider tells us about a caller
type Identity struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	PhotoURL *string `json:"photo_url,omitempty"`
}

// Profile represents the identity record of an authenticated user
type Profile struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Nickname   string    `json:"nickname,omitempty"`
	CoupleCode *string   `json:"couple_code,omitempty"`
	Role       Role      `json:"role"`
	PhotoURL   *string   `json:"photo_url,omitempty"`
	PushToken  *string   `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Couple represents a pairing record keyed by its code
type Couple struct {
	Code            string    `json:"code"`
	CreatorID       string    `json:"creator_id"`
	CreatorEmail    string    `json:"creator_email"`
	CreatorNickname string    `json:"creator_nickname"`
	CreatorPhotoURL *string   `json:"creator_photo_url,omitempty"`
	PartnerID       *string   `json:"partner_id"`
	PartnerEmail    *string   `json:"partner_email"`
	PartnerNickname *string   `json:"partner_nickname"`
	PartnerPhotoURL *string   `json:"partner_photo_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Available reports whether the partner slot can still be claimed
func (c *Couple) Available() bool {
	return c.PartnerID == nil
}

// RoleOf returns the slot userID occupies, or RoleUnassigned
func (c *Couple) RoleOf(userID string) Role {
	switch {
	case c.CreatorID == userID:
		return RoleCreator
	case c.PartnerID != nil && *c.PartnerID == userID:
		return RolePartner
	}
	return RoleUnassigned
}

// HasMember reports whether userID is one of the two members
func (c *Couple) HasMember(userID string) bool {
	return c.RoleOf(userID) != RoleUnassigned
}

// MemberIDs returns the ids of the occupied slots
func (c *Couple) MemberIDs() []string {
	ids := []string{c.CreatorID}
	if c.PartnerID != nil {
		ids = append(ids, *c.PartnerID)
	}
	return ids
}

// PartnerOf returns the id of the other member, or "" if there is none
func (c *Couple) PartnerOf(userID string) string {
	switch c.RoleOf(userID) {
	case RoleCreator:
		if c.PartnerID != nil {
			return *c.PartnerID
		}
	case RolePartner:
		return c.CreatorID
	}
	return ""
}

// CoupleMember is the data written into a couple slot
type CoupleMember struct {
	ID       string
	Email    string
	Nickname string
	PhotoURL *string
}

// Comment is a single entry of a task's comment thread
type Comment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"date"`
}

// Image is a photo attached to a task
type Image struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	StoragePath string    `json:"storage_path"`
	Name        string    `json:"name"`
	UploadedBy  string    `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Task is a shared todo item scoped to one couple
type Task struct {
	ID         string     `json:"id"`
	CoupleCode string     `json:"couple_code"`
	Text       string     `json:"text"`
	Completed  bool       `json:"completed"`
	Assignee   Assignee   `json:"assignee"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	Comments   []Comment  `json:"comments"`
	Images     []Image    `json:"images"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	UpdatedBy  *string    `json:"updated_by,omitempty"`
}

// FindImage returns the image with the given id, or nil
func (t *Task) FindImage(imageID string) *Image {
	for i := range t.Images {
		if t.Images[i].ID == imageID {
			return &t.Images[i]
		}
	}
	return nil
}

// TaskSnapshot is one delivery of a couple's task collection
type TaskSnapshot struct {
	CoupleCode       string    `json:"couple_code"`
	MemberIDs        []string  `json:"member_ids"`
	Tasks            []*Task   `json:"tasks"`
	HasPendingWrites bool      `json:"has_pending_writes"`
	PublishedAt      time.Time `json:"published_at"`
}
