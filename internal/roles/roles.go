// Package roles maps a viewer and a couple to the labels shown for task assignees.
//
// Assignees are persisted relative to the couple's creator: "self" is the creator
// slot, "partner" the partner slot. A LabelSet converts between that stored form
// and the viewer-relative form used by the assignee selector and the task list.
// Labels are resolved on every read and never written back into tasks.
package roles

import "couple-todo-backend/internal/models"

const (
	// SharedLabel names tasks that belong to both members
	SharedLabel = "together"
	// WaitingLabel stands in for a partner who has not joined yet
	WaitingLabel = "waiting"
	// DefaultNickname is used when a member never set a nickname
	DefaultNickname = "anonymous"
)

// LabelSet is the resolved naming for one viewer
type LabelSet struct {
	Role    models.Role `json:"role"`
	Self    string      `json:"self"`
	Partner string      `json:"partner"`
	Shared  string      `json:"shared"`
}

// Resolve computes the label set for profile inside couple. A nil couple yields
// the unpaired view.
func Resolve(profile *models.Profile, couple *models.Couple) LabelSet {
	labels := LabelSet{Role: models.RoleUnassigned, Shared: SharedLabel, Partner: WaitingLabel}
	if profile == nil {
		labels.Self = DefaultNickname
		return labels
	}

	labels.Self = nicknameOr(profile.Nickname)
	if couple == nil {
		return labels
	}

	role := profile.Role
	if member := couple.RoleOf(profile.ID); member != models.RoleUnassigned {
		role = member
	}

	creator := nicknameOr(couple.CreatorNickname)
	partner := WaitingLabel
	if couple.PartnerID != nil {
		partner = DefaultNickname
		if couple.PartnerNickname != nil {
			partner = nicknameOr(*couple.PartnerNickname)
		}
	}

	switch role {
	case models.RoleCreator:
		labels.Role = role
		labels.Self, labels.Partner = creator, partner
	case models.RolePartner:
		labels.Role = role
		labels.Self, labels.Partner = partner, creator
	}
	return labels
}

// Stored converts a viewer-relative assignee into the creator-relative form
func (l LabelSet) Stored(relative models.Assignee) models.Assignee {
	return l.flip(relative)
}

// Relative converts a stored assignee into the viewer-relative form
func (l LabelSet) Relative(stored models.Assignee) models.Assignee {
	return l.flip(stored)
}

// Display returns the label for a stored assignee
func (l LabelSet) Display(stored models.Assignee) string {
	switch l.Relative(stored) {
	case models.AssigneeSelf:
		return l.Self
	case models.AssigneePartner:
		return l.Partner
	default:
		return l.Shared
	}
}

// Options returns the assignee selector entries in display order
func (l LabelSet) Options() []Option {
	return []Option{
		{Value: models.AssigneeSelf, Label: l.Self},
		{Value: models.AssigneePartner, Label: l.Partner},
		{Value: models.AssigneeShared, Label: l.Shared},
	}
}

// Option is one entry of the assignee selector
type Option struct {
	Value models.Assignee `json:"value"`
	Label string          `json:"label"`
}

// self and partner swap for the partner slot; the mapping is its own inverse
func (l LabelSet) flip(a models.Assignee) models.Assignee {
	if l.Role != models.RolePartner {
		return a
	}
	switch a {
	case models.AssigneeSelf:
		return models.AssigneePartner
	case models.AssigneePartner:
		return models.AssigneeSelf
	}
	return a
}

func nicknameOr(nickname string) string {
	if nickname == "" {
		return DefaultNickname
	}
	return nickname
}
