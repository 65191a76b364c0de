package roles

import (
	"testing"

	"couple-todo-backend/internal/models"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func pairedCouple() *models.Couple {
	return &models.Couple{
		Code:            "AB12CD",
		CreatorID:       "user-a",
		CreatorNickname: "Mina",
		PartnerID:       strPtr("user-b"),
		PartnerNickname: strPtr("Joon"),
	}
}

func TestResolve_SwapsUnderRoleChange(t *testing.T) {
	couple := pairedCouple()
	creator := &models.Profile{ID: "user-a", Nickname: "Mina", Role: models.RoleCreator}
	partner := &models.Profile{ID: "user-b", Nickname: "Joon", Role: models.RolePartner}

	a := Resolve(creator, couple)
	b := Resolve(partner, couple)

	assert.Equal(t, "Mina", a.Self)
	assert.Equal(t, "Joon", a.Partner)
	assert.Equal(t, a.Self, b.Partner)
	assert.Equal(t, a.Partner, b.Self)
	assert.Equal(t, a.Shared, b.Shared)
	assert.Equal(t, SharedLabel, a.Shared)
}

func TestResolve_WaitingForPartner(t *testing.T) {
	couple := &models.Couple{Code: "AB12CD", CreatorID: "user-a", CreatorNickname: "Mina"}
	creator := &models.Profile{ID: "user-a", Role: models.RoleCreator}

	labels := Resolve(creator, couple)

	assert.Equal(t, "Mina", labels.Self)
	assert.Equal(t, WaitingLabel, labels.Partner)
}

func TestResolve_UsesCurrentNicknames(t *testing.T) {
	couple := pairedCouple()
	partner := &models.Profile{ID: "user-b", Role: models.RolePartner}

	before := Resolve(partner, couple)
	couple.CreatorNickname = "Minnie"
	after := Resolve(partner, couple)

	assert.Equal(t, "Mina", before.Partner)
	assert.Equal(t, "Minnie", after.Partner)
}

func TestResolve_FallsBackToMembership(t *testing.T) {
	// profile role not yet written, slot is authoritative
	labels := Resolve(&models.Profile{ID: "user-b", Role: models.RoleUnassigned}, pairedCouple())
	assert.Equal(t, models.RolePartner, labels.Role)
	assert.Equal(t, "Joon", labels.Self)
}

func TestResolve_Unpaired(t *testing.T) {
	labels := Resolve(&models.Profile{ID: "x"}, nil)
	assert.Equal(t, DefaultNickname, labels.Self)
	assert.Equal(t, WaitingLabel, labels.Partner)
	assert.Equal(t, models.RoleUnassigned, labels.Role)
}

func TestLabelSet_StoredAndDisplay(t *testing.T) {
	couple := pairedCouple()
	creator := Resolve(&models.Profile{ID: "user-a", Role: models.RoleCreator}, couple)
	partner := Resolve(&models.Profile{ID: "user-b", Role: models.RolePartner}, couple)

	tests := []struct {
		name     string
		labels   LabelSet
		choice   models.Assignee
		stored   models.Assignee
		display  string
		otherSee string
	}{
		{"creator assigns self", creator, models.AssigneeSelf, models.AssigneeSelf, "Mina", "Mina"},
		{"creator assigns partner", creator, models.AssigneePartner, models.AssigneePartner, "Joon", "Joon"},
		{"partner assigns self", partner, models.AssigneeSelf, models.AssigneePartner, "Joon", "Joon"},
		{"partner assigns partner", partner, models.AssigneePartner, models.AssigneeSelf, "Mina", "Mina"},
		{"shared", partner, models.AssigneeShared, models.AssigneeShared, SharedLabel, SharedLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored := tt.labels.Stored(tt.choice)
			assert.Equal(t, tt.stored, stored)
			assert.Equal(t, tt.display, tt.labels.Display(stored))
			assert.Equal(t, tt.choice, tt.labels.Relative(stored))

			other := creator
			if tt.labels.Role == models.RoleCreator {
				other = partner
			}
			assert.Equal(t, tt.otherSee, other.Display(stored))
		})
	}
}

func TestLabelSet_Options(t *testing.T) {
	opts := Resolve(&models.Profile{ID: "user-a", Role: models.RoleCreator}, pairedCouple()).Options()
	assert.Len(t, opts, 3)
	assert.Equal(t, models.AssigneeSelf, opts[0].Value)
	assert.Equal(t, "Mina", opts[0].Label)
	assert.Equal(t, "Joon", opts[1].Label)
	assert.Equal(t, SharedLabel, opts[2].Label)
}
