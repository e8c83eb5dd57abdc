package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

// ---------------------------------------------------------------------------
// Decision matrix
// ---------------------------------------------------------------------------

func TestClassify_Matrix(t *testing.T) {
	t.Parallel()

	const none = archive.Fingerprint("")

	m, x, y := fp("m"), fp("x"), fp("y")

	tests := []struct {
		name          string
		man, mob, rem archive.Fingerprint
		inM, onA, onB bool
		want          ActionType
		conflict      bool
	}{
		{"new on both, same", none, x, x, false, true, true, ActionUpdateManifest, false},
		{"new on both, different", none, x, y, false, true, true, ActionExport, true},
		{"new on mobile", none, x, none, false, true, false, ActionExport, false},
		{"new on device", none, none, y, false, false, true, ActionImport, false},
		{"gone from both", m, none, none, true, false, false, ActionCleanup, false},
		{"unchanged", m, m, m, true, true, true, ActionNone, false},
		{"converged", m, x, x, true, true, true, ActionUpdateManifest, false},
		{"device edited", m, m, y, true, true, true, ActionImport, false},
		{"mobile edited", m, x, m, true, true, true, ActionExport, false},
		{"both edited", m, x, y, true, true, true, ActionExport, true},
		{"device deleted", m, m, none, true, true, false, ActionDeleteMobile, false},
		{"device deleted, mobile edited", m, x, none, true, true, false, ActionExport, false},
		{"mobile deleted", m, none, m, true, false, true, ActionDeleteRemote, false},
		{"mobile deleted, device edited", m, none, y, true, false, true, ActionDeleteRemote, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := classify(tt.man, tt.mob, tt.rem, tt.inM, tt.onA, tt.onB)
			assert.Equal(t, tt.want, got.Type)
			assert.Equal(t, tt.conflict, got.Conflict)
		})
	}
}

func TestClassify_UpdateManifestCarriesFingerprint(t *testing.T) {
	t.Parallel()

	got := classify(fp("m"), fp("x"), fp("x"), true, true, true)
	assert.Equal(t, fp("x"), got.Fingerprint)
}

// ---------------------------------------------------------------------------
// Plan
// ---------------------------------------------------------------------------

func TestPlanner_UnionInPathOrder(t *testing.T) {
	t.Parallel()

	planner := NewPlanner(testLogger(t))

	manifest := archive.Listing{"nfc/b.nfc": fp("b"), "nfc/gone.nfc": fp("g")}
	mobile := archive.Listing{"nfc/b.nfc": fp("b"), "nfc/a.nfc": fp("a")}
	remote := archive.Listing{"nfc/b.nfc": fp("b"), "subghz/c.sub": fp("c")}

	plan := planner.Plan(manifest, mobile, remote)
	require.Len(t, plan.Actions, 4)

	var paths []archive.Path
	var types []ActionType

	for _, a := range plan.Actions {
		paths = append(paths, a.Ref.Path)
		types = append(types, a.Type)
	}

	assert.Equal(t, []archive.Path{"nfc/a.nfc", "nfc/b.nfc", "nfc/gone.nfc", "subghz/c.sub"}, paths)
	assert.Equal(t, []ActionType{ActionExport, ActionNone, ActionCleanup, ActionImport}, types)
	assert.Equal(t, 2, plan.Changes())
}

func TestPlanner_ClassifiesShadowRefs(t *testing.T) {
	t.Parallel()

	planner := NewPlanner(testLogger(t))

	plan := planner.Plan(nil, nil, archive.Listing{"nfc/card.shd": fp("s")})
	require.Len(t, plan.Actions, 1)

	ref := plan.Actions[0].Ref
	assert.True(t, ref.IsShadow())
	assert.Equal(t, archive.Path("nfc/card.nfc"), ref.Origin)
}

func TestPlanner_Empty(t *testing.T) {
	t.Parallel()

	plan := NewPlanner(testLogger(t)).Plan(nil, nil, nil)
	assert.Empty(t, plan.Actions)
	assert.Equal(t, 0, plan.Changes())
}

func TestActionType_IsChange(t *testing.T) {
	t.Parallel()

	assert.True(t, ActionImport.IsChange())
	assert.True(t, ActionExport.IsChange())
	assert.True(t, ActionDeleteMobile.IsChange())
	assert.True(t, ActionDeleteRemote.IsChange())
	assert.False(t, ActionNone.IsChange())
	assert.False(t, ActionUpdateManifest.IsChange())
	assert.False(t, ActionCleanup.IsChange())
}
