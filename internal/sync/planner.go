package sync

import (
	"fmt"
	"log/slog"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

// ActionType is the decision the planner makes for one path.
type ActionType int

const (
	ActionNone           ActionType = iota // identical everywhere
	ActionImport                           // copy device -> mobile
	ActionExport                           // copy mobile -> device
	ActionDeleteMobile                     // device deleted it; delete mobile copy
	ActionDeleteRemote                     // mobile deleted it; delete device copy
	ActionUpdateManifest                   // both sides converged without us
	ActionCleanup                          // gone from both sides
)

func (a ActionType) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionImport:
		return "import"
	case ActionExport:
		return "export"
	case ActionDeleteMobile:
		return "delete_mobile"
	case ActionDeleteRemote:
		return "delete_remote"
	case ActionUpdateManifest:
		return "update_manifest"
	case ActionCleanup:
		return "cleanup"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// IsChange reports whether the action transfers or deletes an item, which
// is what a run's change count measures. Manifest bookkeeping is not a
// change.
func (a ActionType) IsChange() bool {
	switch a {
	case ActionImport, ActionExport, ActionDeleteMobile, ActionDeleteRemote:
		return true
	default:
		return false
	}
}

// Action is the planned step for one path.
type Action struct {
	Type     ActionType
	Ref      archive.Ref
	Conflict bool // both sides changed; mobile wins

	// Fingerprint is the value the manifest should hold afterwards for
	// ActionUpdateManifest. Transfers record the fingerprint of the bytes
	// actually moved instead.
	Fingerprint archive.Fingerprint
}

// Plan is the classification of every path seen in any of the three
// listings, in lexical path order. Unchanged paths are included as
// ActionNone so progress can be measured over all of them.
type Plan struct {
	Actions []Action
}

// Changes returns the number of actions that count as changes.
func (p *Plan) Changes() int {
	n := 0

	for _, a := range p.Actions {
		if a.Type.IsChange() {
			n++
		}
	}

	return n
}

// Planner is a pure decision engine that turns the manifest and the two
// current listings into a Plan. It performs no I/O.
type Planner struct {
	logger *slog.Logger
}

// NewPlanner creates a Planner with the given logger.
func NewPlanner(logger *slog.Logger) *Planner {
	return &Planner{logger: logger}
}

// Plan classifies every distinct path across manifest, mobile and remote.
func (p *Planner) Plan(manifest, mobile, remote archive.Listing) *Plan {
	union := make(archive.Listing, len(manifest)+len(mobile)+len(remote))
	for _, l := range []archive.Listing{manifest, mobile, remote} {
		for path := range l {
			union[path] = ""
		}
	}

	plan := &Plan{Actions: make([]Action, 0, len(union))}

	for _, path := range union.SortedPaths() {
		m, inManifest := manifest[path]
		a, onMobile := mobile[path]
		b, onRemote := remote[path]

		action := classify(m, a, b, inManifest, onMobile, onRemote)
		action.Ref = archive.Classify(path)
		plan.Actions = append(plan.Actions, action)

		if action.Type != ActionNone {
			p.logger.Debug("classified path",
				slog.String("path", string(path)),
				slog.String("action", action.Type.String()),
				slog.Bool("conflict", action.Conflict),
			)
		}
	}

	p.logger.Info("planned sync",
		slog.Int("paths", len(plan.Actions)),
		slog.Int("changes", plan.Changes()),
	)

	return plan
}

// classify applies the three-way decision matrix to one path. m is the
// manifest fingerprint, a the mobile one, b the remote one.
//
// Conflicts go to the mobile side: content changed on both sides exports,
// a mobile edit of an item the device deleted exports, and a mobile
// deletion of an item the device edited deletes the device copy.
func classify(m, a, b archive.Fingerprint, inM, onA, onB bool) Action {
	switch {
	case !inM:
		return classifyUnrecorded(a, b, onA, onB)
	case !onA && !onB:
		return Action{Type: ActionCleanup}
	case onA && onB:
		return classifyBothPresent(m, a, b)
	case onA:
		if a == m {
			return Action{Type: ActionDeleteMobile}
		}

		return Action{Type: ActionExport}
	default:
		return Action{Type: ActionDeleteRemote, Conflict: b != m}
	}
}

// classifyUnrecorded handles paths the manifest has never seen.
func classifyUnrecorded(a, b archive.Fingerprint, onA, onB bool) Action {
	switch {
	case onA && onB && a == b:
		return Action{Type: ActionUpdateManifest, Fingerprint: a}
	case onA && onB:
		return Action{Type: ActionExport, Conflict: true}
	case onA:
		return Action{Type: ActionExport}
	case onB:
		return Action{Type: ActionImport}
	default:
		return Action{Type: ActionNone}
	}
}

// classifyBothPresent handles paths present on both sides and in the
// manifest.
func classifyBothPresent(m, a, b archive.Fingerprint) Action {
	switch {
	case a == m && b == m:
		return Action{Type: ActionNone}
	case a == b:
		return Action{Type: ActionUpdateManifest, Fingerprint: a}
	case a == m:
		return Action{Type: ActionImport}
	case b == m:
		return Action{Type: ActionExport}
	default:
		return Action{Type: ActionExport, Conflict: true}
	}
}
