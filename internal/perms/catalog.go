// Package perms defines the closed permission catalog and the
// effective-permission resolver for administrator accounts.
package perms

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Module identifies a guarded area of the admin console.
type Module string

// Known modules. Permission grants outside this set are rejected at
// validation time rather than resolving to a silent deny.
const (
	ModuleBlogs          Module = "blogs"
	ModuleVideos         Module = "videos"
	ModuleScorecards     Module = "scorecards"
	ModuleAnnouncements  Module = "announcements"
	ModuleQuestionBank   Module = "question_bank"
	ModuleMockTests      Module = "mock_tests"
	ModuleRoleManagement Module = "role_management"
)

var knownModules = map[Module]struct{}{
	ModuleBlogs:          {},
	ModuleVideos:         {},
	ModuleScorecards:     {},
	ModuleAnnouncements:  {},
	ModuleQuestionBank:   {},
	ModuleMockTests:      {},
	ModuleRoleManagement: {},
}

// AllModules returns every known module in stable order.
func AllModules() []Module {
	modules := make([]Module, 0, len(knownModules))
	for m := range knownModules {
		modules = append(modules, m)
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i] < modules[j] })
	return modules
}

// ParseModule validates a free-form module name against the catalog.
func ParseModule(name string) (Module, error) {
	m := Module(name)
	if _, ok := knownModules[m]; !ok {
		return "", fmt.Errorf("perms: unknown module %q", name)
	}
	return m, nil
}

// Action identifies one of the six capabilities a module grant can carry.
type Action string

const (
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionExport  Action = "export"
	ActionApprove Action = "approve"
)

// AllActions returns every action in declaration order.
func AllActions() []Action {
	return []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport, ActionApprove}
}

// ParseAction validates a free-form action name.
func ParseAction(name string) (Action, error) {
	switch a := Action(name); a {
	case ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport, ActionApprove:
		return a, nil
	default:
		return "", fmt.Errorf("perms: unknown action %q", name)
	}
}

// Actions is the fixed capability record attached to one module grant.
type Actions struct {
	View    bool `json:"view"`
	Create  bool `json:"create"`
	Edit    bool `json:"edit"`
	Delete  bool `json:"delete"`
	Export  bool `json:"export"`
	Approve bool `json:"approve"`
}

// AllActionsGranted is the record with every capability enabled.
var AllActionsGranted = Actions{View: true, Create: true, Edit: true, Delete: true, Export: true, Approve: true}

// Allows reports whether the record grants the given action.
func (a Actions) Allows(action Action) bool {
	switch action {
	case ActionView:
		return a.View
	case ActionCreate:
		return a.Create
	case ActionEdit:
		return a.Edit
	case ActionDelete:
		return a.Delete
	case ActionExport:
		return a.Export
	case ActionApprove:
		return a.Approve
	default:
		return false
	}
}

// Matrix is a fully resolved module -> capability table. A nil matrix means
// "no grants", distinct from an empty one only in storage (an account without
// a custom-permissions object stores NULL).
type Matrix map[Module]Actions

// Allows reports whether the matrix grants action on module. Modules absent
// from the matrix deny every action.
func (m Matrix) Allows(module Module, action Action) bool {
	return m[module].Allows(action)
}

// FullAccess returns a matrix granting all six actions on every known module.
func FullAccess() Matrix {
	full := make(Matrix, len(knownModules))
	for module := range knownModules {
		full[module] = AllActionsGranted
	}
	return full
}

// Clone returns a deep copy, or nil for a nil matrix.
func (m Matrix) Clone() Matrix {
	if m == nil {
		return nil
	}
	out := make(Matrix, len(m))
	for module, actions := range m {
		out[module] = actions
	}
	return out
}

// UnmarshalJSON decodes a stored permission map, rejecting unknown module keys.
func (m *Matrix) UnmarshalJSON(data []byte) error {
	var raw map[string]Actions
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Matrix, len(raw))
	for name, actions := range raw {
		module, err := ParseModule(name)
		if err != nil {
			return err
		}
		out[module] = actions
	}
	*m = out
	return nil
}
