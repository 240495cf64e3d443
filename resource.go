// Package usersync implements the per-resource synchronization engine: the
// abstract core that reconciles one kind of user-specific state (settings,
// keybindings, snippets, extensions, ...) between a local store and a
// remote store shared across a user's machines.
//
// The engine itself never touches a network socket or a file directly; it
// is driven by a Strategy (the resource-specific three-way merge) and a
// handful of collaborator interfaces (RemoteStore, LocalBackupStore,
// LastSyncStore, FileService, EnablementService, MachineIDProvider) that
// concrete resources and the surrounding application wire in.
package usersync

// Resource is an opaque tag naming the kind of user state a Engine
// instance synchronizes. It is immutable for the lifetime of an Engine.
type Resource string

const (
	ResourceSettings       Resource = "settings"
	ResourceKeybindings    Resource = "keybindings"
	ResourceSnippets       Resource = "snippets"
	ResourceExtensions     Resource = "extensions"
	ResourceGlobalState    Resource = "globalState"
	ResourceUIState        Resource = "uiState"
	ResourceProfiles       Resource = "profiles"
	ResourceWorkspaceState Resource = "workspaceState"
)

// String implements fmt.Stringer.
func (r Resource) String() string { return string(r) }
