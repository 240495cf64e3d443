package usersync

// Manifest maps a resource to the server's current ref for it, fetched
// once per sync round by the outer orchestrator and passed into
// Engine.Sync so the latest-remote short-circuit (spec.md §4.4) can skip
// a redundant remote fetch. A nil Manifest disables the short-circuit.
type Manifest map[Resource]string
