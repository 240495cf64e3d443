package usersync

import (
	"encoding/json"
	"fmt"

	syncerrors "github.com/tembleque/usersync/errors"
)

// SyncData is the versioned envelope wrapped around a strategy's opaque
// content. It is recognized on parse only if it carries exactly the keys
// {version, content} (backward-compatible shape) or
// {version, machineId, content}. Any other shape is a parse failure.
type SyncData struct {
	Version   uint32
	MachineID *string
	Content   string
}

// syncDataKnownKeys enumerates the only key sets ParseSyncData accepts.
var syncDataKnownKeys = map[string]struct{}{
	"version":   {},
	"machineId": {},
	"content":   {},
}

// ParseSyncData decodes raw JSON into a SyncData, enforcing the exact-shape
// rule from spec.md §3. It never partially accepts an envelope: either
// every key is recognized and required keys are present, or it fails.
func ParseSyncData(raw []byte) (SyncData, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return SyncData{}, syncerrors.Incompatible(syncerrors.OpSync, fmt.Errorf("envelope is not a JSON object: %w", err))
	}

	for key := range fields {
		if _, ok := syncDataKnownKeys[key]; !ok {
			return SyncData{}, syncerrors.Incompatible(syncerrors.OpSync, fmt.Errorf("unrecognized envelope key %q", key))
		}
	}

	versionRaw, ok := fields["version"]
	if !ok {
		return SyncData{}, syncerrors.Incompatible(syncerrors.OpSync, fmt.Errorf("envelope missing required key %q", "version"))
	}
	contentRaw, ok := fields["content"]
	if !ok {
		return SyncData{}, syncerrors.Incompatible(syncerrors.OpSync, fmt.Errorf("envelope missing required key %q", "content"))
	}

	var data SyncData
	if err := json.Unmarshal(versionRaw, &data.Version); err != nil {
		return SyncData{}, syncerrors.Incompatible(syncerrors.OpSync, fmt.Errorf("envelope version is not a number: %w", err))
	}
	if err := json.Unmarshal(contentRaw, &data.Content); err != nil {
		return SyncData{}, syncerrors.Incompatible(syncerrors.OpSync, fmt.Errorf("envelope content is not a string: %w", err))
	}
	if machineIDRaw, ok := fields["machineId"]; ok {
		var machineID string
		if err := json.Unmarshal(machineIDRaw, &machineID); err != nil {
			return SyncData{}, syncerrors.Incompatible(syncerrors.OpSync, fmt.Errorf("envelope machineId is not a string: %w", err))
		}
		data.MachineID = &machineID
	}

	return data, nil
}

// Serialize encodes a SyncData back to its recognized JSON shape. Round
// tripping ParseSyncData(Serialize(d)) == d holds for every SyncData built
// through this package (spec.md §8, property 7).
func (d SyncData) Serialize() ([]byte, error) {
	if d.MachineID != nil {
		return json.Marshal(struct {
			Version   uint32 `json:"version"`
			MachineID string `json:"machineId"`
			Content   string `json:"content"`
		}{d.Version, *d.MachineID, d.Content})
	}
	return json.Marshal(struct {
		Version uint32 `json:"version"`
		Content string `json:"content"`
	}{d.Version, d.Content})
}

// RemoteUserData is what the remote store returns for a resource: its
// opaque version ref, and the envelope stored there (nil if the resource
// does not exist remotely).
type RemoteUserData struct {
	Ref      string
	SyncData *SyncData
}

// LastSyncUserData is the locally persisted snapshot of the most recently
// applied sync, used as the common ancestor for the three-way merge. Extras
// carries strategy-specific auxiliary fields the engine passes through
// verbatim, preserving unknown JSON keys across load/save cycles even when
// the engine itself does not understand them (spec.md §9, "forward-compat
// bag").
type LastSyncUserData struct {
	Ref     string
	Content *string // serialized envelope JSON, nil means "remote was absent at last sync"
	Extras  map[string]json.RawMessage
}

// MarshalJSON writes {ref, content, ...extras}, preserving whatever
// unrecognized keys were loaded into Extras.
func (l LastSyncUserData) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(l.Extras)+2)
	for k, v := range l.Extras {
		out[k] = v
	}

	refJSON, err := json.Marshal(l.Ref)
	if err != nil {
		return nil, err
	}
	out["ref"] = refJSON

	if l.Content == nil {
		out["content"] = json.RawMessage("null")
	} else {
		contentJSON, err := json.Marshal(*l.Content)
		if err != nil {
			return nil, err
		}
		out["content"] = contentJSON
	}

	return json.Marshal(out)
}

// UnmarshalJSON reads {ref, content, ...extras}, retaining every key other
// than ref/content in Extras so a future engine version (or a resource's
// own strategy extras) round-trips even when this engine does not
// recognize them.
func (l *LastSyncUserData) UnmarshalJSON(raw []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}

	refRaw, ok := fields["ref"]
	if !ok {
		return fmt.Errorf("last-sync record missing required key %q", "ref")
	}
	if err := json.Unmarshal(refRaw, &l.Ref); err != nil {
		return fmt.Errorf("last-sync record ref is not a string: %w", err)
	}
	delete(fields, "ref")

	if contentRaw, ok := fields["content"]; ok {
		if string(contentRaw) == "null" {
			l.Content = nil
		} else {
			var content string
			if err := json.Unmarshal(contentRaw, &content); err != nil {
				return fmt.Errorf("last-sync record content is not a string: %w", err)
			}
			l.Content = &content
		}
		delete(fields, "content")
	}

	if len(fields) > 0 {
		l.Extras = fields
	}
	return nil
}

// SyncDataOrNil parses the persisted envelope content, if any. A nil result
// with a nil error means "remote was absent at last sync" (spec.md §3).
func (l LastSyncUserData) SyncDataOrNil() (*SyncData, error) {
	if l.Content == nil {
		return nil, nil
	}
	data, err := ParseSyncData([]byte(*l.Content))
	if err != nil {
		return nil, err
	}
	return &data, nil
}
