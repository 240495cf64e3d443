// Package jsonmerge implements usersync.Strategy for resources whose
// content is a flat JSON object, merged key by key. It is grounded on the
// teacher's dynamic conflict-resolution rules (additive merge for
// non-overlapping changes, a conflict when both sides touch the same key
// differently) applied per top-level key instead of per event field.
package jsonmerge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/tembleque/usersync"
)

// Strategy merges JSON-object resources: settings.json, keybindings.json,
// and similar flat key/value documents.
type Strategy struct {
	resource usersync.Resource
	version  uint32
}

// New builds a Strategy for resource, stamping version into every envelope
// it writes.
func New(resource usersync.Resource, version uint32) *Strategy {
	return &Strategy{resource: resource, version: version}
}

// Resource implements usersync.Strategy.
func (s *Strategy) Resource() usersync.Resource { return s.resource }

// Version implements usersync.Strategy.
func (s *Strategy) Version() uint32 { return s.version }

// mergeState is carried in SyncPreview.Extra between GeneratePreview,
// UpdatePreviewWithConflict, and ApplyPreview.
type mergeState struct {
	merged        map[string]json.RawMessage
	conflicts     map[string]struct{}
	localSnapshot []byte
	localVersion  string
}

// GeneratePreview implements usersync.Strategy.
func (s *Strategy) GeneratePreview(ctx context.Context, handle usersync.EngineHandle, remote usersync.RemoteUserData, lastSync usersync.LastSyncUserData) (usersync.SyncPreview, error) {
	localRaw, localVersion, err := handle.GetLocalFileContent(ctx)
	if err != nil {
		if !errors.Is(err, usersync.ErrFileNotFound) {
			return usersync.SyncPreview{}, err
		}
		localRaw, localVersion = []byte("{}"), ""
	}
	localObj, err := decodeObject(localRaw)
	if err != nil {
		return usersync.SyncPreview{}, fmt.Errorf("local content is not a JSON object: %w", err)
	}

	ancestorObj, err := ancestorObject(lastSync)
	if err != nil {
		return usersync.SyncPreview{}, err
	}
	remoteObj, err := remoteObject(remote)
	if err != nil {
		return usersync.SyncPreview{}, err
	}

	merged, conflictKeys := threeWayMerge(ancestorObj, localObj, remoteObj)

	state := &mergeState{
		merged:        merged,
		conflicts:     toSet(conflictKeys),
		localSnapshot: localRaw,
		localVersion:  localVersion,
	}

	preview := usersync.SyncPreview{
		HasLocalChanged:  !objectsEqual(localObj, merged),
		HasRemoteChanged: !objectsEqual(remoteObj, merged),
		HasConflicts:     len(conflictKeys) > 0,
		Conflicts:        s.buildConflicts(conflictKeys),
		RemoteUserData:   remote,
		LastSyncUserData: lastSync,
		Extra:            state,
	}
	return preview, nil
}

// GeneratePullPreview implements usersync.Strategy: remote wins outright.
func (s *Strategy) GeneratePullPreview(ctx context.Context, handle usersync.EngineHandle, remote usersync.RemoteUserData, lastSync usersync.LastSyncUserData) (usersync.SyncPreview, error) {
	localRaw, localVersion, err := handle.GetLocalFileContent(ctx)
	if err != nil {
		if !errors.Is(err, usersync.ErrFileNotFound) {
			return usersync.SyncPreview{}, err
		}
		localRaw, localVersion = []byte("{}"), ""
	}
	remoteObj, err := remoteObject(remote)
	if err != nil {
		return usersync.SyncPreview{}, err
	}

	state := &mergeState{merged: remoteObj, localSnapshot: localRaw, localVersion: localVersion}
	return usersync.SyncPreview{
		HasLocalChanged:  true,
		HasRemoteChanged: false,
		RemoteUserData:   remote,
		LastSyncUserData: lastSync,
		Extra:            state,
	}, nil
}

// GeneratePushPreview implements usersync.Strategy: local wins outright.
func (s *Strategy) GeneratePushPreview(ctx context.Context, handle usersync.EngineHandle, remote usersync.RemoteUserData, lastSync usersync.LastSyncUserData) (usersync.SyncPreview, error) {
	localRaw, localVersion, err := handle.GetLocalFileContent(ctx)
	if err != nil {
		if !errors.Is(err, usersync.ErrFileNotFound) {
			return usersync.SyncPreview{}, err
		}
		localRaw, localVersion = []byte("{}"), ""
	}
	localObj, err := decodeObject(localRaw)
	if err != nil {
		return usersync.SyncPreview{}, fmt.Errorf("local content is not a JSON object: %w", err)
	}

	state := &mergeState{merged: localObj, localSnapshot: localRaw, localVersion: localVersion}
	return usersync.SyncPreview{
		HasLocalChanged:  false,
		HasRemoteChanged: true,
		RemoteUserData:   remote,
		LastSyncUserData: lastSync,
		Extra:            state,
	}, nil
}

// GenerateReplacePreview implements usersync.Strategy: content wins over
// both local and remote.
func (s *Strategy) GenerateReplacePreview(ctx context.Context, handle usersync.EngineHandle, content []byte, remote usersync.RemoteUserData, lastSync usersync.LastSyncUserData) (usersync.SyncPreview, error) {
	merged, err := decodeObject(content)
	if err != nil {
		return usersync.SyncPreview{}, fmt.Errorf("replacement content is not a JSON object: %w", err)
	}

	localRaw, localVersion, err := handle.GetLocalFileContent(ctx)
	if err != nil {
		if !errors.Is(err, usersync.ErrFileNotFound) {
			return usersync.SyncPreview{}, err
		}
		localRaw, localVersion = []byte("{}"), ""
	}

	state := &mergeState{merged: merged, localSnapshot: localRaw, localVersion: localVersion}
	return usersync.SyncPreview{
		HasLocalChanged:  true,
		HasRemoteChanged: true,
		RemoteUserData:   remote,
		LastSyncUserData: lastSync,
		Extra:            state,
	}, nil
}

// UpdatePreviewWithConflict implements usersync.Strategy: the fragment of
// conflictResource names the key being resolved.
func (s *Strategy) UpdatePreviewWithConflict(ctx context.Context, handle usersync.EngineHandle, preview usersync.SyncPreview, conflictResource *url.URL, resolvedContent []byte) (usersync.SyncPreview, error) {
	state, ok := preview.Extra.(*mergeState)
	if !ok {
		return usersync.SyncPreview{}, fmt.Errorf("jsonmerge: preview has no merge state")
	}
	key := conflictResource.Fragment
	if key == "" {
		return usersync.SyncPreview{}, fmt.Errorf("jsonmerge: conflict URI %q names no key", conflictResource)
	}
	if !json.Valid(resolvedContent) {
		return usersync.SyncPreview{}, fmt.Errorf("jsonmerge: resolved content for key %q is not valid JSON", key)
	}

	state.merged[key] = append(json.RawMessage{}, resolvedContent...)
	delete(state.conflicts, key)

	remaining := make([]string, 0, len(state.conflicts))
	for k := range state.conflicts {
		remaining = append(remaining, k)
	}

	preview.Conflicts = s.buildConflicts(remaining)
	preview.HasConflicts = len(remaining) > 0
	preview.HasLocalChanged = true
	preview.HasRemoteChanged = true
	preview.Extra = state
	return preview, nil
}

// ApplyPreview implements usersync.Strategy.
func (s *Strategy) ApplyPreview(ctx context.Context, handle usersync.EngineHandle, preview usersync.SyncPreview, forceApplyLocal bool) (usersync.LastSyncUserData, error) {
	state, ok := preview.Extra.(*mergeState)
	if !ok {
		return usersync.LastSyncUserData{}, fmt.Errorf("jsonmerge: preview has no merge state")
	}

	mergedBytes, err := json.Marshal(state.merged)
	if err != nil {
		return usersync.LastSyncUserData{}, fmt.Errorf("marshal merged content: %w", err)
	}

	newRef := preview.RemoteUserData.Ref
	if preview.HasRemoteChanged {
		machineID, err := handle.MachineID(ctx)
		if err != nil {
			return usersync.LastSyncUserData{}, err
		}
		envelope := usersync.SyncData{Version: s.version, MachineID: &machineID, Content: string(mergedBytes)}
		raw, err := envelope.Serialize()
		if err != nil {
			return usersync.LastSyncUserData{}, err
		}
		newRef, err = handle.UpdateRemoteUserData(ctx, raw, preview.RemoteUserData.Ref)
		if err != nil {
			return usersync.LastSyncUserData{}, err
		}
	}

	if preview.HasLocalChanged || forceApplyLocal {
		backup, err := usersync.SyncData{Version: s.version, Content: string(state.localSnapshot)}.Serialize()
		if err != nil {
			return usersync.LastSyncUserData{}, err
		}
		if _, err := handle.BackupLocal(ctx, backup); err != nil {
			return usersync.LastSyncUserData{}, err
		}
		if _, err := handle.UpdateLocalFileContent(ctx, mergedBytes, state.localVersion); err != nil {
			return usersync.LastSyncUserData{}, err
		}
	}

	finalEnvelope := usersync.SyncData{Version: s.version, Content: string(mergedBytes)}
	finalRaw, err := finalEnvelope.Serialize()
	if err != nil {
		return usersync.LastSyncUserData{}, err
	}
	finalStr := string(finalRaw)
	return usersync.LastSyncUserData{Ref: newRef, Content: &finalStr}, nil
}

func (s *Strategy) buildConflicts(keys []string) []usersync.Conflict {
	if len(keys) == 0 {
		return nil
	}
	conflicts := make([]usersync.Conflict, 0, len(keys))
	for _, key := range keys {
		conflicts = append(conflicts, usersync.Conflict{
			Local:  conflictURI("local-backup", s.resource, key),
			Remote: conflictURI("remote-backup", s.resource, key),
		})
	}
	return conflicts
}

func conflictURI(authority string, resource usersync.Resource, key string) *url.URL {
	return &url.URL{Scheme: "user-data-sync", Host: authority, Path: "/" + string(resource) + "/preview", Fragment: key}
}

func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = map[string]json.RawMessage{}
	}
	return obj, nil
}

func ancestorObject(lastSync usersync.LastSyncUserData) (map[string]json.RawMessage, error) {
	data, err := lastSync.SyncDataOrNil()
	if err != nil || data == nil {
		return map[string]json.RawMessage{}, nil
	}
	return decodeObject([]byte(data.Content))
}

func remoteObject(remote usersync.RemoteUserData) (map[string]json.RawMessage, error) {
	if remote.SyncData == nil {
		return map[string]json.RawMessage{}, nil
	}
	return decodeObject([]byte(remote.SyncData.Content))
}

// threeWayMerge merges local and remote against their common ancestor,
// applying whichever side actually changed a key and flagging a conflict
// when both sides changed the same key to different values.
func threeWayMerge(ancestor, local, remote map[string]json.RawMessage) (map[string]json.RawMessage, []string) {
	keys := make(map[string]struct{})
	for k := range ancestor {
		keys[k] = struct{}{}
	}
	for k := range local {
		keys[k] = struct{}{}
	}
	for k := range remote {
		keys[k] = struct{}{}
	}

	merged := make(map[string]json.RawMessage, len(keys))
	var conflicts []string

	for key := range keys {
		a, aok := ancestor[key]
		l, lok := local[key]
		r, rok := remote[key]

		localChanged := !rawEqual(a, aok, l, lok)
		remoteChanged := !rawEqual(a, aok, r, rok)

		switch {
		case !localChanged && !remoteChanged:
			if aok {
				merged[key] = a
			}
		case localChanged && !remoteChanged:
			if lok {
				merged[key] = l
			}
		case !localChanged && remoteChanged:
			if rok {
				merged[key] = r
			}
		default:
			if lok && rok && bytes.Equal(bytes.TrimSpace(l), bytes.TrimSpace(r)) {
				merged[key] = l
				continue
			}
			conflicts = append(conflicts, key)
			if aok {
				merged[key] = a
			} else if lok {
				merged[key] = l
			}
		}
	}
	return merged, conflicts
}

func rawEqual(a json.RawMessage, aok bool, b json.RawMessage, bok bool) bool {
	if aok != bok {
		return false
	}
	if !aok {
		return true
	}
	return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
}

func objectsEqual(a, b map[string]json.RawMessage) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		other, ok := b[k]
		if !ok || !bytes.Equal(bytes.TrimSpace(v), bytes.TrimSpace(other)) {
			return false
		}
	}
	return true
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

var _ usersync.Strategy = (*Strategy)(nil)
