package usersync

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	syncerrors "github.com/tembleque/usersync/errors"
)

// fakeRemoteStore is an in-memory RemoteStore with controllable
// precondition failures, used to drive performSync's retry loop directly.
type fakeRemoteStore struct {
	mu             sync.Mutex
	ref            string
	data           *SyncData
	versions       map[string][]byte
	failNextWrites int
}

func newFakeRemoteStore() *fakeRemoteStore {
	return &fakeRemoteStore{versions: make(map[string][]byte)}
}

func (s *fakeRemoteStore) ReadResource(ctx context.Context, resource Resource) (RemoteUserData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RemoteUserData{Ref: s.ref, SyncData: s.data}, nil
}

func (s *fakeRemoteStore) WriteResource(ctx context.Context, resource Resource, content []byte, expectedRef string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNextWrites > 0 {
		s.failNextWrites--
		return "", syncerrors.PreconditionFailed(syncerrors.OpApplyPreview, ErrFileModifiedSince)
	}
	if expectedRef != s.ref {
		return "", syncerrors.PreconditionFailed(syncerrors.OpApplyPreview, ErrFileModifiedSince)
	}

	data, err := ParseSyncData(content)
	if err != nil {
		return "", err
	}
	newRef := uuid.NewString()
	s.versions[newRef] = content
	s.ref = newRef
	s.data = &data
	return newRef, nil
}

func (s *fakeRemoteStore) ResolveContent(ctx context.Context, resource Resource, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.versions[ref]
	if !ok {
		return nil, syncerrors.ErrNotFound
	}
	return raw, nil
}

func (s *fakeRemoteStore) GetAllRefs(ctx context.Context, resource Resource) ([]SyncResourceHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	handles := make([]SyncResourceHandle, 0, len(s.versions))
	for ref := range s.versions {
		handles = append(handles, NewRemoteBackupHandle(resource, ref, time.Now()))
	}
	return handles, nil
}

var _ RemoteStore = (*fakeRemoteStore)(nil)

// fakeLocalBackupStore records every backup taken, for asserting write
// discipline (backup-before-write), and resolves each one by its ref.
type fakeLocalBackupStore struct {
	mu      sync.Mutex
	backups [][]byte
	byRef   map[string][]byte
}

func (s *fakeLocalBackupStore) Backup(ctx context.Context, resource Resource, content []byte) (SyncResourceHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backups = append(s.backups, content)
	if s.byRef == nil {
		s.byRef = make(map[string][]byte)
	}
	ref := uuid.NewString()
	s.byRef[ref] = content
	return NewLocalBackupHandle(resource, ref, time.Now()), nil
}

func (s *fakeLocalBackupStore) ResolveContent(ctx context.Context, resource Resource, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.byRef[ref]
	if !ok {
		return nil, syncerrors.ErrNotFound
	}
	return content, nil
}

func (s *fakeLocalBackupStore) GetAllRefs(ctx context.Context, resource Resource) ([]SyncResourceHandle, error) {
	return nil, nil
}

var _ LocalBackupStore = (*fakeLocalBackupStore)(nil)

// fakeLastSyncStore is an in-memory LastSyncStore.
type fakeLastSyncStore struct {
	mu      sync.Mutex
	records map[Resource]LastSyncUserData
	corrupt map[Resource]bool
}

func newFakeLastSyncStore() *fakeLastSyncStore {
	return &fakeLastSyncStore{records: make(map[Resource]LastSyncUserData), corrupt: make(map[Resource]bool)}
}

func (s *fakeLastSyncStore) Read(ctx context.Context, resource Resource) (LastSyncUserData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.corrupt[resource] {
		return LastSyncUserData{}, syncerrors.ErrCorrupt
	}
	data, ok := s.records[resource]
	if !ok {
		return LastSyncUserData{}, syncerrors.ErrNotFound
	}
	return data, nil
}

func (s *fakeLastSyncStore) Write(ctx context.Context, resource Resource, data LastSyncUserData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[resource] = data
	return nil
}

func (s *fakeLastSyncStore) Delete(ctx context.Context, resource Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, resource)
	return nil
}

var _ LastSyncStore = (*fakeLastSyncStore)(nil)

// fakeFileService is an in-memory FileService with stat-style version
// tokens, mirroring filesvc's on-disk snapshot semantics closely enough to
// exercise local precondition failures without touching a real filesystem.
type fakeFileService struct {
	mu        sync.Mutex
	content   map[Resource][]byte
	version   map[Resource]string
	listeners map[Resource][]func()
}

func newFakeFileService() *fakeFileService {
	return &fakeFileService{
		content:   make(map[Resource][]byte),
		version:   make(map[Resource]string),
		listeners: make(map[Resource][]func()),
	}
}

func (f *fakeFileService) ReadFile(ctx context.Context, resource Resource) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.content[resource]
	if !ok {
		return nil, "", ErrFileNotFound
	}
	return content, f.version[resource], nil
}

func (f *fakeFileService) WriteFile(ctx context.Context, resource Resource, content []byte, expectedVersion string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, exists := f.version[resource]
	if exists && current != expectedVersion {
		return "", ErrFileModifiedSince
	}
	if !exists && expectedVersion != "" {
		return "", ErrFileModifiedSince
	}
	newVersion := uuid.NewString()
	f.content[resource] = append([]byte{}, content...)
	f.version[resource] = newVersion
	return newVersion, nil
}

func (f *fakeFileService) Delete(ctx context.Context, resource Resource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.content[resource]; !ok {
		return ErrFileNotFound
	}
	delete(f.content, resource)
	delete(f.version, resource)
	return nil
}

func (f *fakeFileService) OnDidFilesChange(resource Resource, fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[resource] = append(f.listeners[resource], fn)
	idx := len(f.listeners[resource]) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if idx < len(f.listeners[resource]) {
			f.listeners[resource][idx] = nil
		}
	}
}

// externalWrite simulates an edit made outside the engine (e.g. the user
// editing the file directly), invalidating whatever version a strategy
// captured earlier.
func (f *fakeFileService) externalWrite(resource Resource, content []byte) {
	f.mu.Lock()
	f.content[resource] = append([]byte{}, content...)
	f.version[resource] = uuid.NewString()
	f.mu.Unlock()
}

var _ FileService = (*fakeFileService)(nil)

// alwaysEnabled is an EnablementService that never disables anything,
// unless explicitly told to.
type alwaysEnabled struct {
	mu       sync.Mutex
	disabled map[Resource]bool
}

func (a *alwaysEnabled) IsEnabled(resource Resource) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.disabled[resource]
}

func (a *alwaysEnabled) disable(resource Resource) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disabled == nil {
		a.disabled = make(map[Resource]bool)
	}
	a.disabled[resource] = true
}

var _ EnablementService = (*alwaysEnabled)(nil)

type staticMachineID string

func (s staticMachineID) MachineID(ctx context.Context) (string, error) { return string(s), nil }

// fakePreviewExtra carries the merged plain-string content a fakeStrategy
// preview resolves to, between GeneratePreview/UpdatePreviewWithConflict
// and ApplyPreview.
type fakePreviewExtra struct {
	merged string
}

// fakeStrategy implements Strategy with a trivial single-string merge:
// whichever side changed since the ancestor wins, and a conflict is raised
// only when both sides changed the string to different values.
type fakeStrategy struct {
	resource Resource
	version  uint32
}

func newFakeStrategy(resource Resource) *fakeStrategy {
	return &fakeStrategy{resource: resource, version: 1}
}

func (s *fakeStrategy) Resource() Resource { return s.resource }
func (s *fakeStrategy) Version() uint32    { return s.version }

func conflictURI(authority string, resource Resource) *url.URL {
	return &url.URL{Scheme: "user-data-sync", Host: authority, Path: "/" + string(resource) + "/preview"}
}

func (s *fakeStrategy) GeneratePreview(ctx context.Context, handle EngineHandle, remote RemoteUserData, lastSync LastSyncUserData) (SyncPreview, error) {
	local, _, err := handle.GetLocalFileContent(ctx)
	if err != nil {
		if err != ErrFileNotFound {
			return SyncPreview{}, err
		}
		local = nil
	}

	ancestor := ""
	if data, derr := lastSync.SyncDataOrNil(); derr == nil && data != nil {
		ancestor = data.Content
	}
	remoteContent := ""
	if remote.SyncData != nil {
		remoteContent = remote.SyncData.Content
	}
	localContent := string(local)

	localChanged := localContent != ancestor
	remoteChanged := remoteContent != ancestor

	var merged string
	var conflicts []Conflict
	switch {
	case !localChanged && !remoteChanged:
		merged = ancestor
	case localChanged && !remoteChanged:
		merged = localContent
	case !localChanged && remoteChanged:
		merged = remoteContent
	default:
		if localContent == remoteContent {
			merged = localContent
		} else {
			merged = ancestor
			conflicts = []Conflict{{Local: conflictURI("local-backup", s.resource), Remote: conflictURI("remote-backup", s.resource)}}
		}
	}

	return SyncPreview{
		HasLocalChanged:  merged != localContent,
		HasRemoteChanged: merged != remoteContent,
		HasConflicts:     len(conflicts) > 0,
		Conflicts:        conflicts,
		RemoteUserData:   remote,
		LastSyncUserData: lastSync,
		Extra:            &fakePreviewExtra{merged: merged},
	}, nil
}

func (s *fakeStrategy) GeneratePullPreview(ctx context.Context, handle EngineHandle, remote RemoteUserData, lastSync LastSyncUserData) (SyncPreview, error) {
	content := ""
	if remote.SyncData != nil {
		content = remote.SyncData.Content
	}
	return SyncPreview{HasLocalChanged: true, RemoteUserData: remote, LastSyncUserData: lastSync, Extra: &fakePreviewExtra{merged: content}}, nil
}

func (s *fakeStrategy) GeneratePushPreview(ctx context.Context, handle EngineHandle, remote RemoteUserData, lastSync LastSyncUserData) (SyncPreview, error) {
	local, _, err := handle.GetLocalFileContent(ctx)
	if err != nil && err != ErrFileNotFound {
		return SyncPreview{}, err
	}
	return SyncPreview{HasRemoteChanged: true, RemoteUserData: remote, LastSyncUserData: lastSync, Extra: &fakePreviewExtra{merged: string(local)}}, nil
}

func (s *fakeStrategy) GenerateReplacePreview(ctx context.Context, handle EngineHandle, content []byte, remote RemoteUserData, lastSync LastSyncUserData) (SyncPreview, error) {
	return SyncPreview{HasLocalChanged: true, HasRemoteChanged: true, RemoteUserData: remote, LastSyncUserData: lastSync, Extra: &fakePreviewExtra{merged: string(content)}}, nil
}

func (s *fakeStrategy) UpdatePreviewWithConflict(ctx context.Context, handle EngineHandle, preview SyncPreview, conflictResource *url.URL, resolvedContent []byte) (SyncPreview, error) {
	preview.Conflicts = nil
	preview.HasConflicts = false
	preview.HasLocalChanged = true
	preview.HasRemoteChanged = true
	preview.Extra = &fakePreviewExtra{merged: string(resolvedContent)}
	return preview, nil
}

func (s *fakeStrategy) ApplyPreview(ctx context.Context, handle EngineHandle, preview SyncPreview, forceApplyLocal bool) (LastSyncUserData, error) {
	extra := preview.Extra.(*fakePreviewExtra)

	newRef := preview.RemoteUserData.Ref
	if preview.HasRemoteChanged {
		machineID, _ := handle.MachineID(ctx)
		envelope := SyncData{Version: s.version, MachineID: &machineID, Content: extra.merged}
		raw, err := envelope.Serialize()
		if err != nil {
			return LastSyncUserData{}, err
		}
		ref, err := handle.UpdateRemoteUserData(ctx, raw, preview.RemoteUserData.Ref)
		if err != nil {
			return LastSyncUserData{}, err
		}
		newRef = ref
	}

	if preview.HasLocalChanged || forceApplyLocal {
		_, currentVersion, err := handle.GetLocalFileContent(ctx)
		if err != nil && err != ErrFileNotFound {
			return LastSyncUserData{}, err
		}
		if _, err := handle.UpdateLocalFileContent(ctx, []byte(extra.merged), currentVersion); err != nil {
			return LastSyncUserData{}, err
		}
	}

	final := SyncData{Version: s.version, Content: extra.merged}
	raw, err := final.Serialize()
	if err != nil {
		return LastSyncUserData{}, err
	}
	finalStr := string(raw)
	return LastSyncUserData{Ref: newRef, Content: &finalStr}, nil
}

var _ Strategy = (*fakeStrategy)(nil)
