package usersync

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// HandleAuthority names which backing store a SyncResourceHandle points
// into.
type HandleAuthority string

const (
	AuthorityRemoteBackup HandleAuthority = "remote-backup"
	AuthorityLocalBackup  HandleAuthority = "local-backup"
)

const handleScheme = "user-data-sync"

// SyncResourceHandle names a historical version of a resource in remote or
// local backup storage, spec.md §3/§6.
type SyncResourceHandle struct {
	Created time.Time
	URI     *url.URL
}

// NewHandle builds the handle URI scheme://authority/resource/ref and
// wraps it with the creation timestamp reported by the backing store.
func NewHandle(authority HandleAuthority, resource Resource, ref string, created time.Time) SyncResourceHandle {
	u := &url.URL{
		Scheme: handleScheme,
		Host:   string(authority),
		Path:   path.Join("/", string(resource), ref),
	}
	return SyncResourceHandle{Created: created, URI: u}
}

// NewRemoteBackupHandle is a convenience wrapper around NewHandle for the
// remote-backup authority.
func NewRemoteBackupHandle(resource Resource, ref string, created time.Time) SyncResourceHandle {
	return NewHandle(AuthorityRemoteBackup, resource, ref, created)
}

// NewLocalBackupHandle is a convenience wrapper around NewHandle for the
// local-backup authority.
func NewLocalBackupHandle(resource Resource, ref string, created time.Time) SyncResourceHandle {
	return NewHandle(AuthorityLocalBackup, resource, ref, created)
}

// HandleRef recovers the ref from a handle URI: the final path segment.
func HandleRef(u *url.URL) (string, error) {
	if u == nil {
		return "", fmt.Errorf("nil handle URI")
	}
	trimmed := strings.Trim(u.Path, "/")
	if trimmed == "" {
		return "", fmt.Errorf("handle URI %q has no ref segment", u.String())
	}
	segments := strings.Split(trimmed, "/")
	return segments[len(segments)-1], nil
}

// HandleResource recovers the resource name from a handle URI: everything
// between the leading slash and the final ref segment.
func HandleResource(u *url.URL) (Resource, error) {
	if u == nil {
		return "", fmt.Errorf("nil handle URI")
	}
	trimmed := strings.Trim(u.Path, "/")
	segments := strings.Split(trimmed, "/")
	if len(segments) < 2 {
		return "", fmt.Errorf("handle URI %q has no resource segment", u.String())
	}
	return Resource(strings.Join(segments[:len(segments)-1], "/")), nil
}

// HandleAuthorityOf reports which backing store a handle URI names.
func HandleAuthorityOf(u *url.URL) (HandleAuthority, error) {
	if u == nil {
		return "", fmt.Errorf("nil handle URI")
	}
	switch HandleAuthority(u.Host) {
	case AuthorityRemoteBackup:
		return AuthorityRemoteBackup, nil
	case AuthorityLocalBackup:
		return AuthorityLocalBackup, nil
	default:
		return "", fmt.Errorf("handle URI %q has unknown authority %q", u.String(), u.Host)
	}
}

// IsHandleURI reports whether u uses this package's handle scheme.
func IsHandleURI(u *url.URL) bool {
	return u != nil && u.Scheme == handleScheme
}
