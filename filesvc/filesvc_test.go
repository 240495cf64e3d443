package filesvc

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/tembleque/usersync"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(t.TempDir())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestReadFileNotFound(t *testing.T) {
	svc := newTestService(t)
	_, _, err := svc.ReadFile(context.Background(), usersync.ResourceSettings)
	if err != usersync.ErrFileNotFound {
		t.Fatalf("err = %v, want ErrFileNotFound", err)
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	version, err := svc.WriteFile(ctx, usersync.ResourceSettings, []byte("hello"), "")
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if version == "" {
		t.Fatalf("expected a non-empty version stamp")
	}

	content, readVersion, err := svc.ReadFile(ctx, usersync.ResourceSettings)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "hello" {
		t.Fatalf("content = %q, want hello", content)
	}
	if readVersion != version {
		t.Fatalf("read version %q != write version %q", readVersion, version)
	}
}

func TestWriteFileRejectsCreateWhenAlreadyExists(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.WriteFile(ctx, usersync.ResourceSettings, []byte("first"), ""); err != nil {
		t.Fatalf("first WriteFile: %v", err)
	}
	if _, err := svc.WriteFile(ctx, usersync.ResourceSettings, []byte("second"), ""); err != usersync.ErrFileModifiedSince {
		t.Fatalf("err = %v, want ErrFileModifiedSince", err)
	}
}

func TestWriteFileRejectsStaleVersion(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	version, err := svc.WriteFile(ctx, usersync.ResourceSettings, []byte("v1"), "")
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := svc.WriteFile(ctx, usersync.ResourceSettings, []byte("v2"), "stale-"+version); err != usersync.ErrFileModifiedSince {
		t.Fatalf("err = %v, want ErrFileModifiedSince", err)
	}
}

func TestDeleteRemovesFile(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.WriteFile(ctx, usersync.ResourceSettings, []byte("gone soon"), ""); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := svc.Delete(ctx, usersync.ResourceSettings); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := svc.ReadFile(ctx, usersync.ResourceSettings); err != usersync.ErrFileNotFound {
		t.Fatalf("err after Delete = %v, want ErrFileNotFound", err)
	}
}

func TestDeleteMissingFileReturnsNotFound(t *testing.T) {
	svc := newTestService(t)
	if err := svc.Delete(context.Background(), usersync.ResourceSettings); err != usersync.ErrFileNotFound {
		t.Fatalf("err = %v, want ErrFileNotFound", err)
	}
}

func TestOnDidFilesChangeFiresOnExternalWrite(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.WriteFile(ctx, usersync.ResourceSettings, []byte("initial"), ""); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	changed := make(chan struct{}, 1)
	unsubscribe := svc.OnDidFilesChange(usersync.ResourceSettings, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	path := svc.resourcePath(usersync.ResourceSettings)
	if err := os.WriteFile(path, []byte("external edit"), 0o644); err != nil {
		t.Fatalf("simulate external edit: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a file-change notification")
	}
}
