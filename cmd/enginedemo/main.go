// Command enginedemo wires a settings-resource engine end to end: an HTTP
// remote store backed by the package's own reference server, a SQLite
// local backup store, an on-disk file service with a debounced local-change
// coalescer, an on-disk last-sync store, and a JSON three-way-merge
// strategy. It runs one sync and prints the resulting status, grounded on
// the teacher's cmd/logging-demo.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tembleque/usersync"
	"github.com/tembleque/usersync/backupstore"
	"github.com/tembleque/usersync/coalescer"
	"github.com/tembleque/usersync/enablement"
	"github.com/tembleque/usersync/engineconfig"
	"github.com/tembleque/usersync/filesvc"
	"github.com/tembleque/usersync/history"
	"github.com/tembleque/usersync/jsonmerge"
	"github.com/tembleque/usersync/laststore"
	"github.com/tembleque/usersync/logging"
	"github.com/tembleque/usersync/machineid"
	"github.com/tembleque/usersync/remotestore"
)

func main() {
	logging.Init(logging.Config{Level: "info", Format: "text", Environment: "dev"})
	logger := logging.Default().WithComponent("enginedemo")
	ctx := context.Background()

	home, err := os.MkdirTemp("", "enginedemo-home-*")
	if err != nil {
		logger.Error("create home dir", "error", err)
		os.Exit(1)
	}
	defer os.RemoveAll(home)

	settings := loadSettings()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		logger.Error("listen for reference server", "error", err)
		os.Exit(1)
	}
	server := remotestore.NewServer()
	httpServer := &http.Server{Handler: server}
	go httpServer.Serve(listener)
	defer httpServer.Close()

	remoteClient := remotestore.New(fmt.Sprintf("http://%s", listener.Addr()))

	backups, err := backupstore.New(backupstore.DefaultConfig(filepath.Join(home, "backups.db")))
	if err != nil {
		logger.Error("open backup store", "error", err)
		os.Exit(1)
	}
	defer backups.Close()

	files, err := filesvc.NewService(filepath.Join(home, "files"))
	if err != nil {
		logger.Error("start file service", "error", err)
		os.Exit(1)
	}
	defer files.Close()

	lastSync := laststore.NewStore(filepath.Join(home, "lastsync"))
	enable := enablement.NewService()
	machine := machineid.NewProvider(filepath.Join(home, "machine-id"))
	recorder := history.NewInMemoryRecorder(100)

	strategy := jsonmerge.New(usersync.ResourceSettings, 1)

	engine, err := usersync.NewEngine(
		usersync.ResourceSettings,
		strategy,
		remoteClient,
		backups,
		lastSync,
		enable,
		machine,
		usersync.WithFileService(files),
		usersync.WithHistoryRecorder(recorder),
		usersync.WithRetryCap(settings.RetrySafetyCap),
		usersync.WithBackoff(usersync.BackoffConfig{
			Base:   settings.BackoffBase,
			Max:    settings.BackoffMax,
			Jitter: settings.BackoffJitter,
		}),
	)
	if err != nil {
		logger.Error("build engine", "error", err)
		os.Exit(1)
	}

	engine.OnStatusChange(func(status usersync.Status) {
		logger.Info("status changed", slog.String("status", string(status)))
	})
	engine.OnConflictsChange(func(conflicts []usersync.Conflict) {
		logger.Info("conflicts changed", slog.Int("count", len(conflicts)))
	})

	watcher := coalescer.New(usersync.ResourceSettings, files, engine, settings.DebounceDelay, func(err error) {
		logger.Warn("local-change trigger failed", "error", err)
	})
	watcher.Start()
	defer watcher.Stop()

	seedContent := []byte(`{"editor.fontSize": 14, "editor.tabSize": 2}`)
	if _, err := files.WriteFile(ctx, usersync.ResourceSettings, seedContent, ""); err != nil {
		logger.Error("seed local settings", "error", err)
		os.Exit(1)
	}

	if err := engine.Sync(ctx, nil, nil); err != nil {
		logger.Error("sync failed", "error", err)
		os.Exit(1)
	}
	logger.Info("sync complete", slog.String("status", string(engine.Status())))

	time.Sleep(2 * settings.DebounceDelay)
}

func loadSettings() *engineconfig.Settings {
	if path := os.Getenv("ENGINEDEMO_CONFIG"); path != "" {
		loader := engineconfig.NewLoader(engineconfig.WithValidator(engineconfig.BasicValidator{}))
		if err := loader.LoadFromFile(path); err == nil {
			return loader.Current()
		}
	}
	return engineconfig.DefaultSettings()
}
