package migration_test

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/placement/migration"
	"github.com/jrife/placement/transport"
	"github.com/jrife/placement/utils/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type identities map[string]string

func (ids identities) Identity(endpoint string) (string, bool) {
	id, ok := ids[endpoint]

	return id, ok
}

type transferCall struct {
	Leader   string
	Identity string
}

type fakeController struct {
	calls []transferCall
	err   error
}

func (controller *fakeController) TransferLeadership(ctx context.Context, leaderEndpoint string, targetIdentity string) error {
	controller.calls = append(controller.calls, transferCall{Leader: leaderEndpoint, Identity: targetIdentity})

	return controller.err
}

type fakeCopier struct {
	hosts []string
	err   error
}

func (copier *fakeCopier) CopyFile(ctx context.Context, localPath string, host string, remotePath string) error {
	copier.hosts = append(copier.hosts, host)

	return copier.err
}

var members = identities{
	"10.0.0.1:2379": "a1",
	"10.0.0.2:2379": "b2",
}

func snapshot(t *testing.T) (string, func()) {
	dir, err := ioutil.TempDir("", "migration")

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	path := filepath.Join(dir, "history.csv")

	if err := ioutil.WriteFile(path, []byte("timestamp\n"), 0644); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	return path, func() { os.RemoveAll(dir) }
}

func TestMigrate(t *testing.T) {
	path, cleanup := snapshot(t)
	defer cleanup()

	controller := &fakeController{}
	copier := &fakeCopier{}
	executor := migration.New(migration.Config{
		Identities:   members,
		Copier:       copier,
		Controller:   controller,
		SnapshotPath: path,
	})

	result, err := executor.Migrate(context.Background(), "10.0.0.1", "10.0.0.2")

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if !result.Copied || !result.Transferred {
		t.Fatalf("unexpected result %#v", result)
	}

	if diff := cmp.Diff([]string{"10.0.0.2"}, copier.hosts); diff != "" {
		t.Fatal(diff)
	}

	if diff := cmp.Diff([]transferCall{{Leader: "10.0.0.1:2379", Identity: "b2"}}, controller.calls); diff != "" {
		t.Fatal(diff)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected the local snapshot to be removed, got %#v", err)
	}
}

func TestMigrateLogsTick(t *testing.T) {
	path, cleanup := snapshot(t)
	defer cleanup()

	core, logs := observer.New(zap.InfoLevel)
	executor := migration.New(migration.Config{
		Logger:       zap.New(core),
		Identities:   members,
		Copier:       &fakeCopier{},
		Controller:   &fakeController{},
		SnapshotPath: path,
	})

	if _, err := executor.Migrate(log.WithTick(context.Background(), 4), "10.0.0.1", "10.0.0.2"); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	entries := logs.FilterMessage("migration complete").All()

	if len(entries) != 1 {
		t.Fatalf("expected 1 completion entry, got %d", len(entries))
	}

	if tick := entries[0].ContextMap()["tick"]; tick != int64(4) {
		t.Fatalf("expected tick 4 on the entry, got %#v", tick)
	}
}

func TestMigrateUnresolvedTarget(t *testing.T) {
	controller := &fakeController{}
	copier := &fakeCopier{}
	executor := migration.New(migration.Config{Identities: members, Copier: copier, Controller: controller})

	if _, err := executor.Migrate(context.Background(), "10.0.0.1", "10.0.0.9"); !errors.Is(err, migration.ErrUnresolvedTarget) {
		t.Fatalf("expected ErrUnresolvedTarget, got %#v", err)
	}

	if len(controller.calls) != 0 || len(copier.hosts) != 0 {
		t.Fatalf("expected no collaborator calls, got %#v %#v", controller.calls, copier.hosts)
	}
}

func TestMigrateTransportFailure(t *testing.T) {
	path, cleanup := snapshot(t)
	defer cleanup()

	controller := &fakeController{}
	executor := migration.New(migration.Config{
		Identities:   members,
		Copier:       &fakeCopier{err: errors.New("connection refused")},
		Controller:   controller,
		SnapshotPath: path,
	})

	result, err := executor.Migrate(context.Background(), "10.0.0.1", "10.0.0.2")

	if !errors.Is(err, migration.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %#v", err)
	}

	if result.Copied || len(controller.calls) != 0 {
		t.Fatalf("expected no transfer after a failed copy, got %#v", controller.calls)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected the snapshot to be kept, got %#v", err)
	}
}

func TestMigrateControlFailure(t *testing.T) {
	path, cleanup := snapshot(t)
	defer cleanup()

	executor := migration.New(migration.Config{
		Identities:   members,
		Copier:       &fakeCopier{},
		Controller:   &fakeController{err: errors.New("not leader")},
		SnapshotPath: path,
	})

	result, err := executor.Migrate(context.Background(), "10.0.0.1", "10.0.0.2")

	if !errors.Is(err, migration.ErrControlCommand) {
		t.Fatalf("expected ErrControlCommand, got %#v", err)
	}

	if !result.Copied || result.Transferred {
		t.Fatalf("unexpected result %#v", result)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected the snapshot to be kept, got %#v", err)
	}
}

func TestMigrateLocalCopier(t *testing.T) {
	path, cleanup := snapshot(t)
	defer cleanup()

	root := filepath.Join(filepath.Dir(path), "hosts")
	executor := migration.New(migration.Config{
		Identities:         members,
		Copier:             &transport.Local{Root: root},
		Controller:         &fakeController{},
		SnapshotPath:       path,
		RemoteSnapshotPath: "/var/lib/placer/history.csv",
	})

	if _, err := executor.Migrate(context.Background(), "10.0.0.1", "10.0.0.2"); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "10.0.0.2", "var", "lib", "placer", "history.csv")); err != nil {
		t.Fatalf("expected the snapshot on the target, got %#v", err)
	}
}

func TestEndpoint(t *testing.T) {
	executor := migration.New(migration.Config{ClientPort: 12379})

	if endpoint := executor.Endpoint("fd00::1"); endpoint != "[fd00::1]:12379" {
		t.Fatalf("expected [fd00::1]:12379, got %s", endpoint)
	}
}
