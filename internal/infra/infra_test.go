package infra

import (
	"os"
	"path/filepath"
	"testing"
)

func writeInventory(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoad_ResolvesKnownTargets(t *testing.T) {
	path := writeInventory(t, `{
		"db_servers": {"prod": {"name": "prod", "connection_string": "postgres://prod/db"}},
		"k8s_clusters": {"prod": {"name": "prod", "kubeconfig_path": "/etc/clawgate/prod.kubeconfig"}}
	}`)

	inv, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	url, err := inv.ResolveDatabaseURL("prod")
	if err != nil || url != "postgres://prod/db" {
		t.Fatalf("unexpected database url: %q, err=%v", url, err)
	}

	kubeconfig, err := inv.ResolveKubeconfigPath("prod")
	if err != nil || kubeconfig != "/etc/clawgate/prod.kubeconfig" {
		t.Fatalf("unexpected kubeconfig path: %q, err=%v", kubeconfig, err)
	}
}

func TestResolve_UnknownIDIsAnError(t *testing.T) {
	path := writeInventory(t, `{"db_servers": {}, "k8s_clusters": {}}`)
	inv, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := inv.ResolveDatabaseURL("ghost"); err == nil {
		t.Fatal("expected an error for an unknown database id")
	}
	if _, err := inv.ResolveKubeconfigPath("ghost"); err == nil {
		t.Fatal("expected an error for an unknown cluster id")
	}
}

func TestLoad_MissingFileIsAnError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error for a missing inventory file")
	}
}
