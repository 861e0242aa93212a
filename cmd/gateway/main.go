// Package main implements the gateway process: it loads configuration,
// assembles the plugin registry, the policy engine, the approval and
// idempotency stores, the audit trail, the mediator pipelines, and the
// HTTP edge, then serves.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"clawgate/internal/approval"
	"clawgate/internal/audittrail"
	"clawgate/internal/auth"
	"clawgate/internal/config"
	"clawgate/internal/httpapi"
	"clawgate/internal/idempotency"
	"clawgate/internal/logging"
	"clawgate/internal/manifest"
	"clawgate/internal/mediator"
	"clawgate/internal/plugins/database"
	"clawgate/internal/plugins/gmail"
	"clawgate/internal/plugins/k8s"
	"clawgate/internal/policy"
	"clawgate/internal/registry"
	"clawgate/internal/sidecar"
)

func main() {
	logging.Init(os.Args[1:])

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		slog.Error("failed to build plugin registry", "err", err)
		os.Exit(1)
	}

	pol, err := policy.NewEngine(cfg.PolicyConfig())
	if err != nil {
		slog.Error("failed to build policy engine", "err", err)
		os.Exit(1)
	}

	var audit mediator.AuditRecorder
	if dbPath := os.Getenv("CLAWGATE_AUDIT_DB_PATH"); dbPath != "" {
		store, err := audittrail.Open(dbPath)
		if err != nil {
			slog.Error("failed to open audit trail", "path", dbPath, "err", err)
			os.Exit(1)
		}
		defer store.Close()
		audit = audittrail.NewRecorder(store, 0)
		slog.Info("audit trail enabled", "db", dbPath)
	}

	m := mediator.New(reg, pol, approval.NewStore(), idempotency.NewStore(), audit)
	authSvc := auth.New(cfg.RequireAuth, cfg.AgentTokens)
	mux := httpapi.NewRouter("/v1", cfg.EnableAPIAlias, m, reg, authSvc)

	addr := cfg.APIHost + ":" + cfg.APIPort
	slog.Info("starting clawgate gateway", "addr", addr, "plugins", len(reg.List()), "require_auth", cfg.RequireAuth)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
}

// buildRegistry assembles the registry from the in-process reference
// plugins compiled into the binary plus any sidecar plugins named in
// SIDECAR_PLUGINS_JSON. A sidecar plugin whose manifest can't be fetched
// at startup fails the whole process, the same way a malformed in-process
// manifest would.
func buildRegistry(cfg config.Config) (*registry.Registry, error) {
	var entries []registry.Entry

	gmailManifest, err := gmail.Manifest()
	if err != nil {
		return nil, err
	}
	entries = append(entries, registry.Entry{Manifest: *gmailManifest, Plugin: gmail.New()})

	if cfg.DatabaseURL != "" {
		entry, err := buildDatabaseEntry(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	if cfg.EnableK8sPlugin {
		entry, err := buildK8sEntry(cfg.KubeconfigPath)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	for _, sc := range cfg.SidecarPlugins {
		client := sidecar.NewClient(sc)
		m, err := fetchSidecarManifest(client, sc)
		if err != nil {
			return nil, err
		}
		entries = append(entries, registry.Entry{Manifest: *m, Plugin: client})
	}

	return registry.New(entries)
}

func buildDatabaseEntry(databaseURL string) (*registry.Entry, error) {
	m, err := database.Manifest()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		slog.Error("failed to connect to database plugin's backend", "err", err)
		return nil, err
	}

	return &registry.Entry{Manifest: *m, Plugin: database.New(pool)}, nil
}

func buildK8sEntry(kubeconfigPath string) (*registry.Entry, error) {
	m, err := k8s.Manifest()
	if err != nil {
		return nil, err
	}

	restCfg, err := loadKubeConfig(kubeconfigPath)
	if err != nil {
		slog.Error("failed to load kubeconfig for k8s plugin", "path", kubeconfigPath, "err", err)
		return nil, err
	}
	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, err
	}

	return &registry.Entry{Manifest: *m, Plugin: k8s.New(client)}, nil
}

func loadKubeConfig(path string) (*rest.Config, error) {
	if path != "" {
		return clientcmd.BuildConfigFromFlags("", path)
	}
	return rest.InClusterConfig()
}

func fetchSidecarManifest(client *sidecar.Client, sc sidecar.Config) (*manifest.Manifest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m, err := client.FetchManifest(ctx)
	if err != nil {
		slog.Error("failed to fetch sidecar manifest", "plugin_id", sc.ID, "base_url", sc.BaseURL, "err", err)
		return nil, err
	}
	return m, nil
}
