// Package config assembles the gateway's process configuration directly
// from environment variables, in the teacher's style: a flat struct built by
// one function, fatal on a required-but-missing or malformed value.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"clawgate/internal/auth"
	"clawgate/internal/infra"
	"clawgate/internal/manifest"
	"clawgate/internal/policy"
	"clawgate/internal/sidecar"
)

// Config is the gateway's complete process configuration, loaded once at
// startup from the environment variables in spec §6.
type Config struct {
	APIHost string
	APIPort string

	EnableAPIAlias bool
	EnableRawRead  bool
	RequireAuth    bool

	AgentTokens []auth.TokenRecord

	ApprovalDefaults  map[manifest.RiskTier]bool
	ApprovalOverrides policy.OverridesConfig

	SidecarPlugins []sidecar.Config

	// DatabaseURL, when set, enables the database reference plugin against
	// the pgxpool-compatible connection string.
	DatabaseURL string
	// KubeconfigPath, when set, enables the k8s reference plugin out of
	// that kubeconfig file; an empty value with EnableK8sPlugin still tries
	// in-cluster config.
	KubeconfigPath  string
	EnableK8sPlugin bool
}

// Load reads the environment per spec §6 and returns a validated Config.
// Malformed JSON in any of the *_JSON variables is a load error; a missing
// one simply leaves that field at its zero value.
func Load() (Config, error) {
	cfg := Config{
		APIHost:        getenv("CLAWGATE_API_HOST", "0.0.0.0"),
		APIPort:        getenv("CLAWGATE_API_PORT", "8080"),
		EnableAPIAlias: boolEnv("ENABLE_API_ALIAS"),
		EnableRawRead:  boolEnv("ENABLE_RAW_READ"),
		RequireAuth:    boolEnv("REQUIRE_AUTH"),
	}

	if err := decodeEnvJSON("AGENT_TOKENS_JSON", &cfg.AgentTokens); err != nil {
		return Config{}, err
	}

	approvalDefaults := policy.DefaultApprovalDefaults()
	if raw, ok := os.LookupEnv("ACTION_APPROVAL_DEFAULTS_JSON"); ok && raw != "" {
		var overrides map[manifest.RiskTier]bool
		if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
			return Config{}, fmt.Errorf("parse ACTION_APPROVAL_DEFAULTS_JSON: %w", err)
		}
		for tier, v := range overrides {
			approvalDefaults[tier] = v
		}
	}
	cfg.ApprovalDefaults = approvalDefaults

	if err := decodeEnvJSON("ACTION_APPROVAL_OVERRIDES_JSON", &cfg.ApprovalOverrides); err != nil {
		return Config{}, err
	}

	if err := decodeEnvJSON("SIDECAR_PLUGINS_JSON", &cfg.SidecarPlugins); err != nil {
		return Config{}, err
	}

	cfg.DatabaseURL = os.Getenv("CLAWGATE_DATABASE_URL")
	cfg.KubeconfigPath = os.Getenv("CLAWGATE_KUBECONFIG")

	if invPath := os.Getenv("CLAWGATE_INFRA_INVENTORY"); invPath != "" {
		inv, err := infra.Load(invPath)
		if err != nil {
			return Config{}, err
		}
		if dbID := os.Getenv("CLAWGATE_DATABASE_ID"); dbID != "" {
			url, err := inv.ResolveDatabaseURL(dbID)
			if err != nil {
				return Config{}, err
			}
			cfg.DatabaseURL = url
		}
		if clusterID := os.Getenv("CLAWGATE_K8S_CLUSTER_ID"); clusterID != "" {
			path, err := inv.ResolveKubeconfigPath(clusterID)
			if err != nil {
				return Config{}, err
			}
			cfg.KubeconfigPath = path
		}
	}

	cfg.EnableK8sPlugin = boolEnv("CLAWGATE_ENABLE_K8S_PLUGIN") || cfg.KubeconfigPath != ""

	return cfg, nil
}

// PolicyConfig projects cfg into the policy engine's own Config shape.
func (c Config) PolicyConfig() policy.Config {
	pc := policy.DefaultConfig()
	pc.RawReadEnabled = c.EnableRawRead
	pc.ApprovalDefaults = c.ApprovalDefaults
	pc.Overrides = c.ApprovalOverrides
	return pc
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string) bool {
	v := os.Getenv(key)
	return v == "1" || v == "true" || v == "TRUE"
}

func decodeEnvJSON(key string, out any) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	return nil
}
