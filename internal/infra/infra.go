// Package infra resolves named database and Kubernetes targets out of a
// small JSON inventory file, so an operator can reference "prod-db" or
// "staging-cluster" in the gateway's environment instead of pasting a raw
// connection string or kubeconfig path into it.
package infra

import (
	"encoding/json"
	"fmt"
	"os"
)

// DBServer is one named database target the database reference plugin can
// be pointed at.
type DBServer struct {
	Name             string `json:"name"`
	ConnectionString string `json:"connection_string"`
}

// K8sCluster is one named cluster the k8s reference plugin can be pointed
// at.
type K8sCluster struct {
	Name           string `json:"name"`
	KubeconfigPath string `json:"kubeconfig_path"`
}

// Inventory holds every named infrastructure target the gateway knows
// about.
type Inventory struct {
	DBServers   map[string]DBServer   `json:"db_servers"`
	K8sClusters map[string]K8sCluster `json:"k8s_clusters"`
}

// Load reads an inventory from a JSON file.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("infra: read inventory file: %w", err)
	}

	var inv Inventory
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("infra: parse inventory file: %w", err)
	}
	return &inv, nil
}

// ResolveDatabaseURL looks up id's connection string.
func (inv *Inventory) ResolveDatabaseURL(id string) (string, error) {
	db, ok := inv.DBServers[id]
	if !ok {
		return "", fmt.Errorf("infra: no database server named %q in inventory", id)
	}
	return db.ConnectionString, nil
}

// ResolveKubeconfigPath looks up id's kubeconfig path.
func (inv *Inventory) ResolveKubeconfigPath(id string) (string, error) {
	cluster, ok := inv.K8sClusters[id]
	if !ok {
		return "", fmt.Errorf("infra: no k8s cluster named %q in inventory", id)
	}
	return cluster.KubeconfigPath, nil
}
