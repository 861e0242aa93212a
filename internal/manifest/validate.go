package manifest

import (
	"fmt"
	"regexp"
)

var snakeCase = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate enforces the manifest-validation rules from the component
// design: snake_case identifiers, non-empty actions, unique (name,
// resource) action keys, non-empty emits_attributes, and unique resource
// names within the plugin.
func Validate(m *Manifest) error {
	if !snakeCase.MatchString(m.ID) {
		return fmt.Errorf("manifest: id %q is not snake_case", m.ID)
	}
	if m.RuntimeMode != RuntimeInProcess && m.RuntimeMode != RuntimeSidecar {
		return fmt.Errorf("manifest %s: runtime_mode %q invalid", m.ID, m.RuntimeMode)
	}

	seenResources := make(map[string]bool, len(m.Resources))
	for _, r := range m.Resources {
		if !snakeCase.MatchString(r.Name) {
			return fmt.Errorf("manifest %s: resource name %q is not snake_case", m.ID, r.Name)
		}
		if seenResources[r.Name] {
			return fmt.Errorf("manifest %s: duplicate resource name %q", m.ID, r.Name)
		}
		seenResources[r.Name] = true
		for _, v := range r.AllowedViews {
			if v != ViewHeaders && v != ViewBody && v != ViewRaw {
				return fmt.Errorf("manifest %s: resource %s: invalid view %q", m.ID, r.Name, v)
			}
		}
	}

	if len(m.Actions) == 0 {
		return fmt.Errorf("manifest %s: actions must be non-empty", m.ID)
	}

	type actionKey struct{ name, resource string }
	seenActions := make(map[actionKey]bool, len(m.Actions))
	for _, a := range m.Actions {
		if !snakeCase.MatchString(a.Name) {
			return fmt.Errorf("manifest %s: action name %q is not snake_case", m.ID, a.Name)
		}
		if a.Resource != "" {
			if !snakeCase.MatchString(a.Resource) {
				return fmt.Errorf("manifest %s: action %s: resource %q is not snake_case", m.ID, a.Name, a.Resource)
			}
			if !seenResources[a.Resource] {
				return fmt.Errorf("manifest %s: action %s: references unknown resource %q", m.ID, a.Name, a.Resource)
			}
		}
		key := actionKey{a.Name, a.Resource}
		if seenActions[key] {
			return fmt.Errorf("manifest %s: duplicate action (name=%s, resource=%s)", m.ID, a.Name, a.Resource)
		}
		seenActions[key] = true

		if len(a.EmitsAttributes) == 0 {
			return fmt.Errorf("manifest %s: action %s: emits_attributes must be non-empty", m.ID, a.Name)
		}
		switch a.RiskTier {
		case RiskReadOnly, RiskRoutine, RiskTransactional, RiskDangerous:
		default:
			return fmt.Errorf("manifest %s: action %s: invalid risk_tier %q", m.ID, a.Name, a.RiskTier)
		}
	}

	return nil
}
