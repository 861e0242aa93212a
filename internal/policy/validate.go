package policy

// ValidateOverrides checks every pattern in cfg for the trailing-wildcard
// rule, rejecting non-trailing or multiple "*" at configuration load time
// as the component design requires. Plugin-scoped patterns are validated
// in their bare (pre-normalization) form, since the prefix the plugin id
// contributes can never itself contain a "*".
func ValidateOverrides(cfg OverridesConfig) error {
	for _, p := range cfg.Global.Allow {
		if err := validatePattern(p); err != nil {
			return err
		}
	}
	for _, p := range cfg.Global.Require {
		if err := validatePattern(p); err != nil {
			return err
		}
	}
	for _, ov := range cfg.Plugins {
		for _, p := range ov.Allow {
			if err := validatePattern(p); err != nil {
				return err
			}
		}
		for _, p := range ov.Require {
			if err := validatePattern(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// normalizedOverrides returns cfg with every plugin-scoped pattern
// rewritten to carry its plugin id prefix.
func normalizedOverrides(cfg OverridesConfig) OverridesConfig {
	out := OverridesConfig{Global: cfg.Global, Plugins: make(map[string]Overrides, len(cfg.Plugins))}
	for pluginID, ov := range cfg.Plugins {
		normalized := Overrides{
			Allow:   make([]string, len(ov.Allow)),
			Require: make([]string, len(ov.Require)),
		}
		for i, p := range ov.Allow {
			normalized.Allow[i] = normalizePluginPattern(pluginID, p)
		}
		for i, p := range ov.Require {
			normalized.Require[i] = normalizePluginPattern(pluginID, p)
		}
		out.Plugins[pluginID] = normalized
	}
	return out
}
