package prompts

// Config declares prompt overrides in the application config file.
type Config struct {
	System     string            `toml:"system"`
	Refinement string            `toml:"refinement"`
	Sources    map[string]Source `toml:"sources"`
}

// Merge overlays prompt text and replaces sources that overlay declares.
func (c *Config) Merge(overlay *Config) {
	if overlay.System != "" {
		c.System = overlay.System
	}
	if overlay.Refinement != "" {
		c.Refinement = overlay.Refinement
	}
	if len(overlay.Sources) > 0 && c.Sources == nil {
		c.Sources = make(map[string]Source, len(overlay.Sources))
	}
	for name, src := range overlay.Sources {
		c.Sources[name] = src
	}
}
