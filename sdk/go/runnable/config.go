package runnable

import "maps"

// Config carries the options recognized by every Runnable.
// Treat it as immutable: Merge and Patch always return a fresh value.
type Config struct {
	Tags         []string
	Metadata     map[string]any
	Configurable map[string]any
	Callbacks    *CallbackManager

	// RunName and RunID apply to the next run only.
	RunName string
	RunID   string

	// Interpreted by the graph engine, carried through untouched here.
	RecursionLimit int
	MaxConcurrency int
}

// Clone returns a deep-enough copy: slices and maps are not shared.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	out := *c
	out.Tags = cloneTags(c.Tags)
	out.Metadata = maps.Clone(c.Metadata)
	out.Configurable = maps.Clone(c.Configurable)
	return &out
}

// Merge combines base with override. Fields set on override win; map fields
// are merged per key with override keys winning. Either argument may be nil.
func Merge(base, override *Config) *Config {
	out := base.Clone()
	if override == nil {
		return out
	}
	if override.Tags != nil {
		out.Tags = cloneTags(override.Tags)
	}
	out.Metadata = mergeMap(out.Metadata, override.Metadata)
	out.Configurable = mergeMap(out.Configurable, override.Configurable)
	if override.Callbacks != nil {
		out.Callbacks = override.Callbacks
	}
	if override.RunName != "" {
		out.RunName = override.RunName
	}
	if override.RunID != "" {
		out.RunID = override.RunID
	}
	if override.RecursionLimit != 0 {
		out.RecursionLimit = override.RecursionLimit
	}
	if override.MaxConcurrency != 0 {
		out.MaxConcurrency = override.MaxConcurrency
	}
	return out
}

// Patch derives a configuration from cfg with the set fields of p applied.
// Replacing the callbacks starts a new run lineage, so a RunName or RunID
// inherited from cfg is dropped unless p sets its own.
func Patch(cfg *Config, p Config) *Config {
	out := Merge(cfg, &p)
	if p.Callbacks != nil {
		if p.RunName == "" {
			out.RunName = ""
		}
		if p.RunID == "" {
			out.RunID = ""
		}
	}
	return out
}

func cloneTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	return append(make([]string, 0, len(tags)), tags...)
}

func mergeMap(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	maps.Copy(dst, src)
	return dst
}
