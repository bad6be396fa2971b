package config

import (
	"reflect"
	"sort"
)

// ConfigDiff describes what changed between two configs. Pipeline tunables
// and the log level can be hot-applied; everything else needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PipelineFields lists the yaml names of changed pipeline tunables,
	// sorted.
	PipelineFields []string

	// RestartRequired lists the top-level sections whose changes only take
	// effect after a restart, sorted.
	RestartRequired []string
}

// PipelineChanged reports whether any pipeline tunable changed.
func (d ConfigDiff) PipelineChanged() bool { return len(d.PipelineFields) > 0 }

// IsEmpty reports whether nothing changed.
func (d ConfigDiff) IsEmpty() bool {
	return !d.LogLevelChanged && len(d.PipelineFields) == 0 && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.PipelineFields = changedFields(old.Pipeline, new.Pipeline)

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	sections := []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"cache", old.Cache, new.Cache},
		{"conversation", old.Conversation, new.Conversation},
		{"providers", old.Providers, new.Providers},
		{"storage", old.Storage, new.Storage},
		{"taxonomy", old.Taxonomy, new.Taxonomy},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	sort.Strings(d.RestartRequired)
	return d
}

// changedFields returns the yaml tags of the fields that differ between two
// values of the same struct type.
func changedFields(old, new any) []string {
	ov, nv := reflect.ValueOf(old), reflect.ValueOf(new)
	t := ov.Type()
	var out []string
	for i := range t.NumField() {
		if reflect.DeepEqual(ov.Field(i).Interface(), nv.Field(i).Interface()) {
			continue
		}
		name := t.Field(i).Tag.Get("yaml")
		if name == "" {
			name = t.Field(i).Name
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
