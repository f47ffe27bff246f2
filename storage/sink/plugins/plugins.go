package plugins

import (
	"github.com/jrife/placement/storage/sink"
	"github.com/jrife/placement/storage/sink/plugins/bbolt"
	"github.com/jrife/placement/storage/sink/plugins/csv"
)

var plugins []sink.Plugin

func init() {
	plugins = append(plugins, csv.Plugins()...)
	plugins = append(plugins, bbolt.Plugins()...)
}

// Plugin returns the plugin whose name matches the given name.
// It returns nil if no such plugin is found.
func Plugin(name string) sink.Plugin {
	for _, plugin := range plugins {
		if plugin.Name() == name {
			return plugin
		}
	}

	return nil
}

// Plugins lists all the plugins that are available
func Plugins() []sink.Plugin {
	return plugins
}
