// Package config loads, normalizes, and validates vmfleet configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VMFLEET_RESOURCE_GROUP. The Config type centralizes every knob the daemon and
// CLI need: daemon file locations, the cloud CLI, SSH probing, hook execution,
// and the per-VM monitoring table.
//
// Source adapts a config file to the lifecycle.ConfigSource contract and
// re-parses the file whenever it changes on disk, so edits reach the running
// daemon on its next pass.
package config
