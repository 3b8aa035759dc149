// Package config loads the hub configuration from YAML with GOVHUB_ environment
// overrides and watches the file for live reloads.
package config
