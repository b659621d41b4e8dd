// Package config loads federation broker configuration from an optional YAML
// file and environment variables. Environment variables take precedence over
// the file so deployments can override individual settings.
package config
