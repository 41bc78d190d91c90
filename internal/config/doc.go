// Package config handles loading and validation of the service
// configuration from a YAML file. Each section validates itself so
// misconfiguration is reported with the failing field named.
package config
