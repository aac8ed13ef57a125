// Package config loads the reconciler's YAML configuration.
//
// ${VAR} references are expanded from the environment before parsing, so
// secrets such as the database password stay out of the file.
package config
