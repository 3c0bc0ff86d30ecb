// Package config loads digito settings from YAML files, DIGITO_* environment
// variables, an optional .env file and command-line flags.
package config
