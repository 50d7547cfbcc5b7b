// Package config loads the agentwallet daemon configuration from a YAML file
// and fills in defaults so downstream services receive fully populated,
// typed settings.
package config
