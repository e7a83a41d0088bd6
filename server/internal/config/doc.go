// Package config loads and validates the etcbridged YAML configuration.
//
// Secrets (API keys, webhook URLs) are never stored in the file itself;
// the file names environment variables and the values are resolved at use.
package config
