// Package config loads application configuration from environment
// variables, applying defaults and validating directories at startup.
package config
