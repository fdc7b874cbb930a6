// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// A .env file in the working directory, if present, is loaded into the
// environment first. Every field has a default, so the relay also runs with
// no config file at all.
package config
