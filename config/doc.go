// Package config loads program configuration for the gosession binaries from
// a YAML file and GOSESSION_ environment variables, and turns it into a
// goSession.Config, a logger and a storage backend.
//
// Priority, highest first: environment, file, defaults. Environment names
// map to keys by dropping the prefix, lowercasing and turning "_" into ".":
// GOSESSION_REFRESH_INTERVAL sets refresh.interval.
package config
