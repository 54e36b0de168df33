// Package cli defines the gosession command-line tool.
//
// Each invocation loads configuration, opens the token store and restores
// the session before running one command. The memory store would forget the
// session between invocations, so the tool keeps state in a Badger
// directory (--state-dir) unless the configuration names another driver.
package cli
