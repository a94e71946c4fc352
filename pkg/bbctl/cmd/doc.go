// Package cmd wires the bbctl command tree. Commands pull shared
// runtime state (config, secret backend, API client) from the root
// command's context and write human output to the configured writer.
package cmd
