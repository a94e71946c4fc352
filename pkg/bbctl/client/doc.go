// Package client resolves which credential to present to the API and
// executes authenticated HTTP requests with failure classification and
// bounded retries for idempotent methods.
package client
