// Package auth implements the credential and token lifecycle: durable
// storage of basic credentials and OAuth material over the selected
// secret backend, the provider's OAuth 2.0 grant flows with PKCE, and
// the loopback callback receiver used during interactive login.
package auth
