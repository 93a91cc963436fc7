// Package x contains the authentication helpers shared by all extensions.
// Extensions themselves live in subpackages.
package x
