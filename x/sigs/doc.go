/*
Package sigs provides basic authentication for requests signed with ed25519
keys. Every verified signature adds its public key condition to the context,
so that any x.Authenticator consumer can check who signed. Per key sequence
numbers are kept in the store for replay protection.
*/
package sigs
