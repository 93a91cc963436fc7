/*
Package gconf implements a configuration store intended to be used for
package level, in-database configuration.

Each package owns a single configuration entry stored under the "_c:<pkg>"
key. Configuration is validated before it is written.
*/
package gconf
