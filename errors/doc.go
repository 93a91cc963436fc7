/*
Package errors implements custom error interfaces for quorum.

The idea is to reuse as many errors from this package as possible and define
custom package errors when absolutely necessary. Extensions register their own
root errors with Register(code, description); x/multisig is a good package to
take a look at.

Each error instance created during the runtime should wrap one of the root
errors, either with ErrXyz.New/Newf or with Wrap/Wrapf. This allows a client to
recognize the kind of a failure by calling ErrXyz.Is(err) regardless of how
many times the error was wrapped.

A stacktrace is attached at the innermost Wrap. Use %+v to print it.
*/
package errors
