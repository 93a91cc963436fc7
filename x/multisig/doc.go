/*
Package multisig implements a weighted multisignature approval engine.

A registry owner configures a set of weighted signers together with three
threshold levels (low, medium and high). Every action belongs to a class
that maps onto one of those levels. A signer proposes an action, which
immediately counts the proposer weight, and other signers countersign it
until the accumulated weight reaches the required threshold. At that point
the action is executed. Executed and rejected actions are final, and their
ids can be proposed again.

The Engine serializes all mutations and runs every operation inside a store
cache wrap, so a failed call never leaves partial state behind.
Notifications are published only after the state was written.

An Initializer can bootstrap the registry from a genesis file.
*/
package multisig
