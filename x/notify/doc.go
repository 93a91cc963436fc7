/*
Package notify provides quorum.Notifier implementations.

Recorder keeps all events in memory, Logger writes them to a tendermint
logger, Metrics counts them with prometheus and Multi fans a single event
out to many sinks. None of them blocks or fails the caller.
*/
package notify
