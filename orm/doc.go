/*
Package orm provides an easy to use db wrapper

Break state space into prefixed sections called Buckets.
* Each bucket contains only one type of object.
* Objects are serialized using go-amino binary encoding.
* Easy queries for one and iteration over all.

Sequences provide monotonic counters stored next to the data they describe.
*/
package orm
