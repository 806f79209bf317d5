/*
Package ports defines the driven ports (interfaces) of the HMI query client.

These interfaces decouple the query lifecycle from the concrete goal channel and
grammar engine, so the client can talk to an in-process service, a Redis-backed
service or a test double without changes.

# Key Interfaces

  - Transport: Goal-oriented asynchronous RPC (submit, cancel, wait, state, result, feedback).
  - Dialer: Binds an endpoint name to a Transport once the endpoint is ready.
  - GrammarParser: Verify, parse and sample a grammar.
  - Handler: The server side of a goal, used by the adapters' service implementations.
*/
package ports
