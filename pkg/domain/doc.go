/*
Package domain contains the core data model of the HMI query client.

It defines the entities exchanged between the client, the transport and the
remote interpretation service. This package is kept pure and free of I/O so that
every adapter (memory, Redis, HTTP, MCP) shares the same vocabulary.

# Key Entities

  - Query: A natural-language interpretation request (description, grammar, target, timeout).
  - GoalStatus: The transport-level lifecycle of a submitted Query.
  - Feedback: A liveness pulse emitted by the service while a goal is active.
  - ResultRecord: The wire representation of a result (talker id, sentence, JSON semantics).
  - HMIResult: The decoded domain result (sentence, structured semantics).
  - LegacyResult: The result shape returned by the choice-based legacy query.
*/
package domain
