/*
Package hmi is a client for remote speech and grammar interpretation services.

A query asks the service to listen for an utterance matching a context-free
grammar and returns the recognized sentence with its structured semantics.
Queries run as goals on an asynchronous, goal-oriented channel: the client
submits the goal, waits for it, extends the deadline whenever the service
reports it is still listening, and cancels the goal when it goes quiet.

# Usage

	client, err := hmi.New(ctx, "hmi")
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	grammar := `T[{action: $1}] -> bring ITEM; ITEM[coffee] -> coffee; ITEM[tea] -> tea`
	result, err := client.Query(ctx, "What can I get you?", grammar, "T", 10*time.Second)
	switch {
	case errors.Is(err, domain.ErrTimeout):
		// nobody answered
	case err != nil:
		log.Fatal(err)
	default:
		fmt.Println(result.Sentence, result.Semantics)
	}

Binding by name dials the default Redis goal channel. Any ports.Transport can
be supplied instead with WithTransport, e.g. the in-process memory adapter.

# Legacy queries

OldQuery accepts a sentence template with <choice> placeholders and the
permitted values of each choice. It never returns timeouts or goal failures
as errors: a timeout yields an empty LegacyResult, a failure yields nil.

# Errors

Query errors match domain.ErrTimeout (the goal was preempted after the
deadline), domain.ErrQueryFailed (any other unsuccessful terminal state, see
domain.QueryFailure) or domain.ErrParse (no derivation of the sentence when
the service left the semantics empty).
*/
package hmi
