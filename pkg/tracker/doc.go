/*
Package tracker derives the set of connected broker clients from the
broker log.

Each appended log line is classified into one of four shapes:

	connect      "New client connected from 10.0.0.5:4410 as dev-123 (p2, c1, k60, u'alice')."
	disconnect   "Client dev-123 disconnected."
	             "Client dev-123 closed its connection."
	             "Client dev-123 has exceeded timeout, disconnecting."
	superseded   "Client dev-123 already connected, closing old connection."
	unrecognized anything else

and drives a small state machine over a map keyed by client id:

	connect     -> insert or overwrite, stamped with the current time
	disconnect  -> delete (unknown ids are ignored)
	superseded  -> ignored
	other       -> ignored

A reused client id overwrites the older entry: the newest connection wins.
The superseded notice is ignored because the broker prints it around the
connect line of the replacing session, and acting on it would drop the very
session that replaced the old one.

Every change publishes the complete session list as a clients event. There
is no diffing; subscribers replace their view on every event.

The tracker starts empty and follows the log from its current end, so a
restart of the manager shows only clients that connect afterwards.
*/
package tracker
