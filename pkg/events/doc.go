/*
Package events is the in-process push channel between the live views and
the dashboard transport.

The session tracker, stats aggregator, log streamer and reconciler call
Publish. WebSocket connections Subscribe, optionally to a subset of types,
and receive matching events published after they subscribed. A buffered
queue and a single distribution loop sit between the two sides.

# Event Types

  - clients: full snapshot of connected sessions
  - stats: full snapshot of broker counters
  - logs: a single broker log line
  - applied: result of a configuration pipeline run

Every type except logs is a snapshot (EventType.Snapshot). The broker
keeps the latest snapshot per type, and a consumer that connects later is
primed with Latest before it reads its subscription.

# Delivery

Publish never blocks. Log lines go through a bounded queue; a line that
finds the queue or a subscriber buffer full is skipped and counted in
Dropped. Snapshots never wait in that queue. Publishing one marks its type
dirty, and the loop sends the latest value of each dirty type. A subscriber
whose buffer is full keeps the type pending and gets the latest value
before its next log line or on the next retry tick.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe(events.EventClients, events.EventStats)
	defer broker.Unsubscribe(sub)

	for ev := range sub {
		fmt.Println(ev.Type, ev.Payload)
	}
*/
package events
