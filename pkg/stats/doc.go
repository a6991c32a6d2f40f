/*
Package stats keeps a live snapshot of the broker's $SYS metrics.

The Monitor connects to the broker's loopback listener as the internal
service account and subscribes to $SYS/#. Every message is handed to the
Aggregator, which recognizes a fixed set of topic suffixes below
$SYS/broker/:

	uptime                        "42 seconds"
	clients/total                 connected plus disconnected persistent clients
	clients/active, connected     currently connected clients
	messages/sent, received       totals since broker start
	load/messages/sent/1min       one minute moving average
	load/messages/received/1min
	bytes/sent, bytes/received
	subscriptions/count
	retained messages/count

Payloads are parsed by their leading number, so "42 seconds" records 42.
Unknown topics and non-numeric payloads are dropped. Each accepted update
publishes the complete snapshot as a stats event and mirrors the value into
the mosquitto_manager_broker_stat gauge.

No history is kept. Values are whatever the broker last reported.
*/
package stats
