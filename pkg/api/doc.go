/*
Package api is the thin HTTP and WebSocket shell around the manager.

Handlers only translate between HTTP and the core packages: documents go
to and from storage.Store, apply runs the reconciler, and live views come
from the session tracker and the stats aggregator. No handler touches the
broker artifacts directly.

# Routes

	GET  /api/state             current configuration document
	POST /api/state             replace the document (validated, not applied)
	POST /api/apply             run the reconciliation pipeline
	POST /api/reload            SIGHUP the broker
	GET  /api/logs              last lines of the broker log
	GET  /api/clients           connected clients
	GET  /api/stats             latest $SYS metrics
	POST /api/certs/generate    create the CA, server and client certificates
	POST /api/certs/upload      store a certificate under <staging>/certs
	GET  /api/certs/download    fetch a file below the staging directory
	GET  /api/backup/export     document as a JSON attachment
	POST /api/backup/import     replace the document from an export
	POST /api/import/conf       take listeners and globals from a mosquitto.conf
	GET  /ws                    push channel (?types=clients,stats to filter)
	GET  /health, /ready        component health
	GET  /metrics               Prometheus scrape endpoint
	GET  /api/version           build version

Mutating endpoints answer with

	{"success": true, "message": "..."}
	{"success": false, "error": "..."}

Malformed documents map to 400, a broker that is not running to 409 and
every other failure to 500.

# Authentication

With Options.Auth set, every /api route and /ws require HTTP basic auth
checked against the administrator accounts in the stored document. Viewers
may only issue GET, HEAD and OPTIONS requests. Health, readiness and
metrics endpoints are always open so probes and scrapers need no
credentials.

Failed logins are throttled per client IP with a token bucket. A client
that exhausts its budget gets 429 until tokens refill, even with correct
credentials.

# Push Channel

Each WebSocket connection subscribes to the event broker and receives
events as JSON:

	{"id": "...", "type": "clients", "timestamp": "...", "payload": [...]}

A new connection is first sent the latest stats snapshot, if any, and the
current client list. After that it receives stats, clients, logs and
applied events as they happen. Slow connections drop events rather than
stall the publishers.
*/
package api
