/*
Package types defines the configuration document and the live broker views
shared by every Mosquitto Manager package.

# Configuration Document

Document is the single durable root. It is stored as JSON with the field
names used by the legacy state.json format so that exported backups from
earlier releases import unchanged:

	{
	  "global_settings": {...},
	  "listeners":       [...],
	  "users":           [...],
	  "acl_profiles":    [...],
	  "dashboard_users": [...]
	}

Listeners are ordered and identified by a stable id. Port uniqueness is not
enforced; the generator emits whatever the operator configured. The
loopback listener used by the manager itself is never part of the document,
the generator synthesizes it on every render.

Users hold cleartext passwords. Hashing happens only when the credential
tool materializes the broker password file. Administrators (dashboard
accounts) store bcrypt hashes and live in a separate namespace.

# Access Rules

An AccessRule has a type, an access level and a value. Two types are
supported:

	topic   -> "topic read sensors/#"
	pattern -> "pattern readwrite devices/%u/#"

An empty type is treated as topic. Validate rejects any other type, so the
document never carries configuration the generator would silently drop.

# Live Views

ClientSession and BrokerStats are never persisted. They are produced by the
session tracker and the stats aggregator and handed to subscribers as copies.
*/
package types
