/*
Package generator renders a configuration document into Mosquitto's native
artifacts: the main mosquitto.conf, per-profile ACL files and the list of
credentials to hash into the password file.

Every function here is pure. Nothing is validated; fields are emitted as
given. The loopback listener the manager uses for $SYS statistics is never
stored in the document, MainConfig appends it on every render:

	# ===========================================================
	# Internal Listener (Backend)
	# ===========================================================
	listener 10883 127.0.0.1
	allow_anonymous false
	password_file /etc/mosquitto/secure/passwordfile

Password and ACL paths in the output come from Paths and always refer to the
secure directory the broker reads, not the staging directory the manager
writes.
*/
package generator
