/*
Package config loads the manager's runtime configuration.

Values come from three layers, later ones winning:

 1. Built-in defaults for the official container layout
 2. An optional YAML file (--config flag or MOSQUITTO_MANAGER_CONFIG)
 3. Environment variables

The environment variables kept from earlier releases are:

	MOSQUITTO_DIR   staging directory (default /mymosquitto)
	DATA_DIR        document database directory (default: staging dir)
	WEB_USERNAME    bootstrap administrator username (default admin)
	WEB_PASSWORD    bootstrap administrator password (default admin)
	PORT            HTTP port (default 3000)

Bootstrap credentials are never read from the file. They are only used when
the stored document has no administrators.

Example file:

	staging_dir: /mymosquitto
	secure_dir: /etc/mosquitto/secure
	pid_file: /run/mosquitto.pid
	api:
	  listen: ":3000"
	  auth: true
	health:
	  interval: 10s
	log:
	  level: debug
	  json: false
*/
package config
