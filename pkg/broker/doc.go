// Package broker drives the external Mosquitto process.
//
// Controller reads the pid file and delivers signals: SIGHUP to reload,
// SIGTERM to restart under a supervisor. PasswdTool runs the broker's own
// credential tool, which owns the password hash format.
package broker
