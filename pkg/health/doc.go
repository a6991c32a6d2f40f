/*
Package health provides the probes used to decide whether the managed
broker and its tooling are usable.

Each probe implements Checker and reports a Result:

	Process    pid file plus signal 0 via the broker controller
	Listener   full MQTT CONNECT against the internal loopback listener
	Tool       external binaries found on PATH, optionally run for a version

ListenerChecker logs in as the internal monitoring account, so it fails
when mosquitto runs but did not load the generated password file or the
internal listener. ToolChecker covers openssl and mosquitto_passwd, which
certificate generation and credential sync shell out to.

# Status Tracking

Status debounces results for one component. It turns unhealthy after
Config.Retries consecutive failures and recovers on the first success.
Failures inside StartPeriod are not counted; a broker restart during an
apply must not flip readiness.

	status := health.NewStatus(health.DefaultConfig())
	if status.Observe(checker.Check(ctx)) {
		// verdict changed
	}

The periodic loop that runs the checkers lives in the metrics package,
which owns the component registry served on /health and /ready.
*/
package health
