/*
Package reconciler turns the stored configuration document into live
broker configuration.

The same fixed pipeline runs at process start and on every apply request:

	┌──────────────────────────┐
	│ bootstrap-administrator  │  seed an admin from bootstrap credentials
	├──────────────────────────┤
	│ migrate-document         │  ensure a 1883 listener, drop legacy paths
	├──────────────────────────┤
	│ render-artifacts         │  mosquitto.conf + acls/*.conf into staging
	├──────────────────────────┤
	│ materialize-credentials  │  truncate passwordfile, one tool call per user
	├──────────────────────────┤
	│ seed-internal-account    │  re-add the manager's own account
	├──────────────────────────┤
	│ secure-sync              │  copy to the secure dir, fix ownership
	├──────────────────────────┤
	│ restart-broker           │  SIGTERM, the supervisor respawns the broker
	└──────────────────────────┘

Steps run strictly in order and runs are serialized, so two applies never
interleave on the shared password file. The internal account must be seeded
after the users are written, since materialization truncates the file, and
the secure copy must complete before the restart or the broker comes up
with stale credentials.

# Failure Handling

Document load and save, artifact writes, password file truncation and the
restart are hard errors: the run stops and the error is returned wrapped
with the step name. Per-user credential failures and per-file sync failures
are logged, counted in Prometheus and listed in the Result; the pipeline
continues. A failed run leaves partial artifacts on disk, and the next
successful run overwrites them.

The pipeline always restarts rather than reloads, since adding or
disabling listeners cannot be applied with SIGHUP.

# Usage

	rc := reconciler.NewReconciler(cfg, store, syncer, controller,
		broker.NewPasswdTool(), security.NewCertGenerator(certDir), eventBroker)

	result, err := rc.RunApply(ctx)
	if err != nil {
		// result.Message names the failed step
	}

Each run publishes its Result as an applied event.
*/
package reconciler
