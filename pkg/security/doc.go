/*
Package security keeps broker credentials and TLS material out of reach of
anything but the broker process.

The package covers three concerns: synchronizing generated artifacts into a
process-owned secure directory, hashing dashboard administrator passwords,
and producing a certificate bundle for TLS listeners.

# Secure Artifact Sync

The manager writes broker artifacts into a staging directory that is often
a mounted volume. The broker never reads from there. Syncer copies each
artifact into the secure directory, hands it to the broker user and strips
group and world access:

	/mymosquitto/passwordfile       ->  /etc/mosquitto/secure/passwordfile
	/mymosquitto/acls/<name>.conf   ->  /etc/mosquitto/secure/acls/<name>.conf

	dirs   0750  owner 100:101
	files  0600  owner 100:101

Sync is best effort per file. A copy, chown or chmod failure is logged and
recorded in the SyncReport, and the remaining files are still processed.
Files are written through a temporary file and renamed into place so the
broker never observes a truncated password file. ACL files that disappeared
from staging are removed from the secure directory, so a deleted access
profile stops applying on the next reload.

# Administrator Passwords

Dashboard administrators are stored with bcrypt hashes (cost 10). Broker
users are not hashed here; the broker's own credential tool hashes them
when the password file is materialized.

	hash, err := security.HashAdminPassword("admin")
	ok := security.VerifyAdminPassword(hash, "admin")

# Certificate Bundle

CertGenerator shells out to openssl to create, inside <staging>/certs:

  - ca.key, ca.crt (created once, reused afterwards)
  - server.key, server.crt (CN=localhost)
  - client.key, client.crt (CN=client, for testing clients)

CSRs are removed after signing. The returned Bundle holds the CA, server
certificate and server key paths to place in the document's global
certificate settings. LoadCertificate, VerifyBundle and GetCertInfo inspect
the result; CertNeedsRotation flags certificates with less than 30 days of
validity left.

The command runner is injectable so the generation sequence can be tested
without openssl installed.
*/
package security
