package generator

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/types"
)

const (
	sectionRule  = "# ============================"
	listenerRule = "# ==========================================================="
)

// Paths are the broker-visible locations the generated config refers to.
// They always point into the secure directory, never the staging directory.
type Paths struct {
	PasswordFile    string
	ACLDir          string
	InternalAddress string
	InternalPort    int
}

// DefaultPaths returns the paths used by a standard deployment
func DefaultPaths() Paths {
	return Paths{
		PasswordFile:    "/etc/mosquitto/secure/passwordfile",
		ACLDir:          "/etc/mosquitto/secure/acls",
		InternalAddress: "127.0.0.1",
		InternalPort:    types.InternalListenerPort,
	}
}

// Credential is one broker account handed to the credential tool
type Credential struct {
	Username string
	Password string
}

// ACLFile is a rendered per-profile access control file
type ACLFile struct {
	Profile string
	Name    string
	Content string
}

// MainConfig renders mosquitto.conf for doc. The output is deterministic:
// the same document and paths always produce the same bytes.
func MainConfig(doc *types.Document, p Paths) string {
	gs := doc.GlobalSettings
	lines := []string{
		sectionRule,
		"# Global Mosquitto Settings",
		sectionRule,
		"",
		"per_listener_settings true",
	}

	if gs.Persistence {
		lines = append(lines,
			"persistence true",
			"persistence_location "+gs.PersistenceLocation,
			"autosave_interval 1800",
		)
	} else {
		lines = append(lines, "persistence false")
	}
	lines = append(lines,
		"sys_interval 2",
		"log_dest "+gs.LogDest,
		"log_dest stdout",
	)
	for _, t := range gs.LogTypes {
		lines = append(lines, "log_type "+t)
	}
	lines = append(lines, "")

	for _, l := range doc.Listeners {
		if !l.IsEnabled() {
			continue
		}
		lines = append(lines, listenerStanza(l, gs.Certificates, p)...)
	}

	lines = append(lines,
		listenerRule,
		"# Internal Listener (Backend)",
		listenerRule,
		fmt.Sprintf("listener %d %s", p.InternalPort, p.InternalAddress),
		"allow_anonymous false",
		"password_file "+p.PasswordFile,
		"",
	)

	return strings.Join(lines, "\n") + "\n"
}

func listenerStanza(l types.Listener, certs *types.Certificates, p Paths) []string {
	lines := []string{
		listenerRule,
		"# Listener: " + l.ID,
		listenerRule,
		fmt.Sprintf("listener %d %s", l.Port, l.BindAddress),
	}

	if l.Protocol.IsWebsocket() {
		lines = append(lines, "protocol websockets")
	} else {
		lines = append(lines, "protocol mqtt")
	}

	if l.Protocol.IsTLS() {
		if certs != nil {
			if certs.CAFile != "" {
				lines = append(lines, "cafile "+certs.CAFile)
			}
			if certs.CertFile != "" {
				lines = append(lines, "certfile "+certs.CertFile)
			}
			if certs.KeyFile != "" {
				lines = append(lines, "keyfile "+certs.KeyFile)
			}
		}
		if l.TLSVersion != "" {
			lines = append(lines, "tls_version "+l.TLSVersion)
		}
	}

	lines = append(lines, "allow_anonymous "+strconv.FormatBool(l.AllowAnonymous))
	if l.RequireCertificate {
		lines = append(lines, "require_certificate true")
	}
	if l.UseIdentityAsUsername {
		lines = append(lines, "use_identity_as_username true")
	}

	if !l.AllowAnonymous || l.PasswordFile != "" {
		pwd := p.PasswordFile
		if l.PasswordFile != "" {
			pwd = l.PasswordFile
		}
		lines = append(lines, "password_file "+pwd)
	}

	if l.ACLProfile != "" {
		lines = append(lines, "acl_file "+path.Join(p.ACLDir, ACLFileName(l.ACLProfile)))
	}

	return append(lines, "")
}

// Credentials returns the enabled users in document order
func Credentials(doc *types.Document) []Credential {
	creds := make([]Credential, 0, len(doc.Users))
	for _, u := range doc.Users {
		if !u.Enabled {
			continue
		}
		creds = append(creds, Credential{Username: u.Username, Password: u.Password})
	}
	return creds
}

// CredentialLines renders enabled users as "username:password" lines
func CredentialLines(doc *types.Document) []string {
	creds := Credentials(doc)
	lines := make([]string, len(creds))
	for i, c := range creds {
		lines[i] = c.Username + ":" + c.Password
	}
	return lines
}

// ACLFileName returns the file name used for profile both on disk and in
// the acl_file directive.
func ACLFileName(profile string) string {
	return profile + ".conf"
}

// AccessControlFiles renders one file per access profile, in document order
func AccessControlFiles(doc *types.Document) []ACLFile {
	files := make([]ACLFile, 0, len(doc.AccessProfiles))
	for _, profile := range doc.AccessProfiles {
		lines := []string{"# Access Profile: " + profile.Name}
		if profile.Description != "" {
			lines = append(lines, "# "+profile.Description)
		}
		lines = append(lines, "")

		for _, u := range profile.Users {
			lines = append(lines, "user "+u.Username)
			for _, r := range u.Rules {
				lines = append(lines, fmt.Sprintf("%s %s %s", r.Keyword(), r.Access, r.Value))
			}
			lines = append(lines, "")
		}

		files = append(files, ACLFile{
			Profile: profile.Name,
			Name:    ACLFileName(profile.Name),
			Content: strings.Join(lines, "\n"),
		})
	}
	return files
}
