package importer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/log"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/types"
)

const (
	defaultPersistenceLocation = "/mymosquitto/data/"
	defaultLogDest             = "file /mymosquitto/mosquitto.log"
	tlsPort                    = 8883
)

var defaultLogTypes = []string{"error", "warning", "notice", "information"}

// ParseMosquittoConf builds a document from an existing mosquitto.conf.
//
// Only listeners and global settings are recovered. Per-listener password
// files are not imported; listeners that required one are imported with
// anonymous access disabled so they authenticate against the managed
// password file. Certificate paths are not imported either, but their
// presence marks the listener as requiring client certificates. The
// internal listener port is skipped and a default listener on 1883 is
// added when the file does not define one.
func ParseMosquittoConf(text string) *types.Document {
	doc := types.DefaultDocument()
	doc.Listeners = []types.Listener{}
	doc.GlobalSettings = types.GlobalSettings{
		Persistence:         false,
		PersistenceLocation: defaultPersistenceLocation,
		LogTypes:            append([]string(nil), defaultLogTypes...),
	}

	var (
		current *types.Listener
		skip    bool
		logDest string
		ids     = make(map[string]int)
	)

	flush := func() {
		if current != nil {
			doc.Listeners = append(doc.Listeners, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		key, args := fields[0], fields[1:]

		switch key {
		case "listener":
			flush()
			skip = false
			if len(args) == 0 {
				continue
			}
			port, err := strconv.Atoi(args[0])
			if err != nil {
				log.Logger.Warn().Str("line", line).Msg("Skipping listener with invalid port")
				skip = true
				continue
			}
			if port == types.InternalListenerPort {
				skip = true
				continue
			}
			bind := "0.0.0.0"
			if len(args) > 1 {
				bind = args[1]
			}
			current = &types.Listener{
				ID:          listenerID(ids, port),
				Port:        port,
				BindAddress: bind,
				Protocol:    types.ProtocolMQTT,
				Enabled:     types.BoolPtr(true),
			}
		case "persistence":
			doc.GlobalSettings.Persistence = first(args) == "true"
		case "persistence_location":
			if loc := first(args); loc != "" {
				doc.GlobalSettings.PersistenceLocation = loc
			}
		case "log_dest":
			// Only one destination is kept; stdout is always added on render.
			if len(args) > 0 && args[0] != "stdout" {
				logDest = strings.Join(args, " ")
			}
		default:
			if current == nil || skip {
				continue
			}
			applyListenerDirective(current, key, args)
		}
	}
	flush()

	if logDest != "" {
		doc.GlobalSettings.LogDest = logDest
	} else {
		doc.GlobalSettings.LogDest = defaultLogDest
	}

	if !hasPort(doc.Listeners, types.DefaultListenerPort) {
		doc.Listeners = append(doc.Listeners, types.DefaultDocument().Listeners[0])
	}

	return doc
}

func applyListenerDirective(l *types.Listener, key string, args []string) {
	switch key {
	case "allow_anonymous":
		l.AllowAnonymous = first(args) == "true"
	case "protocol":
		if first(args) == "websockets" {
			l.Protocol = types.ProtocolWS
		}
	case "cafile", "certfile", "keyfile":
		switch {
		case l.Protocol == types.ProtocolWS:
			l.Protocol = types.ProtocolWSS
		case l.Port == tlsPort:
			l.Protocol = types.ProtocolMQTTS
		}
		l.RequireCertificate = true
	case "tls_version":
		l.TLSVersion = first(args)
	case "use_identity_as_username":
		l.UseIdentityAsUsername = first(args) == "true"
	}
}

// MergeBrokerConfig replaces the listeners and global settings of current
// with those of parsed. Users, access profiles and administrators are kept.
func MergeBrokerConfig(current, parsed *types.Document) *types.Document {
	out := current.Clone()
	p := parsed.Clone()
	out.Listeners = p.Listeners
	out.GlobalSettings = p.GlobalSettings
	return out
}

// DecodeBackup decodes an exported document. Backups without a listeners
// array are rejected. When the backup carries no administrators, those of
// current are kept so an import never locks the operator out.
func DecodeBackup(data []byte, current *types.Document) (*types.Document, error) {
	var doc types.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", types.ErrMalformedDocument, err)
	}
	if doc.Listeners == nil {
		return nil, fmt.Errorf("%w: missing listeners", types.ErrMalformedDocument)
	}

	if len(doc.Administrators) == 0 && current != nil {
		doc.Administrators = append([]types.Administrator{}, current.Administrators...)
	}
	if err := types.Validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func listenerID(seen map[string]int, port int) string {
	id := fmt.Sprintf("imported-%d", port)
	seen[id]++
	if n := seen[id]; n > 1 {
		return fmt.Sprintf("%s-%d", id, n)
	}
	return id
}

func hasPort(listeners []types.Listener, port int) bool {
	for _, l := range listeners {
		if l.Port == port {
			return true
		}
	}
	return false
}

func first(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
