package types

import (
	"time"
)

const (
	// DefaultListenerPort is the port every document is migrated to expose
	DefaultListenerPort = 1883

	// InternalListenerPort is the loopback listener reserved for the manager
	InternalListenerPort = 10883
)

// Document is the single persisted configuration root. Its JSON layout is
// compatible with the state.json files written by earlier releases.
type Document struct {
	GlobalSettings GlobalSettings  `json:"global_settings"`
	Listeners      []Listener      `json:"listeners" validate:"dive"`
	Users          []User          `json:"users" validate:"dive"`
	AccessProfiles []AccessProfile `json:"acl_profiles" validate:"dive"`
	Administrators []Administrator `json:"dashboard_users" validate:"dive"`
}

// GlobalSettings holds broker-wide directives
type GlobalSettings struct {
	Persistence         bool          `json:"persistence"`
	PersistenceLocation string        `json:"persistence_location"`
	LogDest             string        `json:"log_dest"`
	LogTypes            []string      `json:"log_type"`
	Certificates        *Certificates `json:"certificates,omitempty"`
}

// Certificates is the shared TLS material used by every tls listener
type Certificates struct {
	CAFile   string `json:"cafile"`
	CertFile string `json:"certfile"`
	KeyFile  string `json:"keyfile"`
}

// Protocol is the listener transport: {plain, tls} x {native, websocket}
type Protocol string

const (
	ProtocolMQTT  Protocol = "mqtt"
	ProtocolMQTTS Protocol = "mqtts"
	ProtocolWS    Protocol = "ws"
	ProtocolWSS   Protocol = "wss"
)

// IsTLS reports whether the transport is TLS-wrapped
func (p Protocol) IsTLS() bool {
	return p == ProtocolMQTTS || p == ProtocolWSS
}

// IsWebsocket reports whether the transport is websocket-framed
func (p Protocol) IsWebsocket() bool {
	return p == ProtocolWS || p == ProtocolWSS
}

// Listener is a broker network endpoint
type Listener struct {
	ID                    string   `json:"id" validate:"required"`
	Port                  int      `json:"port" validate:"min=1,max=65535"`
	BindAddress           string   `json:"bind_address"`
	Protocol              Protocol `json:"protocol" validate:"oneof=mqtt mqtts ws wss"`
	TLSVersion            string   `json:"tls_version,omitempty"`
	AllowAnonymous        bool     `json:"allow_anonymous"`
	RequireCertificate    bool     `json:"require_certificate"`
	UseIdentityAsUsername bool     `json:"use_identity_as_username"`
	PasswordFile          string   `json:"password_file,omitempty"`
	ACLProfile            string   `json:"acl_profile,omitempty"`

	// Enabled is a pointer because documents written by earlier releases
	// omit the field, and an absent value means enabled.
	Enabled *bool `json:"enabled,omitempty"`
}

// IsEnabled reports whether the listener should be rendered
func (l Listener) IsEnabled() bool {
	return l.Enabled == nil || *l.Enabled
}

// User is a broker-authenticating account. The password is stored in
// cleartext and only hashed by the credential tool at artifact time.
type User struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password"`
	Enabled  bool   `json:"enabled"`
}

// AccessProfile is a named set of per-user topic rules
type AccessProfile struct {
	Name        string        `json:"name" validate:"required"`
	Description string        `json:"description,omitempty"`
	Users       []ProfileUser `json:"users" validate:"dive"`
}

// ProfileUser groups the rules applied to one username
type ProfileUser struct {
	Username string       `json:"username" validate:"required"`
	Rules    []AccessRule `json:"rules" validate:"dive"`
}

// RuleType selects the ACL line keyword
type RuleType string

const (
	// RuleTopic emits "topic <access> <value>". An empty type means topic.
	RuleTopic RuleType = "topic"

	// RulePattern emits "pattern <access> <value>", where the broker
	// substitutes %u and %c for the client's username and id.
	RulePattern RuleType = "pattern"
)

// Access is the permission granted by a rule
type Access string

const (
	AccessRead      Access = "read"
	AccessWrite     Access = "write"
	AccessReadWrite Access = "readwrite"
)

// AccessRule is one topic permission
type AccessRule struct {
	Type   RuleType `json:"type" validate:"omitempty,oneof=topic pattern"`
	Access Access   `json:"access" validate:"oneof=read write readwrite"`
	Value  string   `json:"value" validate:"required"`
}

// Keyword returns the ACL directive for the rule type
func (r AccessRule) Keyword() string {
	if r.Type == RulePattern {
		return string(RulePattern)
	}
	return string(RuleTopic)
}

// Role is a dashboard account role
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// Administrator is a dashboard login account, disjoint from broker users
type Administrator struct {
	Username     string `json:"username" validate:"required"`
	PasswordHash string `json:"password_hash" validate:"required"`
	Role         Role   `json:"role" validate:"oneof=admin viewer"`
}

// ClientSession is a broker client connection inferred from the log
type ClientSession struct {
	ID          string    `json:"id"`
	IP          string    `json:"ip"`
	Username    string    `json:"username,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// BrokerStats is the latest value of every tracked $SYS metric
type BrokerStats struct {
	Uptime                   float64 `json:"uptime"`
	ClientsTotal             float64 `json:"clientsTotal"`
	ClientsActive            float64 `json:"clientsActive"`
	MessagesSent             float64 `json:"messagesSent"`
	MessagesReceived         float64 `json:"messagesReceived"`
	LoadMessagesReceived1Min float64 `json:"loadMessagesReceived1min"`
	LoadMessagesSent1Min     float64 `json:"loadMessagesSent1min"`
	BytesReceived            float64 `json:"bytesReceived"`
	BytesSent                float64 `json:"bytesSent"`
	Subscriptions            float64 `json:"subscriptions"`
	RetainedMessages         float64 `json:"retainedMessages"`
}

// DefaultDocument returns the first-boot document. Anonymous access is
// enabled on the default listener so a fresh install accepts clients.
func DefaultDocument() *Document {
	return &Document{
		GlobalSettings: GlobalSettings{
			Persistence:         true,
			PersistenceLocation: "/mymosquitto/data/",
			LogDest:             "file /mymosquitto/mosquitto.log",
			LogTypes:            []string{"error", "warning", "notice", "information"},
		},
		Listeners: []Listener{
			{
				ID:             "default-1883",
				Port:           DefaultListenerPort,
				BindAddress:    "0.0.0.0",
				Protocol:       ProtocolMQTT,
				AllowAnonymous: true,
			},
		},
		Users:          []User{},
		AccessProfiles: []AccessProfile{},
		Administrators: []Administrator{},
	}
}

// Clone returns a deep copy of the document
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.GlobalSettings.LogTypes = append([]string(nil), d.GlobalSettings.LogTypes...)
	if d.GlobalSettings.Certificates != nil {
		certs := *d.GlobalSettings.Certificates
		out.GlobalSettings.Certificates = &certs
	}
	out.Listeners = make([]Listener, len(d.Listeners))
	for i, l := range d.Listeners {
		if l.Enabled != nil {
			enabled := *l.Enabled
			l.Enabled = &enabled
		}
		out.Listeners[i] = l
	}
	out.Users = append([]User{}, d.Users...)
	out.AccessProfiles = make([]AccessProfile, len(d.AccessProfiles))
	for i, p := range d.AccessProfiles {
		users := make([]ProfileUser, len(p.Users))
		for j, u := range p.Users {
			u.Rules = append([]AccessRule(nil), u.Rules...)
			users[j] = u
		}
		p.Users = users
		out.AccessProfiles[i] = p
	}
	out.Administrators = append([]Administrator{}, d.Administrators...)
	return &out
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}
