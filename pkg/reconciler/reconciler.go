package reconciler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/broker"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/events"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/generator"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/log"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/metrics"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/security"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/storage"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/types"
)

const (
	// InternalUsername is the broker account the manager itself connects as
	InternalUsername = "sys_monitor"

	// MainConfigFile is the rendered broker config in the staging directory
	MainConfigFile = "mosquitto.conf"

	// LogFile is the broker log in the staging directory
	LogFile = "mosquitto.log"

	// Trigger names
	TriggerStartup = "startup"
	TriggerApply   = "apply"
)

// Step names, in execution order
const (
	StepBootstrapAdministrator = "bootstrap-administrator"
	StepMigrateDocument        = "migrate-document"
	StepRenderArtifacts        = "render-artifacts"
	StepMaterializeCredentials = "materialize-credentials"
	StepSeedInternalAccount    = "seed-internal-account"
	StepSecureSync             = "secure-sync"
	StepRestartBroker          = "restart-broker"
)

// BrokerController restarts the broker process
type BrokerController interface {
	Restart() error
}

// CertificateGenerator produces the TLS bundle for broker listeners
type CertificateGenerator interface {
	GenerateBundle(ctx context.Context) (*security.Bundle, error)
}

// Bootstrap is the administrator account created when none exists
type Bootstrap struct {
	Username string
	Password string
}

// Config holds the filesystem layout and fixed accounts of a deployment
type Config struct {
	// StagingDir receives every rendered artifact before the secure copy
	StagingDir string

	// Paths are the broker-visible locations written into mosquitto.conf
	Paths generator.Paths

	Bootstrap Bootstrap

	// Internal is the service account seeded into every password file
	Internal generator.Credential
}

// StagingPasswordFile returns the password file the credential tool writes
func (c Config) StagingPasswordFile() string {
	return filepath.Join(c.StagingDir, security.PasswordFileName)
}

// StagingACLDir returns the directory rendered ACL files are written to
func (c Config) StagingACLDir() string {
	return filepath.Join(c.StagingDir, security.ACLDirName)
}

// LegacyPasswordFile is the insecure password file path earlier releases
// wrote into listener definitions
func (c Config) LegacyPasswordFile() string {
	return filepath.Join(c.StagingDir, security.PasswordFileName)
}

// StepResult is the outcome of one pipeline step
type StepResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result describes one pipeline run
type Result struct {
	Trigger            string                 `json:"trigger"`
	Success            bool                   `json:"success"`
	Message            string                 `json:"message"`
	Steps              []StepResult           `json:"steps"`
	Migrated           bool                   `json:"migrated"`
	CredentialFailures []string               `json:"credential_failures,omitempty"`
	SyncFailures       []security.FileFailure `json:"sync_failures,omitempty"`
}

// Reconciler runs the fixed startup/apply pipeline that turns the stored
// document into live broker configuration.
type Reconciler struct {
	store       storage.Store
	syncer      *security.Syncer
	controller  BrokerController
	credentials broker.CredentialTool
	certs       CertificateGenerator
	publisher   events.Publisher
	config      Config

	// newListenerID is replaced in tests
	newListenerID func() string

	mu sync.Mutex
}

// NewReconciler creates a reconciler. certs and pub may be nil.
func NewReconciler(
	config Config,
	store storage.Store,
	syncer *security.Syncer,
	controller BrokerController,
	credentials broker.CredentialTool,
	certs CertificateGenerator,
	pub events.Publisher,
) *Reconciler {
	return &Reconciler{
		store:         store,
		syncer:        syncer,
		controller:    controller,
		credentials:   credentials,
		certs:         certs,
		publisher:     pub,
		config:        config,
		newListenerID: func() string { return "listener-" + uuid.New().String() },
	}
}

// run carries state between steps of one pipeline execution
type run struct {
	doc    *types.Document
	result *Result
}

type step struct {
	name string
	fn   func(ctx context.Context, r *run) error
}

// steps returns the pipeline. The order of the last four steps matters:
// the password file is truncated, then filled, then the internal account
// is re-added, then the result is copied, and only then is the broker
// restarted.
func (rc *Reconciler) steps() []step {
	return []step{
		{StepBootstrapAdministrator, rc.bootstrapAdministrator},
		{StepMigrateDocument, rc.migrateDocument},
		{StepRenderArtifacts, rc.renderArtifacts},
		{StepMaterializeCredentials, rc.materializeCredentials},
		{StepSeedInternalAccount, rc.seedInternalAccount},
		{StepSecureSync, rc.secureSync},
		{StepRestartBroker, rc.restartBroker},
	}
}

// RunStartup runs the pipeline at process start
func (rc *Reconciler) RunStartup(ctx context.Context) (*Result, error) {
	return rc.execute(ctx, TriggerStartup)
}

// RunApply runs the pipeline on an explicit apply request
func (rc *Reconciler) RunApply(ctx context.Context) (*Result, error) {
	return rc.execute(ctx, TriggerApply)
}

// GenerateCertificateBundle creates the TLS bundle used by tls listeners
func (rc *Reconciler) GenerateCertificateBundle(ctx context.Context) (*security.Bundle, error) {
	if rc.certs == nil {
		return nil, errors.New("certificate generation is not configured")
	}
	bundle, err := rc.certs.GenerateBundle(ctx)
	if err != nil {
		metrics.UpdateComponent(metrics.ComponentOpenSSL, false, err.Error())
		return nil, err
	}
	metrics.UpdateComponent(metrics.ComponentOpenSSL, true, "bundle generated")
	return bundle, nil
}

// execute runs every step in order. Runs are serialized; a second caller
// waits for the first to finish. The first hard error stops the pipeline
// and leaves whatever earlier steps wrote on disk.
func (rc *Reconciler) execute(ctx context.Context, trigger string) (*Result, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	logger := log.WithComponent("reconciler")
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReconcileDuration, trigger)

	logger.Info().Str("trigger", trigger).Msg("Reconciliation started")

	r := &run{result: &Result{Trigger: trigger}}
	for _, s := range rc.steps() {
		stepTimer := metrics.NewTimer()
		err := s.fn(ctx, r)
		stepTimer.ObserveDurationVec(metrics.ReconcileStepDuration, s.name)

		sr := StepResult{Name: s.name, Duration: stepTimer.Duration()}
		if err != nil {
			sr.Error = err.Error()
		}
		r.result.Steps = append(r.result.Steps, sr)

		if err != nil {
			metrics.ReconcileRunsTotal.WithLabelValues(trigger, "failure").Inc()
			r.result.Message = fmt.Sprintf("%s failed: %v", s.name, err)
			logger.Error().Err(err).Str("trigger", trigger).Str("step", s.name).Msg("Reconciliation failed")
			rc.publish(r.result)
			return r.result, fmt.Errorf("%s: %w", s.name, err)
		}
		logger.Debug().Str("step", s.name).Dur("duration", sr.Duration).Msg("Step complete")
	}

	r.result.Success = true
	r.result.Message = "Configuration applied. Mosquitto is restarting..."
	metrics.ReconcileRunsTotal.WithLabelValues(trigger, "success").Inc()
	logger.Info().
		Str("trigger", trigger).
		Int("credential_failures", len(r.result.CredentialFailures)).
		Int("sync_failures", len(r.result.SyncFailures)).
		Dur("duration", timer.Duration()).
		Msg("Reconciliation complete")
	rc.publish(r.result)
	return r.result, nil
}

func (rc *Reconciler) publish(result *Result) {
	if rc.publisher == nil {
		return
	}
	copied := *result
	rc.publisher.Publish(&events.Event{Type: events.EventApplied, Payload: copied})
}

func (rc *Reconciler) bootstrapAdministrator(_ context.Context, r *run) error {
	doc, err := rc.store.LoadDocument()
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	r.doc = doc
	if len(doc.Administrators) > 0 {
		return nil
	}

	b := rc.config.Bootstrap
	if b.Username == "" || b.Password == "" {
		return errors.New("no administrators exist and no bootstrap credentials are configured")
	}
	hash, err := security.HashAdminPassword(b.Password)
	if err != nil {
		return err
	}
	doc.Administrators = append(doc.Administrators, types.Administrator{
		Username:     b.Username,
		PasswordHash: hash,
		Role:         types.RoleAdmin,
	})
	if err := rc.store.SaveDocument(doc); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	log.WithComponent("reconciler").Info().Str("username", b.Username).Msg("Created bootstrap administrator")

	r.doc, err = rc.store.LoadDocument()
	if err != nil {
		return fmt.Errorf("failed to reload document: %w", err)
	}
	return nil
}

func (rc *Reconciler) migrateDocument(_ context.Context, r *run) error {
	if !Migrate(r.doc, rc.config.LegacyPasswordFile(), rc.newListenerID) {
		return nil
	}
	r.result.Migrated = true
	if err := rc.store.SaveDocument(r.doc); err != nil {
		return fmt.Errorf("failed to save migrated document: %w", err)
	}
	doc, err := rc.store.LoadDocument()
	if err != nil {
		return fmt.Errorf("failed to reload document: %w", err)
	}
	r.doc = doc
	return nil
}

// Migrate upgrades doc in place and reports whether anything changed.
// A listener on the default port is added when none exists, with
// anonymous access disabled, and listener password file overrides that
// point at the legacy staging path are dropped so the secure default is
// used.
func Migrate(doc *types.Document, legacyPasswordFile string, newID func() string) bool {
	logger := log.WithComponent("reconciler")
	changed := false

	hasDefault := false
	for _, l := range doc.Listeners {
		if l.Port == types.DefaultListenerPort {
			hasDefault = true
			break
		}
	}
	if !hasDefault {
		id := newID()
		doc.Listeners = append(doc.Listeners, types.Listener{
			ID:          id,
			Port:        types.DefaultListenerPort,
			BindAddress: "0.0.0.0",
			Protocol:    types.ProtocolMQTT,
			Enabled:     types.BoolPtr(true),
		})
		logger.Info().Str("listener_id", id).Msg("Added missing default listener")
		changed = true
	}

	for i := range doc.Listeners {
		if doc.Listeners[i].PasswordFile == legacyPasswordFile {
			doc.Listeners[i].PasswordFile = ""
			log.WithListenerID(doc.Listeners[i].ID).Info().Msg("Migrated listener to the secure password file")
			changed = true
		}
	}
	return changed
}

func (rc *Reconciler) renderArtifacts(_ context.Context, r *run) error {
	aclDir := rc.config.StagingACLDir()
	if err := os.MkdirAll(aclDir, 0755); err != nil {
		return fmt.Errorf("failed to create ACL directory: %w", err)
	}

	conf := generator.MainConfig(r.doc, rc.config.Paths)
	if err := writeFileAtomic(filepath.Join(rc.config.StagingDir, MainConfigFile), []byte(conf), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", MainConfigFile, err)
	}

	rendered := make(map[string]bool)
	for _, f := range generator.AccessControlFiles(r.doc) {
		if err := writeFileAtomic(filepath.Join(aclDir, f.Name), []byte(f.Content), 0644); err != nil {
			return fmt.Errorf("failed to write ACL file %s: %w", f.Name, err)
		}
		rendered[f.Name] = true
	}

	// Profiles deleted since the last run leave files behind
	entries, err := os.ReadDir(aclDir)
	if err != nil {
		return fmt.Errorf("failed to list ACL directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || rendered[e.Name()] || !strings.HasSuffix(e.Name(), ".conf") {
			continue
		}
		if err := os.Remove(filepath.Join(aclDir, e.Name())); err != nil {
			return fmt.Errorf("failed to remove stale ACL file %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (rc *Reconciler) materializeCredentials(ctx context.Context, r *run) error {
	file := rc.config.StagingPasswordFile()
	if err := os.WriteFile(file, nil, 0600); err != nil {
		return fmt.Errorf("failed to truncate password file: %w", err)
	}

	for _, c := range generator.Credentials(r.doc) {
		if err := rc.credentials.SetPassword(ctx, file, c.Username, c.Password); err != nil {
			log.WithComponent("reconciler").Warn().Err(err).Str("username", c.Username).Msg("Failed to add broker user")
			metrics.CredentialFailuresTotal.Inc()
			r.result.CredentialFailures = append(r.result.CredentialFailures, c.Username)
		}
	}
	return nil
}

func (rc *Reconciler) seedInternalAccount(ctx context.Context, r *run) error {
	in := rc.config.Internal
	if err := rc.credentials.SetPassword(ctx, rc.config.StagingPasswordFile(), in.Username, in.Password); err != nil {
		log.WithComponent("reconciler").Error().Err(err).Str("username", in.Username).Msg("Failed to seed internal account")
		metrics.CredentialFailuresTotal.Inc()
		r.result.CredentialFailures = append(r.result.CredentialFailures, in.Username)
	}
	return nil
}

func (rc *Reconciler) secureSync(_ context.Context, r *run) error {
	perms := rc.syncer.NormalizePermissions([]security.PathMode{
		{Path: rc.config.StagingPasswordFile(), Mode: 0600},
		{Path: filepath.Join(rc.config.StagingDir, LogFile), Mode: 0660},
	})
	r.result.SyncFailures = append(r.result.SyncFailures, perms.Failures...)

	report, err := rc.syncer.Sync()
	if err != nil {
		log.WithComponent("reconciler").Error().Err(err).Msg("Secure sync could not run")
		r.result.SyncFailures = append(r.result.SyncFailures, security.FileFailure{
			Path: rc.syncer.SecureDir,
			Op:   "prepare",
			Err:  err.Error(),
		})
		metrics.SyncFailuresTotal.Inc()
		return nil
	}
	r.result.SyncFailures = append(r.result.SyncFailures, report.Failures...)
	metrics.SyncFailuresTotal.Add(float64(len(report.Failures) + len(perms.Failures)))

	logger := log.WithComponent("reconciler")
	if report.OK() {
		logger.Debug().Int("copied", len(report.Copied)).Int("removed", len(report.Removed)).Msg("Secure artifacts synchronized")
	} else {
		logger.Warn().Int("failures", len(report.Failures)).Msg("Secure sync finished with failures")
	}
	return nil
}

func (rc *Reconciler) restartBroker(_ context.Context, _ *run) error {
	err := rc.controller.Restart()
	if err != nil {
		metrics.BrokerSignalsTotal.WithLabelValues("restart", "failure").Inc()
		return err
	}
	metrics.BrokerSignalsTotal.WithLabelValues("restart", "success").Inc()
	return nil
}

// writeFileAtomic replaces path through a temporary file in the same
// directory
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
