package security

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/log"
)

const (
	// PasswordFileName is the broker password file name in both directories
	PasswordFileName = "passwordfile"

	// ACLDirName is the ACL subdirectory name in both directories
	ACLDirName = "acls"

	secureDirMode  os.FileMode = 0750
	secureFileMode os.FileMode = 0600
)

// Owner is the uid/gid the broker process runs as
type Owner struct {
	UID int
	GID int
}

// DefaultOwner is the mosquitto user of the official broker image
var DefaultOwner = Owner{UID: 100, GID: 101}

// Syncer copies broker artifacts from the staging directory, which may be
// a mounted volume with loose permissions, to the secure directory the
// broker reads them from.
type Syncer struct {
	StagingDir string
	SecureDir  string
	Owner      Owner

	// chown is replaced in tests
	chown func(path string, uid, gid int) error
}

// NewSyncer creates a syncer for the given directories
func NewSyncer(stagingDir, secureDir string, owner Owner) *Syncer {
	return &Syncer{
		StagingDir: stagingDir,
		SecureDir:  secureDir,
		Owner:      owner,
		chown:      os.Chown,
	}
}

// FileFailure records one artifact that could not be synchronized
type FileFailure struct {
	Path string `json:"path"`
	Op   string `json:"op"`
	Err  string `json:"error"`
}

// SyncReport lists what a Sync run did
type SyncReport struct {
	Copied   []string      `json:"copied"`
	Removed  []string      `json:"removed,omitempty"`
	Failures []FileFailure `json:"failures,omitempty"`
}

// OK reports whether every file synchronized
func (r *SyncReport) OK() bool {
	return len(r.Failures) == 0
}

func (r *SyncReport) fail(path, op string, err error) {
	log.WithComponent("secure-sync").Warn().
		Err(err).
		Str("path", path).
		Str("op", op).
		Msg("Failed to sync artifact")
	r.Failures = append(r.Failures, FileFailure{Path: path, Op: op, Err: err.Error()})
}

// SecurePasswordFile returns the broker-visible password file path
func (s *Syncer) SecurePasswordFile() string {
	return filepath.Join(s.SecureDir, PasswordFileName)
}

// SecureACLDir returns the broker-visible ACL directory
func (s *Syncer) SecureACLDir() string {
	return filepath.Join(s.SecureDir, ACLDirName)
}

// EnsureSecureDir creates the secure directory and its ACL subdirectory
// owned by the broker user.
func (s *Syncer) EnsureSecureDir() error {
	for _, dir := range []string{s.SecureDir, s.SecureACLDir()} {
		if err := os.MkdirAll(dir, secureDirMode); err != nil {
			return fmt.Errorf("failed to create secure directory: %w", err)
		}
		if err := s.chownFn()(dir, s.Owner.UID, s.Owner.GID); err != nil {
			return fmt.Errorf("failed to chown %s: %w", dir, err)
		}
		if err := os.Chmod(dir, secureDirMode); err != nil {
			return fmt.Errorf("failed to chmod %s: %w", dir, err)
		}
	}
	return nil
}

// Sync copies the staging password file and every staging ACL file into
// the secure directory. A failure on one file is recorded in the report and
// the remaining files are still processed. ACL files that no longer exist
// in staging are removed from the secure directory.
func (s *Syncer) Sync() (*SyncReport, error) {
	if err := s.EnsureSecureDir(); err != nil {
		return nil, err
	}

	report := &SyncReport{}

	src := filepath.Join(s.StagingDir, PasswordFileName)
	if _, err := os.Stat(src); err == nil {
		s.syncFile(report, src, s.SecurePasswordFile())
	} else if !errors.Is(err, os.ErrNotExist) {
		report.fail(src, "stat", err)
	}

	stagedACLs := make(map[string]bool)
	entries, err := os.ReadDir(filepath.Join(s.StagingDir, ACLDirName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		report.fail(filepath.Join(s.StagingDir, ACLDirName), "readdir", err)
		return report, nil
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stagedACLs[entry.Name()] = true
		s.syncFile(report,
			filepath.Join(s.StagingDir, ACLDirName, entry.Name()),
			filepath.Join(s.SecureACLDir(), entry.Name()))
	}

	secured, err := os.ReadDir(s.SecureACLDir())
	if err != nil {
		report.fail(s.SecureACLDir(), "readdir", err)
		return report, nil
	}
	for _, entry := range secured {
		if entry.IsDir() || stagedACLs[entry.Name()] {
			continue
		}
		stale := filepath.Join(s.SecureACLDir(), entry.Name())
		if err := os.Remove(stale); err != nil {
			report.fail(stale, "remove", err)
			continue
		}
		report.Removed = append(report.Removed, stale)
	}

	sort.Strings(report.Removed)
	return report, nil
}

func (s *Syncer) syncFile(report *SyncReport, src, dst string) {
	if err := copyFile(src, dst); err != nil {
		report.fail(dst, "copy", err)
		return
	}
	if err := s.chownFn()(dst, s.Owner.UID, s.Owner.GID); err != nil {
		report.fail(dst, "chown", err)
		return
	}
	if err := os.Chmod(dst, secureFileMode); err != nil {
		report.fail(dst, "chmod", err)
		return
	}
	report.Copied = append(report.Copied, dst)
}

// PathMode pairs a broker-owned path with the mode it should carry
type PathMode struct {
	Path string
	Mode os.FileMode
}

// NormalizePermissions hands broker-owned staging files to the broker
// user. Missing paths are skipped; every other failure is logged and
// returned in the report.
func (s *Syncer) NormalizePermissions(paths []PathMode) *SyncReport {
	report := &SyncReport{}
	for _, p := range paths {
		if _, err := os.Stat(p.Path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := s.chownFn()(p.Path, s.Owner.UID, s.Owner.GID); err != nil {
			report.fail(p.Path, "chown", err)
			continue
		}
		if err := os.Chmod(p.Path, p.Mode); err != nil {
			report.fail(p.Path, "chmod", err)
			continue
		}
		report.Copied = append(report.Copied, p.Path)
	}
	return report
}

func (s *Syncer) chownFn() func(string, int, int) error {
	if s.chown == nil {
		return os.Chown
	}
	return s.chown
}

// copyFile replaces dst with the contents of src. The destination is
// written to a temporary file first so the broker never reads a partial
// file.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(secureFileMode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
