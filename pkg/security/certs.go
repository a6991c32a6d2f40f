package security

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/log"
)

const (
	// Certificate rotation threshold: rotate when less than 30 days remaining
	certRotationThreshold = 30 * 24 * time.Hour

	// DefaultCertValidityDays is the lifetime of generated certificates
	DefaultCertValidityDays = 3650
)

// CommandRunner executes an external program
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// Run executes name with args in dir and returns combined output
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("%s %v: %w: %s", name, args, err, bytes.TrimSpace(out.Bytes()))
	}
	return out.Bytes(), nil
}

// Bundle is the set of paths produced by GenerateBundle
type Bundle struct {
	CAPath   string `json:"ca"`
	CertPath string `json:"serverCert"`
	KeyPath  string `json:"serverKey"`
}

// CertGenerator produces a CA, a server and a client certificate with
// openssl. The CA is generated once and reused on later runs.
type CertGenerator struct {
	Dir    string
	Days   int
	Binary string
	Runner CommandRunner
}

// NewCertGenerator creates a generator writing into dir
func NewCertGenerator(dir string) *CertGenerator {
	return &CertGenerator{
		Dir:    dir,
		Days:   DefaultCertValidityDays,
		Binary: "openssl",
		Runner: ExecRunner{},
	}
}

// GenerateBundle creates or refreshes the certificate bundle and returns
// the paths a TLS listener needs.
func (g *CertGenerator) GenerateBundle(ctx context.Context) (*Bundle, error) {
	logger := log.WithComponent("certs")

	if err := os.MkdirAll(g.Dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cert directory: %w", err)
	}

	p := func(name string) string { return filepath.Join(g.Dir, name) }
	days := strconv.Itoa(g.Days)

	caKey, caCrt := p("ca.key"), p("ca.crt")
	if !fileExists(caKey) || !fileExists(caCrt) {
		logger.Info().Str("dir", g.Dir).Msg("Generating CA")
		err := g.run(ctx, "req", "-new", "-x509", "-days", days, "-extensions", "v3_ca",
			"-keyout", caKey, "-out", caCrt, "-nodes", "-subj", "/CN=Mosquitto CA")
		if err != nil {
			return nil, fmt.Errorf("failed to generate CA: %w", err)
		}
	}

	for _, leaf := range []struct{ name, cn string }{
		{"server", "localhost"},
		{"client", "client"},
	} {
		logger.Info().Str("cert", leaf.name).Msg("Generating certificate")
		key, csr, crt := p(leaf.name+".key"), p(leaf.name+".csr"), p(leaf.name+".crt")

		steps := [][]string{
			{"genrsa", "-out", key, "2048"},
			{"req", "-new", "-key", key, "-out", csr, "-subj", "/CN=" + leaf.cn},
			{"x509", "-req", "-in", csr, "-CA", caCrt, "-CAkey", caKey, "-CAcreateserial",
				"-out", crt, "-days", days},
		}
		for _, args := range steps {
			if err := g.run(ctx, args...); err != nil {
				return nil, fmt.Errorf("failed to generate %s certificate: %w", leaf.name, err)
			}
		}
		if err := os.Remove(csr); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", csr).Msg("Failed to remove CSR")
		}
	}

	return &Bundle{
		CAPath:   caCrt,
		CertPath: p("server.crt"),
		KeyPath:  p("server.key"),
	}, nil
}

func (g *CertGenerator) run(ctx context.Context, args ...string) error {
	runner := g.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	binary := g.Binary
	if binary == "" {
		binary = "openssl"
	}
	_, err := runner.Run(ctx, g.Dir, binary, args...)
	return err
}

// LoadCertificate reads a PEM certificate from path
func LoadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}

	// Decode PEM
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

// CertNeedsRotation returns true if the certificate should be rotated
// This happens when less than 30 days remain until expiry
func CertNeedsRotation(cert *x509.Certificate) bool {
	if cert == nil {
		return true
	}
	return time.Until(cert.NotAfter) < certRotationThreshold
}

// VerifyBundle checks that the server certificate is signed by the CA
func VerifyBundle(b *Bundle) error {
	ca, err := LoadCertificate(b.CAPath)
	if err != nil {
		return err
	}
	cert, err := LoadCertificate(b.CertPath)
	if err != nil {
		return err
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca)

	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}
	return nil
}

// GetCertInfo returns human-readable information about a certificate
func GetCertInfo(cert *x509.Certificate) map[string]interface{} {
	if cert == nil {
		return map[string]interface{}{"error": "certificate is nil"}
	}

	return map[string]interface{}{
		"subject":        cert.Subject.CommonName,
		"issuer":         cert.Issuer.CommonName,
		"serial_number":  cert.SerialNumber.String(),
		"not_before":     cert.NotBefore.Format(time.RFC3339),
		"not_after":      cert.NotAfter.Format(time.RFC3339),
		"is_ca":          cert.IsCA,
		"needs_rotation": CertNeedsRotation(cert),
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
