package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/broker"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/importer"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/log"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/logstream"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/types"
)

const maxUploadSize = 10 << 20

// Response is the envelope of every mutating endpoint
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	State   interface{} `json:"state,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Paths   interface{} `json:"paths,omitempty"`
	Path    string      `json:"path,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, Response{Success: false, Error: err.Error()})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrMalformedDocument):
		return http.StatusBadRequest
	case errors.Is(err, broker.ErrNotRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// modificationTimer is implemented by stores that record save times
type modificationTimer interface {
	UpdatedAt() (time.Time, error)
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	doc, err := s.opts.Store.LoadDocument()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if mt, ok := s.opts.Store.(modificationTimer); ok {
		if at, err := mt.UpdatedAt(); err == nil && !at.IsZero() {
			w.Header().Set("Last-Modified", at.UTC().Format(http.TimeFormat))
		}
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) postState(w http.ResponseWriter, r *http.Request) {
	var doc types.Document
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadSize)).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid document: %w", err))
		return
	}

	// Dashboards that never render administrators omit them. The list
	// never becomes empty through this route.
	if len(doc.Administrators) == 0 {
		current, err := s.opts.Store.LoadDocument()
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		doc.Administrators = current.Administrators
	}

	if err := s.opts.Store.SaveDocument(&doc); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, State: &doc})
}

func (s *Server) apply(w http.ResponseWriter, r *http.Request) {
	result, err := s.opts.Pipeline.RunApply(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), Response{Success: false, Error: err.Error(), Result: result})
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: result.Message, Result: result})
}

func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Broker.Reload(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Reload signal sent"})
}

func (s *Server) logs(w http.ResponseWriter, r *http.Request) {
	lines, err := logstream.RecentLines(s.opts.LogFile, s.opts.LogLines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"logs": lines})
}

func (s *Server) clients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Sessions.Sessions())
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Stats.Snapshot())
}

func (s *Server) generateCerts(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.opts.Pipeline.GenerateCertificateBundle(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Paths: bundle})
}

func (s *Server) certDir() string {
	return filepath.Join(s.opts.StagingDir, "certs")
}

func (s *Server) uploadCert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("no file uploaded"))
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == "/" || strings.HasPrefix(name, ".") {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid file name %q", header.Filename))
		return
	}
	if err := os.MkdirAll(s.certDir(), 0750); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	dst := filepath.Join(s.certDir(), name)
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0640)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := out.Close(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	log.WithComponent("api").Info().Str("path", dst).Msg("Certificate uploaded")
	writeJSON(w, http.StatusOK, Response{Success: true, Path: dst})
}

func (s *Server) downloadCert(w http.ResponseWriter, r *http.Request) {
	requested := r.URL.Query().Get("path")
	if requested == "" {
		http.Error(w, "Missing path parameter", http.StatusBadRequest)
		return
	}

	root, err := filepath.Abs(s.opts.StagingDir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resolved, err := filepath.Abs(requested)
	if err != nil {
		http.Error(w, "Access denied", http.StatusForbidden)
		return
	}
	if !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		http.Error(w, "Access denied", http.StatusForbidden)
		return
	}
	if info, err := os.Stat(resolved); err != nil || info.IsDir() {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(resolved)))
	http.ServeFile(w, r, resolved)
}

func (s *Server) exportBackup(w http.ResponseWriter, r *http.Request) {
	doc, err := s.opts.Store.LoadDocument()
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="mosquitto-manager-config.json"`)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) importBackup(w http.ResponseWriter, r *http.Request) {
	data, ok := readUpload(w, r)
	if !ok {
		return
	}

	current, err := s.opts.Store.LoadDocument()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	doc, err := importer.DecodeBackup(data, current)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if err := s.opts.Store.SaveDocument(doc); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	// Not applied automatically; the operator reviews first
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: `Configuration imported successfully. Please review and click "Apply Config".`,
		State:   doc,
	})
}

func (s *Server) importConf(w http.ResponseWriter, r *http.Request) {
	data, ok := readUpload(w, r)
	if !ok {
		return
	}

	current, err := s.opts.Store.LoadDocument()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	doc := importer.MergeBrokerConfig(current, importer.ParseMosquittoConf(string(data)))
	if err := s.opts.Store.SaveDocument(doc); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: fmt.Sprintf("Imported %d listeners from mosquitto.conf", len(doc.Listeners)),
		State:   doc,
	})
}

// readUpload returns the "file" form field, or the raw body when the
// request is not multipart
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("no file uploaded"))
			return nil, false
		}
		defer file.Close()
		src = file
	}

	data, err := io.ReadAll(src)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no file uploaded"))
		return nil, false
	}
	return data, true
}
