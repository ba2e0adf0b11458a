package handlers

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/anstrom/netscope/internal/config"
	"github.com/anstrom/netscope/internal/errors"
	"github.com/anstrom/netscope/internal/logging"
	"github.com/anstrom/netscope/internal/report"
)

const (
	uploadField     = "file"
	multipartMemory = 8 << 20
	uploadFilePerm  = 0o600
)

// AllowedCaptureExtensions lists the upload suffixes accepted for analysis.
var AllowedCaptureExtensions = []string{".pcap", ".pcapng", ".cap"}

// PacketHandler serves capture uploads.
type PacketHandler struct {
	analyzer      CaptureAnalyzer
	maxUploadSize int64
	uploadDir     string
	logger        *logging.Logger
}

// NewPacketHandler creates a packet handler. Uploads are staged under
// cfg.UploadDir, or the OS temp dir when unset.
func NewPacketHandler(analyzer CaptureAnalyzer, cfg config.CaptureConfig, logger *logging.Logger) *PacketHandler {
	dir := cfg.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	return &PacketHandler{
		analyzer:      analyzer,
		maxUploadSize: cfg.MaxUploadSize,
		uploadDir:     dir,
		logger:        logger.WithFields("handler", "packet"),
	}
}

// Analyze handles POST /api/packet/analyze.
func (h *PacketHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			writeJSON(w, r, http.StatusRequestEntityTooLarge,
				report.ErrorReport{Error: fmt.Sprintf("File exceeds %d bytes", maxErr.Limit)})
			return
		}
		writeError(w, r, errors.ErrValidation("No file uploaded"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		writeError(w, r, errors.ErrValidation("No file uploaded"))
		return
	}
	defer func() { _ = file.Close() }()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !slices.Contains(AllowedCaptureExtensions, ext) {
		writeError(w, r, errors.ErrValidation("Invalid file type. Only .pcap, .pcapng and .cap files are accepted").
			WithContext("filename", header.Filename))
		return
	}

	path, err := h.stage(file, ext)
	if err != nil {
		h.logger.Error("Failed to stage upload", "error", err)
		writeError(w, r, err)
		return
	}
	defer func() { _ = os.Remove(path) }()

	result, err := h.analyzer.AnalyzeFile(r.Context(), path)
	if err != nil {
		h.logger.ErrorCapture("Capture analysis failed", header.Filename, err)
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, report.Capture(result))
}

// stage copies the upload to a uniquely named file in the upload dir.
func (h *PacketHandler) stage(src io.Reader, ext string) (string, error) {
	path := filepath.Join(h.uploadDir, uuid.NewString()+ext)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, uploadFilePerm)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	return path, nil
}
