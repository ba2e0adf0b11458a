package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/anstrom/netscope/internal/config"
	"github.com/anstrom/netscope/internal/discovery"
	"github.com/anstrom/netscope/internal/errors"
	"github.com/anstrom/netscope/internal/logging"
	"github.com/anstrom/netscope/internal/netprobe"
	"github.com/anstrom/netscope/internal/report"
)

// NetworkRequest is the optional body of POST /api/scanner/network.
type NetworkRequest struct {
	Base string `json:"base"`
	Low  *int   `json:"low" validate:"omitempty,min=0,max=255"`
	High *int   `json:"high" validate:"omitempty,min=0,max=255"`
}

// PortsRequest is the body of POST /api/scanner/ports.
type PortsRequest struct {
	Target string `json:"target"`
	Ports  []int  `json:"ports" validate:"omitempty,dive,min=1,max=65535"`
}

// ScannerHandler serves the discovery and port scan endpoints.
type ScannerHandler struct {
	discovery   HostDiscoverer
	scanner     PortScanner
	defaults    config.DiscoveryConfig
	maxBodySize int64
	validator   *validator.Validate
	logger      *logging.Logger
}

// NewScannerHandler creates a scanner handler. defaults supplies the host
// range when a request omits it.
func NewScannerHandler(d HostDiscoverer, s PortScanner, defaults config.DiscoveryConfig,
	maxBodySize int64, logger *logging.Logger) *ScannerHandler {
	return &ScannerHandler{
		discovery:   d,
		scanner:     s,
		defaults:    defaults,
		maxBodySize: maxBodySize,
		validator:   newValidator(),
		logger:      logger.WithFields("handler", "scanner"),
	}
}

// Network handles POST /api/scanner/network.
func (h *ScannerHandler) Network(w http.ResponseWriter, r *http.Request) {
	var req NetworkRequest
	if err := parseJSON(r, h.maxBodySize, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, r, validationError(err))
		return
	}

	base, low, high := h.resolveSweep(req.Base, req.Low, req.High)

	hosts, err := h.discovery.Stream(r.Context(), base, low, high, nil)
	if err != nil {
		h.logger.ErrorDiscovery("Discovery request failed", base, err)
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, report.Discovery(netprobe.LocalIPv4(), hosts))
}

// Ports handles POST /api/scanner/ports.
func (h *ScannerHandler) Ports(w http.ResponseWriter, r *http.Request) {
	var req PortsRequest
	if err := parseJSON(r, h.maxBodySize, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Target == "" {
		writeError(w, r, errors.ErrValidation("Target IP is required"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, r, validationError(err))
		return
	}

	ports, err := h.scanner.Stream(r.Context(), req.Target, req.Ports, nil)
	if err != nil {
		h.logger.ErrorScan("Port scan request failed", req.Target, err)
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, report.Ports(req.Target, ports))
}

// resolveSweep fills the subnet base and host range from the defaults.
func (h *ScannerHandler) resolveSweep(base string, low, high *int) (string, int, int) {
	if base == "" {
		base = discovery.LocalSubnetBase()
	}
	lo, hi := h.defaults.Low, h.defaults.High
	if low != nil {
		lo = *low
	}
	if high != nil {
		hi = *high
	}
	return base, lo, hi
}
