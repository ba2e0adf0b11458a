package cli

import (
	"context"

	"github.com/anstrom/netscope/internal/capture"
	"github.com/anstrom/netscope/internal/config"
	"github.com/anstrom/netscope/internal/discovery"
	"github.com/anstrom/netscope/internal/netprobe"
	"github.com/anstrom/netscope/internal/portscan"
	"github.com/anstrom/netscope/internal/scheduler"
)

// captureAnalyzer summarizes a capture file.
type captureAnalyzer interface {
	AnalyzeFile(ctx context.Context, path string) (*capture.Result, error)
}

// Engine factories. Tests replace them with fakes.
var (
	newDiscoverer = func(cfg config.DiscoveryConfig) (scheduler.Discoverer, error) {
		engine, err := discovery.NewEngineFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return engine, nil
	}

	newPortScanner = func(cfg config.ScanningConfig) scheduler.PortScanner {
		return portscan.NewEngineFromConfig(cfg)
	}

	newAnalyzer = func(cfg config.CaptureConfig) captureAnalyzer {
		return capture.NewAnalyzerFromConfig(cfg)
	}

	localIPv4       = netprobe.LocalIPv4
	localSubnetBase = discovery.LocalSubnetBase
)
