// Package capture analyzes recorded traffic. A capture file is read in a
// single sequential pass; every IPv4 frame is classified by protocol number
// and folded into protocol, talker and per-second timeline statistics.
// Frames without an IPv4 header are ignored.
package capture

import (
	"context"
	stderrors "errors"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/anstrom/netscope/internal/config"
	"github.com/anstrom/netscope/internal/errors"
	"github.com/anstrom/netscope/internal/logging"
	"github.com/anstrom/netscope/internal/metrics"
)

const (
	DefaultPreviewLimit = 100
	DefaultTopN         = 5
)

// Summary holds the exact statistics of a capture.
type Summary struct {
	TotalPackets    int            `json:"total_packets"`
	Duration        float64        `json:"duration"`
	Protocols       map[string]int `json:"protocols"`
	TopSources      Ranking        `json:"top_sources"`
	TopDestinations Ranking        `json:"top_destinations"`
}

// Result is the outcome of one analysis.
type Result struct {
	Summary  Summary        `json:"summary"`
	Packets  []Frame        `json:"packets"`
	Timeline map[string]int `json:"timeline"`
}

// Config controls report shaping.
type Config struct {
	PreviewLimit int
	TopN         int
}

// Analyzer runs capture analyses.
type Analyzer struct {
	config   Config
	recorder metrics.Recorder
	logger   *logging.Logger
}

// NewAnalyzer creates an analyzer. A negative PreviewLimit disables the
// preview; zero values select the defaults.
func NewAnalyzer(cfg Config) *Analyzer {
	if cfg.PreviewLimit == 0 {
		cfg.PreviewLimit = DefaultPreviewLimit
	}
	if cfg.PreviewLimit < 0 {
		cfg.PreviewLimit = 0
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	return &Analyzer{
		config:   cfg,
		recorder: metrics.Nop{},
		logger:   logging.Default().WithComponent("capture"),
	}
}

// NewAnalyzerFromConfig builds an analyzer from the capture config section.
func NewAnalyzerFromConfig(cfg config.CaptureConfig) *Analyzer {
	return NewAnalyzer(Config{PreviewLimit: cfg.PreviewLimit, TopN: cfg.TopN})
}

// SetRecorder sets the metrics sink.
func (a *Analyzer) SetRecorder(r metrics.Recorder) {
	if r != nil {
		a.recorder = r
	}
}

// SetLogger sets the logger.
func (a *Analyzer) SetLogger(l *logging.Logger) {
	if l != nil {
		a.logger = l.WithComponent("capture")
	}
}

// AnalyzeFile opens path and analyzes it.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		a.recorder.RecordCapture("error", 0, nil)
		switch {
		case stderrors.Is(err, fs.ErrNotExist):
			return nil, errors.ErrFileNotFound(path)
		case stderrors.Is(err, fs.ErrPermission):
			return nil, errors.WrapCaptureError(errors.CodeFilePermission, "Permission denied", err).WithPath(path)
		default:
			return nil, errors.ErrCaptureParse(path, err)
		}
	}
	defer f.Close()

	return a.analyze(ctx, f, path)
}

// Analyze reads a capture from r. Any read or container error aborts the
// pass and no partial result is returned.
func (a *Analyzer) Analyze(ctx context.Context, r io.Reader) (*Result, error) {
	return a.analyze(ctx, r, "")
}

func (a *Analyzer) analyze(ctx context.Context, r io.Reader, path string) (*Result, error) {
	start := time.Now()

	result, format, err := a.pass(ctx, r)
	if err != nil {
		status := "error"
		if errors.IsCode(err, errors.CodeCanceled) || errors.IsCode(err, errors.CodeTimeout) {
			status = "canceled"
		}
		var captureErr *errors.CaptureError
		if stderrors.As(err, &captureErr) && captureErr.Path == "" {
			captureErr.Path = path
		}

		a.recorder.RecordCapture(status, time.Since(start), nil)
		a.logger.ErrorCapture("Capture analysis failed", path, err)
		return nil, err
	}

	a.recorder.RecordCapture("success", time.Since(start), result.Summary.Protocols)
	a.logger.InfoCapture("Capture analysis completed", path,
		"format", format,
		"frames", result.Summary.TotalPackets,
		"duration", time.Since(start))

	return result, nil
}

func (a *Analyzer) pass(ctx context.Context, r io.Reader) (*Result, Format, error) {
	src, format, err := openSource(r)
	if err != nil {
		return nil, "", err
	}

	agg := newAggregator(a.config.PreviewLimit)
	decode := gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	for record := 1; ; record++ {
		if err := ctx.Err(); err != nil {
			return nil, format, errors.ErrCanceled("analyze_capture", err)
		}

		data, ci, err := src.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			captureErr := errors.ErrCaptureParse("", err)
			captureErr.Frame = record
			return nil, format, captureErr
		}

		linkType, err := src.linkType(ci)
		if err == nil {
			err = checkLinkType(linkType)
		}
		if err != nil {
			var captureErr *errors.CaptureError
			if !stderrors.As(err, &captureErr) {
				captureErr = errors.ErrCaptureParse("", err)
			}
			captureErr.Frame = record
			return nil, format, captureErr
		}

		packet := gopacket.NewPacket(data, linkType, decode)
		ipLayer, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		if !ok {
			continue
		}

		agg.add(newFrame(packet, ipLayer, ci), ci.Timestamp)
	}

	return agg.result(a.config.TopN), format, nil
}
