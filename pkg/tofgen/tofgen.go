package tofgen

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/message"

	"github.com/tofgen/tofgen/pkg/driver"
	"github.com/tofgen/tofgen/pkg/logger"
	"github.com/tofgen/tofgen/pkg/trafficgen"
)

type CancelFunc func(ctx context.Context) error

// Tofgen wires the request gate and the device driver together.
type Tofgen struct {
	Logger        *zap.Logger
	cleanupFnList []CancelFunc

	cfg Config
}

func New(cfg Config) (*Tofgen, error) {
	var cleanupFnList []CancelFunc
	lg, cleanup, err := logger.NewLogger(cfg.LoggerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed init logger: %w", err)
	}
	cleanupFnList = append(cleanupFnList, cleanup)

	return &Tofgen{
		Logger:        lg,
		cleanupFnList: cleanupFnList,
		cfg:           cfg,
	}, nil
}

// loadAndValidate reads the request file and runs it through the gate.
// The validation error is returned unchanged so callers can surface the
// exact rejection reason.
func (t *Tofgen) loadAndValidate() (*trafficgen.Request, error) {
	req, err := trafficgen.LoadRequest(t.cfg.RequestPath)
	if err != nil {
		return nil, err
	}

	if err := req.Validate(t.cfg.Tofino2); err != nil {
		t.Logger.Warn("request rejected", zap.Error(err))
		return nil, err
	}

	t.Logger.Info("request accepted",
		zap.Int("streams", len(req.Streams)),
		zap.Int("settings", len(req.StreamSettings)),
		zap.String("mode", string(req.Mode)),
	)
	return req, nil
}

// ValidateOnly runs the gate without touching the device.
func (t *Tofgen) ValidateOnly() error {
	_, err := t.loadAndValidate()
	return err
}

// Run validates the request, programs the device and arms generation.
func (t *Tofgen) Run(ctx context.Context) error {
	if err := t.cfg.validateDevice(); err != nil {
		return err
	}

	req, err := t.loadAndValidate()
	if err != nil {
		return err
	}

	d, err := t.openDriver(ctx)
	if err != nil {
		return err
	}

	for i := range req.Streams {
		stream := &req.Streams[i]
		for j := range req.StreamSettings {
			setting := &req.StreamSettings[j]
			if setting.StreamID != stream.StreamID {
				continue
			}
			if err := d.SetupStream(ctx, stream, setting); err != nil {
				return err
			}
		}
	}

	if err := d.Start(ctx, req.Mode); err != nil {
		return err
	}

	t.logRateSummary(req)
	return nil
}

// ShowStats polls the egress counters of every port in the request once
// per second until the context is cancelled.
func (t *Tofgen) ShowStats(ctx context.Context) error {
	if err := t.cfg.validateDevice(); err != nil {
		return err
	}

	req, err := trafficgen.LoadRequest(t.cfg.RequestPath)
	if err != nil {
		return err
	}
	ports := requestPorts(req)
	if len(ports) == 0 {
		return fmt.Errorf("no ports in request")
	}

	d, err := t.openDriver(ctx)
	if err != nil {
		return err
	}

	prev := make(map[uint32]driver.PortCounters, len(ports))
	p := message.NewPrinter(message.MatchLanguage("en"))
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, port := range ports {
				counters, err := d.Counters(ctx, port)
				if err != nil {
					t.Logger.Error("failed to read counters", zap.Uint32("port", port), zap.Error(err))
					continue
				}
				deltaFrames := counters.Frames - prev[port].Frames
				deltaOctets := counters.Octets - prev[port].Octets
				prev[port] = *counters
				p.Printf("port %d: %d frames/s, %.2f Mbps\n", port, deltaFrames, float64(deltaOctets*8)/1000/1000)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (t *Tofgen) openDriver(ctx context.Context) (driver.Driver, error) {
	d, err := driver.Open(ctx, driver.Config{
		Addr:       t.cfg.DeviceAddr,
		DeviceID:   t.cfg.DeviceID,
		ElectionID: t.cfg.ElectionID,
	}, t.Logger)
	if err != nil {
		return nil, err
	}
	t.cleanupFnList = append(t.cleanupFnList, func(_ context.Context) error {
		return d.Close()
	})
	return d, nil
}

func (t *Tofgen) logRateSummary(req *trafficgen.Request) {
	var rate float64
	for i := range req.Streams {
		s := &req.Streams[i]
		if req.Mode == trafficgen.ModeMpps {
			rate += float64(s.FrameSize+trafficgen.CalculateOverhead(s)+trafficgen.FrameOverhead) * 8 * s.TrafficRate / 1000
		} else {
			rate += s.TrafficRate
		}
	}
	t.Logger.Info("generation armed", zap.Float64("aggregate_gbps", rate))
}

// requestPorts collects the distinct ports of the request in order of
// first appearance.
func requestPorts(req *trafficgen.Request) []uint32 {
	seen := make(map[uint32]struct{}, len(req.StreamSettings))
	var ports []uint32
	for _, setting := range req.StreamSettings {
		if _, ok := seen[setting.Port]; ok {
			continue
		}
		seen[setting.Port] = struct{}{}
		ports = append(ports, setting.Port)
	}
	return ports
}

func (t *Tofgen) Close() {
	for _, fn := range t.cleanupFnList {
		if err := fn(context.Background()); err != nil {
			t.Logger.Error("failed to cleanup", zap.Error(err))
		}
	}
	t.Logger.Info("tofgen cleanup completed")
}
