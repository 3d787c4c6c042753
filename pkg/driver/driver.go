// Package driver programs the traffic generation pipeline of a Tofino
// switch over P4Runtime. It consumes requests that already passed
// trafficgen.ValidateRequest; nothing here re-checks them.
package driver

import (
	"context"

	p4 "github.com/p4lang/p4runtime/go/p4/v1"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"

	"github.com/tofgen/tofgen/pkg/trafficgen"
)

// Driver is the dispatch interface towards the generation hardware.
type Driver interface {
	// SetupStream installs the frame template and rate of one stream on
	// one egress port.
	SetupStream(ctx context.Context, stream *trafficgen.Stream, setting *trafficgen.StreamSetting) error
	// Start arms the generation pipeline in the given mode.
	Start(ctx context.Context, mode trafficgen.GenerationMode) error
	// Stop disarms the pipeline and clears the installed streams.
	Stop(ctx context.Context) error
	// Counters reads the TX frame and byte counters of a port.
	Counters(ctx context.Context, port uint32) (*PortCounters, error)
	Close() error
}

// PortCounters is one readout of the egress counters of a port.
type PortCounters struct {
	Port   uint32
	Frames uint64
	Octets uint64
}

// Config carries the connection parameters of the switch.
type Config struct {
	// Addr is the P4Runtime endpoint, host:port.
	Addr     string
	DeviceID uint64
	// ElectionID of this controller; must win mastership on the device.
	ElectionID uint64
}

// Tofino drives a Tofino/Tofino2 switch over P4Runtime.
type Tofino struct {
	conn    *grpc.ClientConn
	client  p4.P4RuntimeClient
	channel p4.P4Runtime_StreamChannelClient
	cfg     Config
	log     *zap.Logger

	installed []*p4.TableEntry
}

// Open connects to the switch and acquires mastership. The fabric is a
// closed lab network, so the connection is plaintext.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Tofino, error) {
	conn, err := grpc.Dial(cfg.Addr, grpc.WithInsecure())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", cfg.Addr)
	}

	d := &Tofino{
		conn:   conn,
		client: p4.NewP4RuntimeClient(conn),
		cfg:    cfg,
		log:    log,
	}

	if err := d.arbitrate(ctx); err != nil {
		d.Close()
		return nil, err
	}
	log.Info("connected to device",
		zap.String("addr", cfg.Addr),
		zap.Uint64("device_id", cfg.DeviceID),
	)
	return d, nil
}

// arbitrate opens the stream channel and claims mastership for our
// election id.
func (d *Tofino) arbitrate(ctx context.Context) error {
	channel, err := d.client.StreamChannel(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to open stream channel")
	}
	d.channel = channel

	err = channel.Send(&p4.StreamMessageRequest{
		Update: &p4.StreamMessageRequest_Arbitration{
			Arbitration: &p4.MasterArbitrationUpdate{
				DeviceId:   d.cfg.DeviceID,
				ElectionId: &p4.Uint128{Low: d.cfg.ElectionID},
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to send arbitration update")
	}

	resp, err := channel.Recv()
	if err != nil {
		return errors.Wrap(err, "failed to receive arbitration response")
	}
	arb := resp.GetArbitration()
	if arb == nil {
		return errors.New("unexpected message on stream channel during arbitration")
	}
	if arb.GetStatus().GetCode() != int32(codes.OK) {
		return errors.Errorf("device refused mastership: %s", arb.GetStatus().GetMessage())
	}
	return nil
}

func (d *Tofino) SetupStream(ctx context.Context, stream *trafficgen.Stream, setting *trafficgen.StreamSetting) error {
	frame, err := trafficgen.BuildFrame(stream, setting)
	if err != nil {
		return errors.Wrapf(err, "failed to build frame for stream #%d", stream.StreamID)
	}

	entry := newStreamEntry(stream, setting, frame)
	if err := d.insertEntry(ctx, entry); err != nil {
		return errors.Wrapf(err, "failed to install stream #%d on port %d", stream.StreamID, setting.Port)
	}
	d.installed = append(d.installed, entry)

	d.log.Debug("installed stream",
		zap.Uint32("stream_id", stream.StreamID),
		zap.Uint32("port", setting.Port),
		zap.Int("frame_len", len(frame)),
	)
	return nil
}

func (d *Tofino) Start(ctx context.Context, mode trafficgen.GenerationMode) error {
	entry := newAppControlEntry(mode)
	if err := d.insertEntry(ctx, entry); err != nil {
		return errors.Wrap(err, "failed to arm generation")
	}
	d.installed = append(d.installed, entry)
	d.log.Info("generation started", zap.String("mode", string(mode)))
	return nil
}

func (d *Tofino) Stop(ctx context.Context) error {
	// Delete in reverse so the control entry disappears before the
	// streams it refers to.
	for i := len(d.installed) - 1; i >= 0; i-- {
		if err := d.deleteEntry(ctx, d.installed[i]); err != nil {
			return errors.Wrap(err, "failed to remove installed entry")
		}
	}
	d.installed = nil
	d.log.Info("generation stopped")
	return nil
}

// Counters issues a read for the egress counter of the given port and
// sums the returned units.
func (d *Tofino) Counters(ctx context.Context, port uint32) (*PortCounters, error) {
	req := &p4.ReadRequest{
		DeviceId: d.cfg.DeviceID,
		Entities: []*p4.Entity{{
			Entity: &p4.Entity_CounterEntry{
				CounterEntry: &p4.CounterEntry{
					CounterId: counterTxStats,
					Index:     &p4.Index{Index: int64(port)},
				},
			},
		}},
	}

	rc, err := d.client.Read(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read counters of port %d", port)
	}

	counters := &PortCounters{Port: port}
	for {
		resp, err := rc.Recv()
		if err != nil {
			break
		}
		for _, entity := range resp.GetEntities() {
			ce := entity.GetCounterEntry()
			if ce == nil {
				continue
			}
			counters.Frames += uint64(ce.GetData().GetPacketCount())
			counters.Octets += uint64(ce.GetData().GetByteCount())
		}
	}
	return counters, nil
}

func (d *Tofino) insertEntry(ctx context.Context, entry *p4.TableEntry) error {
	return d.write(ctx, p4.Update_INSERT, entry)
}

func (d *Tofino) deleteEntry(ctx context.Context, entry *p4.TableEntry) error {
	return d.write(ctx, p4.Update_DELETE, entry)
}

func (d *Tofino) write(ctx context.Context, op p4.Update_Type, entry *p4.TableEntry) error {
	req := &p4.WriteRequest{
		DeviceId:   d.cfg.DeviceID,
		ElectionId: &p4.Uint128{Low: d.cfg.ElectionID},
	}
	req.Updates = append(req.Updates, &p4.Update{
		Type: op,
		Entity: &p4.Entity{
			Entity: &p4.Entity_TableEntry{
				TableEntry: entry,
			},
		},
	})
	_, err := d.client.Write(ctx, req)
	return err
}

func (d *Tofino) Close() error {
	if d.channel != nil {
		_ = d.channel.CloseSend()
	}
	return d.conn.Close()
}
