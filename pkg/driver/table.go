package driver

import (
	"encoding/binary"
	"math"

	p4 "github.com/p4lang/p4runtime/go/p4/v1"

	"github.com/tofgen/tofgen/pkg/trafficgen"
)

// Object ids of the traffic generation pipeline. Fixed by the P4 program
// loaded on the switch; resolving them from p4info at runtime is not
// worth it for a single program.
const (
	tableStreamSettings = 0x0200004b
	tableAppControl     = 0x02000051

	actionSetStream = 0x01000040
	actionArm       = 0x01000044

	counterTxStats = 0x1200003c
)

// Action parameter ids of set_stream.
const (
	paramFrame = iota + 1
	paramRateMilli
)

// newStreamEntry builds the stream_settings entry keyed by stream id and
// egress port, carrying the template frame and the target rate in 1/1000
// units of the mode's rate unit.
func newStreamEntry(stream *trafficgen.Stream, setting *trafficgen.StreamSetting, frame []byte) *p4.TableEntry {
	rateMilli := uint64(math.Round(stream.TrafficRate * 1000))

	return &p4.TableEntry{
		TableId: tableStreamSettings,
		Match: []*p4.FieldMatch{
			{
				FieldId: 1,
				FieldMatchType: &p4.FieldMatch_Exact_{
					Exact: &p4.FieldMatch_Exact{Value: uint32Bytes(stream.StreamID)},
				},
			},
			{
				FieldId: 2,
				FieldMatchType: &p4.FieldMatch_Exact_{
					Exact: &p4.FieldMatch_Exact{Value: uint32Bytes(setting.Port)},
				},
			},
		},
		Action: &p4.TableAction{
			Type: &p4.TableAction_Action{
				Action: &p4.Action{
					ActionId: actionSetStream,
					Params: []*p4.Action_Param{
						{ParamId: paramFrame, Value: frame},
						{ParamId: paramRateMilli, Value: uint64Bytes(rateMilli)},
					},
				},
			},
		},
	}
}

// newAppControlEntry builds the single app_control entry that arms the
// pipeline in the requested mode.
func newAppControlEntry(mode trafficgen.GenerationMode) *p4.TableEntry {
	return &p4.TableEntry{
		TableId: tableAppControl,
		Match: []*p4.FieldMatch{
			{
				FieldId: 1,
				FieldMatchType: &p4.FieldMatch_Exact_{
					Exact: &p4.FieldMatch_Exact{Value: []byte{modeCode(mode)}},
				},
			},
		},
		Action: &p4.TableAction{
			Type: &p4.TableAction_Action{
				Action: &p4.Action{ActionId: actionArm},
			},
		},
	}
}

func modeCode(mode trafficgen.GenerationMode) byte {
	switch mode {
	case trafficgen.ModeMpps:
		return 2
	case trafficgen.ModeAnalyze:
		return 3
	default:
		return 1
	}
}

func uint32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
