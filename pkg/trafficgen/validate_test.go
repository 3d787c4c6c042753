package trafficgen

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u32(v uint32) *uint32 { return &v }
func u8(v uint8) *uint8    { return &v }
func boolp(v bool) *bool   { return &v }

func mplsStack(n int) []MplsHeader {
	stack := make([]MplsHeader, n)
	for i := range stack {
		stack[i] = MplsHeader{Label: uint32(100 + i), TTL: 64}
	}
	return stack
}

func validMplsStream() Stream {
	return Stream{
		StreamID:      1,
		FrameSize:     1000,
		Encapsulation: EncapsulationMpls,
		NumberOfLSE:   u32(3),
		IPVersion:     u8(4),
		TrafficRate:   10,
	}
}

func validMplsSetting() StreamSetting {
	return StreamSetting{
		StreamID:  1,
		Port:      140,
		MplsStack: mplsStack(3),
		IP:        &IPv4Settings{SrcIP: "10.0.0.1", DstIP: "10.0.0.2"},
	}
}

func TestValidateRequestMplsAccept(t *testing.T) {
	streams := []Stream{validMplsStream()}
	settings := []StreamSetting{validMplsSetting()}

	err := ValidateRequest(streams, settings, ModeRate, false)
	assert.NoError(t, err)
}

func TestValidateRequestMplsStructural(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Stream)
		wantErr string
	}{
		{
			name:    "missing lse count",
			mutate:  func(s *Stream) { s.NumberOfLSE = nil },
			wantErr: "number_of_lse missing for stream #1",
		},
		{
			name:    "lse count exceeds maximum",
			mutate:  func(s *Stream) { s.NumberOfLSE = u32(MaxNumMplsLabel + 1) },
			wantErr: fmt.Sprintf("Configured number of LSEs in stream with ID #1 exceeded maximum of %d.", MaxNumMplsLabel),
		},
		{
			name:    "lse count zero",
			mutate:  func(s *Stream) { s.NumberOfLSE = u32(0) },
			wantErr: "MPLS encapsulation selected for stream with ID #1 but #LSE is zero.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := validMplsStream()
			tt.mutate(&stream)
			err := ValidateRequest([]Stream{stream}, []StreamSetting{validMplsSetting()}, ModeRate, false)
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestValidateRequestMplsStackLength(t *testing.T) {
	stream := validMplsStream()

	setting := validMplsSetting()
	setting.MplsStack = mplsStack(2)
	err := ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, false)
	assert.EqualError(t, err, "Number of LSEs in stream with ID #1 does not match length of the MPLS stack.")

	setting.MplsStack = nil
	err = ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, false)
	assert.EqualError(t, err, "No MPLS stack provided for stream with ID #1 on port 140.")

	// Equal lengths pass.
	setting.MplsStack = mplsStack(3)
	err = ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, false)
	assert.NoError(t, err)
}

func validSRv6Stream() Stream {
	return Stream{
		StreamID:         2,
		FrameSize:        512,
		Encapsulation:    EncapsulationSRv6,
		NumberOfSRv6SIDs: u32(2),
		IPVersion:        u8(4),
		TrafficRate:      10,
	}
}

func validSRv6Setting() StreamSetting {
	return StreamSetting{
		StreamID: 2,
		Port:     141,
		SidList:  []string{"fc00::1", "fc00::2"},
		IP:       &IPv4Settings{SrcIP: "10.0.0.1", DstIP: "10.0.0.2"},
	}
}

func TestValidateRequestSRv6(t *testing.T) {
	streams := []Stream{validSRv6Stream()}
	settings := []StreamSetting{validSRv6Setting()}

	// Tofino1 does not support SRv6, regardless of the other fields.
	err := ValidateRequest(streams, settings, ModeRate, false)
	assert.EqualError(t, err, "SRv6 is only supported on Tofino2.")

	err = ValidateRequest(streams, settings, ModeRate, true)
	assert.NoError(t, err)
}

func TestValidateRequestSRv6Structural(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Stream)
		wantErr string
	}{
		{
			name:    "missing sid count",
			mutate:  func(s *Stream) { s.NumberOfSRv6SIDs = nil },
			wantErr: "number_of_srv6_sids missing for stream #2",
		},
		{
			name:    "sid count exceeds maximum",
			mutate:  func(s *Stream) { s.NumberOfSRv6SIDs = u32(MaxNumSRv6SIDs + 1) },
			wantErr: fmt.Sprintf("Configured number of SIDs in stream with ID #2 exceeded maximum of %d.", MaxNumSRv6SIDs),
		},
		{
			name:    "sid count zero",
			mutate:  func(s *Stream) { s.NumberOfSRv6SIDs = u32(0) },
			wantErr: "SRv6 encapsulation selected for stream with ID #2 but #SIDs is zero.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := validSRv6Stream()
			tt.mutate(&stream)
			err := ValidateRequest([]Stream{stream}, []StreamSetting{validSRv6Setting()}, ModeRate, true)
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestValidateRequestSRv6SidListLength(t *testing.T) {
	stream := validSRv6Stream()

	setting := validSRv6Setting()
	setting.SidList = []string{"fc00::1"}
	err := ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, true)
	assert.EqualError(t, err, "Number of SIDs in stream with ID #2 does not match length of the SID list.")

	setting.SidList = nil
	err = ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, true)
	assert.EqualError(t, err, "No SID list provided for stream with ID #2 on port 141.")
}

func TestValidateRequestSRv6WithoutTunnelingSkipsIPChecks(t *testing.T) {
	stream := validSRv6Stream()
	stream.SRv6IPTunneling = boolp(false)

	// No IP settings needed when the SRH carries no inner IP header.
	setting := validSRv6Setting()
	setting.IP = nil
	err := ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, true)
	assert.NoError(t, err)

	// Absent tunneling flag defaults to true and requires IP settings again.
	stream.SRv6IPTunneling = nil
	err = ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, true)
	assert.EqualError(t, err, "Missing IPv4 settings for stream with ID #2 on port 141.")
}

func TestValidateRequestVlan(t *testing.T) {
	stream := Stream{
		StreamID:      3,
		FrameSize:     128,
		Encapsulation: EncapsulationVlan,
		TrafficRate:   1,
	}
	setting := StreamSetting{StreamID: 3, Port: 142}

	err := ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, false)
	assert.EqualError(t, err, "VLAN encapsulation selected for stream with ID #3, but no VLAN settings provided for port 142.")

	setting.Vlan = &VlanSettings{VlanID: 100}
	err = ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, false)
	assert.NoError(t, err)

	// QinQ uses the same settings block.
	stream.Encapsulation = EncapsulationQinQ
	setting.Vlan = nil
	err = ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, false)
	assert.EqualError(t, err, "VLAN encapsulation selected for stream with ID #3, but no VLAN settings provided for port 142.")
}

func TestValidateRequestIPVersion(t *testing.T) {
	stream := Stream{StreamID: 4, FrameSize: 128, IPVersion: u8(5), TrafficRate: 1}
	setting := StreamSetting{StreamID: 4, Port: 143}

	err := ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, false)
	assert.EqualError(t, err, "Unsupported IP version for stream with ID #4 on port 143.")

	stream.IPVersion = u8(4)
	err = ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, false)
	assert.EqualError(t, err, "Missing IPv4 settings for stream with ID #4 on port 143.")

	stream.IPVersion = u8(6)
	err = ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, false)
	assert.EqualError(t, err, "Missing IPv6 settings for stream with ID #4 on port 143.")

	setting.IPv6 = &IPv6Settings{SrcIP: "fc00::1", DstIP: "fc00::2"}
	err = ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, false)
	assert.NoError(t, err)

	// No IP version at all is fine.
	stream.IPVersion = nil
	setting.IPv6 = nil
	err = ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, false)
	assert.NoError(t, err)
}

func TestValidateRequestVxLAN(t *testing.T) {
	stream := Stream{
		StreamID:    5,
		FrameSize:   256,
		VxLAN:       true,
		IPVersion:   u8(4),
		TrafficRate: 1,
	}
	setting := StreamSetting{
		StreamID: 5,
		Port:     144,
		IP:       &IPv4Settings{SrcIP: "10.0.0.1", DstIP: "10.0.0.2"},
	}

	err := ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, false)
	assert.EqualError(t, err, "Stream with ID #5 is a VxLAN stream but no VxLAN settings provided.")

	setting.VxLAN = &VxLANSettings{SrcIP: "10.1.0.1", DstIP: "10.1.0.2", UDPSrcPort: 4100, VNI: 42}
	err = ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, false)
	assert.NoError(t, err)

	// VxLAN excludes IPv6.
	stream.IPVersion = u8(6)
	setting.IPv6 = &IPv6Settings{SrcIP: "fc00::1", DstIP: "fc00::2"}
	err = ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, false)
	assert.EqualError(t, err, "VxLAN with IPv6 is not supported! (Stream with ID #5)")
}

func TestValidateRequestVxLANWithSRv6(t *testing.T) {
	stream := validSRv6Stream()
	stream.VxLAN = true
	setting := validSRv6Setting()
	setting.VxLAN = &VxLANSettings{SrcIP: "10.1.0.1", DstIP: "10.1.0.2", VNI: 42}

	err := ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeRate, true)
	assert.EqualError(t, err, "Combination of VxLAN and SRv6 is not supported (Stream with ID #2)")
}

// The VxLAN presence check runs against every setting in the request,
// including settings of other streams.
func TestValidateRequestVxLANChecksForeignSettings(t *testing.T) {
	vxlanStream := Stream{
		StreamID:    5,
		FrameSize:   256,
		VxLAN:       true,
		TrafficRate: 1,
	}
	vxlanSetting := StreamSetting{
		StreamID: 5,
		Port:     144,
		VxLAN:    &VxLANSettings{SrcIP: "10.1.0.1", DstIP: "10.1.0.2", VNI: 42},
	}
	otherSetting := StreamSetting{StreamID: 6, Port: 145}

	err := ValidateRequest([]Stream{vxlanStream}, []StreamSetting{vxlanSetting, otherSetting}, ModeRate, false)
	assert.EqualError(t, err, "Stream with ID #5 is a VxLAN stream but no VxLAN settings provided.")
}

// Settings whose stream_id matches no stream are not rejected.
func TestValidateRequestDanglingSettingAccepted(t *testing.T) {
	streams := []Stream{validMplsStream()}
	settings := []StreamSetting{validMplsSetting(), {StreamID: 99, Port: 146}}

	err := ValidateRequest(streams, settings, ModeRate, false)
	assert.NoError(t, err)
}

func TestValidateRequestFrameSizeSum(t *testing.T) {
	streams := []Stream{
		{StreamID: 1, FrameSize: 40000, TrafficRate: 1},
		{StreamID: 2, FrameSize: 40000, TrafficRate: 1},
	}
	settings := []StreamSetting{
		{StreamID: 1, Port: 140},
		{StreamID: 2, Port: 141},
	}

	err := ValidateRequest(streams, settings, ModeRate, false)
	assert.EqualError(t, err, fmt.Sprintf("Sum of packet size too large. Maximal sum of packets size: %dB", MaxBufferSize))
}

func TestValidateRequestEmptyRequest(t *testing.T) {
	err := ValidateRequest(nil, nil, ModeRate, false)
	assert.EqualError(t, err, "No active streams provided.")

	err = ValidateRequest(nil, []StreamSetting{{StreamID: 1, Port: 140}}, ModeRate, false)
	assert.EqualError(t, err, "No stream provided.")

	// Analyze mode monitors only and needs no streams.
	err = ValidateRequest(nil, nil, ModeAnalyze, false)
	assert.NoError(t, err)
}

func TestValidateRequestRateCeiling(t *testing.T) {
	streams := []Stream{
		{StreamID: 1, FrameSize: 1000, TrafficRate: 60},
		{StreamID: 2, FrameSize: 1000, TrafficRate: 60},
	}
	settings := []StreamSetting{
		{StreamID: 1, Port: 140},
		{StreamID: 2, Port: 141},
	}

	// 120 Gbps exceeds Tofino1 but fits Tofino2.
	err := ValidateRequest(streams, settings, ModeRate, false)
	assert.EqualError(t, err, "Traffic rate in sum larger than maximal supported rate.")

	err = ValidateRequest(streams, settings, ModeRate, true)
	assert.NoError(t, err)

	// Analyze mode ignores the configured rates.
	err = ValidateRequest(streams, settings, ModeAnalyze, false)
	assert.NoError(t, err)
}

func TestValidateRequestMppsRate(t *testing.T) {
	stream := Stream{StreamID: 1, FrameSize: 1000, TrafficRate: 50}
	setting := StreamSetting{StreamID: 1, Port: 140}

	// (1000 + 0 + 20) * 8 * 50 / 1000 = 408 Gbps on the wire.
	err := ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeMpps, false)
	assert.EqualError(t, err, "Traffic rate in sum larger than maximal supported rate.")

	// 12 Mpps of 1000 byte frames is roughly 98 Gbps and fits.
	stream.TrafficRate = 12
	err = ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeMpps, false)
	assert.NoError(t, err)
}

func TestValidateRequestMppsRateIncludesOverhead(t *testing.T) {
	// 12 Mpps of plain 1000 byte frames fits; the same rate with a full
	// MPLS stack does not, because the label stack counts on the wire.
	stream := Stream{
		StreamID:      1,
		FrameSize:     1000,
		Encapsulation: EncapsulationMpls,
		NumberOfLSE:   u32(15),
		TrafficRate:   12,
	}
	setting := StreamSetting{StreamID: 1, Port: 140, MplsStack: mplsStack(15)}

	err := ValidateRequest([]Stream{stream}, []StreamSetting{setting}, ModeMpps, false)
	assert.EqualError(t, err, "Traffic rate in sum larger than maximal supported rate.")
}

func TestValidateRequestIdempotent(t *testing.T) {
	streams := []Stream{validMplsStream(), validSRv6Stream()}
	settings := []StreamSetting{validMplsSetting(), validSRv6Setting()}

	first := ValidateRequest(streams, settings, ModeRate, false)
	second := ValidateRequest(streams, settings, ModeRate, false)
	require.Error(t, first)
	require.Error(t, second)
	assert.Equal(t, first.Error(), second.Error())

	okFirst := ValidateRequest(streams, settings, ModeRate, true)
	okSecond := ValidateRequest(streams, settings, ModeRate, true)
	assert.NoError(t, okFirst)
	assert.NoError(t, okSecond)
}
