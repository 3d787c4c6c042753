package trafficgen

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Encapsulation selects the header stack the device prepends to a stream.
type Encapsulation string

const (
	EncapsulationNone Encapsulation = "none"
	EncapsulationVlan Encapsulation = "vlan"
	EncapsulationQinQ Encapsulation = "qinq"
	EncapsulationMpls Encapsulation = "mpls"
	EncapsulationSRv6 Encapsulation = "srv6"
)

func parseEncapsulation(s string) (Encapsulation, error) {
	switch Encapsulation(s) {
	case EncapsulationNone, EncapsulationVlan, EncapsulationQinQ, EncapsulationMpls, EncapsulationSRv6:
		return Encapsulation(s), nil
	case "":
		return EncapsulationNone, nil
	}
	return "", fmt.Errorf("unknown encapsulation %q", s)
}

func (e *Encapsulation) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	enc, err := parseEncapsulation(s)
	if err != nil {
		return err
	}
	*e = enc
	return nil
}

func (e *Encapsulation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	enc, err := parseEncapsulation(s)
	if err != nil {
		return err
	}
	*e = enc
	return nil
}

// GenerationMode governs the unit of traffic_rate and whether the
// request may be empty.
type GenerationMode string

const (
	// ModeRate generates constant bit rate traffic, traffic_rate in Gbps.
	ModeRate GenerationMode = "rate"
	// ModeMpps generates a fixed packet rate, traffic_rate in Mpps.
	ModeMpps GenerationMode = "mpps"
	// ModeAnalyze only monitors; no streams need to be configured.
	ModeAnalyze GenerationMode = "analyze"
)

func parseGenerationMode(s string) (GenerationMode, error) {
	switch GenerationMode(s) {
	case ModeRate, ModeMpps, ModeAnalyze:
		return GenerationMode(s), nil
	}
	return "", fmt.Errorf("unknown generation mode %q", s)
}

func (m *GenerationMode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	mode, err := parseGenerationMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

func (m *GenerationMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	mode, err := parseGenerationMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Stream is one packet template to generate. Fields that only apply to a
// particular encapsulation are pointers; nil means "not provided".
type Stream struct {
	StreamID      uint32        `yaml:"stream_id" json:"stream_id"`
	FrameSize     uint32        `yaml:"frame_size" json:"frame_size"`
	Encapsulation Encapsulation `yaml:"encapsulation" json:"encapsulation"`

	// MPLS only
	NumberOfLSE *uint32 `yaml:"number_of_lse,omitempty" json:"number_of_lse,omitempty"`

	// SRv6 only
	NumberOfSRv6SIDs *uint32 `yaml:"number_of_srv6_sids,omitempty" json:"number_of_srv6_sids,omitempty"`
	// SRv6IPTunneling selects whether an inner IP header follows the SRH.
	// Absent counts as true.
	SRv6IPTunneling *bool `yaml:"srv6_ip_tunneling,omitempty" json:"srv6_ip_tunneling,omitempty"`

	// IPVersion is 4 or 6 when the stream carries an IP header.
	IPVersion *uint8 `yaml:"ip_version,omitempty" json:"ip_version,omitempty"`

	VxLAN bool `yaml:"vxlan" json:"vxlan"`

	// TrafficRate is Gbps in rate mode and Mpps in mpps mode.
	TrafficRate float64 `yaml:"traffic_rate" json:"traffic_rate"`
}

// ipTunneling reports whether the stream carries an inner IP header.
// Only meaningful for SRv6 streams; defaults to true when unset.
func (s *Stream) ipTunneling() bool {
	if s.SRv6IPTunneling == nil {
		return true
	}
	return *s.SRv6IPTunneling
}

// StreamSetting holds the concrete header values for one stream on one
// egress port. Sub-configs are nil when the request did not provide them;
// the validator checks presence against the stream's encapsulation.
type StreamSetting struct {
	StreamID uint32 `yaml:"stream_id" json:"stream_id"`
	Port     uint32 `yaml:"port" json:"port"`

	Ethernet *EthernetSettings `yaml:"ethernet,omitempty" json:"ethernet,omitempty"`
	Vlan     *VlanSettings     `yaml:"vlan,omitempty" json:"vlan,omitempty"`
	// MplsStack is ordered top of stack first. nil means not provided; an
	// explicit empty list is a provided stack of length zero.
	MplsStack []MplsHeader `yaml:"mpls_stack,omitempty" json:"mpls_stack,omitempty"`
	// SidList is ordered segment identifiers, nil when not provided.
	SidList []string       `yaml:"sid_list,omitempty" json:"sid_list,omitempty"`
	IP      *IPv4Settings  `yaml:"ip,omitempty" json:"ip,omitempty"`
	IPv6    *IPv6Settings  `yaml:"ipv6,omitempty" json:"ipv6,omitempty"`
	VxLAN   *VxLANSettings `yaml:"vxlan,omitempty" json:"vxlan,omitempty"`
}

type EthernetSettings struct {
	SrcMAC string `yaml:"eth_src" json:"eth_src"`
	DstMAC string `yaml:"eth_dst" json:"eth_dst"`
}

// VlanSettings carries the outer tag, and for QinQ the inner tag as well.
type VlanSettings struct {
	VlanID      uint16 `yaml:"vlan_id" json:"vlan_id"`
	PCP         uint8  `yaml:"pcp" json:"pcp"`
	DEI         bool   `yaml:"dei" json:"dei"`
	InnerVlanID uint16 `yaml:"inner_vlan_id" json:"inner_vlan_id"`
	InnerPCP    uint8  `yaml:"inner_pcp" json:"inner_pcp"`
	InnerDEI    bool   `yaml:"inner_dei" json:"inner_dei"`
}

// MplsHeader is a single label stack entry.
type MplsHeader struct {
	Label uint32 `yaml:"label" json:"label"`
	TC    uint8  `yaml:"tc" json:"tc"`
	TTL   uint8  `yaml:"ttl" json:"ttl"`
}

type IPv4Settings struct {
	SrcIP string `yaml:"ip_src" json:"ip_src"`
	DstIP string `yaml:"ip_dst" json:"ip_dst"`
	ToS   uint8  `yaml:"ip_tos" json:"ip_tos"`
}

type IPv6Settings struct {
	SrcIP        string `yaml:"ipv6_src" json:"ipv6_src"`
	DstIP        string `yaml:"ipv6_dst" json:"ipv6_dst"`
	TrafficClass uint8  `yaml:"ipv6_traffic_class" json:"ipv6_traffic_class"`
	FlowLabel    uint32 `yaml:"ipv6_flow_label" json:"ipv6_flow_label"`
}

type VxLANSettings struct {
	SrcIP      string `yaml:"ip_src" json:"ip_src"`
	DstIP      string `yaml:"ip_dst" json:"ip_dst"`
	UDPSrcPort uint16 `yaml:"udp_source" json:"udp_source"`
	VNI        uint32 `yaml:"vni" json:"vni"`
}
