package trafficgen

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

const (
	ethernetHeaderSize = 14
	ipv4HeaderSize     = 20
	udpHeaderSize      = 8
	vxlanUDPPort       = 4789

	// Ethertype used when a stream carries no IP header at all.
	etherTypeRawPayload = layers.EthernetType(0x88B5)
)

var (
	defaultSrcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	defaultDstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// BuildFrame assembles the template frame the driver uploads to the
// device for one stream on one port. The base frame is FrameSize bytes;
// encapsulation and VxLAN headers are prepended on top, matching what
// CalculateOverhead accounts for.
//
// The inputs are expected to have passed ValidateRequest; inconsistent
// combinations return an error instead of a malformed frame.
func BuildFrame(stream *Stream, setting *StreamSetting) ([]byte, error) {
	srcMAC, dstMAC, err := resolveMACs(setting)
	if err != nil {
		return nil, err
	}

	inner, err := buildBaseFrame(stream, setting, srcMAC, dstMAC)
	if err != nil {
		return nil, err
	}

	if stream.Encapsulation == EncapsulationSRv6 {
		inner, err = wrapSRv6(stream, setting, inner)
		if err != nil {
			return nil, err
		}
	}

	if stream.VxLAN {
		inner, err = wrapVxLAN(setting, inner)
		if err != nil {
			return nil, err
		}
	}

	return inner, nil
}

func resolveMACs(setting *StreamSetting) (net.HardwareAddr, net.HardwareAddr, error) {
	src, dst := defaultSrcMAC, defaultDstMAC
	if setting.Ethernet != nil {
		var err error
		if src, err = net.ParseMAC(setting.Ethernet.SrcMAC); err != nil {
			return nil, nil, errors.Wrapf(err, "invalid eth_src for stream #%d", setting.StreamID)
		}
		if dst, err = net.ParseMAC(setting.Ethernet.DstMAC); err != nil {
			return nil, nil, errors.Wrapf(err, "invalid eth_dst for stream #%d", setting.StreamID)
		}
	}
	return src, dst, nil
}

// buildBaseFrame builds Ethernet + VLAN tags + MPLS stack + IP + UDP +
// padding. SRv6 streams get their inner packet here; the SRH and outer
// IPv6 header are wrapped around it afterwards.
func buildBaseFrame(stream *Stream, setting *StreamSetting, srcMAC, dstMAC net.HardwareAddr) ([]byte, error) {
	payloadType := etherTypeRawPayload
	headerLen := ethernetHeaderSize
	hasIP := stream.IPVersion != nil &&
		(stream.Encapsulation != EncapsulationSRv6 || stream.ipTunneling())

	var network gopacket.NetworkLayer
	var ipLayer gopacket.SerializableLayer
	if hasIP {
		switch *stream.IPVersion {
		case 4:
			if setting.IP == nil {
				return nil, errors.Errorf("no IPv4 settings for stream #%d on port %d", setting.StreamID, setting.Port)
			}
			ip4 := &layers.IPv4{
				Version:  4,
				IHL:      5,
				TOS:      setting.IP.ToS,
				TTL:      64,
				SrcIP:    net.ParseIP(setting.IP.SrcIP),
				DstIP:    net.ParseIP(setting.IP.DstIP),
				Protocol: layers.IPProtocolUDP,
			}
			network, ipLayer = ip4, ip4
			payloadType = layers.EthernetTypeIPv4
			headerLen += ipv4HeaderSize + udpHeaderSize
		case 6:
			if setting.IPv6 == nil {
				return nil, errors.Errorf("no IPv6 settings for stream #%d on port %d", setting.StreamID, setting.Port)
			}
			ip6 := &layers.IPv6{
				Version:      6,
				TrafficClass: setting.IPv6.TrafficClass,
				FlowLabel:    setting.IPv6.FlowLabel,
				HopLimit:     64,
				SrcIP:        net.ParseIP(setting.IPv6.SrcIP),
				DstIP:        net.ParseIP(setting.IPv6.DstIP),
				NextHeader:   layers.IPProtocolUDP,
			}
			network, ipLayer = ip6, ip6
			payloadType = layers.EthernetTypeIPv6
			headerLen += ipv6HeaderSize + udpHeaderSize
		default:
			return nil, errors.Errorf("unsupported IP version for stream #%d", stream.StreamID)
		}
	}

	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: payloadType,
	}

	frameLayers := []gopacket.SerializableLayer{eth}

	switch stream.Encapsulation {
	case EncapsulationVlan, EncapsulationQinQ:
		if setting.Vlan == nil {
			return nil, errors.Errorf("no VLAN settings for stream #%d on port %d", setting.StreamID, setting.Port)
		}
		eth.EthernetType = layers.EthernetTypeDot1Q
		outer := &layers.Dot1Q{
			Priority:       setting.Vlan.PCP,
			DropEligible:   setting.Vlan.DEI,
			VLANIdentifier: setting.Vlan.VlanID,
			Type:           payloadType,
		}
		frameLayers = append(frameLayers, outer)
		if stream.Encapsulation == EncapsulationQinQ {
			outer.Type = layers.EthernetTypeDot1Q
			frameLayers = append(frameLayers, &layers.Dot1Q{
				Priority:       setting.Vlan.InnerPCP,
				DropEligible:   setting.Vlan.InnerDEI,
				VLANIdentifier: setting.Vlan.InnerVlanID,
				Type:           payloadType,
			})
		}
	case EncapsulationMpls:
		if len(setting.MplsStack) == 0 {
			return nil, errors.Errorf("no MPLS stack for stream #%d on port %d", setting.StreamID, setting.Port)
		}
		eth.EthernetType = layers.EthernetTypeMPLSUnicast
		for i, lse := range setting.MplsStack {
			frameLayers = append(frameLayers, &layers.MPLS{
				Label:        lse.Label,
				TrafficClass: lse.TC,
				TTL:          lse.TTL,
				StackBottom:  i == len(setting.MplsStack)-1,
			})
		}
	}

	if int(stream.FrameSize) < headerLen+4 {
		return nil, errors.Errorf("frame size %d of stream #%d too small for its headers", stream.FrameSize, stream.StreamID)
	}
	// FCS is appended by the MAC, not part of the template.
	payload := make([]byte, int(stream.FrameSize)-headerLen-4)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if hasIP {
		udp := &layers.UDP{SrcPort: 50083, DstPort: 50083}
		if err := udp.SetNetworkLayerForChecksum(network); err != nil {
			return nil, errors.Wrap(err, "failed to set network layer for checksum")
		}
		frameLayers = append(frameLayers, ipLayer, udp)
	}
	frameLayers = append(frameLayers, gopacket.Payload(payload))

	if err := gopacket.SerializeLayers(buf, opts, frameLayers...); err != nil {
		return nil, errors.Wrap(err, "failed to serialize base frame")
	}
	return buf.Bytes(), nil
}

// wrapSRv6 prepends outer Ethernet + IPv6 + SRH to the inner packet.
// gopacket cannot serialize segment routing headers, so the SRH is
// assembled by hand.
func wrapSRv6(stream *Stream, setting *StreamSetting, inner []byte) ([]byte, error) {
	if len(setting.SidList) == 0 {
		return nil, errors.Errorf("no SID list for stream #%d on port %d", setting.StreamID, setting.Port)
	}
	// Strip the inner Ethernet header; the segments carry an IP packet.
	if len(inner) < ethernetHeaderSize {
		return nil, errors.New("inner frame shorter than an Ethernet header")
	}
	innerPacket := inner[ethernetHeaderSize:]

	next := layers.IPProtocolNoNextHeader
	if stream.ipTunneling() && stream.IPVersion != nil {
		if *stream.IPVersion == 6 {
			next = layers.IPProtocolIPv6
		} else {
			next = layers.IPProtocolIPv4
		}
	}
	srh, err := buildSRH(setting.SidList, next)
	if err != nil {
		return nil, err
	}

	srcMAC, dstMAC, err := resolveMACs(setting)
	if err != nil {
		return nil, err
	}
	lastSID := net.ParseIP(setting.SidList[len(setting.SidList)-1])

	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv6,
	}
	ip6 := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		SrcIP:      net.ParseIP("::1"),
		DstIP:      lastSID,
		NextHeader: layers.IPProtocolIPv6Routing,
	}
	if setting.IPv6 != nil {
		ip6.SrcIP = net.ParseIP(setting.IPv6.SrcIP)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	err = gopacket.SerializeLayers(buf, opts,
		eth, ip6, gopacket.Payload(srh), gopacket.Payload(innerPacket))
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize SRv6 frame")
	}
	return buf.Bytes(), nil
}

// buildSRH encodes a segment routing header (RFC 8754) with the SID list
// in reverse order, all segments left.
func buildSRH(sidList []string, next layers.IPProtocol) ([]byte, error) {
	srh := make([]byte, srhBaseSize+srhSegmentSize*len(sidList))
	srh[0] = uint8(next)
	srh[1] = uint8(2 * len(sidList)) // extension length in 8-byte units, first 8 excluded
	srh[2] = 4                       // routing type: segment routing
	srh[3] = uint8(len(sidList))     // segments left
	srh[4] = uint8(len(sidList) - 1) // last entry
	for i, sid := range sidList {
		ip := net.ParseIP(sid)
		if ip == nil || ip.To16() == nil || ip.To4() != nil {
			return nil, errors.Errorf("SID %q is not an IPv6 address", sid)
		}
		// Segment list is encoded in reverse traversal order.
		offset := srhBaseSize + srhSegmentSize*(len(sidList)-1-i)
		copy(srh[offset:offset+srhSegmentSize], ip.To16())
	}
	return srh, nil
}

// wrapVxLAN prepends outer Ethernet + IPv4 + UDP + VxLAN to the inner
// frame.
func wrapVxLAN(setting *StreamSetting, inner []byte) ([]byte, error) {
	if setting.VxLAN == nil {
		return nil, errors.Errorf("no VxLAN settings for stream #%d on port %d", setting.StreamID, setting.Port)
	}

	eth := &layers.Ethernet{
		SrcMAC:       defaultSrcMAC,
		DstMAC:       defaultDstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip4 := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		SrcIP:    net.ParseIP(setting.VxLAN.SrcIP),
		DstIP:    net.ParseIP(setting.VxLAN.DstIP),
		Protocol: layers.IPProtocolUDP,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(setting.VxLAN.UDPSrcPort),
		DstPort: vxlanUDPPort,
	}
	if err := udp.SetNetworkLayerForChecksum(ip4); err != nil {
		return nil, errors.Wrap(err, "failed to set network layer for checksum")
	}
	vxlan := &layers.VXLAN{
		ValidIDFlag: true,
		VNI:         setting.VxLAN.VNI,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	err := gopacket.SerializeLayers(buf, opts, eth, ip4, udp, vxlan, gopacket.Payload(inner))
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize VxLAN frame")
	}
	return buf.Bytes(), nil
}
