package trafficgen

import (
	"github.com/pkg/errors"
)

// ValidateRequest is the single gate in front of the generation engine.
// It checks that every stream's encapsulation is structurally complete,
// that the per-port settings match what the streams declare, and that the
// request as a whole stays within the hardware limits.
//
// Checks run in a fixed order and the first violation is returned; the
// input is never modified. Calling it twice with the same request yields
// the same verdict.
func ValidateRequest(streams []Stream, settings []StreamSetting, mode GenerationMode, isTofino2 bool) error {
	for i := range streams {
		stream := &streams[i]

		switch stream.Encapsulation {
		case EncapsulationMpls:
			if stream.NumberOfLSE == nil {
				return errors.Errorf("number_of_lse missing for stream #%d", stream.StreamID)
			}
			if *stream.NumberOfLSE > MaxNumMplsLabel {
				return errors.Errorf("Configured number of LSEs in stream with ID #%d exceeded maximum of %d.", stream.StreamID, MaxNumMplsLabel)
			}
			if *stream.NumberOfLSE == 0 {
				return errors.Errorf("MPLS encapsulation selected for stream with ID #%d but #LSE is zero.", stream.StreamID)
			}
		case EncapsulationSRv6:
			if !isTofino2 {
				return errors.New("SRv6 is only supported on Tofino2.")
			}
			if stream.NumberOfSRv6SIDs == nil {
				return errors.Errorf("number_of_srv6_sids missing for stream #%d", stream.StreamID)
			}
			if *stream.NumberOfSRv6SIDs > MaxNumSRv6SIDs {
				return errors.Errorf("Configured number of SIDs in stream with ID #%d exceeded maximum of %d.", stream.StreamID, MaxNumSRv6SIDs)
			}
			if *stream.NumberOfSRv6SIDs == 0 {
				return errors.Errorf("SRv6 encapsulation selected for stream with ID #%d but #SIDs is zero.", stream.StreamID)
			}
		}

		for j := range settings {
			setting := &settings[j]

			if setting.StreamID == stream.StreamID {
				if (stream.Encapsulation == EncapsulationVlan || stream.Encapsulation == EncapsulationQinQ) && setting.Vlan == nil {
					return errors.Errorf("VLAN encapsulation selected for stream with ID #%d, but no VLAN settings provided for port %d.", stream.StreamID, setting.Port)
				}

				if stream.Encapsulation == EncapsulationMpls {
					if setting.MplsStack == nil {
						return errors.Errorf("No MPLS stack provided for stream with ID #%d on port %d.", stream.StreamID, setting.Port)
					}
					if len(setting.MplsStack) != int(*stream.NumberOfLSE) {
						return errors.Errorf("Number of LSEs in stream with ID #%d does not match length of the MPLS stack.", setting.StreamID)
					}
				}

				if stream.Encapsulation == EncapsulationSRv6 {
					if setting.SidList == nil {
						return errors.Errorf("No SID list provided for stream with ID #%d on port %d.", stream.StreamID, setting.Port)
					}
					if len(setting.SidList) != int(*stream.NumberOfSRv6SIDs) {
						return errors.Errorf("Number of SIDs in stream with ID #%d does not match length of the SID list.", setting.StreamID)
					}
				}

				// IP settings are not checked for SRv6 streams without an
				// inner IP header.
				if stream.Encapsulation != EncapsulationSRv6 || stream.ipTunneling() {
					if stream.IPVersion != nil && *stream.IPVersion != 4 && *stream.IPVersion != 6 {
						return errors.Errorf("Unsupported IP version for stream with ID #%d on port %d.", stream.StreamID, setting.Port)
					}
					if stream.IPVersion != nil && *stream.IPVersion == 4 && setting.IP == nil {
						return errors.Errorf("Missing IPv4 settings for stream with ID #%d on port %d.", stream.StreamID, setting.Port)
					} else if stream.IPVersion != nil && *stream.IPVersion == 6 && setting.IPv6 == nil {
						return errors.Errorf("Missing IPv6 settings for stream with ID #%d on port %d.", stream.StreamID, setting.Port)
					}
				}
			}

			// VxLAN settings are checked against every setting in the
			// request, not only the ones belonging to this stream.
			if stream.VxLAN && setting.VxLAN == nil {
				return errors.Errorf("Stream with ID #%d is a VxLAN stream but no VxLAN settings provided.", stream.StreamID)
			}

			if stream.VxLAN && stream.IPVersion != nil && *stream.IPVersion == 6 {
				return errors.Errorf("VxLAN with IPv6 is not supported! (Stream with ID #%d)", stream.StreamID)
			}

			if stream.VxLAN && stream.Encapsulation == EncapsulationSRv6 {
				return errors.Errorf("Combination of VxLAN and SRv6 is not supported (Stream with ID #%d)", stream.StreamID)
			}
		}
	}

	var frameSizeSum uint64
	for i := range streams {
		frameSizeSum += uint64(streams[i].FrameSize)
	}
	if frameSizeSum > MaxBufferSize {
		return errors.Errorf("Sum of packet size too large. Maximal sum of packets size: %dB", MaxBufferSize)
	}

	if len(settings) == 0 && mode != ModeAnalyze {
		return errors.New("No active streams provided.")
	}

	if len(streams) == 0 && mode != ModeAnalyze {
		return errors.New("No stream provided.")
	}

	// At most 100 Gbps (400 Gbps on Tofino2) can be generated in sum.
	var rate float64
	if mode == ModeMpps {
		for i := range streams {
			s := &streams[i]
			rate += float64(s.FrameSize+CalculateOverhead(s)+FrameOverhead) * 8 * s.TrafficRate / 1000
		}
	} else {
		for i := range streams {
			rate += streams[i].TrafficRate
		}
	}

	maxRate := MaxRate
	if isTofino2 {
		maxRate = MaxRateTofino2
	}
	if mode != ModeAnalyze && rate > maxRate {
		return errors.New("Traffic rate in sum larger than maximal supported rate.")
	}

	return nil
}
