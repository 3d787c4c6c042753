package trafficgen

// Hardware limits of the traffic generation pipeline.
const (
	// MaxNumMplsLabel is the maximum MPLS label stack depth per stream.
	MaxNumMplsLabel = 15
	// MaxNumSRv6SIDs is the maximum number of SIDs in the segment routing header.
	MaxNumSRv6SIDs = 3
	// MaxBufferSize is the packet buffer of the generation engine; the
	// template frames of all streams share it.
	MaxBufferSize = 65535
	// FrameOverhead is preamble + inter-frame gap on the wire.
	FrameOverhead = 20
)

// Supported maximum aggregate generation rates in Gbps.
const (
	MaxRate        = 100.0
	MaxRateTofino2 = 400.0
)
