package trafficgen

// Header sizes in bytes.
const (
	vlanHeaderSize    = 4
	mplsHeaderSize    = 4
	ipv6HeaderSize    = 40
	srhBaseSize       = 8
	srhSegmentSize    = 16
	vxlanOverheadSize = 50 // outer Ethernet + IPv4 + UDP + VxLAN
)

// CalculateOverhead returns the bytes the encapsulation headers add on
// top of the declared frame size of a stream. Nil counts contribute
// nothing; the validator rejects such streams before they reach the
// device.
func CalculateOverhead(stream *Stream) uint32 {
	var overhead uint32

	switch stream.Encapsulation {
	case EncapsulationVlan:
		overhead += vlanHeaderSize
	case EncapsulationQinQ:
		overhead += 2 * vlanHeaderSize
	case EncapsulationMpls:
		if stream.NumberOfLSE != nil {
			overhead += mplsHeaderSize * *stream.NumberOfLSE
		}
	case EncapsulationSRv6:
		if stream.NumberOfSRv6SIDs != nil {
			overhead += srhBaseSize + srhSegmentSize**stream.NumberOfSRv6SIDs
		}
		// With IP tunneling the original packet keeps its IP header and a
		// full outer IPv6 header is added in front of the SRH.
		if stream.ipTunneling() {
			overhead += ipv6HeaderSize
		}
	}

	if stream.VxLAN {
		overhead += vxlanOverheadSize
	}

	return overhead
}
