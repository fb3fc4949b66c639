package ui

// trafficFloor is the smallest full-scale value for the traffic graph, so
// a trickle of keepalives does not draw as a saturated column.
const trafficFloor = 1024.0

var trafficBlocks = []rune("▁▂▃▄▅▆▇█")

// trafficGraph draws per-second update throughput, oldest sample first, as
// a strip of width block characters. Seconds with no sample yet are blank;
// seconds with no traffic use the lowest block.
func trafficGraph(bytesPerSec []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(bytesPerSec) > width {
		bytesPerSec = bytesPerSec[len(bytesPerSec)-width:]
	}

	scale := trafficFloor
	for _, v := range bytesPerSec {
		scale = max(scale, v)
	}

	out := make([]rune, width)
	blank := width - len(bytesPerSec)
	for i := range blank {
		out[i] = ' '
	}
	top := len(trafficBlocks) - 1
	for i, v := range bytesPerSec {
		idx := 0
		if v > 0 {
			idx = min(int(v/scale*float64(top)), top)
		}
		out[blank+i] = trafficBlocks[idx]
	}
	return string(out)
}
