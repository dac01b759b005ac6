package slmea

import (
	"fmt"
)

// System holds the sampling parameters of a recording.
type System struct {
	// Sample period
	Ts float64
	// starting time
	StartTime float64
	// ending time
	EndTime float64
	// Number of samples
	N int
	// Number of recording electrodes
	NumberOfElectrodes int
	// Number of simulated cells, zero for raw recordings
	NumberOfCells int
}

// NewSystem derives the timing of n samples at srate Hz starting at zero.
func NewSystem(srate float64, n int) (System, error) {
	if !(srate > 0) {
		return System{}, fmt.Errorf("%w: sample rate %g", ErrRecording, srate)
	}
	ts := 1 / srate
	return System{Ts: ts, EndTime: float64(n) * ts, N: n}, nil
}

// TimeStamps returns the time of every sample.
func (s System) TimeStamps() []float64 {
	tmp := make([]float64, s.N)
	for index := range tmp {
		tmp[index] = s.StartTime + float64(index)*s.Ts
	}
	return tmp
}
