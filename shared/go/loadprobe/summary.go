package loadprobe

import (
	"slices"
	"time"
)

// Summary aggregates burst latencies.
type Summary struct {
	Path        string        `json:"path"`
	Requests    int           `json:"requests"`
	Concurrency int           `json:"concurrency"`
	Failures    int           `json:"failures"`
	Statuses    map[int]int   `json:"statuses"`
	Min         time.Duration `json:"min"`
	Max         time.Duration `json:"max"`
	Mean        time.Duration `json:"mean"`
	P50         time.Duration `json:"p50"`
	P95         time.Duration `json:"p95"`
	Wall        time.Duration `json:"wall"`
}

// Summarize computes latency statistics. Failed samples count towards
// Failures and are excluded from the latency figures.
func Summarize(samples []Sample) Summary {
	s := Summary{Requests: len(samples), Statuses: map[int]int{}}

	latencies := make([]time.Duration, 0, len(samples))
	for _, sample := range samples {
		if sample.Status != 0 {
			s.Statuses[sample.Status]++
		}
		if !sample.OK() {
			s.Failures++
			continue
		}
		latencies = append(latencies, sample.Latency())
	}
	if len(latencies) == 0 {
		return s
	}

	slices.Sort(latencies)
	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	s.Min = latencies[0]
	s.Max = latencies[len(latencies)-1]
	s.Mean = total / time.Duration(len(latencies))
	s.P50 = percentile(latencies, 50)
	s.P95 = percentile(latencies, 95)
	return s
}

// percentile uses the nearest-rank method on sorted input.
func percentile(sorted []time.Duration, p int) time.Duration {
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
