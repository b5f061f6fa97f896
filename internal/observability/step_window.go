package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

type StepStats struct {
	Action      string  `json:"action"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type StepIndicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type StepWindowSnapshot struct {
	GeneratedAt time.Time       `json:"generated_at"`
	WindowSize  int             `json:"window_size"`
	Actions     []StepStats     `json:"actions"`
	Indicators  []StepIndicator `json:"indicators,omitempty"`
}

// stepWindow keeps a fixed-size ring of recent durations per workflow action,
// plus plain counters for events that carry no duration.
type stepWindow struct {
	mu         sync.RWMutex
	maxSamples int
	actions    map[string]*stepBuffer
	indicators map[string]int
}

type stepBuffer struct {
	values []float64
	next   int
	filled bool
	last   float64
}

func newStepWindow(maxSamples int) *stepWindow {
	if maxSamples <= 0 {
		maxSamples = 256
	}
	return &stepWindow{
		maxSamples: maxSamples,
		actions:    make(map[string]*stepBuffer),
		indicators: make(map[string]int),
	}
}

func (w *stepWindow) Observe(action string, ms float64) {
	if action == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	buf, ok := w.actions[action]
	if !ok {
		buf = &stepBuffer{
			values: make([]float64, w.maxSamples),
		}
		w.actions[action] = buf
	}
	buf.values[buf.next] = ms
	buf.last = ms
	buf.next++
	if buf.next >= len(buf.values) {
		buf.next = 0
		buf.filled = true
	}
}

func (w *stepWindow) Snapshot() StepWindowSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	actions := make([]StepStats, 0, len(w.actions))
	keys := make([]string, 0, len(w.actions))
	for action := range w.actions {
		keys = append(keys, action)
	}
	sort.Strings(keys)

	for _, action := range keys {
		buf := w.actions[action]
		if buf == nil {
			continue
		}
		n := buf.next
		if buf.filled {
			n = len(buf.values)
		}
		if n <= 0 {
			continue
		}
		samples := make([]float64, n)
		copy(samples, buf.values[:n])
		sort.Float64s(samples)

		sum := 0.0
		for _, v := range samples {
			sum += v
		}

		actions = append(actions, StepStats{
			Action:      action,
			Samples:     n,
			LastMS:      round2(buf.last),
			AvgMS:       round2(sum / float64(n)),
			P50MS:       round2(quantile(samples, 0.50)),
			P95MS:       round2(quantile(samples, 0.95)),
			P99MS:       round2(quantile(samples, 0.99)),
			TargetP95MS: actionTargetP95MS(action),
		})
	}

	indicators := make([]StepIndicator, 0, len(w.indicators))
	indicatorKeys := make([]string, 0, len(w.indicators))
	for name := range w.indicators {
		indicatorKeys = append(indicatorKeys, name)
	}
	sort.Strings(indicatorKeys)
	for _, name := range indicatorKeys {
		count := w.indicators[name]
		if count <= 0 {
			continue
		}
		indicators = append(indicators, StepIndicator{
			Name:  name,
			Count: count,
		})
	}

	return StepWindowSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.maxSamples,
		Actions:     actions,
		Indicators:  indicators,
	}
}

func (w *stepWindow) ObserveIndicator(name string) {
	if w == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[name]++
}

func (w *stepWindow) Reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.actions = make(map[string]*stepBuffer)
	w.indicators = make(map[string]int)
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := q * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// actionTargetP95MS returns the informal latency budget for the known portal
// actions. wait_user_confirm is user-paced and has no target.
func actionTargetP95MS(action string) float64 {
	switch action {
	case "open_portal":
		return 8000
	case "submit_credentials":
		return 3000
	case "check_session":
		return 2000
	case "persist_state":
		return 1500
	default:
		return 0
	}
}
