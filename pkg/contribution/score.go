package contribution

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/cashew-network/cashew-node/pkg/cashewerr"
	"github.com/cashew-network/cashew-node/pkg/cryptoprim"
	"github.com/cashew-network/cashew-node/pkg/identity"
)

// Fixed scoring weights per the five contribution dimensions.
const (
	UptimeWeight    = 0.30
	BandwidthWeight = 0.25
	StorageWeight   = 0.25
	RoutingWeight   = 0.15
	WitnessWeight   = 0.05

	// monthSeconds anchors the uptime longevity bonus to a 30-day month.
	monthSeconds = 30 * 24 * 3600
	// giB is the byte unit the bandwidth and storage dimensions score against.
	giB = 1 << 30
)

// Score holds each dimension's already-weighted contribution (raw value,
// clamped to its dimension cap, multiplied by that dimension's weight) so
// Total is a plain sum, not a second weighting pass.
type Score struct {
	Uptime    float64
	Bandwidth float64
	Storage   float64
	Routing   float64
	Witness   float64
}

// Total is the sum of the five already-weighted dimensions.
func (s Score) Total() float64 {
	return s.Uptime + s.Bandwidth + s.Storage + s.Routing + s.Witness
}

// KeyType classifies which key-earning-rate table applies to a node,
// determined by which resource it contributes most.
type KeyType int

const (
	KeyTypeService KeyType = iota
	KeyTypeRouting
	KeyTypeNetwork
)

func (k KeyType) String() string {
	switch k {
	case KeyTypeService:
		return "service"
	case KeyTypeRouting:
		return "routing"
	default:
		return "network"
	}
}

// EarningRate converts a total contribution score into a key count: a node
// needs at least MinScoreRequired to earn anything, then earns one key per
// PointsPerKey of score, capped at MaxPerEpoch.
type EarningRate struct {
	PointsPerKey     int
	MaxPerEpoch      int
	MinScoreRequired int
}

var defaultRates = map[KeyType]EarningRate{
	KeyTypeService: {PointsPerKey: 500, MaxPerEpoch: 5, MinScoreRequired: 200},
	KeyTypeRouting: {PointsPerKey: 300, MaxPerEpoch: 10, MinScoreRequired: 100},
	KeyTypeNetwork: {PointsPerKey: 400, MaxPerEpoch: 3, MinScoreRequired: 150},
}

// KeyReward is the outcome of scoring one node for one epoch.
type KeyReward struct {
	NodeID    identity.NodeID
	Epoch     uint64
	KeyType   KeyType
	KeyCount  int
	AwardedAt time.Time
	ProofHash [32]byte
}

// uptimeElapsed is the window total uptime is measured against: the span
// between first and last contact. Using recorded timestamps rather than
// wall-clock "now" keeps the score reproducible for the same Metrics value.
func (m Metrics) uptimeElapsed() time.Duration {
	if !m.LastSeen.After(m.FirstSeen) {
		return m.TotalUptime
	}
	return m.LastSeen.Sub(m.FirstSeen)
}

func clampInt(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// rawUptime is uptime_pct + longevity_bonus, each clamped to 100:
// uptime_pct is the share of the tracked window spent online, and
// longevity_bonus rewards absolute uptime against a 30-day month.
func rawUptime(m Metrics) int64 {
	uptimeSeconds := int64(m.TotalUptime / time.Second)

	elapsed := int64(m.uptimeElapsed() / time.Second)
	var uptimePct int64 = 100
	if elapsed > 0 {
		uptimePct = clampInt(uptimeSeconds*100/elapsed, 0, 100)
	}
	longevityBonus := clampInt(uptimeSeconds*100/monthSeconds, 0, 100)

	return uptimePct + longevityBonus
}

// rawBandwidth is min(200, bytes_routed/GiB).
func rawBandwidth(m Metrics) int64 {
	return clampInt(int64(m.BytesRouted/giB), 0, 200)
}

// rawStorage is min(200, 10*things_hosted + storage_bytes/GiB).
func rawStorage(m Metrics) int64 {
	return clampInt(int64(m.ThingsHosted)*10+int64(m.StorageBytesProvided/giB), 0, 200)
}

// rawRouting is min(100, successful_routes) * reliability.
func rawRouting(m Metrics) int64 {
	base := clampInt(int64(m.SuccessfulRoutes), 0, 100)
	return int64(float64(base) * m.RoutingReliability())
}

// rawWitness is epochs_witnessed*100/(witnessed+missed), or 0 if the node
// has never been asked to witness an epoch.
func rawWitness(m Metrics) int64 {
	total := m.EpochsWitnessed + m.EpochsMissed
	if total == 0 {
		return 0
	}
	return int64(m.EpochsWitnessed) * 100 / int64(total)
}

// CalculateScore scores a node's metrics into the five weighted dimensions.
func CalculateScore(m Metrics) Score {
	return Score{
		Uptime:    float64(int64(float64(rawUptime(m)) * UptimeWeight)),
		Bandwidth: float64(int64(float64(rawBandwidth(m)) * BandwidthWeight)),
		Storage:   float64(int64(float64(rawStorage(m)) * StorageWeight)),
		Routing:   float64(int64(float64(rawRouting(m)) * RoutingWeight)),
		Witness:   float64(int64(float64(rawWitness(m)) * WitnessWeight)),
	}
}

// rawScoreTotal sums the five dimensions' bounded-integer values before any
// weighting. KeyEarningRate's PointsPerKey/MinScoreRequired defaults (up to
// 500) are calibrated against this unweighted scale (max 800), not against
// Score.Total's post-weight scale (max 180) — see DESIGN.md.
func rawScoreTotal(m Metrics) float64 {
	return float64(rawUptime(m) + rawBandwidth(m) + rawStorage(m) + rawRouting(m) + rawWitness(m))
}

// DetermineKeyType classifies a node by its dominant contribution: storage
// dominant -> Service keys, bandwidth dominant -> Routing keys, else ->
// Network keys.
func DetermineKeyType(s Score) KeyType {
	switch {
	case s.Storage > s.Bandwidth && s.Storage > s.Routing:
		return KeyTypeService
	case s.Bandwidth > s.Storage && s.Bandwidth > s.Routing:
		return KeyTypeRouting
	default:
		return KeyTypeNetwork
	}
}

// calculateKeyCount gates the reward on the minimum score, then converts
// the remaining score into a key count at one key per PointsPerKey, capped
// at MaxPerEpoch.
func calculateKeyCount(total float64, rate EarningRate) int {
	if total < float64(rate.MinScoreRequired) {
		return 0
	}
	count := int(total) / rate.PointsPerKey
	if count > rate.MaxPerEpoch {
		count = rate.MaxPerEpoch
	}
	return count
}

func hashContribution(id identity.NodeID, m Metrics, epoch uint64) [32]byte {
	buf := make([]byte, 0, 32+8+8*5)
	buf = append(buf, id[:]...)
	var eb [8]byte
	binary.LittleEndian.PutUint64(eb[:], epoch)
	buf = append(buf, eb[:]...)

	appendU64 := func(v uint64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}
	appendU64(uint64(m.TotalUptime))
	appendU64(m.BytesRouted)
	appendU64(m.StorageBytesProvided)
	appendU64(uint64(m.SuccessfulRoutes))
	appendU64(uint64(m.EpochsWitnessed))

	return cryptoprim.BLAKE3(buf)
}

// Engine runs the epoch scoring/reward process over a Tracker.
type Engine struct {
	mu       sync.Mutex
	tracker  *Tracker
	rates    map[KeyType]EarningRate
	processed map[uint64]bool
	history  map[identity.NodeID][]KeyReward
	totalIssued int
}

// NewEngine constructs an Engine over an existing Tracker, using the
// default earning-rate table.
func NewEngine(tracker *Tracker) *Engine {
	rates := make(map[KeyType]EarningRate, len(defaultRates))
	for k, v := range defaultRates {
		rates[k] = v
	}
	return &Engine{
		tracker:   tracker,
		rates:     rates,
		processed: make(map[uint64]bool),
		history:   make(map[identity.NodeID][]KeyReward),
	}
}

// SetEarningRate overrides the rate table for one KeyType.
func (e *Engine) SetEarningRate(k KeyType, rate EarningRate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rates[k] = rate
}

// GetEarningRate returns the current rate table for one KeyType.
func (e *Engine) GetEarningRate(k KeyType) EarningRate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rates[k]
}

// ProcessEpoch scores every active contributor for epoch and issues
// rewards, exactly once per epoch: a repeat call for an epoch that was
// already processed issues nothing and returns an ErrPolicy error.
func (e *Engine) ProcessEpoch(epoch uint64, activeWindow time.Duration) ([]KeyReward, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.processed[epoch] {
		return nil, fmt.Errorf("%w: epoch %d already processed", cashewerr.ErrPolicy, epoch)
	}

	contributors := e.tracker.ActiveContributors(activeWindow)
	rewards := make([]KeyReward, 0, len(contributors))

	for _, id := range contributors {
		metrics, ok := e.tracker.GetMetrics(id)
		if !ok {
			continue
		}
		score := CalculateScore(metrics)
		keyType := DetermineKeyType(score)
		rate := e.rates[keyType]
		count := calculateKeyCount(rawScoreTotal(metrics), rate)
		if count == 0 {
			continue
		}

		reward := KeyReward{
			NodeID:    id,
			Epoch:     epoch,
			KeyType:   keyType,
			KeyCount:  count,
			AwardedAt: time.Now(),
			ProofHash: hashContribution(id, metrics, epoch),
		}
		rewards = append(rewards, reward)
		e.history[id] = append(e.history[id], reward)
		e.totalIssued += count
	}

	e.processed[epoch] = true
	return rewards, nil
}

// GetNodeHistory returns every KeyReward ever issued to a node.
func (e *Engine) GetNodeHistory(id identity.NodeID) []KeyReward {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]KeyReward(nil), e.history[id]...)
}

// GetTotalKeysAwarded returns the running total of keys issued across all
// nodes and epochs.
func (e *Engine) GetTotalKeysAwarded() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalIssued
}

// GetTopContributors returns the n nodes with the highest cumulative key
// count, highest first.
func (e *Engine) GetTopContributors(n int) []identity.NodeID {
	e.mu.Lock()
	defer e.mu.Unlock()

	type tally struct {
		id    identity.NodeID
		total int
	}
	tallies := make([]tally, 0, len(e.history))
	for id, rewards := range e.history {
		sum := 0
		for _, r := range rewards {
			sum += r.KeyCount
		}
		tallies = append(tallies, tally{id: id, total: sum})
	}

	for i := 0; i < len(tallies); i++ {
		for j := i + 1; j < len(tallies); j++ {
			if tallies[j].total > tallies[i].total {
				tallies[i], tallies[j] = tallies[j], tallies[i]
			}
		}
	}

	if n > len(tallies) {
		n = len(tallies)
	}
	top := make([]identity.NodeID, n)
	for i := 0; i < n; i++ {
		top[i] = tallies[i].id
	}
	return top
}
