package ledger

import (
	"math/big"
	"sync"
	"time"
)

// StalenessTimeout is the hard freshness window applied to oracle rounds. Any
// operation needing a price aborts with ErrStalePrice once the latest round is
// older than this.
const StalenessTimeout = 3 * time.Hour

// RoundData mirrors the latestRoundData tuple reported by a price feed. The
// answer carries 8 decimals.
type RoundData struct {
	RoundID         uint64
	Answer          *big.Int
	StartedAt       uint64
	UpdatedAt       uint64
	AnsweredInRound uint64
}

// PriceFeed resolves the most recent price round for the collateral asset.
type PriceFeed interface {
	LatestRoundData() (RoundData, error)
}

// FeedAdapter wraps a PriceFeed with the staleness and round-consistency
// validation the ledger requires. Callers are expected to resubmit once the
// feed freshens; the adapter never retries.
type FeedAdapter struct {
	feed   PriceFeed
	maxAge time.Duration
	nowFn  func() int64
}

// NewFeedAdapter constructs an adapter enforcing the supplied freshness
// window. A non-positive maxAge falls back to StalenessTimeout.
func NewFeedAdapter(feed PriceFeed, maxAge time.Duration) *FeedAdapter {
	if maxAge <= 0 {
		maxAge = StalenessTimeout
	}
	return &FeedAdapter{
		feed:   feed,
		maxAge: maxAge,
		nowFn:  func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the time source used for staleness checks. Primarily
// intended for tests to provide deterministic timestamps.
func (a *FeedAdapter) SetNowFunc(now func() int64) {
	if a == nil {
		return
	}
	if now == nil {
		a.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	a.nowFn = now
}

// LatestPrice returns the validated 8-decimal price. A zero updatedAt, an
// answer older than the freshness window, a non-positive answer, or a round
// answered before it was started all surface as ErrStalePrice.
func (a *FeedAdapter) LatestPrice() (*big.Int, error) {
	if a == nil || a.feed == nil {
		return nil, ErrNilFeed
	}
	round, err := a.feed.LatestRoundData()
	if err != nil {
		return nil, err
	}
	if round.UpdatedAt == 0 {
		return nil, ErrStalePrice
	}
	now := a.nowFn()
	if now > int64(round.UpdatedAt) && time.Duration(now-int64(round.UpdatedAt))*time.Second > a.maxAge {
		return nil, ErrStalePrice
	}
	if round.AnsweredInRound < round.RoundID {
		return nil, ErrStalePrice
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return nil, ErrStalePrice
	}
	return new(big.Int).Set(round.Answer), nil
}

// ManualFeed provides an in-memory feed implementation used for tests and
// manual overrides during incident response.
type ManualFeed struct {
	mu    sync.RWMutex
	round RoundData
	set   bool
}

// NewManualFeed constructs an empty manual feed instance.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{}
}

// SetRound stores the provided round verbatim.
func (m *ManualFeed) SetRound(round RoundData) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.round = round
	if round.Answer != nil {
		m.round.Answer = new(big.Int).Set(round.Answer)
	}
	m.set = true
	m.mu.Unlock()
}

// Set records an answer with consistent round metadata at the given time.
func (m *ManualFeed) Set(answer *big.Int, updatedAt uint64) {
	if m == nil || answer == nil {
		return
	}
	m.mu.Lock()
	next := m.round.RoundID + 1
	m.round = RoundData{
		RoundID:         next,
		Answer:          new(big.Int).Set(answer),
		StartedAt:       updatedAt,
		UpdatedAt:       updatedAt,
		AnsweredInRound: next,
	}
	m.set = true
	m.mu.Unlock()
}

// LatestRoundData returns the stored round.
func (m *ManualFeed) LatestRoundData() (RoundData, error) {
	if m == nil {
		return RoundData{}, ErrNilFeed
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return RoundData{}, ErrStalePrice
	}
	round := m.round
	if round.Answer != nil {
		round.Answer = new(big.Int).Set(round.Answer)
	}
	return round, nil
}
