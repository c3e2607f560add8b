package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"triggerBot/internal/ports"
)

// ScreenConfig holds configuration for the pre-trade screen.
type ScreenConfig struct {
	Denylist       []string // Assets always treated as high risk
	MaxSwapsPerDay int      // 0 disables the daily limit
	Logger         ports.Logger
	Now            func() time.Time
}

// Screen decorates a venue with local risk rules. It is itself a ports.Venue.
type Screen struct {
	venue  ports.Venue
	deny   map[string]struct{}
	logger ports.Logger
	now    func() time.Time

	mu         sync.Mutex
	maxPerDay  int
	swapsToday int
	day        string
}

// NewScreen wraps venue with the configured rules.
func NewScreen(venue ports.Venue, cfg ScreenConfig) (*Screen, error) {
	if venue == nil {
		return nil, fmt.Errorf("venue is required for risk screen: %w", ports.ErrConfigurationError)
	}
	if cfg.MaxSwapsPerDay < 0 {
		return nil, fmt.Errorf("MaxSwapsPerDay cannot be negative: %w", ports.ErrConfigurationError)
	}
	s := &Screen{
		venue:     venue,
		deny:      make(map[string]struct{}, len(cfg.Denylist)),
		logger:    cfg.Logger,
		now:       cfg.Now,
		maxPerDay: cfg.MaxSwapsPerDay,
	}
	for _, a := range cfg.Denylist {
		if a = strings.TrimSpace(a); a != "" {
			s.deny[strings.ToUpper(a)] = struct{}{}
		}
	}
	if s.logger == nil {
		s.logger = ports.NopLogger{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// IsHighRisk reports denylisted assets without asking the venue.
func (s *Screen) IsHighRisk(ctx context.Context, assetAddress string) (bool, error) {
	if _, ok := s.deny[strings.ToUpper(assetAddress)]; ok {
		s.logger.Warn(ctx, "Asset is denylisted", map[string]interface{}{"asset": assetAddress})
		return true, nil
	}
	return s.venue.IsHighRisk(ctx, assetAddress)
}

// Swap enforces the daily swap limit before delegating to the venue.
// A slot is reserved before the venue call and released if the venue
// rejects the swap, so only accepted swaps count toward the limit.
func (s *Screen) Swap(ctx context.Context, req ports.SwapRequest) (*ports.SwapResult, error) {
	s.mu.Lock()
	s.rollDay()
	if s.maxPerDay > 0 && s.swapsToday >= s.maxPerDay {
		n := s.swapsToday
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: daily swap limit reached (%d/%d)", ports.ErrVenue, n, s.maxPerDay)
	}
	s.swapsToday++
	day := s.day
	s.mu.Unlock()

	res, err := s.venue.Swap(ctx, req)
	if err != nil {
		s.mu.Lock()
		if s.day == day && s.swapsToday > 0 {
			s.swapsToday--
		}
		s.mu.Unlock()
		if errors.Is(err, ports.ErrVenue) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ports.ErrVenue, err)
	}
	return res, nil
}

// SwapsToday returns the number of accepted swaps in the current day.
func (s *Screen) SwapsToday() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDay()
	return s.swapsToday
}

// rollDay must be called with s.mu held.
func (s *Screen) rollDay() {
	today := s.now().Format("2006-01-02")
	if today != s.day {
		s.day = today
		s.swapsToday = 0
	}
}
