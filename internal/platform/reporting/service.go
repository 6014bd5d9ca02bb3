package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// UnknownAnalysisBucket collects samples whose catalog entry was deleted.
const UnknownAnalysisBucket = "Unknown"

// DashboardStats is the headline counter set.
type DashboardStats struct {
	PendingSamples int `json:"pending_samples"`
	UnpaidOrders   int `json:"unpaid_orders"`
	TotalUsers     int `json:"total_users"`
}

// AnalysisCount is one histogram bar of the samples-by-analysis view.
type AnalysisCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// WeekdayCount is one bar of the orders-by-weekday view.
type WeekdayCount struct {
	Weekday string `json:"weekday"`
	Count   int    `json:"count"`
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Stats returns the headline counters: samples still in flight, orders
// awaiting payment, and registered users.
func (s *Service) Stats(ctx context.Context) (*DashboardStats, error) {
	pending, err := s.repo.CountSamplesNotInState(ctx, "completed")
	if err != nil {
		return nil, fmt.Errorf("count pending samples: %w", err)
	}
	unpaid, err := s.repo.CountOrdersByStatus(ctx, "pending")
	if err != nil {
		return nil, fmt.Errorf("count unpaid orders: %w", err)
	}
	users, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	return &DashboardStats{PendingSamples: pending, UnpaidOrders: unpaid, TotalUsers: users}, nil
}

// SamplesByAnalysis histograms samples by their catalog entry's current name.
// Samples whose analysis was deleted land in the Unknown bucket. Bars are
// sorted by count descending, name ascending for ties.
func (s *Service) SamplesByAnalysis(ctx context.Context) ([]AnalysisCount, error) {
	ids, err := s.repo.SampleAnalysisIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sample analysis ids: %w", err)
	}

	unique := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	lookup := make([]uuid.UUID, 0, len(unique))
	for id := range unique {
		lookup = append(lookup, id)
	}
	names, err := s.repo.AnalysisNames(ctx, lookup)
	if err != nil {
		return nil, fmt.Errorf("resolve analysis names: %w", err)
	}

	counts := make(map[string]int)
	for _, id := range ids {
		name, ok := names[id]
		if !ok {
			name = UnknownAnalysisBucket
		}
		counts[name]++
	}

	result := make([]AnalysisCount, 0, len(counts))
	for name, count := range counts {
		result = append(result, AnalysisCount{Name: name, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// OrdersByWeekday returns a fixed seven-bucket histogram, Sunday first, of
// when orders were placed.
func (s *Service) OrdersByWeekday(ctx context.Context) ([]WeekdayCount, error) {
	times, err := s.repo.OrderCreationTimes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list order times: %w", err)
	}

	buckets := make([]WeekdayCount, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		buckets[d] = WeekdayCount{Weekday: d.String()}
	}
	for _, t := range times {
		buckets[t.Weekday()].Count++
	}
	return buckets, nil
}
