package store

import (
	"context"
	"fmt"
)

// nearlyFullThreshold is the percentage at which IsStorageNearlyFull trips.
const nearlyFullThreshold = 0.8

// GetStorageEstimate reports usage derived from SQLite's page accounting
// against quotaBytes. There is no portable OS disk-quota API this binary
// can call the way a browser exposes navigator.storage.estimate(), so the
// quota is a configured ceiling rather than a platform-reported one.
func (s *Store) GetStorageEstimate(ctx context.Context, quotaBytes int64) (*StorageEstimate, error) {
	var pageCount, pageSize int64

	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("store: read page_count: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("store: read page_size: %w", err)
	}

	usage := pageCount * pageSize

	var pct float64
	if quotaBytes > 0 {
		pct = float64(usage) / float64(quotaBytes)
	}

	return &StorageEstimate{UsageBytes: usage, QuotaBytes: quotaBytes, Percentage: pct}, nil
}

// IsStorageNearlyFull reports whether usage exceeds 80% of quota.
func (s *Store) IsStorageNearlyFull(ctx context.Context, quotaBytes int64) (bool, error) {
	est, err := s.GetStorageEstimate(ctx, quotaBytes)
	if err != nil {
		return false, err
	}

	return est.Percentage > nearlyFullThreshold, nil
}
