package scheduler

// Package scheduler provides scheduled job management for the kline backend.
// It handles:
// - Nightly bulk history refresh after market close
// - Weekly pruning of bars past the retention window
//
// The main scheduler is implemented in jobs.go
