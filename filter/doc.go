// Package filter provides the filter registry and the stock state
// filters.
//
// A [Registry] type-caches each registered filter into the electing,
// applied and unapplied chains it implements, and is handed to a
// state.Machine as its state.FilterProvider. Filters run in registration
// order.
//
//	reg := filter.NewRegistry(logger)
//	reg.Register(filter.NewRetry(filter.WithAttempts(5)))
//	reg.RegisterBestEffort(filter.NewMetrics())
//	m := state.NewMachine(state.WithFilters(reg))
//
// # Stock Filters
//
//   - [Retry] turns an elected Failed state into a delayed retry until the
//     job's retry budget is spent
//   - [Logging] logs elections and applications with log/slog
//   - [Metrics] counts applied and traversed states with OpenTelemetry
//   - [History] keeps candidates superseded during election in the job's
//     state history
package filter
