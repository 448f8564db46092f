// Package billing mirrors provider-reported subscription state into a local
// store and keeps the two in agreement.
//
// The package is built around a single decision function, Reconcile, that maps
// the payment provider's status vocabulary onto the local status model and
// computes the premium entitlement flag. Every code path that needs to judge a
// subscription - webhook handling, the on-demand status query, and the
// periodic sweeps - goes through that one function, so the grace-period
// tie-break can never diverge between them.
//
// State flows in from two directions:
//
//   - Webhooks pushed by the provider, verified and normalized by the
//     Provider implementation, classified by Classify, and matched to a local
//     record by Resolver.
//   - Periodic sweeps (Sweeper) that demote records whose cancellation grace
//     period has elapsed and re-fetch provider state for records whose billing
//     date has passed, correcting drift that no webhook would report.
//
// The store is the sole coordination point; nothing in this package holds
// shared mutable state between requests. Writes are idempotent: applying the
// same provider state twice produces the same record and the second write is
// skipped entirely.
//
// Basic wiring:
//
//	provider, _ := billing.NewPaddleProvider(paddleCfg)
//	store := billing.NewPGStore(pool)
//	svc := billing.NewService(store, provider, cfg,
//		billing.WithLogger(log),
//		billing.WithReplayGuard(guard),
//	)
//	sweeper := billing.NewSweeper(svc, cfg, billing.WithSweeperLogger(log))
//	go sweeper.Start(ctx)
package billing
