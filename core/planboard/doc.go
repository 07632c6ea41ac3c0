// Package planboard is the authoritative ledger of market documents.
//
// The Ledger records prognoses, flex requests, flex offers and flex orders,
// correlates responses with the outbound documents they answer and drives
// every status change through the document state machine. Accepting a
// prognosis or flex order supersedes the previously accepted ones of the
// same connection group, period and counterparty. Mutations for one
// connection group and period are serialized by a keyed lock; there is no
// global lock.
//
// Persistence is delegated to a Store. MemoryStore is provided for tests
// and single-process deployments; SQL backends live in infra/store.
package planboard
