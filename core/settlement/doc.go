// Package settlement reconciles a billing period of accepted flex orders
// into priced per-PTU settlements.
//
// A run fetches the accepted flex orders of the period together with their
// originating offers, asks a MeterDataProvider for the delivered power of
// each order and persists one FlexOrderSettlement per order through the
// planboard. Runs are idempotent: orders already settled are skipped.
package settlement
