// Package events defines the signals emitted by the gate-closure scheduler
// and the notifications published by the planboard on the event bus.
//
// Signals:
//   - DayAheadClosure: the day-ahead gate closed for a period
//   - IntradayClosure: the intraday gate closed for one PTU
//   - MoveToOperate: a PTU entered its operate phase
//
// Notifications:
//   - DocumentEvent: a document was stored or changed status
//   - SettlementEvent: a flex order was settled or failed to settle
package events
