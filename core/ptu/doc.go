// Package ptu implements the programme time unit arithmetic every scheduling
// and settlement decision relies on: PTUs per day (DST aware), PTU index of an
// instant, PTU counts between two positions, and the lossless
// normalize/compact transforms on PTU-indexed series.
package ptu
