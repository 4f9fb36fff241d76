// Package pulsedb is an append-only, time-partitioned storage engine for
// financial tick data. Each file holds the market-depth quotes and trades of
// one (stock, date) pair and is self-describing, self-indexed and versioned.
//
// A file has four regions:
//
//	header      textual "key: value" lines opened by a shebang comment and
//	            closed by an empty line; fixes stock, date, depth, scale,
//	            chunk_size and have_candle at creation
//	candle slot 16 bytes holding the day's O/H/L/C over all trades, present
//	            iff have_candle
//	chunk map   one big-endian 32-bit cell per chunk_size-second bucket of
//	            the day, each a row offset relative to the map's start, zero
//	            for empty buckets
//	row stream  variable-length event rows; market data is delta-encoded
//	            against the previous snapshot, and the first row of every
//	            bucket is self-contained so range reads need no prefix
//
// Appending is sequential and cheap during a trading day; afterwards readers
// buffer the data region once and any number of iterators seek and decode
// over it independently.
package pulsedb
