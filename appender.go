package pulsedb

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"cloud.google.com/go/civil"
)

// Appender owns the writable handle of one database file and the running
// state that drives delta encoding: the last full snapshot, the chunk map and
// the day candle. A new file is created exclusively; continued appends
// rebuild the state from the last chunk on disk. Opening an existing file
// takes no lock, so nothing prevents two appenders over the same path.
type Appender struct {
	path   string
	file   *os.File
	params headerParams
	opts   AppendOpts
	logger Logger

	candleOffset   int64
	chunkMapOffset int64

	chunks        []chunkEntry
	lastMD        *snapshot
	lastTimestamp int64
	nextChunkTime int64 // 0 until the first chunk is opened
	candle        Candle

	truncateAt int64 // file size replay decided to cut back to, 0 for none
}

// OpenAppendPath opens the file at path for appending, creating it with the
// given stock, date and options if it does not exist. For an existing file
// the header wins: stock, date and opts (except NoSync and Logger) are taken
// from disk.
func OpenAppendPath(path, stock string, date civil.Date, opts AppendOpts) (*Appender, error) {
	opts = opts.withDefaults()
	if _, err := os.Stat(path); err == nil {
		return openExistingAppender(path, opts)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	a := &Appender{
		path: path,
		file: f,
		params: headerParams{
			version:    Version,
			stock:      stock,
			date:       date,
			depth:      opts.Depth,
			scale:      opts.Scale,
			chunkSize:  opts.ChunkSize,
			haveCandle: !opts.NoCandle,
		},
		opts:   opts,
		logger: opts.Logger,
	}
	if a.params.chunkSize <= 0 || secondsPerDay%a.params.chunkSize != 0 {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%s: bad chunk_size %d", path, a.params.chunkSize)
	}
	if err := a.writeLayout(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return a, nil
}

// writeLayout writes the header, the zeroed candle slot and the zeroed chunk
// map of a fresh file.
func (a *Appender) writeLayout() error {
	header := a.params.encode()
	if _, err := a.file.Write(header); err != nil {
		return err
	}
	a.candleOffset = int64(len(header))
	a.chunkMapOffset = a.candleOffset
	if a.params.haveCandle {
		if _, err := a.file.Write(make([]byte, candleBytes)); err != nil {
			return err
		}
		a.chunkMapOffset += candleBytes
	}
	if _, err := a.file.Write(make([]byte, chunkCellBytes*a.params.numberOfChunks())); err != nil {
		return err
	}
	if !a.opts.NoSync {
		return a.file.Sync()
	}
	return nil
}

// openExistingAppender reuses the reader's header parse and chunk map, then
// rebuilds the running state by replaying the last chunk.
func openExistingAppender(path string, opts AppendOpts) (*Appender, error) {
	r, err := OpenReadPath(path, ReadOpts{})
	if err != nil {
		return nil, err
	}
	a := &Appender{
		path:           path,
		params:         r.params,
		opts:           opts,
		logger:         opts.Logger,
		candleOffset:   r.candleOffset,
		chunkMapOffset: r.chunkMapOffset,
		chunks:         r.chunks,
		candle:         r.candle,
	}
	if err := a.replayLastChunk(r); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	a.file = f
	if a.truncateAt != 0 {
		a.logger.Warnf("%s: dropping partial row, truncating to %d bytes", path, a.truncateAt)
		if err := f.Truncate(a.truncateAt); err != nil {
			f.Close()
			return nil, err
		}
	}
	return a, nil
}

// replayLastChunk decodes the rows of the last occupied bucket to recover
// lastMD, lastTimestamp, nextChunkTime and the candle. A row cut short by a
// crashed writer is dropped by truncation.
func (a *Appender) replayLastChunk(r *Reader) error {
	if len(a.chunks) == 0 {
		return nil
	}
	last := a.chunks[len(a.chunks)-1]
	a.nextChunkTime = a.params.dayStartMs() + int64(last.bucket+1)*a.params.chunkSizeMs()

	pos := int(last.offset)
	for pos < len(r.buf) {
		kind, err := rowTag(r.buf[pos])
		if err != nil {
			return fmt.Errorf("%s: replay at offset %d: %w", a.path, pos, err)
		}
		var n int
		switch kind {
		case rowFullMD:
			s, size, err := decodeFullMD(r.buf[pos:], a.params.depth)
			if err != nil {
				return a.stopReplay(pos, err)
			}
			a.lastMD, a.lastTimestamp, n = s, s.ts, size
		case rowDeltaMD:
			if a.lastMD == nil {
				return fmt.Errorf("%s: replay at offset %d: %w", a.path, pos, ErrOrphanDelta)
			}
			s, size, err := decodeDeltaMD(r.buf[pos:], a.params.depth, a.lastMD)
			if err != nil {
				return a.stopReplay(pos, err)
			}
			a.lastMD, a.lastTimestamp, n = s, s.ts, size
		case rowTrade:
			ts, px, _, size, err := decodeTrade(r.buf[pos:])
			if err != nil {
				return a.stopReplay(pos, err)
			}
			// Folding the chunk's first trade in again is harmless: the
			// slot already carries it and update is idempotent for it.
			if a.params.haveCandle {
				a.candle.update(px)
			}
			a.lastTimestamp, n = ts, size
		}
		pos += n
	}
	return nil
}

func (a *Appender) stopReplay(pos int, err error) error {
	if errors.Is(err, ErrTruncatedInput) {
		a.truncateAt = a.chunkMapOffset + int64(pos)
		return nil
	}
	return fmt.Errorf("%s: replay at offset %d: %w", a.path, pos, err)
}

// Append validates ev and writes it according to the append state machine: a
// self-contained row opening a new bucket at chunk boundaries, a delta row
// against the last snapshot for in-chunk market data, a trade row otherwise.
// Validation failures leave the file and the state untouched.
func (a *Appender) Append(ev Event) error {
	if a.file == nil {
		return ErrReopenInAppendMode
	}
	switch v := ev.(type) {
	case *MarketData:
		if err := validateMarketData(v); err != nil {
			return err
		}
		if _, err := a.bucketFor(v.Timestamp); err != nil {
			return err
		}
		return a.appendMarketData(v)
	case *Trade:
		if _, err := validateTrade(v, a.params.scale); err != nil {
			return err
		}
		if _, err := a.bucketFor(v.Timestamp); err != nil {
			return err
		}
		return a.appendTrade(v)
	default:
		return ErrInvalidEvent
	}
}

func (a *Appender) appendMarketData(m *MarketData) error {
	cur := newSnapshot(m, a.params.depth, a.params.scale)

	switch {
	case a.isChunkBoundary(m.Timestamp):
		if err := a.openChunk(encodeFullMD(nil, cur), m.Timestamp); err != nil {
			return err
		}
	case a.lastMD == nil:
		if _, err := a.writeRow(encodeFullMD(nil, cur)); err != nil {
			return err
		}
	default:
		row, err := encodeDeltaMD(nil, a.lastMD, cur)
		if err != nil {
			return err
		}
		if _, err := a.writeRow(row); err != nil {
			return err
		}
	}
	a.lastMD = cur
	a.lastTimestamp = m.Timestamp
	return nil
}

func (a *Appender) appendTrade(t *Trade) error {
	price := scalePrice(t.Price, a.params.scale)
	row := encodeTrade(nil, t.Timestamp, price, int64(t.Volume))

	if a.isChunkBoundary(t.Timestamp) {
		if a.params.haveCandle {
			a.candle.update(price)
		}
		if err := a.openChunk(row, t.Timestamp); err != nil {
			return err
		}
		// The next market data of this bucket must be written full: range
		// seeks land on the bucket's first row, so a delta chain may never
		// reach back across a trade-opened bucket.
		a.lastMD = nil
	} else {
		if _, err := a.writeRow(row); err != nil {
			return err
		}
		if a.params.haveCandle {
			a.candle.update(price)
		}
	}
	a.lastTimestamp = t.Timestamp
	return nil
}

func (a *Appender) isChunkBoundary(ts int64) bool {
	return a.nextChunkTime == 0 || ts >= a.nextChunkTime
}

// bucketFor maps a timestamp onto its bucket, rejecting timestamps outside
// the file's day.
func (a *Appender) bucketFor(ts int64) (int64, error) {
	dayStart := a.params.dayStartMs()
	bucket := (ts - dayStart) / a.params.chunkSizeMs()
	if ts < dayStart || bucket >= int64(a.params.numberOfChunks()) {
		return 0, ErrNotThisDay
	}
	return bucket, nil
}

// openChunk writes row as the self-contained start of a new bucket, points
// the bucket's chunk-map cell at it and persists the candle. The bucket is
// computed and checked before anything is written so a rejected event leaves
// no dangling row.
func (a *Appender) openChunk(row []byte, ts int64) error {
	bucket, err := a.bucketFor(ts)
	if err != nil {
		return err
	}

	eof, err := a.writeRow(row)
	if err != nil {
		return err
	}
	offset := eof - a.chunkMapOffset
	if offset > maxChunkOffset {
		return fmt.Errorf("%s: row offset %d overflows chunk cell", a.path, offset)
	}
	cell := encodeChunkCell(uint32(offset))
	if _, err := a.file.WriteAt(cell, a.chunkMapOffset+int64(bucket)*chunkCellBytes); err != nil {
		return err
	}
	a.chunks = append(a.chunks, chunkEntry{bucket: int(bucket), timestamp: ts, offset: uint32(offset)})
	a.nextChunkTime = a.params.dayStartMs() + (bucket+1)*a.params.chunkSizeMs()

	if err := a.writeCandle(); err != nil {
		return err
	}
	if !a.opts.NoSync {
		if err := a.file.Sync(); err != nil {
			return err
		}
	}
	a.logger.Infof("%s: bucket %d opened at offset %d", a.path, bucket, offset)
	return nil
}

// writeRow appends one encoded row at EOF and returns the offset it was
// written at.
func (a *Appender) writeRow(row []byte) (int64, error) {
	eof, err := a.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := a.file.Write(row); err != nil {
		return 0, err
	}
	return eof, nil
}

func (a *Appender) writeCandle() error {
	if !a.params.haveCandle {
		return nil
	}
	_, err := a.file.WriteAt(encodeCandle(a.candle), a.candleOffset)
	return err
}

// Close persists the candle and releases the file handle. Appending after
// Close fails with ErrReopenInAppendMode.
func (a *Appender) Close() error {
	if a.file == nil {
		return nil
	}
	if err := a.writeCandle(); err != nil {
		a.file.Close()
		a.file = nil
		return err
	}
	if !a.opts.NoSync {
		if err := a.file.Sync(); err != nil {
			a.file.Close()
			a.file = nil
			return err
		}
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// Candle returns the running day candle.
func (a *Appender) Candle() Candle { return a.candle }

func validateMarketData(m *MarketData) error {
	if m.Timestamp <= 0 {
		return ErrBadTimestamp
	}
	if !validQuotes(m.Bid) {
		return ErrBadBid
	}
	if !validQuotes(m.Ask) {
		return ErrBadAsk
	}
	return nil
}

func validQuotes(quotes []Quote) bool {
	for _, q := range quotes {
		if math.IsNaN(q.Price) || math.IsInf(q.Price, 0) || q.Price < 0 {
			return false
		}
	}
	return true
}

// validateTrade returns the scaled price. Scaled prices are packed into 31
// bits in the candle slot, so anything larger is rejected up front.
func validateTrade(t *Trade, scale int) (int64, error) {
	if t.Timestamp <= 0 {
		return 0, ErrBadTimestamp
	}
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0 {
		return 0, ErrBadPrice
	}
	price := scalePrice(t.Price, scale)
	if price <= 0 || price > math.MaxInt32 {
		return 0, ErrBadPrice
	}
	return price, nil
}
