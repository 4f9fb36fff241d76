package pulsedb

import (
	"errors"
	"io"
)

// Iterator is a cursor over a reader's row stream. It decodes events in file
// order, reconstructing absolute market-data snapshots from delta rows, and
// applies the optional range and predicate filters. Iterators are independent:
// any number may run over one reader, none of them mutates shared state.
type Iterator struct {
	r      *Reader
	cursor int
	lastMD *snapshot

	hasRange   bool
	start, end int64
	filter     func(Event) bool
	done       bool
}

// Iterator returns a fresh cursor positioned at the first row.
func (r *Reader) Iterator() *Iterator {
	return &Iterator{r: r, cursor: r.rowsStart()}
}

// SetRange restricts the iterator to events with start <= timestamp <= end.
// The cursor seeks to the chunk covering start, so arbitrary prefixes of the
// row stream are skipped without decoding.
func (it *Iterator) SetRange(start, end int64) *Iterator {
	it.hasRange, it.start, it.end = true, start, end
	it.lastMD = nil
	it.done = false
	it.cursor = it.seek(start)
	return it
}

// SetFilter restricts the iterator to events for which f returns true.
// Filters compose with SetRange; f must not depend on decode history.
func (it *Iterator) SetFilter(f func(Event) bool) *Iterator {
	it.filter = f
	return it
}

// seek returns the buffer offset of the chunk whose bucket contains start,
// or of the earliest later chunk. Earlier chunks hold only events before
// the start of that bucket, which is at or before start, so nothing in range
// is skipped; in-chunk events before start are dropped during decode.
func (it *Iterator) seek(start int64) int {
	chunks := it.r.chunks
	if len(chunks) == 0 {
		return len(it.r.buf)
	}
	p := it.r.params
	if start <= p.dayStartMs() {
		return int(chunks[0].offset)
	}
	bucket := int((start - p.dayStartMs()) / p.chunkSizeMs())
	for _, c := range chunks {
		if c.bucket >= bucket {
			return int(c.offset)
		}
	}
	return len(it.r.buf)
}

// ReadEvent decodes and returns the next event passing the filters. It
// returns io.EOF when the stream is exhausted or the range end was passed.
func (it *Iterator) ReadEvent() (Event, error) {
	buf := it.r.buf
	p := it.r.params
	for {
		if it.done || it.cursor >= len(buf) {
			it.done = true
			return nil, io.EOF
		}
		kind, err := rowTag(buf[it.cursor])
		if err != nil {
			return nil, err
		}
		var ev Event
		switch kind {
		case rowFullMD:
			s, n, err := decodeFullMD(buf[it.cursor:], p.depth)
			if err != nil {
				return nil, err
			}
			it.cursor += n
			it.lastMD = s
			ev = s.marketData(p.depth, p.scale)
		case rowDeltaMD:
			if it.lastMD == nil {
				return nil, ErrOrphanDelta
			}
			s, n, err := decodeDeltaMD(buf[it.cursor:], p.depth, it.lastMD)
			if err != nil {
				return nil, err
			}
			it.cursor += n
			it.lastMD = s
			ev = s.marketData(p.depth, p.scale)
		case rowTrade:
			ts, px, vol, n, err := decodeTrade(buf[it.cursor:])
			if err != nil {
				return nil, err
			}
			it.cursor += n
			ev = &Trade{Timestamp: ts, Price: unscalePrice(px, p.scale), Volume: uint32(vol)}
		}
		if it.hasRange {
			if ev.Time() < it.start {
				continue
			}
			if ev.Time() > it.end {
				it.done = true
				return nil, io.EOF
			}
		}
		if it.filter != nil && !it.filter(ev) {
			continue
		}
		return ev, nil
	}
}

// Events drains the iterator into a slice.
func (it *Iterator) Events() ([]Event, error) {
	var events []Event
	for {
		ev, err := it.ReadEvent()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
}

// Events returns every event of the file in order.
func (r *Reader) Events() ([]Event, error) {
	return r.Iterator().Events()
}
