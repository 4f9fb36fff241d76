package pulsedb

import (
	"fmt"
	"os"

	"cloud.google.com/go/civil"
)

// Reader is a read-only view of one database file. Opening a reader parses
// the header, loads the chunk map and buffers the whole data region in
// memory, so the file handle is released before OpenReadPath returns and the
// reader needs no Close. Any number of readers may be open over one path, and
// any number of iterators over one reader.
type Reader struct {
	path   string
	params headerParams

	candleOffset   int64
	chunkMapOffset int64
	candle         Candle

	chunks []chunkEntry
	buf    []byte // chunk map plus row stream
}

// OpenReadPath opens the database file at path for reading.
func OpenReadPath(path string, opts ReadOpts) (*Reader, error) {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", path, ErrNoFile)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	params, headerLen, err := parseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	// Layout math needs sane parameters even on migration-tolerant opens.
	if params.depth <= 0 || params.scale <= 0 ||
		params.chunkSize <= 0 || secondsPerDay%params.chunkSize != 0 {
		return nil, fmt.Errorf("%s: bad header parameters", path)
	}

	r := &Reader{
		path:           path,
		params:         params,
		candleOffset:   int64(headerLen),
		chunkMapOffset: int64(headerLen),
	}
	if params.haveCandle {
		if len(data) < headerLen+candleBytes {
			return nil, fmt.Errorf("%s: candle slot: %w", path, ErrTruncatedInput)
		}
		r.candle = decodeCandle(data[headerLen:])
		r.chunkMapOffset += candleBytes
	}

	mapLen := chunkCellBytes * params.numberOfChunks()
	if int64(len(data)) < r.chunkMapOffset+int64(mapLen) {
		return nil, fmt.Errorf("%s: chunk map: %w", path, ErrTruncatedInput)
	}
	r.buf = data[r.chunkMapOffset:]

	if err := r.loadChunkMap(); err != nil {
		return nil, err
	}

	if opts.Migrate && params.version != Version {
		// The caller asked for a migration-tolerant open: skip validation,
		// the structural rules of older versions are not ours to enforce.
		return r, nil
	}
	if err := validateFile(path, params, r.chunks); err != nil {
		return nil, err
	}
	return r, nil
}

// loadChunkMap records (bucket, first timestamp, offset) for every non-zero
// cell. The first row of a bucket is always self-contained, so its timestamp
// can be peeked without decode context.
func (r *Reader) loadChunkMap() error {
	for n := 0; n < r.params.numberOfChunks(); n++ {
		off := decodeChunkCell(r.buf[n*chunkCellBytes:])
		if off == 0 {
			continue
		}
		if int(off) < r.rowsStart() || int(off) >= len(r.buf) {
			return fmt.Errorf("%s: chunk %d offset %d outside the row stream", r.path, n, off)
		}
		kind, ts, err := peekTimestamp(r.buf[off:])
		if err != nil {
			return fmt.Errorf("%s: chunk %d: %w", r.path, n, err)
		}
		if kind == rowDeltaMD {
			return fmt.Errorf("%s: chunk %d starts with a delta row: %w", r.path, n, ErrBadTag)
		}
		r.chunks = append(r.chunks, chunkEntry{bucket: n, timestamp: ts, offset: off})
	}
	return nil
}

func (r *Reader) rowsStart() int {
	return chunkCellBytes * r.params.numberOfChunks()
}

// Presence reports which buckets of the day hold data.
type Presence struct {
	NumberOfChunks int   `json:"number_of_chunks"`
	Buckets        []int `json:"buckets"`
}

// FileInfo is the header view of a database file plus its bucket presence
// and, when the file carries one, the day candle.
type FileInfo struct {
	Path       string     `json:"path"`
	Version    int        `json:"version"`
	Stock      string     `json:"stock"`
	Date       civil.Date `json:"date"`
	Depth      int        `json:"depth"`
	Scale      int        `json:"scale"`
	ChunkSize  int        `json:"chunk_size"`
	HaveCandle bool       `json:"have_candle"`
	Presence   Presence   `json:"presence"`
	Candle     *Candle    `json:"candle,omitempty"`
}

// Info returns the file's header fields and presence without reading rows.
func (r *Reader) Info() FileInfo {
	info := FileInfo{
		Path:       r.path,
		Version:    r.params.version,
		Stock:      r.params.stock,
		Date:       r.params.date,
		Depth:      r.params.depth,
		Scale:      r.params.scale,
		ChunkSize:  r.params.chunkSize,
		HaveCandle: r.params.haveCandle,
		Presence:   Presence{NumberOfChunks: r.params.numberOfChunks(), Buckets: make([]int, 0, len(r.chunks))},
	}
	for _, c := range r.chunks {
		info.Presence.Buckets = append(info.Presence.Buckets, c.bucket)
	}
	if r.params.haveCandle && r.candle.Valid {
		candle := r.candle
		info.Candle = &candle
	}
	return info
}

// Stock returns the instrument identifier from the header.
func (r *Reader) Stock() string { return r.params.stock }

// Date returns the calendar date the file covers.
func (r *Reader) Date() civil.Date { return r.params.date }
