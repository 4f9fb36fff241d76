package pulsedb

import (
	"encoding/binary"
	"math"

	"github.com/shopspring/decimal"
)

// Row records share a discriminator in the two high bits of the first byte.
// The six low bits are reserved and must be zero.
//
//	00...... delta market-data: zigzag varint timestamp delta, changed-slot
//	         bitmap, then a (price delta, volume delta) zigzag varint pair
//	         per changed slot
//	10...... full market-data: unsigned varint timestamp, then an absolute
//	         (price, volume) unsigned varint pair per slot
//	11...... trade: unsigned varint timestamp, price and volume
//
// A market-data row has 2*depth slots: bid levels first, then ask levels.
// Prices are stored scaled, round(price * scale). Chunk-map cells are
// big-endian 32-bit unsigned offsets relative to the start of the chunk map.
type rowKind byte

const (
	rowDeltaMD rowKind = 0x00
	rowFullMD  rowKind = 0x80
	rowTrade   rowKind = 0xC0

	tagMask      = 0xC0
	reservedMask = 0x3F

	chunkCellBytes = 4
)

func rowTag(b byte) (rowKind, error) {
	if b&reservedMask != 0 {
		return 0, ErrBadTag
	}
	switch k := rowKind(b & tagMask); k {
	case rowDeltaMD, rowFullMD, rowTrade:
		return k, nil
	default:
		return 0, ErrBadTag
	}
}

// snapshot is the scaled, depth-normalized form of a market-data row:
// 2*depth slots, bid levels first.
type snapshot struct {
	ts  int64
	px  []int64
	vol []int64
}

func (s *snapshot) clone() *snapshot {
	c := &snapshot{ts: s.ts, px: make([]int64, len(s.px)), vol: make([]int64, len(s.vol))}
	copy(c.px, s.px)
	copy(c.vol, s.vol)
	return c
}

// newSnapshot normalizes m to exactly depth levels per side and scales its
// prices. Missing levels are zero, extra levels are dropped.
func newSnapshot(m *MarketData, depth, scale int) *snapshot {
	s := &snapshot{
		ts:  m.Timestamp,
		px:  make([]int64, 2*depth),
		vol: make([]int64, 2*depth),
	}
	for i := 0; i < depth && i < len(m.Bid); i++ {
		s.px[i] = scalePrice(m.Bid[i].Price, scale)
		s.vol[i] = int64(m.Bid[i].Volume)
	}
	for i := 0; i < depth && i < len(m.Ask); i++ {
		s.px[depth+i] = scalePrice(m.Ask[i].Price, scale)
		s.vol[depth+i] = int64(m.Ask[i].Volume)
	}
	return s
}

// marketData is the inverse of newSnapshot, padding included.
func (s *snapshot) marketData(depth, scale int) *MarketData {
	m := &MarketData{
		Timestamp: s.ts,
		Bid:       make([]Quote, depth),
		Ask:       make([]Quote, depth),
	}
	for i := 0; i < depth; i++ {
		m.Bid[i] = Quote{Price: unscalePrice(s.px[i], scale), Volume: uint32(s.vol[i])}
		m.Ask[i] = Quote{Price: unscalePrice(s.px[depth+i], scale), Volume: uint32(s.vol[depth+i])}
	}
	return m
}

// scalePrice converts a float price to its on-disk scaled integer form.
// Going through decimal avoids the float drift of round(p*scale) for prices
// like 1.005, whose float product with 100 is 100.49999999999999.
func scalePrice(p float64, scale int) int64 {
	return decimal.NewFromFloat(p).Mul(decimal.NewFromInt(int64(scale))).Round(0).IntPart()
}

// unscalePrice is the inverse of scalePrice.
func unscalePrice(n int64, scale int) float64 {
	f, _ := decimal.NewFromInt(n).Div(decimal.NewFromInt(int64(scale))).Float64()
	return f
}

func uvarint(b []byte) (uint64, int, error) {
	v, n := binary.Uvarint(b)
	if n == 0 {
		return 0, 0, ErrTruncatedInput
	}
	if n < 0 {
		return 0, 0, ErrBadVarint
	}
	return v, n, nil
}

func svarint(b []byte) (int64, int, error) {
	v, n := binary.Varint(b)
	if n == 0 {
		return 0, 0, ErrTruncatedInput
	}
	if n < 0 {
		return 0, 0, ErrBadVarint
	}
	return v, n, nil
}

func encodeFullMD(dst []byte, s *snapshot) []byte {
	dst = append(dst, byte(rowFullMD))
	dst = binary.AppendUvarint(dst, uint64(s.ts))
	for i := range s.px {
		dst = binary.AppendUvarint(dst, uint64(s.px[i]))
		dst = binary.AppendUvarint(dst, uint64(s.vol[i]))
	}
	return dst
}

func decodeFullMD(b []byte, depth int) (*snapshot, int, error) {
	if depth <= 0 {
		return nil, 0, ErrDepthMismatch
	}
	pos := 1
	ts, n, err := uvarint(b[pos:])
	if err != nil {
		return nil, 0, err
	}
	pos += n
	s := &snapshot{
		ts:  int64(ts),
		px:  make([]int64, 2*depth),
		vol: make([]int64, 2*depth),
	}
	for i := 0; i < 2*depth; i++ {
		px, n, err := uvarint(b[pos:])
		if err != nil {
			return nil, 0, err
		}
		pos += n
		vol, n, err := uvarint(b[pos:])
		if err != nil {
			return nil, 0, err
		}
		pos += n
		s.px[i] = int64(px)
		s.vol[i] = int64(vol)
	}
	return s, pos, nil
}

// encodeDeltaMD encodes cur relative to prev. Both snapshots must carry the
// same number of slots.
func encodeDeltaMD(dst []byte, prev, cur *snapshot) ([]byte, error) {
	if len(prev.px) != len(cur.px) {
		return nil, ErrDepthMismatch
	}
	dst = append(dst, byte(rowDeltaMD))
	dst = binary.AppendVarint(dst, cur.ts-prev.ts)

	nslots := len(cur.px)
	bitmap := make([]byte, (nslots+7)/8)
	for i := 0; i < nslots; i++ {
		if cur.px[i] != prev.px[i] || cur.vol[i] != prev.vol[i] {
			bitmap[i/8] |= 1 << (i % 8)
		}
	}
	dst = append(dst, bitmap...)
	for i := 0; i < nslots; i++ {
		if bitmap[i/8]&(1<<(i%8)) == 0 {
			continue
		}
		dst = binary.AppendVarint(dst, cur.px[i]-prev.px[i])
		dst = binary.AppendVarint(dst, cur.vol[i]-prev.vol[i])
	}
	return dst, nil
}

// decodeDeltaMD reconstructs the absolute snapshot by applying the deltas at
// b against prev.
func decodeDeltaMD(b []byte, depth int, prev *snapshot) (*snapshot, int, error) {
	if depth <= 0 || len(prev.px) != 2*depth {
		return nil, 0, ErrDepthMismatch
	}
	pos := 1
	dts, n, err := svarint(b[pos:])
	if err != nil {
		return nil, 0, err
	}
	pos += n

	nslots := 2 * depth
	nbytes := (nslots + 7) / 8
	if len(b) < pos+nbytes {
		return nil, 0, ErrTruncatedInput
	}
	bitmap := b[pos : pos+nbytes]
	pos += nbytes

	s := prev.clone()
	s.ts = prev.ts + dts
	for i := 0; i < nslots; i++ {
		if bitmap[i/8]&(1<<(i%8)) == 0 {
			continue
		}
		dpx, n, err := svarint(b[pos:])
		if err != nil {
			return nil, 0, err
		}
		pos += n
		dvol, n, err := svarint(b[pos:])
		if err != nil {
			return nil, 0, err
		}
		pos += n
		s.px[i] += dpx
		s.vol[i] += dvol
	}
	return s, pos, nil
}

func encodeTrade(dst []byte, ts, price, volume int64) []byte {
	dst = append(dst, byte(rowTrade))
	dst = binary.AppendUvarint(dst, uint64(ts))
	dst = binary.AppendUvarint(dst, uint64(price))
	dst = binary.AppendUvarint(dst, uint64(volume))
	return dst
}

func decodeTrade(b []byte) (ts, price, volume int64, size int, err error) {
	pos := 1
	u, n, err := uvarint(b[pos:])
	if err != nil {
		return 0, 0, 0, 0, err
	}
	ts, pos = int64(u), pos+n
	u, n, err = uvarint(b[pos:])
	if err != nil {
		return 0, 0, 0, 0, err
	}
	price, pos = int64(u), pos+n
	u, n, err = uvarint(b[pos:])
	if err != nil {
		return 0, 0, 0, 0, err
	}
	volume, pos = int64(u), pos+n
	return ts, price, volume, pos, nil
}

// peekTimestamp decodes only the timestamp field of the row at b. For full
// market-data and trade rows the returned value is absolute; for delta rows
// it is the delta against the previous snapshot's timestamp.
func peekTimestamp(b []byte) (rowKind, int64, error) {
	if len(b) == 0 {
		return 0, 0, ErrTruncatedInput
	}
	kind, err := rowTag(b[0])
	if err != nil {
		return 0, 0, err
	}
	if kind == rowDeltaMD {
		dts, _, err := svarint(b[1:])
		return kind, dts, err
	}
	ts, _, err := uvarint(b[1:])
	return kind, int64(ts), err
}

func encodeChunkCell(off uint32) []byte {
	var b [chunkCellBytes]byte
	binary.BigEndian.PutUint32(b[:], off)
	return b[:]
}

func decodeChunkCell(b []byte) uint32 {
	return binary.BigEndian.Uint32(b[:chunkCellBytes])
}

// maxChunkOffset is the largest row offset a chunk-map cell can point at.
const maxChunkOffset = math.MaxUint32
