package pulsedb

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-01-05T00:00:00Z in milliseconds.
const testDayStart = int64(1704412800000)

func testDate() civil.Date {
	return civil.Date{Year: 2024, Month: time.January, Day: 5}
}

func openTestAppender(t *testing.T, opts AppendOpts) (*Appender, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "AAPL", "2024-01-05"+".pulse")
	a, err := OpenAppendPath(path, "AAPL", testDate(), opts)
	require.NoError(t, err)
	return a, path
}

func TestAppendTradeCandleAndPresence(t *testing.T) {
	a, path := openTestAppender(t, AppendOpts{Depth: 2})
	require.NoError(t, a.Append(&Trade{Timestamp: testDayStart + 500, Price: 12.34, Volume: 1}))
	require.NoError(t, a.Close())

	r, err := OpenReadPath(path, ReadOpts{})
	require.NoError(t, err)
	info := r.Info()
	assert.Equal(t, "AAPL", info.Stock)
	assert.Equal(t, testDate(), info.Date)
	assert.Equal(t, 288, info.Presence.NumberOfChunks)
	assert.Equal(t, []int{0}, info.Presence.Buckets)
	require.NotNil(t, info.Candle)
	assert.Equal(t, Candle{Open: 1234, High: 1234, Low: 1234, Close: 1234, Valid: true}, *info.Candle)
}

func TestAppendMarketDataDelta(t *testing.T) {
	a, path := openTestAppender(t, AppendOpts{Depth: 2})
	require.NoError(t, a.Append(&MarketData{
		Timestamp: testDayStart + 600,
		Bid:       []Quote{{Price: 12.30, Volume: 5}},
		Ask:       []Quote{{Price: 12.40, Volume: 5}},
	}))
	require.NoError(t, a.Append(&MarketData{
		Timestamp: testDayStart + 700,
		Bid:       []Quote{{Price: 12.31, Volume: 5}},
		Ask:       []Quote{{Price: 12.40, Volume: 5}},
	}))
	require.NoError(t, a.Close())

	r, err := OpenReadPath(path, ReadOpts{})
	require.NoError(t, err)

	// on disk: a full row opening bucket 0, then a delta with one changed slot
	rows := r.buf[r.rowsStart():]
	first, n, err := decodeFullMD(rows, 2)
	require.NoError(t, err)
	kind, err := rowTag(rows[n])
	require.NoError(t, err)
	require.Equal(t, rowDeltaMD, kind)
	_, dtsLen, err := svarint(rows[n+1:])
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), rows[n+1+dtsLen], "exactly one slot changed")

	second, _, err := decodeDeltaMD(rows[n:], 2, first)
	require.NoError(t, err)
	assert.Equal(t, []int64{1231, 0, 1240, 0}, second.px)

	events, err := r.Events()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, &MarketData{
		Timestamp: testDayStart + 700,
		Bid:       []Quote{{Price: 12.31, Volume: 5}, {}},
		Ask:       []Quote{{Price: 12.40, Volume: 5}, {}},
	}, events[1])
}

func TestAppendCrossesChunkBoundary(t *testing.T) {
	a, path := openTestAppender(t, AppendOpts{Depth: 1})
	require.NoError(t, a.Append(&MarketData{
		Timestamp: testDayStart + 100,
		Bid:       []Quote{{Price: 12.30, Volume: 5}},
		Ask:       []Quote{{Price: 12.40, Volume: 5}},
	}))
	require.NoError(t, a.Append(&MarketData{
		Timestamp: testDayStart + 200,
		Bid:       []Quote{{Price: 12.31, Volume: 5}},
		Ask:       []Quote{{Price: 12.40, Volume: 5}},
	}))
	// crosses into bucket 1: must be written self-contained
	require.NoError(t, a.Append(&MarketData{
		Timestamp: testDayStart + 300_000 + 50,
		Bid:       []Quote{{Price: 12.32, Volume: 5}},
		Ask:       []Quote{{Price: 12.41, Volume: 5}},
	}))
	// crosses into bucket 2 with a trade
	require.NoError(t, a.Append(&Trade{Timestamp: testDayStart + 600_000 + 10, Price: 12.35, Volume: 2}))
	require.NoError(t, a.Close())

	r, err := OpenReadPath(path, ReadOpts{})
	require.NoError(t, err)
	require.Len(t, r.chunks, 3)
	assert.Equal(t, []int{0, 1, 2}, r.Info().Presence.Buckets)

	kind, _, err := peekTimestamp(r.buf[r.chunks[1].offset:])
	require.NoError(t, err)
	assert.Equal(t, rowFullMD, kind)
	kind, _, err = peekTimestamp(r.buf[r.chunks[2].offset:])
	require.NoError(t, err)
	assert.Equal(t, rowTrade, kind)

	events, err := r.Events()
	require.NoError(t, err)
	assert.Len(t, events, 4)
}

func TestAppendValidation(t *testing.T) {
	a, path := openTestAppender(t, AppendOpts{Depth: 1})
	require.NoError(t, a.Append(&Trade{Timestamp: testDayStart + 500, Price: 12.34, Volume: 1}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	for _, tt := range []struct {
		name string
		ev   Event
		err  error
	}{
		{"zero md timestamp", &MarketData{Timestamp: 0, Bid: []Quote{{12.30, 5}}, Ask: []Quote{{12.40, 5}}}, ErrBadTimestamp},
		{"negative trade timestamp", &Trade{Timestamp: -1, Price: 12.34, Volume: 1}, ErrBadTimestamp},
		{"zero price", &Trade{Timestamp: testDayStart + 600, Price: 0, Volume: 1}, ErrBadPrice},
		{"nan price", &Trade{Timestamp: testDayStart + 600, Price: math.NaN(), Volume: 1}, ErrBadPrice},
		{"huge price", &Trade{Timestamp: testDayStart + 600, Price: 1e18, Volume: 1}, ErrBadPrice},
		{"bad bid", &MarketData{Timestamp: testDayStart + 600, Bid: []Quote{{Price: -1, Volume: 5}}}, ErrBadBid},
		{"bad ask", &MarketData{Timestamp: testDayStart + 600, Ask: []Quote{{Price: math.Inf(1), Volume: 5}}}, ErrBadAsk},
		{"day before", &Trade{Timestamp: testDayStart - 1_000_000, Price: 12.34, Volume: 1}, ErrNotThisDay},
		{"day after", &Trade{Timestamp: testDayStart + 87_000_000, Price: 12.34, Volume: 1}, ErrNotThisDay},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, a.Append(tt.ev), tt.err)
			after, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, before, after, "failed append must not touch the file")
		})
	}
	require.NoError(t, a.Close())
}

func TestAppendAfterClose(t *testing.T) {
	a, _ := openTestAppender(t, AppendOpts{})
	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Append(&Trade{Timestamp: testDayStart + 1, Price: 1, Volume: 1}), ErrReopenInAppendMode)
	assert.NoError(t, a.Close(), "closing twice is fine")
}

func testEvents() []Event {
	md := func(ts int64, bid, ask float64, vol uint32) *MarketData {
		return &MarketData{
			Timestamp: ts,
			Bid:       []Quote{{Price: bid, Volume: vol}},
			Ask:       []Quote{{Price: ask, Volume: vol}},
		}
	}
	return []Event{
		md(testDayStart+100, 12.30, 12.40, 5),
		md(testDayStart+200, 12.31, 12.40, 5),
		&Trade{Timestamp: testDayStart + 250, Price: 12.35, Volume: 1},
		md(testDayStart+400, 12.31, 12.41, 6),
		// bucket 1 opened by a trade, market data follows full
		&Trade{Timestamp: testDayStart + 300_010, Price: 12.37, Volume: 2},
		md(testDayStart+300_100, 12.32, 12.42, 5),
		md(testDayStart+300_200, 12.33, 12.42, 5),
		// bucket 3, skipping an empty bucket 2
		md(testDayStart+900_050, 12.40, 12.50, 4),
		&Trade{Timestamp: testDayStart + 900_100, Price: 12.45, Volume: 3},
	}
}

func TestReopenContinuesIdentically(t *testing.T) {
	events := testEvents()
	dir := t.TempDir()

	whole := filepath.Join(dir, "one", "2024-01-05.pulse")
	a, err := OpenAppendPath(whole, "AAPL", testDate(), AppendOpts{})
	require.NoError(t, err)
	for _, ev := range events {
		require.NoError(t, a.Append(ev))
	}
	require.NoError(t, a.Close())
	want, err := os.ReadFile(whole)
	require.NoError(t, err)

	for split := 1; split < len(events); split++ {
		parts := filepath.Join(dir, "two", "2024-01-05.pulse")
		a, err := OpenAppendPath(parts, "AAPL", testDate(), AppendOpts{})
		require.NoError(t, err)
		for _, ev := range events[:split] {
			require.NoError(t, a.Append(ev))
		}
		require.NoError(t, a.Close())

		a, err = OpenAppendPath(parts, "AAPL", testDate(), AppendOpts{})
		require.NoError(t, err, "split %d", split)
		for _, ev := range events[split:] {
			require.NoError(t, a.Append(ev))
		}
		require.NoError(t, a.Close())

		got, err := os.ReadFile(parts)
		require.NoError(t, err)
		assert.Equal(t, want, got, "split %d", split)
		require.NoError(t, os.RemoveAll(filepath.Join(dir, "two")))
	}
}

func TestRecoveryTruncatesPartialRow(t *testing.T) {
	a, path := openTestAppender(t, AppendOpts{Depth: 1})
	for _, ev := range testEvents() {
		require.NoError(t, a.Append(ev))
	}
	require.NoError(t, a.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// chop the tail of the last row, as a crashed writer would
	require.NoError(t, os.WriteFile(path, data[:len(data)-2], 0o644))

	a, err = OpenAppendPath(path, "AAPL", testDate(), AppendOpts{})
	require.NoError(t, err)
	require.NoError(t, a.Append(&Trade{Timestamp: testDayStart + 900_200, Price: 12.46, Volume: 1}))
	require.NoError(t, a.Close())

	r, err := OpenReadPath(path, ReadOpts{})
	require.NoError(t, err)
	events, err := r.Events()
	require.NoError(t, err)
	last := events[len(events)-1].(*Trade)
	assert.Equal(t, int64(testDayStart+900_200), last.Timestamp)
}

func TestAppendNoCandle(t *testing.T) {
	a, path := openTestAppender(t, AppendOpts{NoCandle: true})
	require.NoError(t, a.Append(&Trade{Timestamp: testDayStart + 500, Price: 12.34, Volume: 1}))
	require.NoError(t, a.Close())

	r, err := OpenReadPath(path, ReadOpts{})
	require.NoError(t, err)
	info := r.Info()
	assert.False(t, info.HaveCandle)
	assert.Nil(t, info.Candle)
}

func TestOpenAppendBadChunkSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "AAPL", "2024-01-05.pulse")
	_, err := OpenAppendPath(path, "AAPL", testDate(), AppendOpts{ChunkSize: 7})
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "failed create must not leave a file behind")
}
