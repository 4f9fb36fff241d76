package pulsedb

import "encoding/binary"

// The candle slot is 16 bytes, big-endian: a validity bit and the day's open
// packed into the first word, then high, low and close. All prices scaled.
//
//	<valid:1, open:31> <high:32> <low:32> <close:32>
const candleBytes = 16

func encodeCandle(c Candle) []byte {
	b := make([]byte, candleBytes)
	if !c.Valid {
		return b
	}
	binary.BigEndian.PutUint32(b[0:4], 1<<31|uint32(c.Open)&0x7FFFFFFF)
	binary.BigEndian.PutUint32(b[4:8], uint32(c.High))
	binary.BigEndian.PutUint32(b[8:12], uint32(c.Low))
	binary.BigEndian.PutUint32(b[12:16], uint32(c.Close))
	return b
}

func decodeCandle(b []byte) Candle {
	w0 := binary.BigEndian.Uint32(b[0:4])
	if w0>>31 == 0 {
		return Candle{}
	}
	return Candle{
		Open:  int64(w0 & 0x7FFFFFFF),
		High:  int64(binary.BigEndian.Uint32(b[4:8])),
		Low:   int64(binary.BigEndian.Uint32(b[8:12])),
		Close: int64(binary.BigEndian.Uint32(b[12:16])),
		Valid: true,
	}
}

// update folds one scaled trade price into the candle.
func (c *Candle) update(price int64) {
	if !c.Valid {
		*c = Candle{Open: price, High: price, Low: price, Close: price, Valid: true}
		return
	}
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
}
