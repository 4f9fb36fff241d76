package replay

import (
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dimitryors/pulsedb"
)

// Message type discriminators of the export stream.
const (
	msgMarketData = "q"
	msgTrade      = "t"
)

type exportQuote struct {
	Price  float64 `msgpack:"p"`
	Volume uint32  `msgpack:"v"`
}

// exportMessage is one framed event: a type discriminator plus single-letter
// fields, trade fields and market-data fields being mutually exclusive.
type exportMessage struct {
	T      string        `msgpack:"T"`
	Ts     int64         `msgpack:"t"`
	Price  float64       `msgpack:"p,omitempty"`
	Volume uint32        `msgpack:"v,omitempty"`
	Bid    []exportQuote `msgpack:"b,omitempty"`
	Ask    []exportQuote `msgpack:"a,omitempty"`
}

// Export frames events onto w as a stream of msgpack objects.
func Export(w io.Writer, events []pulsedb.Event) error {
	enc := msgpack.NewEncoder(w)
	for _, ev := range events {
		var m exportMessage
		switch v := ev.(type) {
		case *pulsedb.MarketData:
			m = exportMessage{T: msgMarketData, Ts: v.Timestamp, Bid: quotesOut(v.Bid), Ask: quotesOut(v.Ask)}
		case *pulsedb.Trade:
			m = exportMessage{T: msgTrade, Ts: v.Timestamp, Price: v.Price, Volume: v.Volume}
		default:
			return pulsedb.ErrInvalidEvent
		}
		if err := enc.Encode(m); err != nil {
			return err
		}
	}
	return nil
}

// Import decodes a stream written by Export.
func Import(r io.Reader) ([]pulsedb.Event, error) {
	dec := msgpack.NewDecoder(r)
	var events []pulsedb.Event
	for {
		var m exportMessage
		err := dec.Decode(&m)
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return nil, err
		}
		switch m.T {
		case msgMarketData:
			events = append(events, &pulsedb.MarketData{Timestamp: m.Ts, Bid: quotesIn(m.Bid), Ask: quotesIn(m.Ask)})
		case msgTrade:
			events = append(events, &pulsedb.Trade{Timestamp: m.Ts, Price: m.Price, Volume: m.Volume})
		default:
			return nil, fmt.Errorf("unknown message type %q", m.T)
		}
	}
}

func quotesOut(quotes []pulsedb.Quote) []exportQuote {
	out := make([]exportQuote, len(quotes))
	for i, q := range quotes {
		out[i] = exportQuote{Price: q.Price, Volume: q.Volume}
	}
	return out
}

func quotesIn(quotes []exportQuote) []pulsedb.Quote {
	in := make([]pulsedb.Quote, len(quotes))
	for i, q := range quotes {
		in[i] = pulsedb.Quote{Price: q.Price, Volume: q.Volume}
	}
	return in
}
