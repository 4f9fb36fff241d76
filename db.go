package pulsedb

import (
	"cloud.google.com/go/civil"

	"github.com/dimitryors/pulsedb/pulsefs"
)

// DB resolves (stock, date) pairs to database files under a root directory
// and opens them. It holds nothing but the root; every opened appender and
// reader owns its own state. See pulsefs for the naming scheme.
type DB struct {
	root string
}

// Open returns a DB over the given root directory.
func Open(root string) *DB {
	return &DB{root: root}
}

// Root returns the DB's root directory.
func (db *DB) Root() string { return db.root }

// Path returns the file path storing the given stock and date.
func (db *DB) Path(stock string, date civil.Date) string {
	return pulsefs.Path(db.root, stock, date)
}

// OpenAppend opens the given stock and date for appending, creating the file
// with opts if it does not exist.
func (db *DB) OpenAppend(stock string, date civil.Date, opts AppendOpts) (*Appender, error) {
	return OpenAppendPath(db.Path(stock, date), stock, date, opts)
}

// OpenRead opens the given stock and date for reading.
func (db *DB) OpenRead(stock string, date civil.Date) (*Reader, error) {
	return OpenReadPath(db.Path(stock, date), ReadOpts{})
}

// Info returns the header fields, bucket presence and candle of the given
// stock and date. It fails with ErrNoFile if nothing is stored.
func (db *DB) Info(stock string, date civil.Date) (FileInfo, error) {
	r, err := db.OpenRead(stock, date)
	if err != nil {
		return FileInfo{}, err
	}
	return r.Info(), nil
}

// Events returns every event stored for the given stock and date.
func (db *DB) Events(stock string, date civil.Date) ([]Event, error) {
	r, err := db.OpenRead(stock, date)
	if err != nil {
		return nil, err
	}
	return r.Events()
}

// Stocks lists the instruments stored under the root.
func (db *DB) Stocks() ([]string, error) {
	return pulsefs.Stocks(db.root)
}

// Dates lists the dates stored for a stock.
func (db *DB) Dates(stock string) ([]civil.Date, error) {
	return pulsefs.Dates(db.root, stock)
}

// CommonDates lists the dates stored for every one of the given stocks.
func (db *DB) CommonDates(stocks []string) ([]civil.Date, error) {
	return pulsefs.CommonDates(db.root, stocks)
}
