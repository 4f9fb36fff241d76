// Package pulsefs maps (stock, date) pairs to database file paths under a
// root directory and lists what is stored there. The engine itself consumes
// already-resolved paths; this package is the naming scheme around it.
//
// Layout: <root>/<stock>/<YYYY-MM-DD>.pulse
package pulsefs

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
)

// Ext is the database file extension.
const Ext = ".pulse"

// Path returns the file path storing the given stock and date.
func Path(root, stock string, date civil.Date) string {
	return filepath.Join(root, stock, date.String()+Ext)
}

// ParseDate parses a date in YYYY-MM-DD or YYYY/MM/DD form.
func ParseDate(s string) (civil.Date, error) {
	return civil.ParseDate(strings.ReplaceAll(s, "/", "-"))
}

// Stocks lists the instruments stored under root, sorted. A missing root is
// an empty database, not an error.
func Stocks(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stocks []string
	for _, e := range entries {
		if e.IsDir() {
			stocks = append(stocks, e.Name())
		}
	}
	return stocks, nil
}

// Dates lists the dates stored for a stock, sorted. Files that do not parse
// as a date are ignored.
func Dates(root, stock string) ([]civil.Date, error) {
	entries, err := os.ReadDir(filepath.Join(root, stock))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var dates []civil.Date
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, Ext) {
			continue
		}
		d, err := ParseDate(strings.TrimSuffix(name, Ext))
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// CommonDates lists the dates stored for every one of the given stocks,
// sorted.
func CommonDates(root string, stocks []string) ([]civil.Date, error) {
	if len(stocks) == 0 {
		return nil, nil
	}
	count := map[civil.Date]int{}
	for _, stock := range stocks {
		dates, err := Dates(root, stock)
		if err != nil {
			return nil, err
		}
		for _, d := range dates {
			count[d]++
		}
	}
	var common []civil.Date
	for d, n := range count {
		if n == len(stocks) {
			common = append(common, d)
		}
	}
	sort.Slice(common, func(i, j int) bool { return common[i].Before(common[j]) })
	return common, nil
}
