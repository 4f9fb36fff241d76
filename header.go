package pulsedb

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Version is the current file format version. Files written by an older
// version are rejected with *MigrationError unless the caller opens with
// ReadOpts.Migrate or runs Migrate first.
const Version = 1

const headerShebang = "#!/usr/bin/env pulsedb\n"

const secondsPerDay = 86400

// headerParams are the file-wide parameters fixed at creation.
type headerParams struct {
	version    int
	stock      string
	date       civil.Date
	depth      int
	scale      int
	chunkSize  int // seconds per bucket
	haveCandle bool
}

func (h headerParams) numberOfChunks() int { return secondsPerDay / h.chunkSize }

func (h headerParams) chunkSizeMs() int64 { return int64(h.chunkSize) * 1000 }

func (h headerParams) dayStartMs() int64 { return h.date.In(time.UTC).UnixMilli() }

func formatHeaderDate(d civil.Date) string {
	return fmt.Sprintf("%04d/%02d/%02d", d.Year, int(d.Month), d.Day)
}

func parseHeaderDate(s string) (civil.Date, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return civil.Date{}, fmt.Errorf("header: bad date %q", s)
	}
	var n [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return civil.Date{}, fmt.Errorf("header: bad date %q", s)
		}
		n[i] = v
	}
	d := civil.Date{Year: n[0], Month: time.Month(n[1]), Day: n[2]}
	if !d.IsValid() {
		return civil.Date{}, fmt.Errorf("header: bad date %q", s)
	}
	return d, nil
}

// encode renders the header: the shebang line, one "key: value" line per
// parameter, and a single empty line as terminator.
func (h headerParams) encode() []byte {
	var b bytes.Buffer
	b.WriteString(headerShebang)
	fmt.Fprintf(&b, "version: %d\n", h.version)
	fmt.Fprintf(&b, "stock: %s\n", h.stock)
	fmt.Fprintf(&b, "date: %s\n", formatHeaderDate(h.date))
	fmt.Fprintf(&b, "depth: %d\n", h.depth)
	fmt.Fprintf(&b, "scale: %d\n", h.scale)
	fmt.Fprintf(&b, "chunk_size: %d\n", h.chunkSize)
	fmt.Fprintf(&b, "have_candle: %t\n", h.haveCandle)
	b.WriteByte('\n')
	return b.Bytes()
}

// parseHeader reads "key: value" lines from the start of data. Lines starting
// with '#' (the shebang included) are comments; the first empty line ends the
// header. It returns the parsed parameters and the offset of the byte right
// after the terminator.
func parseHeader(data []byte) (headerParams, int, error) {
	var (
		h    headerParams
		seen = map[string]bool{}
		pos  int
	)
	for {
		nl := bytes.IndexByte(data[pos:], '\n')
		if nl < 0 {
			return h, 0, fmt.Errorf("header: %w", ErrTruncatedInput)
		}
		line := string(data[pos : pos+nl])
		pos += nl + 1
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			return h, 0, fmt.Errorf("header: malformed line %q", line)
		}
		if err := h.set(key, value); err != nil {
			return h, 0, err
		}
		seen[key] = true
	}
	for _, key := range []string{"version", "stock", "date", "depth", "scale", "chunk_size"} {
		if !seen[key] {
			return h, 0, fmt.Errorf("header: missing key %q", key)
		}
	}
	return h, pos, nil
}

func (h *headerParams) set(key, value string) error {
	var err error
	switch key {
	case "version":
		h.version, err = strconv.Atoi(value)
	case "stock":
		h.stock = value
	case "date":
		h.date, err = parseHeaderDate(value)
	case "depth":
		h.depth, err = strconv.Atoi(value)
	case "scale":
		h.scale, err = strconv.Atoi(value)
	case "chunk_size":
		h.chunkSize, err = strconv.Atoi(value)
	case "have_candle":
		h.haveCandle, err = strconv.ParseBool(value)
	default:
		// Unknown keys are ignored for forward compatibility.
	}
	if err != nil {
		return fmt.Errorf("header: bad value for %q: %w", key, err)
	}
	return nil
}
