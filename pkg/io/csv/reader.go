// Package csv reads sales transactions from delimited text exports.
package csv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hed1ad/custguard/pkg/models"
)

var log = logrus.WithField("component", "io.csv.Reader")

// Canonical column names.
const (
	ColumnCustomer  = "customer"
	ColumnProduct   = "product"
	ColumnDate      = "date"
	ColumnQuantity  = "quantity"
	ColumnUnitPrice = "unit_price"
	ColumnUnitCost  = "unit_cost"
)

// columnAliases maps the lowercased header names found in common exports
// to a canonical column.
var columnAliases = map[string][]string{
	ColumnCustomer:  {"musteriid", "müşteri id", "customer id", "customerid", "customer_id"},
	ColumnProduct:   {"urunkodu", "ürün kodu", "stockcode", "product id", "productid", "product_id"},
	ColumnDate:      {"tarih", "siparis tarihi", "date", "invoicedate", "timestamp"},
	ColumnQuantity:  {"miktar", "quantity"},
	ColumnUnitPrice: {"birimfiyat", "fiyat", "price", "unitprice", "unit_price"},
	ColumnUnitCost:  {"maliyet", "purchase cost", "cost", "purchasecost", "unit_cost"},
}

var required = []string{ColumnCustomer, ColumnProduct, ColumnDate, ColumnQuantity, ColumnUnitPrice}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"02.01.2006",
	"1/2/2006 15:04",
	"1/2/2006",
}

// Stats counts what a Read kept and dropped.
type Stats struct {
	Rows        int
	Kept        int
	Malformed   int
	NonPositive int
}

// Reader reads transactions from a CSV file.
type Reader struct {
	file     *os.File
	reader   *csv.Reader
	columns  map[string]int
	location *time.Location
	stats    Stats
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithComma sets the field separator. By default ';' is used when the
// header line contains one, ',' otherwise.
func WithComma(c rune) Option {
	return func(r *Reader) {
		r.reader.Comma = c
	}
}

// WithLocation sets the time zone for timestamps without an offset.
func WithLocation(loc *time.Location) Option {
	return func(r *Reader) {
		r.location = loc
	}
}

// NewReader opens filename and resolves its header row.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", filename)
	}

	r, err := newReader(file, opts...)
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "reading header of %s", filename)
	}
	r.file = file
	return r, nil
}

func newReader(src io.Reader, opts ...Option) (*Reader, error) {
	buffered, comma, err := sniffComma(src)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		reader:   csv.NewReader(buffered),
		location: time.UTC,
	}
	r.reader.Comma = comma
	r.reader.FieldsPerRecord = -1
	r.reader.TrimLeadingSpace = true

	for _, opt := range opts {
		opt(r)
	}

	header, err := r.reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "missing header row")
	}
	r.columns, err = resolveColumns(header)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Headers returns the canonical column names found in the file.
func (r *Reader) Headers() []string {
	var out []string
	for _, name := range append(append([]string{}, required...), ColumnUnitCost) {
		if _, ok := r.columns[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Read returns every valid transaction. Rows with a missing required
// field, a non-positive quantity or price, or a non-positive cost when a
// cost column exists are skipped.
func (r *Reader) Read(ctx context.Context) ([]models.Transaction, error) {
	var txs []models.Transaction

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				r.stats.Rows++
				r.stats.Malformed++
				continue
			}
			return nil, errors.Wrap(err, "reading csv")
		}
		r.stats.Rows++

		tx, err := r.parseRow(record)
		if err != nil {
			if errors.Is(err, errNonPositive) {
				r.stats.NonPositive++
			} else {
				r.stats.Malformed++
			}
			continue
		}
		txs = append(txs, tx)
	}
	r.stats.Kept = len(txs)

	log.WithFields(logrus.Fields{
		"rows":         r.stats.Rows,
		"kept":         r.stats.Kept,
		"malformed":    r.stats.Malformed,
		"non_positive": r.stats.NonPositive,
	}).Debug("csv read")
	return txs, nil
}

// Stats returns the counters of the last Read.
func (r *Reader) Stats() Stats {
	return r.stats
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

var errNonPositive = errors.New("non-positive value")

func (r *Reader) parseRow(record []string) (models.Transaction, error) {
	field := func(name string) string {
		idx, ok := r.columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	customer, product := field(ColumnCustomer), field(ColumnProduct)
	if customer == "" || product == "" {
		return models.Transaction{}, errors.New("missing customer or product")
	}
	ts, err := parseTime(field(ColumnDate), r.location)
	if err != nil {
		return models.Transaction{}, err
	}
	qty, err := parseAmount(field(ColumnQuantity))
	if err != nil {
		return models.Transaction{}, err
	}
	price, err := parseAmount(field(ColumnUnitPrice))
	if err != nil {
		return models.Transaction{}, err
	}
	if !qty.IsPositive() || !price.IsPositive() {
		return models.Transaction{}, errNonPositive
	}

	var cost *float64
	if _, ok := r.columns[ColumnUnitCost]; ok {
		c, err := parseAmount(field(ColumnUnitCost))
		if err != nil {
			return models.Transaction{}, err
		}
		if !c.IsPositive() {
			return models.Transaction{}, errNonPositive
		}
		v := c.InexactFloat64()
		cost = &v
	}

	return models.NewTransaction(customer, product, ts, qty.InexactFloat64(), price.InexactFloat64(), cost), nil
}

// parseAmount accepts both "12.5" and "12,5".
func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, errors.New("empty number")
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "parsing %q", s)
	}
	return d, nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized date %q", s)
}

func resolveColumns(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	columns := map[string]int{}
	for canonical, aliases := range columnAliases {
		for _, alias := range aliases {
			if i, ok := index[alias]; ok {
				columns[canonical] = i
				break
			}
		}
	}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return nil, errors.Errorf("missing required column %q", name)
		}
	}
	return columns, nil
}

// sniffComma picks ';' when the header line contains one.
func sniffComma(src io.Reader) (*bufio.Reader, rune, error) {
	buffered := bufio.NewReader(src)
	head, err := buffered.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, 0, errors.Wrap(err, "peeking header")
	}
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	if bytes.IndexByte(head, ';') >= 0 {
		return buffered, ';', nil
	}
	return buffered, ',', nil
}
