// Package database loads sales transactions from MySQL/MariaDB or SQLite.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hed1ad/custguard/pkg/models"
)

// DefaultTable is queried when no table is configured.
const DefaultTable = "transactions"

var (
	log        = logrus.WithField("component", "io.database.Loader")
	validTable = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// Open connects to dsn. mysql:// and mariadb:// URLs are converted to the
// driver format; sqlite:// URLs and paths ending in .db or .sqlite open a
// SQLite file; anything else is passed to the MySQL driver as is.
func Open(dsn string) (*sqlx.DB, error) {
	driver, source, err := resolve(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s database", driver)
	}
	if driver == "mysql" {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

func resolve(dsn string) (driver, source string, err error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasSuffix(dsn, ".db"), strings.HasSuffix(dsn, ".sqlite"):
		return "sqlite3", dsn, nil
	default:
		source, err := toMySQLDSN(dsn)
		return "mysql", source, err
	}
}

func toMySQLDSN(dsn string) (string, error) {
	if !strings.HasPrefix(dsn, "mariadb://") && !strings.HasPrefix(dsn, "mysql://") {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", errors.Wrap(err, "parse dsn")
	}

	cfg := mysql.NewConfig()
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if cfg.User == "" || cfg.Addr == "" || cfg.DBName == "" {
		return "", errors.New("incomplete dsn: user, host and database are required")
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.InterpolateParams = true
	return cfg.FormatDSN(), nil
}

// row mirrors the expected table layout.
type row struct {
	CustomerID string          `db:"customer_id"`
	ProductID  string          `db:"product_id"`
	SoldAt     time.Time       `db:"sold_at"`
	Quantity   float64         `db:"quantity"`
	UnitPrice  float64         `db:"unit_price"`
	UnitCost   sql.NullFloat64 `db:"unit_cost"`
}

// Loader reads transactions from a table with the columns customer_id,
// product_id, sold_at, quantity, unit_price and a nullable unit_cost.
type Loader struct {
	db    *sqlx.DB
	table string
	since time.Time
	until time.Time
}

// Option configures a Loader.
type Option func(*Loader)

// WithTable sets the table to read from.
func WithTable(name string) Option {
	return func(l *Loader) {
		l.table = name
	}
}

// WithWindow restricts rows to since <= sold_at < until. Zero bounds are open.
func WithWindow(since, until time.Time) Option {
	return func(l *Loader) {
		l.since = since
		l.until = until
	}
}

// NewLoader creates a Loader over an open database.
func NewLoader(db *sqlx.DB, opts ...Option) (*Loader, error) {
	l := &Loader{db: db, table: DefaultTable}
	for _, opt := range opts {
		opt(l)
	}
	if !validTable.MatchString(l.table) {
		return nil, errors.Errorf("invalid table name %q", l.table)
	}
	return l, nil
}

func (l *Loader) query() (string, []any) {
	var (
		where []string
		args  []any
	)
	if !l.since.IsZero() {
		where = append(where, "sold_at >= ?")
		args = append(args, l.since.UTC())
	}
	if !l.until.IsZero() {
		where = append(where, "sold_at < ?")
		args = append(args, l.until.UTC())
	}

	q := fmt.Sprintf("SELECT customer_id, product_id, sold_at, quantity, unit_price, unit_cost FROM %s", l.table)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	return q + " ORDER BY sold_at", args
}

// Read returns the valid transactions of the table. Rows with a
// non-positive quantity, price or cost are skipped.
func (l *Loader) Read(ctx context.Context) ([]models.Transaction, error) {
	q, args := l.query()

	var rows []row
	if err := l.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrapf(err, "querying %s", l.table)
	}

	txs := make([]models.Transaction, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		if r.CustomerID == "" || r.Quantity <= 0 || r.UnitPrice <= 0 || (r.UnitCost.Valid && r.UnitCost.Float64 <= 0) {
			skipped++
			continue
		}
		var cost *float64
		if r.UnitCost.Valid {
			c := r.UnitCost.Float64
			cost = &c
		}
		txs = append(txs, models.NewTransaction(r.CustomerID, r.ProductID, r.SoldAt.UTC(), r.Quantity, r.UnitPrice, cost))
	}

	log.WithFields(logrus.Fields{
		"table":   l.table,
		"rows":    len(rows),
		"skipped": skipped,
	}).Debug("transactions loaded")
	return txs, nil
}

// Close closes the underlying database.
func (l *Loader) Close() error {
	return l.db.Close()
}
