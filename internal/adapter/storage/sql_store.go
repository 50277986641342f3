package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/rl1809/clinic-ledger/internal/port"
)

var _ port.Store = (*SQLStore)(nil)

type SQLStore struct {
	db      *sqlx.DB
	dialect Dialect
}

// Open connects to driver (mysql, postgres or sqlite) and pings it.
// MySQL DSNs get parseTime=true and multiStatements=true forced on: scans
// need time.Time values and each migration file runs as one Exec.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	if d.Name == DriverMySQL {
		if dsn, err = mysqlDSN(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open(d.SQLDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return NewSQLStore(db, d), nil
}

func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.MultiStatements = true
	return cfg.FormatDSN(), nil
}

func NewSQLStore(db *sqlx.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) WithinTx(ctx context.Context, fn func(tx port.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(newScope(tx, s.dialect)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

func (s *SQLStore) References() port.ReferenceRepository {
	return &referenceRepository{ext: s.db}
}

// scope binds every repository to the same *sqlx.Tx.
type scope struct {
	batches    *batchRepository
	treatments *treatmentRepository
	invoices   *invoiceRepository
	references *referenceRepository
}

func newScope(ext sqlx.ExtContext, d Dialect) *scope {
	return &scope{
		batches:    &batchRepository{ext: ext, dialect: d},
		treatments: &treatmentRepository{ext: ext, dialect: d},
		invoices:   &invoiceRepository{ext: ext, dialect: d},
		references: &referenceRepository{ext: ext},
	}
}

func (s *scope) Batches() port.BatchRepository { return s.batches }

func (s *scope) Treatments() port.TreatmentRepository { return s.treatments }

func (s *scope) Invoices() port.InvoiceRepository { return s.invoices }

func (s *scope) References() port.ReferenceRepository { return s.references }

// insertID runs an INSERT and reports the new row id in the dialect's way.
func insertID(ctx context.Context, ext sqlx.ExtContext, d Dialect, query string, args ...any) (int64, error) {
	if d.Returning {
		var id int64
		err := ext.QueryRowxContext(ctx, ext.Rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := ext.ExecContext(ctx, ext.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
