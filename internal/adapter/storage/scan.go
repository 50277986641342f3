package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/clinic-ledger/internal/core/domain"
)

var timeLayouts = []string{
	domain.DateLayout,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// dbDate scans DATE columns the way each driver hands them back:
// time.Time from mysql (parseTime) and pgx, text or time.Time from sqlite.
type dbDate struct {
	time.Time
}

func (d *dbDate) Scan(src any) error {
	t, err := scanTime(src)
	if err != nil {
		return err
	}
	if !t.IsZero() {
		t = domain.DateOf(t)
	}
	d.Time = t
	return nil
}

type dbTime struct {
	Time  time.Time
	Valid bool
}

func (t *dbTime) Scan(src any) error {
	v, err := scanTime(src)
	if err != nil {
		return err
	}
	t.Time, t.Valid = v, src != nil
	return nil
}

func (t dbTime) Ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func scanTime(src any) (time.Time, error) {
	switch v := src.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v.UTC(), nil
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", src)
	}
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}

func dateArg(t time.Time) string {
	return domain.DateOf(t).Format(domain.DateLayout)
}

func storeErr(op string, err error) error {
	return &domain.StoreError{Op: op, Err: err}
}

// notFoundOr maps sql.ErrNoRows to domain.ErrNotFound and wraps everything else.
func notFoundOr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return storeErr(op, err)
}
