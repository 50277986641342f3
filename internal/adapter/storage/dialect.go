package storage

import "fmt"

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Dialect struct {
	Name string
	// SQLDriver is the database/sql driver name registered by the imported driver.
	SQLDriver string
	// LockRows is appended to SELECTs whose rows are about to be decremented.
	LockRows string
	// Returning means inserts report ids through RETURNING instead of LastInsertId.
	Returning bool
}

var dialects = map[string]Dialect{
	DriverMySQL:    {Name: DriverMySQL, SQLDriver: "mysql", LockRows: " FOR UPDATE"},
	DriverPostgres: {Name: DriverPostgres, SQLDriver: "pgx", LockRows: " FOR UPDATE", Returning: true},
	// SQLite has no row locks; DSNs carry _txlock=immediate so a transaction holds the write lock from BEGIN.
	DriverSQLite: {Name: DriverSQLite, SQLDriver: "sqlite"},
}

func DialectFor(driver string) (Dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return Dialect{}, fmt.Errorf("unknown database driver %q", driver)
	}
	return d, nil
}
