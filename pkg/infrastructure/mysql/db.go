package mysql

import (
	"database/sql"
	"embed"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Config struct {
	Addr            string
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DSN builds a go-sql-driver DSN. Migrations need multiStatements because
// their files hold several statements.
func (c Config) DSN(multiStatements bool) string {
	cfg := mysqldriver.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = c.Addr
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.MultiStatements = multiStatements
	return cfg.FormatDSN()
}

func Open(c Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("mysql", c.DSN(false))
	if err != nil {
		return nil, errors.Wrap(err, "connect to mysql")
	}
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
		db.SetMaxIdleConns(c.MaxOpenConns)
	}
	if c.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.ConnMaxLifetime)
	}
	return db, nil
}

// Migrate applies every pending migration. It reports how far the schema
// got even when there was nothing to do.
func Migrate(c Config) (uint, error) {
	db, err := sql.Open("mysql", c.DSN(true))
	if err != nil {
		return 0, errors.Wrap(err, "open migration connection")
	}
	defer db.Close()

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, errors.Wrap(err, "load embedded migrations")
	}
	driver, err := migratemysql.WithInstance(db, &migratemysql.Config{})
	if err != nil {
		return 0, errors.Wrap(err, "create migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", source, "mysql", driver)
	if err != nil {
		return 0, errors.Wrap(err, "create migrator")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, errors.Wrap(err, "apply migrations")
	}
	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, errors.Wrap(err, "read migration version")
	}
	return version, nil
}

const errDuplicateEntry = 1062

func isDuplicateKey(err error) bool {
	var mysqlErr *mysqldriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
