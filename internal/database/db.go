package database

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alex65536/tourney/internal/apitoken"
	"github.com/alex65536/tourney/internal/app"
	"github.com/alex65536/tourney/internal/match"
	"github.com/alex65536/tourney/internal/queue"
	"github.com/alex65536/tourney/internal/registration"
	"github.com/alex65536/tourney/internal/scheduler"
	"github.com/alex65536/tourney/internal/tournament"
	// Registers the "text" gorm serializer.
	_ "github.com/alex65536/tourney/internal/util/gormutil"
	"github.com/alex65536/tourney/internal/util/slogx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Options struct {
	Path          string        `toml:"path"`
	Debug         bool          `toml:"debug"`
	SlowThreshold time.Duration `toml:"slow-threshold"`
	BusyTimeout   time.Duration `toml:"busy-timeout"`
	UseWAL        bool          `toml:"use-wal"`
	// MutateAttempts bounds the retries of a read-modify-write on a concurrently modified row.
	MutateAttempts int `toml:"mutate-attempts"`
}

func (o *Options) FillDefaults() {
	if o.SlowThreshold == 0 {
		o.SlowThreshold = 200 * time.Millisecond
	}
	if o.BusyTimeout == 0 {
		o.BusyTimeout = 1 * time.Minute
	}
	if o.MutateAttempts == 0 {
		o.MutateAttempts = 5
	}
}

type DB struct {
	db  *gorm.DB
	log *slog.Logger
	o   Options
}

var (
	_ app.DB          = (*DB)(nil)
	_ tournament.DB   = (*DB)(nil)
	_ registration.DB = (*DB)(nil)
	_ match.DB        = (*DB)(nil)
	_ queue.DB        = (*DB)(nil)
	_ scheduler.DB    = (*DB)(nil)
	_ apitoken.DB     = (*DB)(nil)
)

func (d *DB) Close() {
	db, err := d.db.DB()
	if err != nil {
		d.log.Error("could not get underlying db", slogx.Err(err))
		return
	}
	err = db.Close()
	if err != nil {
		d.log.Error("could not close db", slogx.Err(err))
	}
}

func buildPath(o Options) string {
	var params []string
	if o.UseWAL {
		params = append(params, "_journal_mode=WAL")
		params = append(params, "_synchronous=NORMAL")
	}
	params = append(params, fmt.Sprintf("_busy_timeout=%v", o.BusyTimeout.Milliseconds()))
	params = append(params, "_foreign_keys=1")
	// Write transactions take the lock upfront, so concurrent writers wait instead of failing.
	params = append(params, "_txlock=immediate")
	paramStr := strings.Join(params, "&")
	sep := "?"
	if strings.Contains(o.Path, "?") {
		sep = "&"
	}
	return o.Path + sep + paramStr
}

func New(log *slog.Logger, o Options) (*DB, error) {
	o.FillDefaults()

	log.Info("opening db")
	db, err := gorm.Open(sqlite.Open(buildPath(o)), &gorm.Config{
		Logger:         newSQLLogger(log, o),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	d := &DB{db: db, log: log, o: o}

	log.Info("migrating db")
	if err := db.AutoMigrate(models...); err != nil {
		d.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	log.Info("db opened")
	return d, nil
}

var (
	errRowNotFound = errors.New("row not found")
	errRowConflict = errors.New("row version changed")
)

// bumpVersion claims a versioned row inside a transaction. It succeeds only if the stored
// version still equals the given one.
func bumpVersion(tx *gorm.DB, model any, id string, version int64) error {
	res := tx.Model(model).Where("id = ? AND version = ?", id, version).Update("version", version+1)
	if res.Error != nil {
		return fmt.Errorf("bump version: %w", res.Error)
	}
	if res.RowsAffected != 0 {
		return nil
	}
	var cnt int64
	if err := tx.Model(model).Where("id = ?", id).Count(&cnt).Error; err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	if cnt == 0 {
		return errRowNotFound
	}
	return errRowConflict
}
