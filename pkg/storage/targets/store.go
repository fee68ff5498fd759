package targets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brandonmcclure/classy/pkg/autotest"
	"github.com/brandonmcclure/classy/pkg/storage"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Config mirrors the storage section of the application config.
type Config struct {
	Driver      string
	DSN         string
	Table       string
	AutoMigrate bool
}

// Store implements storage.Store on top of GORM.
type Store struct {
	db    *gorm.DB
	table string
}

var _ storage.Store = (*Store)(nil)

type row struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Kind        string    `gorm:"column:kind;size:16;not null;uniqueIndex:idx_target_commit"`
	RepoID      string    `gorm:"column:repo_id;size:255;not null;uniqueIndex:idx_target_commit"`
	CommitSHA   string    `gorm:"column:commit_sha;size:64;not null;uniqueIndex:idx_target_commit"`
	Ref         string    `gorm:"column:ref;size:255"`
	PersonID    string    `gorm:"column:person_id;size:128"`
	DelivID     string    `gorm:"column:deliv_id;size:64"`
	DeliveryID  string    `gorm:"column:delivery_id;size:64"`
	Timestamp   int64     `gorm:"column:timestamp;index"`
	PayloadJSON string    `gorm:"column:payload_json;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Open creates a GORM-backed commit target store.
func Open(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	driver := normalizeDriver(cfg.Driver)
	if driver == "" {
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.Driver)
	}

	gormDB, err := openGorm(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	table := cfg.Table
	if table == "" {
		table = "autotest_commit_targets"
	}
	store := &Store{db: gormDB, table: table}
	if cfg.AutoMigrate {
		if err := store.migrate(); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveTarget inserts a target or refreshes the record for the same commit.
func (s *Store) SaveTarget(ctx context.Context, target autotest.CommitTarget) error {
	if s == nil || s.db == nil {
		return storage.ErrNotInitialized
	}
	data, err := toRow(target)
	if err != nil {
		return err
	}
	return s.tableDB().
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kind"}, {Name: "repo_id"}, {Name: "commit_sha"}},
			DoUpdates: clause.AssignmentColumns([]string{"ref", "person_id", "deliv_id", "delivery_id", "timestamp", "payload_json", "updated_at"}),
		}).
		Create(&data).Error
}

// ListTargets lists recorded targets, newest first.
func (s *Store) ListTargets(ctx context.Context, filter storage.TargetFilter) ([]autotest.CommitTarget, error) {
	if s == nil || s.db == nil {
		return nil, storage.ErrNotInitialized
	}
	query := s.tableDB().WithContext(ctx)
	if filter.RepoID != "" {
		query = query.Where("repo_id = ?", filter.RepoID)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", string(filter.Kind))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var data []row
	if err := query.Order("timestamp desc").Find(&data).Error; err != nil {
		return nil, err
	}
	out := make([]autotest.CommitTarget, 0, len(data))
	for _, item := range data {
		target, err := fromRow(item)
		if err != nil {
			return nil, err
		}
		out = append(out, target)
	}
	return out, nil
}

func (s *Store) migrate() error {
	return s.tableDB().AutoMigrate(&row{})
}

func (s *Store) tableDB() *gorm.DB {
	return s.db.Table(s.table)
}

func toRow(target autotest.CommitTarget) (row, error) {
	payload, err := json.Marshal(target)
	if err != nil {
		return row{}, err
	}
	return row{
		Kind:        string(target.Kind),
		RepoID:      target.RepoID,
		CommitSHA:   target.CommitSHA,
		Ref:         target.Ref,
		PersonID:    target.PersonID,
		DelivID:     target.DelivID,
		DeliveryID:  target.DeliveryID,
		Timestamp:   target.Timestamp,
		PayloadJSON: string(payload),
	}, nil
}

// fromRow restores the full target from its JSON column; the indexed columns
// are only used for filtering.
func fromRow(data row) (autotest.CommitTarget, error) {
	var target autotest.CommitTarget
	if data.PayloadJSON != "" {
		if err := json.Unmarshal([]byte(data.PayloadJSON), &target); err != nil {
			return target, fmt.Errorf("decode target %d: %w", data.ID, err)
		}
		return target, nil
	}
	return autotest.CommitTarget{
		Kind:       autotest.Kind(data.Kind),
		RepoID:     data.RepoID,
		CommitSHA:  data.CommitSHA,
		Ref:        data.Ref,
		PersonID:   data.PersonID,
		DelivID:    data.DelivID,
		DeliveryID: data.DeliveryID,
		Timestamp:  data.Timestamp,
	}, nil
}

func normalizeDriver(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

func openGorm(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "mysql":
		return gorm.Open(mysql.Open(dsn), &gorm.Config{})
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
