package writer

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/rickgao/feedstream/internal/model"
)

// sqliteInsertBatch keeps statements under SQLite's bound-variable limit.
const sqliteInsertBatch = 200

type sqliteTick struct {
	InstrumentKey string `gorm:"primaryKey"`
	ReceivedAt    int64  `gorm:"primaryKey;autoIncrement:false"`
	LastPrice     *string
	BidPrice      *string
	AskPrice      *string
	DayHigh       *string
	DayLow        *string
	Volume        *int64
	OpenInterest  *int64
}

func (sqliteTick) TableName() string { return "ticks" }

type sqliteConnectionMetrics struct {
	SessionID         string `gorm:"primaryKey"`
	SessionStart      int64
	SessionEnd        int64
	MessagesReceived  int64
	ReconnectAttempts int
	DisconnectReason  *string
}

func (sqliteConnectionMetrics) TableName() string { return "connection_metrics" }

// SQLiteStore is an embedded store for single-host deployments and tests.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// One writer; also keeps ":memory:" on a single database.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&sqliteTick{}, &sqliteConnectionMetrics{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// InsertTicks inserts ticks, skipping existing (instrument_key, received_at).
func (s *SQLiteStore) InsertTicks(ctx context.Context, ticks []model.Tick) (int, error) {
	if len(ticks) == 0 {
		return 0, nil
	}

	rows := make([]sqliteTick, len(ticks))
	for i, t := range ticks {
		r := toTickRow(t)
		rows[i] = sqliteTick(r)
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, sqliteInsertBatch)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// InsertConnectionMetrics inserts one record, ignoring a repeated session_id.
func (s *SQLiteStore) InsertConnectionMetrics(ctx context.Context, m model.ConnectionMetrics) error {
	row := sqliteConnectionMetrics{
		SessionID:         m.SessionID.String(),
		SessionStart:      m.SessionStart.UnixMicro(),
		SessionEnd:        m.SessionEnd.UnixMicro(),
		MessagesReceived:  m.MessagesReceived,
		ReconnectAttempts: m.ReconnectAttempts,
		DisconnectReason:  m.DisconnectReason,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

// Ticks returns stored ticks for key in receive order.
func (s *SQLiteStore) Ticks(ctx context.Context, key string) ([]model.Tick, error) {
	var rows []sqliteTick
	err := s.db.WithContext(ctx).
		Where("instrument_key = ?", key).
		Order("received_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	ticks := make([]model.Tick, len(rows))
	for i, r := range rows {
		ticks[i] = fromTickRow(tickRow(r))
	}
	return ticks, nil
}

// ConnectionMetricsCount returns the number of stored session records.
func (s *SQLiteStore) ConnectionMetricsCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&sqliteConnectionMetrics{}).Count(&n).Error
	return n, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
