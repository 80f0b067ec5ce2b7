package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/candree7-rgb/Zei/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE JOURNAL - Historical record of every managed trade
// ═══════════════════════════════════════════════════════════════════════════════

// TradeRow is one journaled trade.
type TradeRow struct {
	ID        uint   `gorm:"primaryKey"`
	TradeID   string `gorm:"uniqueIndex;size:64"`
	Symbol    string `gorm:"index;size:32"`
	Side      string `gorm:"size:8"`
	Timeframe string `gorm:"size:8"`

	Trigger    string
	EntryPrice string
	StopLoss   string
	BaseQty    string
	Leverage   string
	RiskAmount string
	Equity     string

	Status     string `gorm:"index;size:24"`
	ExitReason string `gorm:"size:32"`
	TPFills    int
	DCAFills   int

	PlacedAt  int64
	FilledAt  int64
	ClosedAt  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TradeRow) TableName() string { return "trades" }

// Journal persists trade history to SQLite or Postgres.
type Journal struct {
	db *gorm.DB
}

// NewJournal opens the journal. A postgres:// DSN selects Postgres,
// anything else is treated as a SQLite file path.
func NewJournal(dsn string) (*Journal, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if err := db.AutoMigrate(&TradeRow{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	log.Info().Str("dsn", dsn).Msg("💾 Trade journal opened")
	return &Journal{db: db}, nil
}

// RecordOpen upserts the trade when its entry fills.
func (j *Journal) RecordOpen(t *types.Trade) {
	j.upsert(t)
}

// RecordClose upserts the trade in its terminal state.
func (j *Journal) RecordClose(t *types.Trade) {
	j.upsert(t)
}

func (j *Journal) upsert(t *types.Trade) {
	row := rowFromTrade(t)

	var existing TradeRow
	err := j.db.Where("trade_id = ?", t.ID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		err = j.db.Create(&row).Error
	} else if err == nil {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		err = j.db.Save(&row).Error
	}
	if err != nil {
		log.Error().Err(err).Str("trade_id", t.ID).Msg("❌ Journal write failed")
	}
}

func rowFromTrade(t *types.Trade) TradeRow {
	return TradeRow{
		TradeID:    t.ID,
		Symbol:     t.Symbol,
		Side:       string(t.Side),
		Timeframe:  t.Timeframe,
		Trigger:    t.Trigger.String(),
		EntryPrice: t.EntryPrice.String(),
		StopLoss:   t.StopLoss.String(),
		BaseQty:    t.BaseQty.String(),
		Leverage:   t.Leverage.String(),
		RiskAmount: t.RiskAmount.String(),
		Equity:     t.EquityAtEntry.String(),
		Status:     string(t.Status),
		ExitReason: t.ExitReason,
		TPFills:    t.TPFills,
		DCAFills:   t.DCAFills,
		PlacedAt:   t.PlacedAt,
		FilledAt:   t.FilledAt,
		ClosedAt:   t.ClosedAt,
	}
}

// RecentTrades returns the latest journaled trades, newest first.
func (j *Journal) RecentTrades(limit int) ([]TradeRow, error) {
	var rows []TradeRow
	err := j.db.Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Stats summarizes closed trades since the given time.
type Stats struct {
	Total       int64
	TakeProfits int64
	Stopped     int64
	Cancelled   int64
}

// StatsSince aggregates trade outcomes since ts.
func (j *Journal) StatsSince(ts int64) (Stats, error) {
	var s Stats
	base := j.db.Model(&TradeRow{}).Where("closed_at >= ?", ts)

	if err := base.Session(&gorm.Session{}).Count(&s.Total).Error; err != nil {
		return s, err
	}
	if err := base.Session(&gorm.Session{}).Where("exit_reason = ?", "take_profit").Count(&s.TakeProfits).Error; err != nil {
		return s, err
	}
	if err := base.Session(&gorm.Session{}).Where("exit_reason = ?", "stop_loss").Count(&s.Stopped).Error; err != nil {
		return s, err
	}
	if err := base.Session(&gorm.Session{}).Where("status IN ?", []string{
		string(types.StatusCancelled), string(types.StatusCancelledPastTP),
	}).Count(&s.Cancelled).Error; err != nil {
		return s, err
	}
	return s, nil
}
