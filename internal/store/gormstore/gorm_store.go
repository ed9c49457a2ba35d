package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tradecouncil/internal/gateway/exchange"
	"tradecouncil/internal/store"
	"tradecouncil/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore implements store.Store on SQLite.
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.OrderModel{}, &model.TradeModel{}, &model.CycleModel{}, &model.NewsModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a second connection keeps status reads from queuing
	// behind cycle writes.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	return s.db.DB()
}

// SaveOrder upserts an order snapshot. The stored status never moves
// backwards: a snapshot with an older status keeps the stored one.
func (s *GormStore) SaveOrder(ctx context.Context, rec store.OrderRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if strings.TrimSpace(rec.OrderID) == "" {
		return fmt.Errorf("order_id is required")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.OrderModel
		err := tx.Where("order_id = ?", rec.OrderID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			m := newOrderModel(rec)
			return tx.Create(&m).Error
		case err != nil:
			return err
		}
		status := exchange.ParseStatus(existing.Status).Advance(rec.Status)
		updates := map[string]interface{}{
			"status":     string(status),
			"updated_at": time.Now().UnixMilli(),
		}
		if rec.Filled > existing.Filled {
			updates["filled"] = rec.Filled
		}
		if rec.Average > 0 {
			updates["average"] = rec.Average
		}
		if len(rec.Raw) > 0 {
			updates["raw_data"] = datatypes.JSON(rec.Raw)
		}
		if rec.CycleID != "" && existing.CycleID == "" {
			updates["cycle_id"] = rec.CycleID
		}
		return tx.Model(&model.OrderModel{}).Where("id = ?", existing.ID).Updates(updates).Error
	})
}

// GetOrder returns the stored order snapshot.
func (s *GormStore) GetOrder(ctx context.Context, orderID string) (store.OrderRecord, bool, error) {
	var m model.OrderModel
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.OrderRecord{}, false, nil
	}
	if err != nil {
		return store.OrderRecord{}, false, err
	}
	return orderRecordFromModel(m), true, nil
}

// SaveTrade writes the trade for an order once; repeats are ignored.
func (s *GormStore) SaveTrade(ctx context.Context, rec store.TradeRecord) error {
	if strings.TrimSpace(rec.OrderID) == "" {
		return fmt.Errorf("order_id is required")
	}
	m := model.TradeModel{
		OrderID:         rec.OrderID,
		CycleID:         rec.CycleID,
		Symbol:          rec.Symbol,
		Side:            string(rec.Side),
		FilledSize:      rec.FilledSize,
		AveragePrice:    rec.AveragePrice,
		CompletedAtUnix: rec.CompletedAt.UnixMilli(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(&m).Error
}

// ListTrades returns trades newest first.
func (s *GormStore) ListTrades(ctx context.Context, limit int) ([]store.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []model.TradeModel
	if err := s.db.WithContext(ctx).Order("completed_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.TradeRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.TradeRecord{
			OrderID:      r.OrderID,
			CycleID:      r.CycleID,
			Symbol:       r.Symbol,
			Side:         exchange.Side(r.Side),
			FilledSize:   r.FilledSize,
			AveragePrice: r.AveragePrice,
			CompletedAt:  time.UnixMilli(r.CompletedAtUnix).UTC(),
		})
	}
	return out, nil
}

// SaveCycle inserts a running cycle or finalizes it. A finalized cycle is
// never rewritten.
func (s *GormStore) SaveCycle(ctx context.Context, rec store.CycleRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("cycle id is required")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.CycleModel
		err := tx.Where("cycle_id = ?", rec.ID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			m := newCycleModel(rec)
			return tx.Create(&m).Error
		case err != nil:
			return err
		}
		if store.CycleStatus(existing.Status).Terminal() {
			return fmt.Errorf("%w: %s is %s", store.ErrCycleFinalized, rec.ID, existing.Status)
		}
		updates := map[string]interface{}{
			"status":   string(rec.Status),
			"log":      rec.Log,
			"ended_at": unixMilli(rec.EndedAt),
		}
		if len(rec.Decision) > 0 {
			updates["decision"] = datatypes.JSON(rec.Decision)
		}
		return tx.Model(&model.CycleModel{}).Where("id = ?", existing.ID).Updates(updates).Error
	})
}

func (s *GormStore) LatestCycle(ctx context.Context) (store.CycleRecord, bool, error) {
	return s.findCycle(s.db.WithContext(ctx).Order("started_at DESC, id DESC"))
}

func (s *GormStore) LastCompletedCycle(ctx context.Context) (store.CycleRecord, bool, error) {
	return s.findCycle(s.db.WithContext(ctx).
		Where("status = ?", string(store.CycleCompleted)).
		Order("ended_at DESC, id DESC"))
}

func (s *GormStore) findCycle(q *gorm.DB) (store.CycleRecord, bool, error) {
	var m model.CycleModel
	err := q.Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.CycleRecord{}, false, nil
	}
	if err != nil {
		return store.CycleRecord{}, false, err
	}
	return cycleRecordFromModel(m), true, nil
}

func (s *GormStore) SaveNews(ctx context.Context, recs []store.NewsRecord) error {
	if len(recs) == 0 {
		return nil
	}
	rows := make([]model.NewsModel, 0, len(recs))
	for _, r := range recs {
		if strings.TrimSpace(r.Fingerprint) == "" {
			continue
		}
		rows = append(rows, model.NewsModel{
			Fingerprint:   r.Fingerprint,
			Title:         r.Title,
			Summary:       r.Summary,
			URL:           r.URL,
			FetchedAtUnix: r.FetchedAt.UnixMilli(),
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "fingerprint"}}, DoNothing: true}).
		Create(&rows).Error
}

func (s *GormStore) KnownNewsFingerprints(ctx context.Context, fingerprints []string) (map[string]bool, error) {
	out := make(map[string]bool, len(fingerprints))
	if len(fingerprints) == 0 {
		return out, nil
	}
	var known []string
	if err := s.db.WithContext(ctx).Model(&model.NewsModel{}).
		Where("fingerprint IN ?", fingerprints).
		Pluck("fingerprint", &known).Error; err != nil {
		return nil, err
	}
	for _, fp := range known {
		out[fp] = true
	}
	return out, nil
}

// RecentNews returns news fetched at or after since, newest first.
func (s *GormStore) RecentNews(ctx context.Context, since time.Time, limit int) ([]store.NewsRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []model.NewsModel
	q := s.db.WithContext(ctx).Order("fetched_at DESC, id DESC").Limit(limit)
	if !since.IsZero() {
		q = q.Where("fetched_at >= ?", since.UnixMilli())
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.NewsRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.NewsRecord{
			Fingerprint: r.Fingerprint,
			Title:       r.Title,
			Summary:     r.Summary,
			URL:         r.URL,
			FetchedAt:   time.UnixMilli(r.FetchedAtUnix).UTC(),
		})
	}
	return out, nil
}

func newOrderModel(rec store.OrderRecord) model.OrderModel {
	now := time.Now().UnixMilli()
	created := unixMilli(rec.CreatedAt)
	if created == 0 {
		created = now
	}
	status := rec.Status
	if status == "" {
		status = exchange.StatusUnknown
	}
	return model.OrderModel{
		OrderID:       rec.OrderID,
		CycleID:       rec.CycleID,
		Exchange:      rec.Exchange,
		Symbol:        rec.Symbol,
		Side:          string(rec.Side),
		Type:          string(rec.Type),
		Amount:        rec.Amount,
		Price:         rec.Price,
		Filled:        rec.Filled,
		Average:       rec.Average,
		Status:        string(status),
		RawData:       datatypes.JSON(rec.Raw),
		CreatedAtUnix: created,
		UpdatedAtUnix: now,
	}
}

func orderRecordFromModel(m model.OrderModel) store.OrderRecord {
	return store.OrderRecord{
		OrderID:   m.OrderID,
		CycleID:   m.CycleID,
		Exchange:  m.Exchange,
		Symbol:    m.Symbol,
		Side:      exchange.Side(m.Side),
		Type:      exchange.OrderType(m.Type),
		Amount:    m.Amount,
		Price:     m.Price,
		Filled:    m.Filled,
		Average:   m.Average,
		Status:    exchange.ParseStatus(m.Status),
		CreatedAt: time.UnixMilli(m.CreatedAtUnix).UTC(),
		Raw:       []byte(m.RawData),
	}
}

func newCycleModel(rec store.CycleRecord) model.CycleModel {
	status := rec.Status
	if status == "" {
		status = store.CycleRunning
	}
	return model.CycleModel{
		CycleID:       rec.ID,
		Symbol:        rec.Symbol,
		Status:        string(status),
		Log:           rec.Log,
		Decision:      datatypes.JSON(rec.Decision),
		StartedAtUnix: unixMilli(rec.StartedAt),
		EndedAtUnix:   unixMilli(rec.EndedAt),
	}
}

func cycleRecordFromModel(m model.CycleModel) store.CycleRecord {
	rec := store.CycleRecord{
		ID:        m.CycleID,
		Symbol:    m.Symbol,
		Status:    store.CycleStatus(m.Status),
		Log:       m.Log,
		Decision:  []byte(m.Decision),
		StartedAt: time.UnixMilli(m.StartedAtUnix).UTC(),
	}
	if m.EndedAtUnix > 0 {
		rec.EndedAt = time.UnixMilli(m.EndedAtUnix).UTC()
	}
	return rec
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
