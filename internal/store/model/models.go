package model

import (
	"gorm.io/datatypes"
)

type OrderModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	OrderID       string         `gorm:"column:order_id;uniqueIndex"`
	CycleID       string         `gorm:"column:cycle_id;index"`
	Exchange      string         `gorm:"column:exchange"`
	Symbol        string         `gorm:"column:symbol;index"`
	Side          string         `gorm:"column:side"`
	Type          string         `gorm:"column:type"`
	Amount        float64        `gorm:"column:amount"`
	Price         float64        `gorm:"column:price"`
	Filled        float64        `gorm:"column:filled"`
	Average       float64        `gorm:"column:average"`
	Status        string         `gorm:"column:status"`
	RawData       datatypes.JSON `gorm:"column:raw_data"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (OrderModel) TableName() string { return "orders" }

type TradeModel struct {
	ID              int64   `gorm:"column:id;primaryKey"`
	OrderID         string  `gorm:"column:order_id;uniqueIndex"`
	CycleID         string  `gorm:"column:cycle_id;index"`
	Symbol          string  `gorm:"column:symbol;index"`
	Side            string  `gorm:"column:side"`
	FilledSize      float64 `gorm:"column:filled_size"`
	AveragePrice    float64 `gorm:"column:average_price"`
	CompletedAtUnix int64   `gorm:"column:completed_at"`
}

func (TradeModel) TableName() string { return "trades" }

type CycleModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	CycleID       string         `gorm:"column:cycle_id;uniqueIndex"`
	Symbol        string         `gorm:"column:symbol"`
	Status        string         `gorm:"column:status;index"`
	Log           string         `gorm:"column:log"`
	Decision      datatypes.JSON `gorm:"column:decision"`
	StartedAtUnix int64          `gorm:"column:started_at;index"`
	EndedAtUnix   int64          `gorm:"column:ended_at"`
}

func (CycleModel) TableName() string { return "cycles" }

type NewsModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	Fingerprint   string `gorm:"column:fingerprint;uniqueIndex"`
	Title         string `gorm:"column:title"`
	Summary       string `gorm:"column:summary"`
	URL           string `gorm:"column:url"`
	FetchedAtUnix int64  `gorm:"column:fetched_at;index"`
}

func (NewsModel) TableName() string { return "news" }
