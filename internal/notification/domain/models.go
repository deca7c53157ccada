// Package domain contains persistence models for notifications.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventType names what happened.
type EventType string

const (
	EventContractSent      EventType = "contract_sent"
	EventInvoiceSettlement EventType = "invoice_settlement"
)

// Notification is a stored event awaiting (or past) delivery.
type Notification struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID      `gorm:"not null;index" json:"user_id"`
	Type      EventType         `gorm:"type:text;not null" json:"type"`
	Title     string            `gorm:"type:text;not null" json:"title"`
	Body      string            `gorm:"type:text" json:"body"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }
