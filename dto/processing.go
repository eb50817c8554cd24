package dto

import (
	"time"

	"github.com/imsportal/filingstack/internal/enum"
)

// SourceSummary counts outcomes for one mailbox pass.
type SourceSummary struct {
	Mailbox       string                        `json:"mailbox"`
	Fetched       int                           `json:"fetched"`
	AlreadySeen   int                           `json:"alreadySeen"`
	Outcomes      map[enum.ProcessingStatus]int `json:"outcomes"`
	WatermarkFrom *time.Time                    `json:"watermarkFrom,omitempty"`
	WatermarkTo   *time.Time                    `json:"watermarkTo,omitempty"`
	Error         string                        `json:"error,omitempty"`
}

// TickSummary is the result of one processing pass.
type TickSummary struct {
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	InstanceID string          `json:"instanceId,omitempty"`
	Sources    []SourceSummary `json:"sources"`
}

// ProcessorStatus is reported on /status.
type ProcessorStatus struct {
	Running  bool         `json:"running"`
	LastTick *TickSummary `json:"lastTick,omitempty"`
}
