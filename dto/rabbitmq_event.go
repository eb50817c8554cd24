package dto

import "github.com/imsportal/filingstack/internal/enum"

type Event struct {
	Event    EventDetails  `json:"event"`
	Metadata EventMetadata `json:"metadata"`
}

type EventDetails struct {
	Id         string          `json:"id"`
	InstanceId string          `json:"instanceId"`
	EntityId   string          `json:"entityId"`
	EntityType enum.EntityType `json:"entityType"`
	EventType  string          `json:"eventType"`
	Data       interface{}     `json:"data"`
}

type EventMetadata struct {
	UberTraceId string `json:"uber-trace-id"`
	AppSource   string `json:"appSource"`
	Timestamp   string `json:"timestamp"`
}

// EmailProcessed is published once a message reaches a terminal state.
type EmailProcessed struct {
	ExternalMessageID string                `json:"externalMessageId"`
	ProcessingLogID   string                `json:"processingLogId"`
	InstanceID        string                `json:"instanceId,omitempty"`
	ConfigurationID   string                `json:"configurationId,omitempty"`
	Status            enum.ProcessingStatus `json:"status"`
	ControlNumber     string                `json:"controlNumber,omitempty"`
	DocumentIDs       []string              `json:"documentIds,omitempty"`
	Error             string                `json:"error,omitempty"`
}
