package query

import (
	"strings"

	"github.com/goliatone/go-credentials/core"
)

const (
	TypeListConnections = "credentials.query.connections.list"
	TypeListEvents      = "credentials.query.events.list"
)

type ListConnectionsMessage struct {
	Provider core.ProviderID
}

func (ListConnectionsMessage) Type() string { return TypeListConnections }

func (m ListConnectionsMessage) Validate() error {
	if err := m.Provider.Validate(); err != nil {
		return queryWrapValidation(err, "query: invalid provider")
	}
	return nil
}

type ListEventsMessage struct {
	Filter core.EventFilter
}

func (ListEventsMessage) Type() string { return TypeListEvents }

func (m ListEventsMessage) Validate() error {
	if m.Filter.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Filter.Provider != "" {
		if err := m.Filter.Provider.Validate(); err != nil {
			return queryWrapValidation(err, "query: invalid provider filter")
		}
	}
	if m.Filter.EventType != "" && strings.TrimSpace(m.Filter.EventType) == "" {
		return queryValidationError("event_type", "event type must not be blank")
	}
	return nil
}
