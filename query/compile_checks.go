package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-credentials/core"
)

var (
	_ gocmd.Querier[ListConnectionsMessage, []core.ConnectionSummary] = (*ListConnectionsQuery)(nil)
	_ gocmd.Querier[ListEventsMessage, []core.LifecycleEvent]         = (*ListEventsQuery)(nil)
)
