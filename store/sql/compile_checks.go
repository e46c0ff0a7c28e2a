package sqlstore

import "github.com/goliatone/go-credentials/core"

var _ core.EventStore = (*CredentialEventStore)(nil)
