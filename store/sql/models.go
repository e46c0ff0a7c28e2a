package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type credentialEventRecord struct {
	bun.BaseModel `bun:"table:credential_events,alias:ce"`

	ID         string         `bun:"id,pk"`
	Provider   string         `bun:"provider,notnull"`
	TenantID   string         `bun:"tenant_id,notnull"`
	EventType  string         `bun:"event_type,notnull"`
	Status     string         `bun:"status,notnull"`
	Error      string         `bun:"error"`
	Metadata   map[string]any `bun:"metadata,type:jsonb,notnull"`
	OccurredAt time.Time      `bun:"occurred_at,nullzero,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
