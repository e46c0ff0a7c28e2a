package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[RefreshAccessTokenMessage]    = (*RefreshAccessTokenCommand)(nil)
	_ gocmd.Commander[StoreGrantMessage]            = (*StoreGrantCommand)(nil)
	_ gocmd.Commander[BeginAuthorizationMessage]    = (*BeginAuthorizationCommand)(nil)
	_ gocmd.Commander[CompleteAuthorizationMessage] = (*CompleteAuthorizationCommand)(nil)
	_ gocmd.Commander[RunReconciliationMessage]     = (*RunReconciliationCommand)(nil)
)
