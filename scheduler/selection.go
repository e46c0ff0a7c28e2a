package scheduler

import (
	"context"
	"fmt"

	"github.com/goliatone/go-credentials/core"
)

// ConnectionLister is the slice of the credential service the scheduler
// needs to discover connected tenants.
type ConnectionLister interface {
	ListConnections(ctx context.Context, providerID core.ProviderID) ([]core.ConnectionSummary, error)
}

// TenantPair is one Salesforce/QuickBooks combination a reconciliation run
// operates on.
type TenantPair struct {
	SalesforceTenant string
	QuickBooksRealm  string
}

// SelectionPolicy decides which tenant pairs a scheduled run covers. An
// empty result means there is nothing to reconcile and the run is skipped.
type SelectionPolicy interface {
	Select(ctx context.Context, lister ConnectionLister) ([]TenantPair, error)
}

// FirstTenantPolicy pairs the first connected tenant of each provider.
// Tenant listings are sorted, so the choice is stable across runs. This is
// the default for single-org deployments.
type FirstTenantPolicy struct{}

func (FirstTenantPolicy) Select(ctx context.Context, lister ConnectionLister) ([]TenantPair, error) {
	salesforce, quickbooks, err := listBoth(ctx, lister)
	if err != nil {
		return nil, err
	}
	if len(salesforce) == 0 || len(quickbooks) == 0 {
		return nil, nil
	}
	return []TenantPair{{
		SalesforceTenant: salesforce[0].TenantID,
		QuickBooksRealm:  quickbooks[0].TenantID,
	}}, nil
}

// AllPairsPolicy reconciles every Salesforce tenant against every QuickBooks
// realm. Intended for multi-org deployments where each combination is a
// meaningful integration.
type AllPairsPolicy struct{}

func (AllPairsPolicy) Select(ctx context.Context, lister ConnectionLister) ([]TenantPair, error) {
	salesforce, quickbooks, err := listBoth(ctx, lister)
	if err != nil {
		return nil, err
	}
	pairs := make([]TenantPair, 0, len(salesforce)*len(quickbooks))
	for _, sf := range salesforce {
		for _, qb := range quickbooks {
			pairs = append(pairs, TenantPair{
				SalesforceTenant: sf.TenantID,
				QuickBooksRealm:  qb.TenantID,
			})
		}
	}
	return pairs, nil
}

func listBoth(ctx context.Context, lister ConnectionLister) ([]core.ConnectionSummary, []core.ConnectionSummary, error) {
	if lister == nil {
		return nil, nil, fmt.Errorf("scheduler: connection lister is required")
	}
	salesforce, err := lister.ListConnections(ctx, core.ProviderSalesforce)
	if err != nil {
		return nil, nil, fmt.Errorf("scheduler: list salesforce connections: %w", err)
	}
	quickbooks, err := lister.ListConnections(ctx, core.ProviderQuickBooks)
	if err != nil {
		return nil, nil, fmt.Errorf("scheduler: list quickbooks connections: %w", err)
	}
	return salesforce, quickbooks, nil
}
