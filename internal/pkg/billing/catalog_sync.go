package billing

import (
	"context"
	"fmt"

	"github.com/MortenHolst/MemberPortal/app/models"
)

// Gateway-side recurring intervals.
const (
	intervalMonth = "month"
	intervalYear  = "year"
)

// CatalogSyncResult reports one product's gateway identifiers after a sync.
type CatalogSyncResult struct {
	ProductCode      string `json:"product_code"`
	GatewayProductID string `json:"gateway_product_id"`
	PriceMonthlyID   string `json:"price_monthly_id,omitempty"`
	PriceYearlyID    string `json:"price_yearly_id,omitempty"`
}

// SyncCatalog pushes every active product into the gateway's product/price
// registry and stores the resulting identifiers back on the product rows.
// Find-or-create on the product code and on (interval, amount, currency)
// makes re-runs and races harmless: nothing is created twice.
func (s *Service) SyncCatalog(ctx context.Context) ([]CatalogSyncResult, error) {
	products, err := s.repo.ListActiveProducts()
	if err != nil {
		return nil, err
	}

	results := make([]CatalogSyncResult, 0, len(products))
	for i := range products {
		product := &products[i]
		res, err := s.syncProduct(ctx, product)
		if err != nil {
			return results, fmt.Errorf("sync product %s: %w", product.Code, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Service) syncProduct(ctx context.Context, product *models.Product) (CatalogSyncResult, error) {
	gatewayProductID, err := s.gateway.EnsureProduct(ctx, product.Code, product.Name)
	if err != nil {
		return CatalogSyncResult{}, err
	}
	product.GatewayProductID = gatewayProductID

	if product.PriceMonthly > 0 {
		id, err := s.gateway.EnsureRecurringPrice(ctx, gatewayProductID, product.Currency, product.PriceMonthly, intervalMonth)
		if err != nil {
			return CatalogSyncResult{}, err
		}
		product.GatewayPriceMonthlyID = id
	}
	if product.PriceYearly > 0 {
		id, err := s.gateway.EnsureRecurringPrice(ctx, gatewayProductID, product.Currency, product.PriceYearly, intervalYear)
		if err != nil {
			return CatalogSyncResult{}, err
		}
		product.GatewayPriceYearlyID = id
	}

	if err := s.repo.SaveProduct(product); err != nil {
		return CatalogSyncResult{}, err
	}
	return CatalogSyncResult{
		ProductCode:      product.Code,
		GatewayProductID: product.GatewayProductID,
		PriceMonthlyID:   product.GatewayPriceMonthlyID,
		PriceYearlyID:    product.GatewayPriceYearlyID,
	}, nil
}
