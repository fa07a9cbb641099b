/**
 * @description
 * External registry boundaries consumed by the application services. The core
 * reads property attributes and customer records from the registry services
 * and never writes back; the interfaces here keep the services testable
 * without HTTP.
 *
 * @dependencies
 * - pkg/registryclient: The concrete HTTP client satisfying both interfaces.
 */

package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/habitora/finance-service/internal/domain"
	"github.com/habitora/finance-service/pkg/registryclient"
)

// PropertyRegistry is the read surface of the external property registry.
type PropertyRegistry interface {
	GetProperty(ctx context.Context, company, code string) (*registryclient.PropertyRecord, error)
	ListActiveProperties(ctx context.Context, company string) ([]registryclient.PropertyRecord, error)
}

// CustomerRegistry is the read surface of the external customer registry.
type CustomerRegistry interface {
	GetCustomer(ctx context.Context, company, ref string) (*registryclient.CustomerRecord, error)
}

// profileFromRecord converts a registry record into the calculation profile
// the fee engine consumes.
func profileFromRecord(rec *registryclient.PropertyRecord) domain.PropertyProfile {
	return domain.PropertyProfile{
		Code:           rec.Code,
		Company:        rec.Company,
		OwnershipShare: decimal.NewFromFloat(rec.OwnershipShare),
		BuiltArea:      decimal.NewFromFloat(rec.BuiltArea),
		UnitType:       rec.UnitType,
		Active:         rec.Active,
	}
}
