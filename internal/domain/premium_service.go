/**
 * @description
 * Premium service domain model: a chargeable amenity (spa, restaurant,
 * recreation) offered on top of the regular maintenance obligations. A
 * service carries its own pricing model and member discount; usage charges
 * land on the resident or property account the service is integrated with.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ServiceCategory classifies a premium service.
type ServiceCategory string

const (
	ServiceSpa        ServiceCategory = "spa"
	ServiceRestaurant ServiceCategory = "restaurant"
	ServiceRecreation ServiceCategory = "recreation"
	ServiceTransport  ServiceCategory = "transport"
	ServiceConcierge  ServiceCategory = "concierge"
)

// ValidServiceCategory reports whether c is a recognized category.
func ValidServiceCategory(c ServiceCategory) bool {
	switch c {
	case ServiceSpa, ServiceRestaurant, ServiceRecreation, ServiceTransport, ServiceConcierge:
		return true
	}
	return false
}

// PricingModel decides how usage units translate into a charge.
type PricingModel string

const (
	PricePerUse  PricingModel = "per_use"
	PriceHourly  PricingModel = "hourly"
	PriceMonthly PricingModel = "monthly_package"
)

// ValidPricingModel reports whether m is a recognized pricing model.
func ValidPricingModel(m PricingModel) bool {
	switch m {
	case PricePerUse, PriceHourly, PriceMonthly:
		return true
	}
	return false
}

// ServiceStatus enumerates the premium service lifecycle.
type ServiceStatus string

const (
	ServiceDraft     ServiceStatus = "draft"
	ServiceTrial     ServiceStatus = "trial"
	ServiceActive    ServiceStatus = "active"
	ServiceSuspended ServiceStatus = "suspended"
	ServiceRetired   ServiceStatus = "retired"
)

// serviceTransitions is the allowed-transition table:
// Draft → (Trial | Active); Trial → Active; Active ↔ Suspended; anything
// live can retire. Retired is terminal.
var serviceTransitions = map[ServiceStatus][]ServiceStatus{
	ServiceDraft:     {ServiceTrial, ServiceActive},
	ServiceTrial:     {ServiceActive, ServiceRetired},
	ServiceActive:    {ServiceSuspended, ServiceRetired},
	ServiceSuspended: {ServiceActive, ServiceRetired},
	ServiceRetired:   {},
}

// CanTransition reports whether the service may move from -> to.
func (s ServiceStatus) CanTransition(to ServiceStatus) bool {
	for _, next := range serviceTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ChargeTarget names the account kind a service bills against.
type ChargeTarget string

const (
	ChargeResidentAccount ChargeTarget = "resident_account"
	ChargePropertyAccount ChargeTarget = "property_account"
)

// PremiumService is one chargeable amenity of a company.
type PremiumService struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Company     string          `json:"company" db:"company"`
	ServiceName string          `json:"service_name" db:"service_name"`
	Category    ServiceCategory `json:"category" db:"category"`
	Status      ServiceStatus   `json:"status" db:"status"`

	PricingModel      PricingModel    `json:"pricing_model" db:"pricing_model"`
	BasePrice         decimal.Decimal `json:"base_price" db:"base_price"`
	MemberDiscountPct decimal.Decimal `json:"member_discount_pct" db:"member_discount_pct"` // [0, 50]
	ChargeTarget      ChargeTarget    `json:"charge_target" db:"charge_target"`

	TotalRevenue decimal.Decimal `json:"total_revenue" db:"total_revenue"`
	UsageCount   int             `json:"usage_count" db:"usage_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Ref returns the entity reference used in errors and the event log.
func (p *PremiumService) Ref() string {
	return "premium_service/" + p.ID.String()
}

// Chargeable reports whether usage may be billed against the service.
func (p *PremiumService) Chargeable() bool {
	return p.Status == ServiceActive || p.Status == ServiceTrial
}

// PriceFor computes the charge for the given usage units, applying the member
// discount when it applies. The monthly package ignores units.
func (p *PremiumService) PriceFor(units int, member bool) decimal.Decimal {
	if units < 1 {
		units = 1
	}
	price := p.BasePrice
	if p.PricingModel != PriceMonthly {
		price = price.Mul(decimal.NewFromInt(int64(units)))
	}
	if member && p.MemberDiscountPct.IsPositive() {
		price = price.Sub(price.Mul(Percent(p.MemberDiscountPct)))
	}
	return RoundMoney(price)
}
