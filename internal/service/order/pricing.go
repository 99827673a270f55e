package order

import "github.com/vladislavdragonenkov/checkout/internal/domain"

// PricingPolicy вычисляет стоимость доставки и налог для снапшота корзины.
type PricingPolicy interface {
	ShippingFeeMinor(snapshot domain.CartSnapshot) int64
	TaxMinor(snapshot domain.CartSnapshot, shippingFeeMinor int64) int64
}

type zeroPricing struct{}

// NewZeroPricing возвращает политику без доставки и налога (по умолчанию).
func NewZeroPricing() PricingPolicy {
	return zeroPricing{}
}

func (zeroPricing) ShippingFeeMinor(domain.CartSnapshot) int64 { return 0 }

func (zeroPricing) TaxMinor(domain.CartSnapshot, int64) int64 { return 0 }

// FlatPricing — фиксированная доставка плюс налог в базисных пунктах от
// суммы товаров и доставки.
type FlatPricing struct {
	FeeMinor int64
	TaxBps   int64
}

func (p FlatPricing) ShippingFeeMinor(domain.CartSnapshot) int64 {
	return p.FeeMinor
}

func (p FlatPricing) TaxMinor(snapshot domain.CartSnapshot, shippingFeeMinor int64) int64 {
	if p.TaxBps <= 0 {
		return 0
	}
	return (snapshot.TotalMinor + shippingFeeMinor) * p.TaxBps / 10000
}

var _ PricingPolicy = FlatPricing{}
