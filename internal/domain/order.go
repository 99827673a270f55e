package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, оплата ещё не подтверждена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — оплата подтверждена, заказ передан в исполнение.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ отгружен.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен покупателю.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён; запись сохраняется, не удаляется.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusReturned — заказ возвращён покупателем.
	OrderStatusReturned OrderStatus = "returned"
)

// PaymentStatus описывает платёжную часть заказа.
type PaymentStatus string

const (
	// PaymentStatusPending — оплата инициирована, но не завершена.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusCompleted — провайдер подтвердил оплату.
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed — провайдер отклонил оплату.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded — деньги возвращены клиенту (отдельный поток).
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Terminal сообщает, является ли платёжный статус конечным.
// Из конечного статуса переход возможен только явным refund-потоком.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// PaymentMethod — способ оплаты, выбранный при оформлении.
type PaymentMethod string

const (
	PaymentMethodCreditCard     PaymentMethod = "credit-card"
	PaymentMethodPayPal         PaymentMethod = "paypal"
	PaymentMethodBankTransfer   PaymentMethod = "bank-transfer"
	PaymentMethodCashOnDelivery PaymentMethod = "cash-on-delivery"
)

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodPayPal, PaymentMethodBankTransfer, PaymentMethodCashOnDelivery:
		return true
	default:
		return false
	}
}

// ShippingAddress — адрес доставки заказа.
type ShippingAddress struct {
	Line1      string
	Line2      string
	City       string
	PostalCode string
	Country    string
}

// Validate проверяет обязательные поля адреса.
func (a ShippingAddress) Validate() error {
	if a.Line1 == "" || a.City == "" || a.PostalCode == "" || a.Country == "" {
		return ErrShippingAddressIncomplete
	}
	return nil
}

// ContactInfo — контактные данные покупателя для заказа.
type ContactInfo struct {
	Name  string
	Email string
	Phone string
}

// Validate проверяет обязательные поля контактов.
func (c ContactInfo) Validate() error {
	if c.Name == "" || c.Email == "" {
		return ErrContactInfoIncomplete
	}
	return nil
}

// PaymentInfo — платёжная подзапись заказа. Менять её имеет право только
// сервис reconciliation.
type PaymentInfo struct {
	Method PaymentMethod
	Status PaymentStatus
	// TransactionID — идентификатор транзакции провайдера. После установки
	// уникален в пределах всей системы.
	TransactionID string
	PaidAt        *time.Time
}

// OrderItem представляет одну позицию заказа с ценой на момент покупки.
type OrderItem struct {
	ID             string
	ProductID      string
	Qty            int32
	UnitPriceMinor int64
	CreatedAt      time.Time
}

// Order агрегирует состояние покупки: позиции, суммы, доставку и платёж.
type Order struct {
	ID               string
	UserID           string
	Status           OrderStatus
	Currency         string
	Items            []OrderItem
	Shipping         ShippingAddress
	Contact          ContactInfo
	SubtotalMinor    int64
	ShippingFeeMinor int64
	TaxMinor         int64
	TotalMinor       int64
	Payment          PaymentInfo
	// IntentID — идентификатор intent у провайдера; пустой, пока авторизация не запрошена.
	IntentID  string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidCurrency проверяет, что код валюты — три латинские буквы.
// Валюта трактуется как непрозрачный код, без зашитого списка.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserIDRequired)
	}
	if !ValidCurrency(o.Currency) {
		errs = append(errs, ErrCurrencyInvalid)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrEmptyCart)
	}
	if o.SubtotalMinor < 0 || o.ShippingFeeMinor < 0 || o.TaxMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if !o.Payment.Method.Valid() {
		errs = append(errs, ErrPaymentMethodInvalid)
	}
	if err := o.Shipping.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := o.Contact.Validate(); err != nil {
		errs = append(errs, err)
	}

	// Сверяем subtotal с суммой позиций и total со слагаемыми.
	var calc int64
	for _, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += int64(item.Qty) * item.UnitPriceMinor
	}
	if calc != o.SubtotalMinor {
		errs = append(errs, ErrTotalMismatch)
	} else if o.SubtotalMinor+o.ShippingFeeMinor+o.TaxMinor != o.TotalMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}
