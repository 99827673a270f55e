package domain

import "time"

// CartItem — позиция живой корзины. UnitPriceMinor фиксируется в момент
// добавления товара и не перечитывается из каталога.
type CartItem struct {
	ProductID      string
	Qty            int32
	UnitPriceMinor int64
	AddedAt        time.Time
}

// Cart — живая корзина пользователя. Может меняться независимо от заказов.
type Cart struct {
	UserID    string
	Currency  string
	Items     []CartItem
	UpdatedAt time.Time
}

// SnapshotItem — позиция снапшота с замороженной ценой.
type SnapshotItem struct {
	ProductID      string
	Qty            int32
	UnitPriceMinor int64
}

// CartSnapshot — неизменяемая копия корзины, снятая в момент создания заказа.
// Дальнейшие изменения живой корзины на снапшот не влияют.
type CartSnapshot struct {
	UserID     string
	Currency   string
	Items      []SnapshotItem
	TotalMinor int64
	TakenAt    time.Time
}

// Snapshot копирует позиции корзины по значению и считает итоговую сумму.
// Цена берётся из корзины (цена на момент добавления), а не из каталога.
func Snapshot(cart Cart) (CartSnapshot, error) {
	if len(cart.Items) == 0 {
		return CartSnapshot{}, ErrEmptyCart
	}

	items := make([]SnapshotItem, 0, len(cart.Items))
	var total int64
	for _, item := range cart.Items {
		if item.Qty <= 0 {
			return CartSnapshot{}, ErrItemQtyInvalid
		}
		if item.UnitPriceMinor < 0 {
			return CartSnapshot{}, ErrItemPriceInvalid
		}
		items = append(items, SnapshotItem{
			ProductID:      item.ProductID,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
		})
		total += int64(item.Qty) * item.UnitPriceMinor
	}

	return CartSnapshot{
		UserID:     cart.UserID,
		Currency:   cart.Currency,
		Items:      items,
		TotalMinor: total,
		TakenAt:    time.Now().UTC(),
	}, nil
}
