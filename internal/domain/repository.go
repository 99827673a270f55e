package domain

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ целиком. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListByUser возвращает заказы пользователя, свежие первыми, с опциональным лимитом.
	ListByUser(userID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking:
	// запись перезаписывается только при совпадении Version, иначе
	// возвращается ErrOrderVersionConflict. Уникальность Payment.TransactionID
	// гарантируется хранилищем; нарушение отражается как ErrTransactionIDTaken.
	Save(order Order) error
}
