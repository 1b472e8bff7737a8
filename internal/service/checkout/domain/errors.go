package domain

import "github.com/pkg/errors"

var (
	ErrProductNotFound      = errors.New("product not found")
	ErrOverstockRequested   = errors.New("requested quantity exceeds available stock")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrInvalidCatalogRecord = errors.New("invalid catalog record")
	// ErrStockInconsistent 表示已校验过的分配在提交时无法满足，属于内部一致性错误
	ErrStockInconsistent = errors.New("stock cannot satisfy committed allocation")
)
