package domain

import "context"

// ProductRepository 是商品目录的仓储接口，由基础设施层实现。
// 查询返回副本，修改后需要 Save。
type ProductRepository interface {
	FindByName(ctx context.Context, name string) (*Product, error)
	// FindGeneralProductByName 查找同名且普通库存大于 0 的商品。
	// 目录已按名称合并为单一实体，所以命中时返回的就是该实体本身。
	FindGeneralProductByName(ctx context.Context, name string) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
	// Save 写回扣减后的库存
	Save(ctx context.Context, product *Product) error
}
