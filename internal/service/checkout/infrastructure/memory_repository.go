package infrastructure

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"convenience/internal/service/checkout/domain"
)

// MemoryProductRepository 是进程内的商品目录，启动时加载一次，不做持久化
type MemoryProductRepository struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
	order    []string
}

// NewMemoryProductRepository 用已合并的商品实体创建目录
func NewMemoryProductRepository(products []*domain.Product) *MemoryProductRepository {
	r := &MemoryProductRepository{products: make(map[string]*domain.Product, len(products))}
	for _, p := range products {
		if _, ok := r.products[p.Name]; !ok {
			r.order = append(r.order, p.Name)
		}
		r.products[p.Name] = p.Clone()
	}
	return r
}

func (r *MemoryProductRepository) FindByName(ctx context.Context, name string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[name]
	if !ok {
		return nil, errors.Wrapf(domain.ErrProductNotFound, "%q", name)
	}
	return p.Clone(), nil
}

func (r *MemoryProductRepository) FindGeneralProductByName(ctx context.Context, name string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[name]
	if !ok || p.RegularStock <= 0 {
		return nil, errors.Wrapf(domain.ErrProductNotFound, "no regular stock for %q", name)
	}
	return p.Clone(), nil
}

func (r *MemoryProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Product, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.products[name].Clone())
	}
	return out, nil
}

func (r *MemoryProductRepository) Save(ctx context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[product.Name]; !ok {
		return errors.Wrapf(domain.ErrProductNotFound, "%q", product.Name)
	}
	r.products[product.Name] = product.Clone()
	return nil
}
