package infrastructure

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"convenience/internal/service/checkout/domain"
)

// CatalogSource 负责加载商品目录
type CatalogSource interface {
	Load(ctx context.Context) ([]*domain.Product, error)
}

var (
	productsHeader   = []string{"name", "price", "quantity", "promotion"}
	promotionsHeader = []string{"name", "buy", "get", "start_date", "end_date"}
)

// FileCatalogSource 从 products.md / promotions.md 两个逗号分隔文件加载目录
type FileCatalogSource struct {
	ProductsPath   string
	PromotionsPath string
}

func NewFileCatalogSource(productsPath, promotionsPath string) *FileCatalogSource {
	return &FileCatalogSource{ProductsPath: productsPath, PromotionsPath: promotionsPath}
}

func (s *FileCatalogSource) Load(ctx context.Context) ([]*domain.Product, error) {
	var (
		products   []domain.ProductRecord
		promotions []domain.PromotionRecord
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		f, err := os.Open(s.ProductsPath)
		if err != nil {
			return errors.Wrap(err, "open products file")
		}
		defer f.Close()
		products, err = ParseProductRecords(f)
		return err
	})
	g.Go(func() error {
		f, err := os.Open(s.PromotionsPath)
		if err != nil {
			return errors.Wrap(err, "open promotions file")
		}
		defer f.Close()
		promotions, err = ParsePromotionRecords(f)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return domain.BuildProducts(products, promotions)
}

// ParseProductRecords 解析商品表，首行必须是表头
func ParseProductRecords(r io.Reader) ([]domain.ProductRecord, error) {
	rows, err := readTable(r, productsHeader, len(productsHeader))
	if err != nil {
		return nil, err
	}
	records := make([]domain.ProductRecord, 0, len(rows))
	for i, row := range rows {
		price, err := decimal.NewFromString(row[1])
		if err != nil {
			return nil, errors.Wrapf(domain.ErrInvalidCatalogRecord, "products line %d: price %q", i+2, row[1])
		}
		quantity, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, errors.Wrapf(domain.ErrInvalidCatalogRecord, "products line %d: quantity %q", i+2, row[2])
		}
		records = append(records, domain.ProductRecord{
			Name:      row[0],
			Price:     price,
			Quantity:  quantity,
			Promotion: row[3],
		})
	}
	return records, nil
}

// ParsePromotionRecords 解析促销表，可选第六列为 CEL 条件
func ParsePromotionRecords(r io.Reader) ([]domain.PromotionRecord, error) {
	rows, err := readTable(r, promotionsHeader, len(promotionsHeader)+1)
	if err != nil {
		return nil, err
	}
	records := make([]domain.PromotionRecord, 0, len(rows))
	for i, row := range rows {
		line := i + 2
		buy, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, errors.Wrapf(domain.ErrInvalidCatalogRecord, "promotions line %d: buy %q", line, row[1])
		}
		get, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, errors.Wrapf(domain.ErrInvalidCatalogRecord, "promotions line %d: get %q", line, row[2])
		}
		start, err := time.ParseInLocation(domain.DateLayout, row[3], time.Local)
		if err != nil {
			return nil, errors.Wrapf(domain.ErrInvalidCatalogRecord, "promotions line %d: start_date %q", line, row[3])
		}
		end, err := time.ParseInLocation(domain.DateLayout, row[4], time.Local)
		if err != nil {
			return nil, errors.Wrapf(domain.ErrInvalidCatalogRecord, "promotions line %d: end_date %q", line, row[4])
		}
		rec := domain.PromotionRecord{Name: row[0], Buy: buy, Get: get, StartDate: start, EndDate: end}
		if len(row) > len(promotionsHeader) {
			rec.Condition = row[5]
		}
		records = append(records, rec)
	}
	return records, nil
}

// readTable 读取表头和数据行，数据行的列数必须在 [len(header), maxFields] 之间
func readTable(r io.Reader, header []string, maxFields int) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	all, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(domain.ErrInvalidCatalogRecord, "malformed table: %v", err)
	}
	if len(all) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidCatalogRecord, "missing header")
	}
	for i, col := range header {
		if i >= len(all[0]) || !strings.EqualFold(strings.TrimSpace(all[0][i]), col) {
			return nil, errors.Wrapf(domain.ErrInvalidCatalogRecord, "unexpected header %v, want %v", all[0], header)
		}
	}

	rows := make([][]string, 0, len(all)-1)
	for i, row := range all[1:] {
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		if len(row) < len(header) || len(row) > maxFields {
			return nil, errors.Wrapf(domain.ErrInvalidCatalogRecord, "line %d: %d fields", i+2, len(row))
		}
		for j := range row {
			row[j] = strings.TrimSpace(row[j])
		}
		rows = append(rows, row)
	}
	return rows, nil
}
