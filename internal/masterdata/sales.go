package masterdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/ledgerclaw/internal/ledger"
)

// SalesOrderLine is one ordered item.
type SalesOrderLine struct {
	MaterialCode string  `json:"materialCode"`
	Quantity     float64 `json:"quantity"`
	UnitPrice    float64 `json:"unitPrice"`
	Amount       float64 `json:"amount"`
}

// SalesOrder is a registered sales order.
type SalesOrder struct {
	No           string           `json:"orderNo"`
	CustomerCode string           `json:"customerCode"`
	OrderDate    string           `json:"orderDate"`
	Lines        []SalesOrderLine `json:"lines"`
	Amount       float64          `json:"amount"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// Sales order validation failures.
var (
	ErrUnknownCustomer = errors.New("unknown customer")
	ErrUnknownMaterial = errors.New("unknown material")
	ErrBadQuantity     = errors.New("quantity must be greater than zero")
	ErrNoOrderLines    = errors.New("sales order has no lines")
)

// CreateSalesOrder validates and registers an order. Unit prices default to
// the material price.
func (m *Memory) CreateSalesOrder(ctx context.Context, order SalesOrder) (*SalesOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(order.Lines) == 0 {
		return nil, ErrNoOrderLines
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	customer := strings.TrimSpace(order.CustomerCode)
	found := false
	for _, p := range m.partners {
		if p.Kind == KindCustomer && p.Code == customer {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCustomer, customer)
	}

	out := &SalesOrder{CustomerCode: customer, CreatedAt: m.now()}
	out.OrderDate = out.CreatedAt.Format(ledger.DateLayout)
	if order.OrderDate != "" {
		d, ok := ledger.NormalizeDate(order.OrderDate)
		if !ok {
			return nil, fmt.Errorf("invalid order date %q", order.OrderDate)
		}
		out.OrderDate = d
	}
	for i, l := range order.Lines {
		mat, ok := m.materials[strings.TrimSpace(l.MaterialCode)]
		if !ok {
			return nil, fmt.Errorf("line %d: %w: %s", i+1, ErrUnknownMaterial, l.MaterialCode)
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("line %d: %w", i+1, ErrBadQuantity)
		}
		price := l.UnitPrice
		if price <= 0 {
			price = mat.UnitPrice
		}
		line := SalesOrderLine{
			MaterialCode: mat.Code,
			Quantity:     l.Quantity,
			UnitPrice:    price,
			Amount:       ledger.Round2(price * l.Quantity),
		}
		out.Lines = append(out.Lines, line)
		out.Amount = ledger.Round2(out.Amount + line.Amount)
	}
	prefix := "SO" + strings.ReplaceAll(out.OrderDate[:7], "-", "")
	out.No = fmt.Sprintf("%s-%04d", prefix, m.next(prefix))
	m.orders[out.No] = out
	m.logger.Info("sales order stored", zap.String("order_no", out.No), zap.String("customer", customer))
	return out, nil
}

// SalesOrder returns a registered order by number.
func (m *Memory) SalesOrder(no string) (*SalesOrder, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[no]
	return o, ok
}
