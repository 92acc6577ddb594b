package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/checkout-engine/internal/domain/cart"
	"github.com/xenking/checkout-engine/internal/domain/catalog"
	"github.com/xenking/checkout-engine/internal/domain/discount"
	"github.com/xenking/checkout-engine/internal/domain/stock"
	"github.com/xenking/checkout-engine/internal/event"
)

// maxNumberAttempts bounds the order-number collision retry loop.
const maxNumberAttempts = 5

// TxRepos bundles the repositories a checkout operates on, all bound to the
// same transaction. Mutations made through them become visible atomically.
type TxRepos struct {
	Carts     cart.Repository
	Variants  catalog.Repository
	Stock     stock.Ledger
	Discounts discount.Repository
	Orders    Repository
}

// UnitOfWork runs fn inside a single transaction. When fn returns an error
// every mutation made through the TxRepos is rolled back.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, r TxRepos) error) error
}

// CheckoutConfig holds non-dependency checkout settings.
type CheckoutConfig struct {
	// ShippingCost is the flat shipping rate added to every order.
	ShippingCost decimal.Decimal
}

// Checkout converts a user's cart into an order: it reserves stock for every
// line, snapshots catalog names and prices, consumes a discount use, and
// persists the order — all inside one unit of work.
type Checkout struct {
	uow          UnitOfWork
	events       event.Publisher
	shippingCost decimal.Decimal
	now          func() time.Time
}

// NewCheckout creates a Checkout service.
func NewCheckout(uow UnitOfWork, events event.Publisher, cfg CheckoutConfig) *Checkout {
	if events == nil {
		events = event.Nop{}
	}
	return &Checkout{
		uow:          uow,
		events:       events,
		shippingCost: cfg.ShippingCost,
		now:          time.Now,
	}
}

// CreateFromCart performs checkout for the given user. It is atomic: either
// a fully formed order with all stock reservations exists afterwards, or
// nothing changed. Expected failures are *ValidationError, cart.ErrEmpty,
// *InactiveVariantError, *stock.OutOfStockError and the discount sentinels.
func (c *Checkout) CreateFromCart(ctx context.Context, userID string, shipping ShippingInfo) (*Order, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "user", Reason: "required"}
	}
	if err := validateShipping(shipping); err != nil {
		return nil, err
	}

	var created *Order
	err := c.uow.WithTx(ctx, func(ctx context.Context, r TxRepos) error {
		o, err := c.checkout(ctx, r, userID, shipping)
		if err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.events.Publish(ctx, event.Event{
		Type:        event.TypeOrderCreated,
		OrderNumber: created.Number,
		UserID:      created.UserID,
		Total:       created.Total.String(),
		OccurredAt:  created.CreatedAt,
	}); err != nil {
		zctx.From(ctx).Warn("publish order.created failed",
			zap.String("order_number", created.Number), zap.Error(err))
	}

	return created, nil
}

func (c *Checkout) checkout(ctx context.Context, r TxRepos, userID string, shipping ShippingInfo) (*Order, error) {
	userCart, err := r.Carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if len(userCart.Items) == 0 {
		return nil, cart.ErrEmpty
	}

	ids := make([]string, len(userCart.Items))
	for i, item := range userCart.Items {
		if item.Quantity <= 0 {
			return nil, &ValidationError{Field: "quantity", Reason: "must be greater than 0"}
		}
		ids[i] = item.VariantID
	}

	fetched, err := r.Variants.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get variants")
	}
	byID := make(map[string]catalog.Variant, len(fetched))
	for _, v := range fetched {
		byID[v.ID] = v
	}

	// Reserve stock line by line. If any line fails, reservations already
	// taken for this call are released before returning; the surrounding
	// transaction rollback covers the persistent side.
	var reserved []cart.Item
	rollback := func() {
		for _, line := range reserved {
			if relErr := r.Stock.Release(ctx, line.VariantID, line.Quantity); relErr != nil {
				zctx.From(ctx).Warn("checkout rollback: release failed",
					zap.String("variant_id", line.VariantID), zap.Error(relErr))
			}
		}
	}

	now := c.now()
	items := make([]OrderItem, 0, len(userCart.Items))
	subtotal := decimal.Zero

	for _, line := range userCart.Items {
		v, ok := byID[line.VariantID]
		if !ok {
			rollback()
			return nil, errors.Wrapf(catalog.ErrNotFound, "variant %s", line.VariantID)
		}
		if !v.IsActive {
			rollback()
			return nil, &InactiveVariantError{VariantID: v.ID}
		}

		if err := r.Stock.Reserve(ctx, v.ID, line.Quantity); err != nil {
			rollback()
			return nil, err
		}
		reserved = append(reserved, line)

		// Snapshot name and price at this instant; the live catalog row may
		// change after the order is placed.
		items = append(items, OrderItem{
			ID:          uuid.New().String(),
			VariantID:   v.ID,
			ProductName: v.ProductName,
			VariantName: v.VariantName,
			Price:       v.Price,
			Quantity:    line.Quantity,
		})
		subtotal = subtotal.Add(v.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	discountAmount := decimal.Zero
	if userCart.DiscountCode != "" {
		d, err := r.Discounts.FindByCode(ctx, userCart.DiscountCode)
		if err != nil {
			rollback()
			return nil, errors.Wrap(err, "find discount")
		}
		discountAmount, err = discount.Apply(d, subtotal, now)
		if err != nil {
			rollback()
			return nil, err
		}
		if err := r.Discounts.ConsumeUse(ctx, d.Code); err != nil {
			rollback()
			return nil, errors.Wrap(err, "consume discount use")
		}
	}

	total := subtotal.Sub(discountAmount).Add(c.shippingCost)
	if total.IsNegative() {
		total = decimal.Zero
	}

	number, err := c.generateNumber(ctx, r.Orders, now)
	if err != nil {
		rollback()
		return nil, err
	}

	o := &Order{
		ID:             uuid.New().String(),
		Number:         number,
		UserID:         userID,
		Status:         StatusPending,
		Items:          items,
		Subtotal:       subtotal.Round(2),
		DiscountCode:   userCart.DiscountCode,
		DiscountAmount: discountAmount,
		ShippingCost:   c.shippingCost,
		Total:          total.Round(2),
		Shipping:       shipping,
		CreatedAt:      now,
	}

	if err := r.Orders.Create(ctx, o); err != nil {
		rollback()
		return nil, errors.Wrap(err, "create order")
	}
	if err := r.Carts.Clear(ctx, userID); err != nil {
		rollback()
		return nil, errors.Wrap(err, "clear cart")
	}

	return o, nil
}

// generateNumber produces a date-stamped order number with a random suffix,
// collision-checked against existing orders.
func (c *Checkout) generateNumber(ctx context.Context, orders Repository, now time.Time) (string, error) {
	for range maxNumberAttempts {
		suffix := strings.ToUpper(uuid.New().String()[:6])
		number := "ORD-" + now.Format("20060102") + "-" + suffix

		taken, err := orders.NumberExists(ctx, number)
		if err != nil {
			return "", errors.Wrap(err, "check order number")
		}
		if !taken {
			return number, nil
		}
	}
	return "", errors.New("order number generation exhausted retries")
}
