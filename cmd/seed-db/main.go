// Command seed-db applies migrations and loads development fixtures: product
// variants with stock, a few discount codes, and an API key for testing.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/checkout-engine/internal/handler"
	"github.com/xenking/checkout-engine/internal/repository"
)

type variantJSON struct {
	ID          string          `json:"id"`
	ProductName string          `json:"product_name"`
	VariantName string          `json:"variant_name"`
	Price       decimal.Decimal `json:"price"`
	StockOnHand int             `json:"stock_on_hand"`
}

const upsertVariantSQL = `
INSERT INTO product_variants (id, product_name, variant_name, price, is_active, stock_on_hand)
VALUES ($1, $2, $3, $4, TRUE, $5)
ON CONFLICT (id) DO UPDATE SET
    product_name  = EXCLUDED.product_name,
    variant_name  = EXCLUDED.variant_name,
    price         = EXCLUDED.price,
    is_active     = TRUE,
    stock_on_hand = EXCLUDED.stock_on_hand`

const upsertDiscountSQL = `
INSERT INTO discounts (code, discount_type, value, min_order_amount, usage_limit, active)
VALUES ($1, $2, $3, $4, $5, TRUE)
ON CONFLICT (code) DO UPDATE SET
    discount_type    = EXCLUDED.discount_type,
    value            = EXCLUDED.value,
    min_order_amount = EXCLUDED.min_order_amount,
    usage_limit      = EXCLUDED.usage_limit,
    active           = TRUE`

const upsertCartSQL = `
INSERT INTO carts (user_id, discount_code)
VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET
    discount_code = EXCLUDED.discount_code,
    updated_at    = now()`

const clearCartItemsSQL = `DELETE FROM cart_items WHERE user_id = $1`

const insertCartItemSQL = `
INSERT INTO cart_items (user_id, variant_id, quantity)
VALUES ($1, $2, $3)`

const upsertAPIKeySQL = `
INSERT INTO api_keys (key_hash, owner_id, name, active)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (key_hash) DO UPDATE SET
    owner_id = EXCLUDED.owner_id,
    name     = EXCLUDED.name,
    active   = TRUE`

func main() {
	var (
		databaseURL  string
		variantsFile string
		apiKey       string
		apiKeyOwner  string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&variantsFile, "variants-file", "db/seed/variants.json", "path to variants JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or CHECKOUT_SEED_API_KEY env)")
	flag.StringVar(&apiKeyOwner, "api-key-owner", "dev", "owner ID the seeded API key belongs to")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or CHECKOUT_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("CHECKOUT_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or CHECKOUT_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("CHECKOUT_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, variantsFile, apiKey, apiKeyOwner, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, variantsFile, apiKey, owner, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedVariants(ctx, pool, variantsFile); err != nil {
		return errors.Wrap(err, "seed variants")
	}

	if err := seedDiscounts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed discounts")
	}

	if err := seedAPIKey(ctx, pool, apiKey, owner, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	if err := seedCart(ctx, pool, owner); err != nil {
		return errors.Wrap(err, "seed cart")
	}

	return nil
}

func seedVariants(ctx context.Context, pool *pgxpool.Pool, variantsFile string) error {
	slog.Info("reading variants file", slog.String("path", variantsFile))

	data, err := os.ReadFile(variantsFile)
	if err != nil {
		return errors.Wrap(err, "read variants file")
	}

	var variants []variantJSON
	if err := json.Unmarshal(data, &variants); err != nil {
		return errors.Wrap(err, "parse variants JSON")
	}

	slog.Info("upserting variants", slog.Int("count", len(variants)))

	for _, v := range variants {
		if _, err := pool.Exec(ctx, upsertVariantSQL,
			v.ID, v.ProductName, v.VariantName, v.Price, v.StockOnHand,
		); err != nil {
			return errors.Wrapf(err, "upsert variant %s", v.ID)
		}

		slog.Info("upserted variant",
			slog.String("id", v.ID),
			slog.String("product", v.ProductName),
			slog.Int("stock", v.StockOnHand),
		)
	}

	return nil
}

func seedDiscounts(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding discounts")

	discounts := []struct {
		code         string
		discountType string
		value        string
		minOrder     string
		usageLimit   int
	}{
		{code: "WELCOME10", discountType: "percentage", value: "10", minOrder: "0", usageLimit: 0},
		{code: "TWENTYOFF", discountType: "fixed", value: "20", minOrder: "100", usageLimit: 500},
		{code: "HALFPRICE", discountType: "percentage", value: "50", minOrder: "200", usageLimit: 10},
	}

	for _, d := range discounts {
		value, err := decimal.NewFromString(d.value)
		if err != nil {
			return errors.Wrapf(err, "parse value for %s", d.code)
		}
		minOrder, err := decimal.NewFromString(d.minOrder)
		if err != nil {
			return errors.Wrapf(err, "parse min order for %s", d.code)
		}

		if _, err := pool.Exec(ctx, upsertDiscountSQL,
			d.code, d.discountType, value, minOrder, d.usageLimit,
		); err != nil {
			return errors.Wrapf(err, "upsert discount %s", d.code)
		}

		slog.Info("upserted discount", slog.String("code", d.code))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, owner, pepper string) error {
	slog.Info("seeding API key", slog.String("owner", owner))

	keyHash := handler.HashKey([]byte(pepper), apiKey)

	if _, err := pool.Exec(ctx, upsertAPIKeySQL, keyHash, owner, "Seeded dev key"); err != nil {
		return errors.Wrap(err, "upsert API key")
	}

	return nil
}

// seedCart gives the seeded key's owner a ready-to-checkout cart so the
// whole order flow can be walked immediately after seeding.
func seedCart(ctx context.Context, pool *pgxpool.Pool, owner string) error {
	slog.Info("seeding demo cart", slog.String("user", owner))

	if _, err := pool.Exec(ctx, upsertCartSQL, owner, "WELCOME10"); err != nil {
		return errors.Wrap(err, "upsert cart")
	}
	if _, err := pool.Exec(ctx, clearCartItemsSQL, owner); err != nil {
		return errors.Wrap(err, "clear cart items")
	}
	if _, err := pool.Exec(ctx, insertCartItemSQL, owner, "tee-black-m", 2); err != nil {
		return errors.Wrap(err, "insert cart item")
	}

	return nil
}
