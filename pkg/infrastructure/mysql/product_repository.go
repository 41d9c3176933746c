package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
)

const productColumns = `id, name, description, price_cents, category, processor_price_id, processor_product_id, active, updated_at`

type productRow struct {
	ID                 string         `db:"id"`
	Name               string         `db:"name"`
	Description        sql.NullString `db:"description"`
	PriceCents         int64          `db:"price_cents"`
	Category           string         `db:"category"`
	ProcessorPriceID   sql.NullString `db:"processor_price_id"`
	ProcessorProductID sql.NullString `db:"processor_product_id"`
	Active             bool           `db:"active"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func (row productRow) toModel() model.Product {
	return model.Product{
		ID:                 row.ID,
		Name:               row.Name,
		Description:        row.Description.String,
		PriceCents:         row.PriceCents,
		Category:           model.ProductCategory(row.Category),
		ProcessorPriceID:   row.ProcessorPriceID.String,
		ProcessorProductID: row.ProcessorProductID.String,
		Active:             row.Active,
		UpdatedAt:          row.UpdatedAt.UTC(),
	}
}

func NewProductRepository(db *sqlx.DB) model.ProductRepository {
	return &productRepository{db: db}
}

type productRepository struct {
	db *sqlx.DB
}

func (r *productRepository) Find(ctx context.Context, id string) (*model.Product, error) {
	var row productRow
	err := r.db.GetContext(ctx, &row, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrProductNotFound
		}
		return nil, errors.Wrapf(err, "select product %s", id)
	}
	product := row.toModel()
	return &product, nil
}

func (r *productRepository) List(ctx context.Context) ([]model.Product, error) {
	var rows []productRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+productColumns+` FROM products ORDER BY price_cents, id`); err != nil {
		return nil, errors.Wrap(err, "select products")
	}
	products := make([]model.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, row.toModel())
	}
	return products, nil
}

func (r *productRepository) Upsert(ctx context.Context, product *model.Product) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin product upsert")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	row := productRow{
		ID:                 product.ID,
		Name:               product.Name,
		Description:        nullString(product.Description),
		PriceCents:         product.PriceCents,
		Category:           string(product.Category),
		ProcessorPriceID:   nullString(product.ProcessorPriceID),
		ProcessorProductID: nullString(product.ProcessorProductID),
		Active:             product.Active,
		UpdatedAt:          product.UpdatedAt.UTC(),
	}

	var count int
	if err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM products WHERE id = ?`, product.ID); err != nil {
		return errors.Wrapf(err, "check product %s", product.ID)
	}
	if count == 0 {
		_, err = tx.NamedExecContext(ctx, `INSERT INTO products (`+productColumns+`) VALUES (
			:id, :name, :description, :price_cents, :category, :processor_price_id, :processor_product_id, :active, :updated_at)`, row)
	} else {
		_, err = tx.NamedExecContext(ctx, `UPDATE products SET name = :name, description = :description,
			price_cents = :price_cents, category = :category, processor_price_id = :processor_price_id,
			processor_product_id = :processor_product_id, active = :active, updated_at = :updated_at
			WHERE id = :id`, row)
	}
	if err != nil {
		return errors.Wrapf(err, "save product %s", product.ID)
	}
	return errors.Wrap(tx.Commit(), "commit product upsert")
}
