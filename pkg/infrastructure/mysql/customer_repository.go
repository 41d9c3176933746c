package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
)

const customerColumns = `id, username, password_enc, email, full_name, phone, status, total_orders, last_order_at, created_at`

type customerRow struct {
	ID          string         `db:"id"`
	Username    string         `db:"username"`
	PasswordEnc string         `db:"password_enc"`
	Email       string         `db:"email"`
	FullName    sql.NullString `db:"full_name"`
	Phone       sql.NullString `db:"phone"`
	Status      string         `db:"status"`
	TotalOrders int            `db:"total_orders"`
	LastOrderAt sql.NullTime   `db:"last_order_at"`
	CreatedAt   time.Time      `db:"created_at"`
}

func NewCustomerRepository(db *sqlx.DB, cipher SecretCipher) model.CustomerRepository {
	return &customerRepository{db: db, cipher: cipher}
}

type customerRepository struct {
	db     *sqlx.DB
	cipher SecretCipher
}

func (r *customerRepository) NextID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

func (r *customerRepository) Create(ctx context.Context, customer *model.Customer) error {
	exists, err := r.UsernameExists(ctx, customer.Username)
	if err != nil {
		return err
	}
	if exists {
		return model.ErrUsernameTaken
	}

	password, err := r.cipher.Encrypt(customer.Password)
	if err != nil {
		return errors.Wrap(err, "encrypt customer password")
	}
	row := customerRow{
		ID:          customer.ID.String(),
		Username:    customer.Username,
		PasswordEnc: password,
		Email:       strings.ToLower(strings.TrimSpace(customer.Email)),
		FullName:    nullString(customer.FullName),
		Phone:       nullString(customer.Phone),
		Status:      string(customer.Status),
		TotalOrders: customer.TotalOrders,
		LastOrderAt: nullTime(customer.LastOrderAt),
		CreatedAt:   customer.CreatedAt.UTC(),
	}
	_, err = r.db.NamedExecContext(ctx, `INSERT INTO customers (`+customerColumns+`) VALUES (
		:id, :username, :password_enc, :email, :full_name, :phone, :status, :total_orders, :last_order_at, :created_at)`, row)
	if isDuplicateKey(err) {
		return model.ErrUsernameTaken
	}
	return errors.Wrapf(err, "insert customer %s", customer.Username)
}

func (r *customerRepository) Find(ctx context.Context, id uuid.UUID) (*model.Customer, error) {
	return r.findOne(ctx, "id = ?", id.String())
}

func (r *customerRepository) FindByUsername(ctx context.Context, username string) (*model.Customer, error) {
	return r.findOne(ctx, "username = ?", strings.TrimSpace(username))
}

func (r *customerRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM customers WHERE username = ?`, username)
	if err != nil {
		return false, errors.Wrapf(err, "check username %s", username)
	}
	return count > 0, nil
}

func (r *customerRepository) RecordOrder(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE customers SET total_orders = total_orders + 1, last_order_at = ? WHERE id = ?`,
		at.UTC(), id.String())
	if err != nil {
		return errors.Wrapf(err, "record order for customer %s", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "read affected rows")
	}
	if affected == 0 {
		return model.ErrCustomerNotFound
	}
	return nil
}

func (r *customerRepository) findOne(ctx context.Context, condition string, arg interface{}) (*model.Customer, error) {
	var row customerRow
	err := r.db.GetContext(ctx, &row, `SELECT `+customerColumns+` FROM customers WHERE `+condition, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrCustomerNotFound
		}
		return nil, errors.Wrap(err, "select customer")
	}

	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "parse customer id %q", row.ID)
	}
	password, err := r.cipher.Decrypt(row.PasswordEnc)
	if err != nil {
		return nil, errors.Wrapf(err, "decrypt password of customer %s", row.ID)
	}
	customer := &model.Customer{
		ID:          id,
		Username:    row.Username,
		Password:    password,
		Email:       row.Email,
		FullName:    row.FullName.String,
		Phone:       row.Phone.String,
		Status:      model.CustomerStatus(row.Status),
		TotalOrders: row.TotalOrders,
		CreatedAt:   row.CreatedAt.UTC(),
	}
	if row.LastOrderAt.Valid {
		last := row.LastOrderAt.Time.UTC()
		customer.LastOrderAt = &last
	}
	return customer, nil
}
