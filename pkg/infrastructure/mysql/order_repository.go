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

// SecretCipher protects credentials that must stay readable for re-sending.
type SecretCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

const orderColumns = `id, customer_email, customer_name, customer_phone, checkout_session_id,
	payment_intent_id, processor_customer_id, product_ids, product_name, amount_cents, currency,
	status, credentials_sent, requires_shipping, shipping_name, shipping_phone, shipping_street,
	shipping_city, shipping_state, shipping_zip, shipping_country, fulfillment_status,
	fulfillment_order_ref, is_renewal, existing_username, customer_id, generated_username,
	generated_password_enc, created_at, updated_at`

type orderRow struct {
	ID                   string         `db:"id"`
	CustomerEmail        string         `db:"customer_email"`
	CustomerName         sql.NullString `db:"customer_name"`
	CustomerPhone        sql.NullString `db:"customer_phone"`
	CheckoutSessionID    sql.NullString `db:"checkout_session_id"`
	PaymentIntentID      sql.NullString `db:"payment_intent_id"`
	ProcessorCustomerID  sql.NullString `db:"processor_customer_id"`
	ProductIDs           string         `db:"product_ids"`
	ProductName          string         `db:"product_name"`
	AmountCents          int64          `db:"amount_cents"`
	Currency             string         `db:"currency"`
	Status               string         `db:"status"`
	CredentialsSent      bool           `db:"credentials_sent"`
	RequiresShipping     bool           `db:"requires_shipping"`
	ShippingName         sql.NullString `db:"shipping_name"`
	ShippingPhone        sql.NullString `db:"shipping_phone"`
	ShippingStreet       sql.NullString `db:"shipping_street"`
	ShippingCity         sql.NullString `db:"shipping_city"`
	ShippingState        sql.NullString `db:"shipping_state"`
	ShippingZip          sql.NullString `db:"shipping_zip"`
	ShippingCountry      sql.NullString `db:"shipping_country"`
	FulfillmentStatus    string         `db:"fulfillment_status"`
	FulfillmentOrderRef  sql.NullString `db:"fulfillment_order_ref"`
	IsRenewal            bool           `db:"is_renewal"`
	ExistingUsername     sql.NullString `db:"existing_username"`
	CustomerID           sql.NullString `db:"customer_id"`
	GeneratedUsername    sql.NullString `db:"generated_username"`
	GeneratedPasswordEnc sql.NullString `db:"generated_password_enc"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func NewOrderRepository(db *sqlx.DB, cipher SecretCipher) model.OrderRepository {
	return &orderRepository{db: db, cipher: cipher}
}

type orderRepository struct {
	db     *sqlx.DB
	cipher SecretCipher
}

func (r *orderRepository) NextID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	row, err := r.toRow(order)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `INSERT INTO orders (`+orderColumns+`) VALUES (
		:id, :customer_email, :customer_name, :customer_phone, :checkout_session_id,
		:payment_intent_id, :processor_customer_id, :product_ids, :product_name, :amount_cents, :currency,
		:status, :credentials_sent, :requires_shipping, :shipping_name, :shipping_phone, :shipping_street,
		:shipping_city, :shipping_state, :shipping_zip, :shipping_country, :fulfillment_status,
		:fulfillment_order_ref, :is_renewal, :existing_username, :customer_id, :generated_username,
		:generated_password_enc, :created_at, :updated_at)`, row)
	return errors.Wrapf(err, "insert order %s", order.ID)
}

func (r *orderRepository) Find(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.findOne(ctx, "id = ?", id.String())
}

func (r *orderRepository) FindBySessionID(ctx context.Context, sessionID string) (*model.Order, error) {
	if sessionID == "" {
		return nil, model.ErrOrderNotFound
	}
	return r.findOne(ctx, "checkout_session_id = ?", sessionID)
}

func (r *orderRepository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*model.Order, error) {
	if paymentIntentID == "" {
		return nil, model.ErrOrderNotFound
	}
	return r.findOne(ctx, "payment_intent_id = ?", paymentIntentID)
}

func (r *orderRepository) ListByEmail(ctx context.Context, email string) ([]model.Order, error) {
	return r.findMany(ctx, `SELECT `+orderColumns+` FROM orders WHERE customer_email = ? ORDER BY created_at DESC`,
		strings.ToLower(strings.TrimSpace(email)))
}

func (r *orderRepository) List(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.CredentialsSent != nil {
		where = append(where, "credentials_sent = ?")
		args = append(args, *filter.CredentialsSent)
	}
	if filter.CreatedAfter != nil {
		where = append(where, "created_at >= ?")
		args = append(args, filter.CreatedAfter.UTC())
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return r.findMany(ctx, query, args...)
}

func (r *orderRepository) Update(ctx context.Context, id uuid.UUID, patch model.OrderPatch) error {
	var (
		sets []string
		args []interface{}
	)
	set := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.CustomerEmail != nil {
		set("customer_email", strings.ToLower(strings.TrimSpace(*patch.CustomerEmail)))
	}
	if patch.CustomerName != nil {
		set("customer_name", nullString(*patch.CustomerName))
	}
	if patch.CustomerPhone != nil {
		set("customer_phone", nullString(*patch.CustomerPhone))
	}
	if patch.CheckoutSessionID != nil {
		set("checkout_session_id", nullString(*patch.CheckoutSessionID))
	}
	if patch.PaymentIntentID != nil {
		set("payment_intent_id", nullString(*patch.PaymentIntentID))
	}
	if patch.ProcessorCustomerID != nil {
		set("processor_customer_id", nullString(*patch.ProcessorCustomerID))
	}
	if patch.Shipping != nil {
		set("shipping_name", nullString(patch.Shipping.Name))
		set("shipping_phone", nullString(patch.Shipping.Phone))
		set("shipping_street", nullString(patch.Shipping.Street))
		set("shipping_city", nullString(patch.Shipping.City))
		set("shipping_state", nullString(patch.Shipping.State))
		set("shipping_zip", nullString(patch.Shipping.Zip))
		set("shipping_country", nullString(patch.Shipping.Country))
	}
	if patch.FulfillmentStatus != nil {
		set("fulfillment_status", string(*patch.FulfillmentStatus))
	}
	if patch.FulfillmentOrderRef != nil {
		set("fulfillment_order_ref", nullString(*patch.FulfillmentOrderRef))
	}
	if patch.CustomerID != nil {
		set("customer_id", patch.CustomerID.String())
	}
	if len(sets) == 0 {
		return nil
	}
	set("updated_at", time.Now().UTC())
	args = append(args, id.String())

	res, err := r.db.ExecContext(ctx, `UPDATE orders SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return errors.Wrapf(err, "update order %s", id)
	}
	return r.ensureAffected(ctx, res, id)
}

func (r *orderRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []model.OrderStatus, to model.OrderStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	sources := make([]string, 0, len(from))
	for _, status := range from {
		sources = append(sources, string(status))
	}
	query, args, err := sqlx.In(`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status IN (?)`,
		string(to), time.Now().UTC(), id.String(), sources)
	if err != nil {
		return false, errors.Wrap(err, "build status transition")
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return false, errors.Wrapf(err, "transition order %s to %s", id, to)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "read affected rows")
	}
	return affected == 1, nil
}

func (r *orderRepository) AssignCredentials(ctx context.Context, id uuid.UUID, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, errors.New("credentials must not be empty")
	}
	encrypted, err := r.encrypt(password)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET generated_username = ?, generated_password_enc = ?, updated_at = ?
		WHERE id = ? AND (generated_username IS NULL OR generated_username = '')`,
		username, encrypted, time.Now().UTC(), id.String())
	if err != nil {
		return false, errors.Wrapf(err, "assign credentials to order %s", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "read affected rows")
	}
	return affected == 1, nil
}

func (r *orderRepository) MarkCredentialsSent(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET credentials_sent = ?, updated_at = ? WHERE id = ? AND credentials_sent = ?`,
		true, time.Now().UTC(), id.String(), false)
	if err != nil {
		return false, errors.Wrapf(err, "mark credentials sent for order %s", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "read affected rows")
	}
	return affected == 1, nil
}

// ensureAffected tells a missing row apart from an unchanged one: MySQL
// reports zero affected rows for both.
func (r *orderRepository) ensureAffected(ctx context.Context, res sql.Result, id uuid.UUID) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "read affected rows")
	}
	if affected > 0 {
		return nil
	}
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM orders WHERE id = ?`, id.String()); err != nil {
		return errors.Wrapf(err, "check order %s", id)
	}
	if count == 0 {
		return model.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) findOne(ctx context.Context, condition string, arg interface{}) (*model.Order, error) {
	var row orderRow
	err := r.db.GetContext(ctx, &row, `SELECT `+orderColumns+` FROM orders WHERE `+condition, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "select order")
	}
	return r.toModel(row)
}

func (r *orderRepository) findMany(ctx context.Context, query string, args ...interface{}) ([]model.Order, error) {
	var rows []orderRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "select orders")
	}
	orders := make([]model.Order, 0, len(rows))
	for _, row := range rows {
		order, err := r.toModel(row)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, nil
}

func (r *orderRepository) toRow(o *model.Order) (*orderRow, error) {
	password, err := r.encrypt(o.GeneratedPassword)
	if err != nil {
		return nil, err
	}
	row := &orderRow{
		ID:                   o.ID.String(),
		CustomerEmail:        strings.ToLower(strings.TrimSpace(o.CustomerEmail)),
		CustomerName:         nullString(o.CustomerName),
		CustomerPhone:        nullString(o.CustomerPhone),
		CheckoutSessionID:    nullString(o.CheckoutSessionID),
		PaymentIntentID:      nullString(o.PaymentIntentID),
		ProcessorCustomerID:  nullString(o.ProcessorCustomerID),
		ProductIDs:           strings.Join(o.ProductIDs, ","),
		ProductName:          o.ProductName,
		AmountCents:          o.AmountCents,
		Currency:             o.Currency,
		Status:               string(o.Status),
		CredentialsSent:      o.CredentialsSent,
		RequiresShipping:     o.RequiresShipping,
		ShippingName:         nullString(o.Shipping.Name),
		ShippingPhone:        nullString(o.Shipping.Phone),
		ShippingStreet:       nullString(o.Shipping.Street),
		ShippingCity:         nullString(o.Shipping.City),
		ShippingState:        nullString(o.Shipping.State),
		ShippingZip:          nullString(o.Shipping.Zip),
		ShippingCountry:      nullString(o.Shipping.Country),
		FulfillmentStatus:    string(o.FulfillmentStatus),
		FulfillmentOrderRef:  nullString(o.FulfillmentOrderRef),
		IsRenewal:            o.IsRenewal,
		ExistingUsername:     nullString(o.ExistingUsername),
		GeneratedUsername:    nullString(o.GeneratedUsername),
		GeneratedPasswordEnc: password,
		CreatedAt:            o.CreatedAt.UTC(),
		UpdatedAt:            o.UpdatedAt.UTC(),
	}
	if row.FulfillmentStatus == "" {
		row.FulfillmentStatus = string(model.FulfillmentPending)
	}
	if o.CustomerID != nil {
		row.CustomerID = nullString(o.CustomerID.String())
	}
	return row, nil
}

func (r *orderRepository) toModel(row orderRow) (*model.Order, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "parse order id %q", row.ID)
	}
	password, err := r.decrypt(row.GeneratedPasswordEnc)
	if err != nil {
		return nil, errors.Wrapf(err, "decrypt password of order %s", row.ID)
	}

	order := &model.Order{
		ID:                  id,
		CustomerEmail:       row.CustomerEmail,
		CustomerName:        row.CustomerName.String,
		CustomerPhone:       row.CustomerPhone.String,
		CheckoutSessionID:   row.CheckoutSessionID.String,
		PaymentIntentID:     row.PaymentIntentID.String,
		ProcessorCustomerID: row.ProcessorCustomerID.String,
		ProductIDs:          splitIDs(row.ProductIDs),
		ProductName:         row.ProductName,
		AmountCents:         row.AmountCents,
		Currency:            row.Currency,
		Status:              model.OrderStatus(row.Status),
		CredentialsSent:     row.CredentialsSent,
		RequiresShipping:    row.RequiresShipping,
		Shipping: model.ShippingAddress{
			Name:    row.ShippingName.String,
			Phone:   row.ShippingPhone.String,
			Street:  row.ShippingStreet.String,
			City:    row.ShippingCity.String,
			State:   row.ShippingState.String,
			Zip:     row.ShippingZip.String,
			Country: row.ShippingCountry.String,
		},
		FulfillmentStatus:   model.FulfillmentStatus(row.FulfillmentStatus),
		FulfillmentOrderRef: row.FulfillmentOrderRef.String,
		IsRenewal:           row.IsRenewal,
		ExistingUsername:    row.ExistingUsername.String,
		GeneratedUsername:   row.GeneratedUsername.String,
		GeneratedPassword:   password,
		CreatedAt:           row.CreatedAt.UTC(),
		UpdatedAt:           row.UpdatedAt.UTC(),
	}
	if row.CustomerID.Valid {
		customerID, err := uuid.Parse(row.CustomerID.String)
		if err != nil {
			return nil, errors.Wrapf(err, "parse customer id of order %s", row.ID)
		}
		order.CustomerID = &customerID
	}
	return order, nil
}

func (r *orderRepository) encrypt(plaintext string) (sql.NullString, error) {
	if plaintext == "" {
		return sql.NullString{}, nil
	}
	encrypted, err := r.cipher.Encrypt(plaintext)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, "encrypt credential")
	}
	return nullString(encrypted), nil
}

func (r *orderRepository) decrypt(value sql.NullString) (string, error) {
	if !value.Valid || value.String == "" {
		return "", nil
	}
	return r.cipher.Decrypt(value.String)
}

func splitIDs(joined string) []string {
	if joined == "" {
		return []string{}
	}
	return strings.Split(joined, ",")
}
