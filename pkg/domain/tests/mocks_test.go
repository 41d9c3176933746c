package tests

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/service"
)

var (
	_ model.OrderRepository    = &mockOrderRepository{}
	_ model.CustomerRepository = &mockCustomerRepository{}
	_ model.ProductRepository  = &mockProductRepository{}
	_ model.EmailLogRepository = &mockEmailLog{}
	_ model.PaymentGateway     = &mockGateway{}
	_ model.EmailProvider      = &mockProvider{}
	_ service.EventDispatcher  = &mockEventDispatcher{}
)

var fixedNow = time.Date(2026, 5, 10, 15, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type mockOrderRepository struct {
	mu        sync.Mutex
	store     map[uuid.UUID]*model.Order
	updateErr error
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{store: make(map[uuid.UUID]*model.Order)}
}

func (m *mockOrderRepository) NextID() (uuid.UUID, error) {
	return uuid.New(), nil
}

func (m *mockOrderRepository) Create(_ context.Context, order *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *order
	m.store[order.ID] = &stored
	return nil
}

func (m *mockOrderRepository) Find(_ context.Context, id uuid.UUID) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.store[id]
	if !ok {
		return nil, model.ErrOrderNotFound
	}
	found := *order
	return &found, nil
}

func (m *mockOrderRepository) findBy(match func(o *model.Order) bool) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.store {
		if match(order) {
			found := *order
			return &found, nil
		}
	}
	return nil, model.ErrOrderNotFound
}

func (m *mockOrderRepository) FindBySessionID(_ context.Context, sessionID string) (*model.Order, error) {
	return m.findBy(func(o *model.Order) bool { return sessionID != "" && o.CheckoutSessionID == sessionID })
}

func (m *mockOrderRepository) FindByPaymentIntentID(_ context.Context, paymentIntentID string) (*model.Order, error) {
	return m.findBy(func(o *model.Order) bool { return paymentIntentID != "" && o.PaymentIntentID == paymentIntentID })
}

func (m *mockOrderRepository) ListByEmail(_ context.Context, email string) ([]model.Order, error) {
	email = strings.ToLower(email)
	return m.list(func(o *model.Order) bool { return o.CustomerEmail == email }), nil
}

func (m *mockOrderRepository) List(_ context.Context, filter model.OrderFilter) ([]model.Order, error) {
	orders := m.list(func(o *model.Order) bool {
		if filter.Status != nil && o.Status != *filter.Status {
			return false
		}
		if filter.CredentialsSent != nil && o.CredentialsSent != *filter.CredentialsSent {
			return false
		}
		if filter.CreatedAfter != nil && o.CreatedAt.Before(*filter.CreatedAfter) {
			return false
		}
		return true
	})
	if filter.Limit > 0 && len(orders) > filter.Limit {
		orders = orders[:filter.Limit]
	}
	return orders, nil
}

func (m *mockOrderRepository) list(match func(o *model.Order) bool) []model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []model.Order
	for _, order := range m.store {
		if match(order) {
			orders = append(orders, *order)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders
}

func (m *mockOrderRepository) Update(_ context.Context, id uuid.UUID, patch model.OrderPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	order, ok := m.store[id]
	if !ok {
		return model.ErrOrderNotFound
	}
	apply := func(target *string, value *string) {
		if value != nil {
			*target = *value
		}
	}
	apply(&order.CustomerEmail, patch.CustomerEmail)
	apply(&order.CustomerName, patch.CustomerName)
	apply(&order.CustomerPhone, patch.CustomerPhone)
	apply(&order.CheckoutSessionID, patch.CheckoutSessionID)
	apply(&order.PaymentIntentID, patch.PaymentIntentID)
	apply(&order.ProcessorCustomerID, patch.ProcessorCustomerID)
	apply(&order.FulfillmentOrderRef, patch.FulfillmentOrderRef)
	if patch.Shipping != nil {
		order.Shipping = *patch.Shipping
	}
	if patch.FulfillmentStatus != nil {
		order.FulfillmentStatus = *patch.FulfillmentStatus
	}
	if patch.CustomerID != nil {
		customerID := *patch.CustomerID
		order.CustomerID = &customerID
	}
	return nil
}

func (m *mockOrderRepository) TransitionStatus(_ context.Context, id uuid.UUID, from []model.OrderStatus, to model.OrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.store[id]
	if !ok {
		return false, nil
	}
	for _, status := range from {
		if order.Status == status {
			order.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *mockOrderRepository) AssignCredentials(_ context.Context, id uuid.UUID, username, password string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.store[id]
	if !ok || order.GeneratedUsername != "" {
		return false, nil
	}
	order.GeneratedUsername = username
	order.GeneratedPassword = password
	return true, nil
}

func (m *mockOrderRepository) MarkCredentialsSent(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.store[id]
	if !ok || order.CredentialsSent {
		return false, nil
	}
	order.CredentialsSent = true
	return true, nil
}

func (m *mockOrderRepository) only() *model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.store {
		found := *order
		return &found
	}
	return nil
}

type mockCustomerRepository struct {
	mu        sync.Mutex
	store     map[uuid.UUID]*model.Customer
	taken     map[string]bool
	lookupErr error
}

func newMockCustomerRepository() *mockCustomerRepository {
	return &mockCustomerRepository{store: make(map[uuid.UUID]*model.Customer), taken: make(map[string]bool)}
}

func (m *mockCustomerRepository) NextID() (uuid.UUID, error) {
	return uuid.New(), nil
}

func (m *mockCustomerRepository) Create(_ context.Context, customer *model.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.taken[customer.Username] {
		return model.ErrUsernameTaken
	}
	stored := *customer
	m.store[customer.ID] = &stored
	m.taken[customer.Username] = true
	return nil
}

func (m *mockCustomerRepository) Find(_ context.Context, id uuid.UUID) (*model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	customer, ok := m.store[id]
	if !ok {
		return nil, model.ErrCustomerNotFound
	}
	found := *customer
	return &found, nil
}

func (m *mockCustomerRepository) FindByUsername(_ context.Context, username string) (*model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, customer := range m.store {
		if customer.Username == username {
			found := *customer
			return &found, nil
		}
	}
	return nil, model.ErrCustomerNotFound
}

func (m *mockCustomerRepository) UsernameExists(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return false, m.lookupErr
	}
	return m.taken[username], nil
}

func (m *mockCustomerRepository) RecordOrder(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	customer, ok := m.store[id]
	if !ok {
		return model.ErrCustomerNotFound
	}
	customer.TotalOrders++
	last := at
	customer.LastOrderAt = &last
	return nil
}

func (m *mockCustomerRepository) add(username, password string) *model.Customer {
	m.mu.Lock()
	defer m.mu.Unlock()
	customer := &model.Customer{
		ID:        uuid.New(),
		Username:  username,
		Password:  password,
		Email:     "existing@example.com",
		Status:    model.CustomerActive,
		CreatedAt: fixedNow.Add(-90 * 24 * time.Hour),
	}
	m.store[customer.ID] = customer
	m.taken[username] = true
	return customer
}

func (m *mockCustomerRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}

type mockProductRepository struct {
	store map[string]*model.Product
}

func newMockProductRepository(products ...model.Product) *mockProductRepository {
	repo := &mockProductRepository{store: make(map[string]*model.Product)}
	for i := range products {
		product := products[i]
		repo.store[product.ID] = &product
	}
	return repo
}

func (m *mockProductRepository) Find(_ context.Context, id string) (*model.Product, error) {
	product, ok := m.store[id]
	if !ok {
		return nil, model.ErrProductNotFound
	}
	found := *product
	return &found, nil
}

func (m *mockProductRepository) List(_ context.Context) ([]model.Product, error) {
	products := make([]model.Product, 0, len(m.store))
	for _, product := range m.store {
		products = append(products, *product)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (m *mockProductRepository) Upsert(_ context.Context, product *model.Product) error {
	stored := *product
	m.store[product.ID] = &stored
	return nil
}

type mockEmailLog struct {
	mu        sync.Mutex
	entries   []model.EmailLogEntry
	appendErr error
}

func (m *mockEmailLog) Append(_ context.Context, entry *model.EmailLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockEmailLog) RecentFailures(_ context.Context, limit int) ([]model.EmailLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var failures []model.EmailLogEntry
	for i := len(m.entries) - 1; i >= 0 && len(failures) < limit; i-- {
		if !m.entries[i].Success {
			failures = append(failures, m.entries[i])
		}
	}
	return failures, nil
}

// sent counts successful deliveries of one kind.
func (m *mockEmailLog) sent(kind model.EmailKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, entry := range m.entries {
		if entry.Kind == kind && entry.Success {
			n++
		}
	}
	return n
}

func (m *mockEmailLog) attempts(kind model.EmailKind) []model.EmailLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []model.EmailLogEntry
	for _, entry := range m.entries {
		if entry.Kind == kind {
			entries = append(entries, entry)
		}
	}
	return entries
}

type mockGateway struct {
	mu         sync.Mutex
	requests   []model.SessionRequest
	sessionErr error
	events     map[string]*model.PaymentEvent
	parseErr   error
}

func (m *mockGateway) CreateSession(_ context.Context, req model.SessionRequest) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.sessionErr != nil {
		return nil, m.sessionErr
	}
	id := "cs_test_" + req.OrderID.String()[:8]
	return &model.Session{ID: id, URL: "https://checkout.example.com/pay/" + id}, nil
}

func (m *mockGateway) ParseEvent(payload []byte, _ string) (*model.PaymentEvent, error) {
	if m.parseErr != nil {
		return nil, m.parseErr
	}
	event, ok := m.events[string(payload)]
	if !ok {
		return nil, errors.New("unknown payload")
	}
	return event, nil
}

type mockProvider struct {
	mu     sync.Mutex
	name   string
	err    error
	emails []model.Email
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Send(_ context.Context, email model.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.emails = append(m.emails, email)
	return nil
}

func (m *mockProvider) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.emails)
}

func (m *mockProvider) sent() []model.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Email(nil), m.emails...)
}

type mockEventDispatcher struct {
	mu     sync.Mutex
	events []service.Event
}

func (m *mockEventDispatcher) Dispatch(event service.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockEventDispatcher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func (m *mockEventDispatcher) count(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, event := range m.events {
		if event.Type() == eventType {
			n++
		}
	}
	return n
}

var testSettings = service.NotificationSettings{
	StoreName:    "StreamStick Pro",
	SupportEmail: "support@example.com",
	PortalURL:    "http://portal.example.com:8080",
	OwnerEmail:   "owner@example.com",
	AdminURL:     "https://shop.example.com/admin",
}

var (
	iptvThreeMonths = model.Product{
		ID:               "iptv-3months",
		Name:             "IPTV 3 Months",
		PriceCents:       3000,
		Category:         model.CategorySubscription,
		ProcessorPriceID: "price_3m",
		Active:           true,
	}
	fireStick = model.Product{
		ID:               "firestick-4k",
		Name:             "Fire Stick 4K",
		PriceCents:       5000,
		Category:         model.CategoryDevice,
		ProcessorPriceID: "price_fs4k",
		Active:           true,
	}
	noPriceProduct = model.Product{
		ID:         "iptv-beta",
		Name:       "IPTV Beta",
		PriceCents: 1000,
		Category:   model.CategorySubscription,
		Active:     true,
	}
)

type fixture struct {
	orders        *mockOrderRepository
	customers     *mockCustomerRepository
	products      *mockProductRepository
	emailLog      *mockEmailLog
	gateway       *mockGateway
	primary       *mockProvider
	fallback      *mockProvider
	dispatcher    *mockEventDispatcher
	hook          *test.Hook
	notifications service.NotificationService
	checkout      service.CheckoutService
	payments      service.PaymentService
	admin         service.AdminService
	fulfillment   service.FulfillmentService
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	f := &fixture{
		orders:     newMockOrderRepository(),
		customers:  newMockCustomerRepository(),
		products:   newMockProductRepository(iptvThreeMonths, fireStick, noPriceProduct),
		emailLog:   &mockEmailLog{},
		gateway:    &mockGateway{events: map[string]*model.PaymentEvent{}},
		primary:    &mockProvider{name: "resend"},
		fallback:   &mockProvider{name: "smtp"},
		dispatcher: &mockEventDispatcher{},
		hook:       hook,
	}
	mailer := service.NewMailer(f.primary, f.fallback, logger)
	f.notifications = service.NewNotificationService(mailer, f.emailLog, testSettings, logger)
	f.checkout = service.NewCheckoutService(f.orders, f.products, f.customers, f.gateway, f.dispatcher, logger)
	f.payments = service.NewPaymentService(f.orders, f.customers, f.gateway, f.notifications, f.dispatcher, logger, clock)
	f.admin = service.NewAdminService(f.orders, f.emailLog, f.payments, f.notifications, 3, logger, clock)
	f.fulfillment = service.NewFulfillmentService(f.orders, f.dispatcher, logger)
	return f
}

// seedOrder stores an order directly, bypassing checkout.
func (f *fixture) seedOrder(order model.Order) *model.Order {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Status == "" {
		order.Status = model.OrderPending
	}
	if order.Currency == "" {
		order.Currency = "usd"
	}
	if order.FulfillmentStatus == "" {
		order.FulfillmentStatus = model.FulfillmentPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = fixedNow.Add(-time.Hour)
	}
	order.UpdatedAt = order.CreatedAt
	_ = f.orders.Create(context.Background(), &order)
	return &order
}
