package transport

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/service"
)

const (
	maxWebhookBody = 1 << 20
	maxRequestBody = 64 << 10
)

type Services struct {
	Checkout    service.CheckoutService
	Payments    service.PaymentService
	Admin       service.AdminService
	Fulfillment service.FulfillmentService
	Catalog     service.CatalogService
}

type Handler struct {
	services   Services
	adminToken string
}

func Router(services Services, adminToken string) http.Handler {
	handler := &Handler{services: services, adminToken: adminToken}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", handler.health).Methods(http.MethodGet)
	r.HandleFunc("/products", handler.listProducts).Methods(http.MethodGet)
	r.HandleFunc("/checkout", handler.createCheckout).Methods(http.MethodPost)
	r.HandleFunc("/payments/webhook", handler.paymentWebhook).Methods(http.MethodPost)
	r.HandleFunc("/orders/{email}", handler.ordersByEmail).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(handler.adminAuth)
	admin.HandleFunc("/orders/stats", handler.orderStats).Methods(http.MethodGet)
	admin.HandleFunc("/orders/resend-credentials", handler.resendAllCredentials).Methods(http.MethodPost)
	admin.HandleFunc("/orders/{id}", handler.overrideOrder).Methods(http.MethodPut)
	admin.HandleFunc("/orders/{id}/resend-credentials", handler.resendCredentials).Methods(http.MethodPost)
	admin.HandleFunc("/payment-status", handler.paymentStatus).Methods(http.MethodGet)
	admin.HandleFunc("/fulfillment", handler.listFulfillment).Methods(http.MethodGet)
	admin.HandleFunc("/fulfillment/{id}", handler.updateFulfillment).Methods(http.MethodPut)
	admin.HandleFunc("/products/{id}", handler.saveProduct).Methods(http.MethodPut)

	return logMiddleware(r)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.services.Catalog.ListProducts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	active := make([]model.Product, 0, len(products))
	for _, product := range products {
		if product.Active {
			active = append(active, product)
		}
	}
	writeJSON(w, http.StatusOK, active)
}

func (h *Handler) createCheckout(w http.ResponseWriter, r *http.Request) {
	var req service.CheckoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.services.Checkout.CreateCheckout(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		log.WithError(err).Warn("failed to read webhook body")
	} else {
		h.services.Payments.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) ordersByEmail(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(mux.Vars(r)["email"]))
	if email == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "email is required"})
		return
	}
	orders, err := h.services.Admin.OrdersByEmail(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}
	for i := range orders {
		orders[i] = publicOrder(orders[i])
	}
	writeJSON(w, http.StatusOK, orders)
}

// publicOrder hides account secrets and processor references from the
// unauthenticated order lookup.
func publicOrder(order model.Order) model.Order {
	order.GeneratedUsername = ""
	order.GeneratedPassword = ""
	order.CustomerID = nil
	order.CheckoutSessionID = ""
	order.PaymentIntentID = ""
	order.ProcessorCustomerID = ""
	order.CustomerPhone = ""
	order.Shipping = model.ShippingAddress{}
	return order
}

func (h *Handler) orderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.services.Admin.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	health, err := h.services.Admin.PaymentStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (h *Handler) overrideOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var override service.AdminOverride
	if !decodeBody(w, r, &override) {
		return
	}
	order, err := h.services.Admin.OverrideOrder(r.Context(), id, override)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) resendCredentials(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	outcome, err := h.services.Admin.ResendCredentials(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrDeliveryFailed) && outcome != nil {
			writeJSON(w, http.StatusBadGateway, outcome)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) resendAllCredentials(w http.ResponseWriter, r *http.Request) {
	outcomes, err := h.services.Admin.ResendAllPendingCredentials(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	sent := 0
	for _, outcome := range outcomes {
		if outcome.Success {
			sent++
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"processed": len(outcomes),
		"sent":      sent,
		"results":   outcomes,
	})
}

func (h *Handler) listFulfillment(w http.ResponseWriter, r *http.Request) {
	orders, err := h.services.Fulfillment.ListDeviceOrders(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) updateFulfillment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var update service.FulfillmentUpdate
	if !decodeBody(w, r, &update) {
		return
	}
	order, err := h.services.Fulfillment.UpdateFulfillment(r.Context(), id, update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) saveProduct(w http.ResponseWriter, r *http.Request) {
	var product model.Product
	if !decodeBody(w, r, &product) {
		return
	}
	product.ID = mux.Vars(r)["id"]
	if err := h.services.Catalog.SaveProduct(r.Context(), &product); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// adminAuth accepts only the configured bearer token. Without a configured
// token the admin surface is closed.
func (h *Handler) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminToken == "" {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "admin access is disabled"})
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
			log.WithFields(log.Fields{"url": r.URL, "remoteAddr": r.RemoteAddr}).Warn("rejected admin request")
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid order id"})
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := decoder.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func logMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.WithFields(log.Fields{
			"method":     r.Method,
			"url":        r.URL,
			"remoteAddr": r.RemoteAddr,
			"userAgent":  r.UserAgent(),
		}).Info("got a new request")
		h.ServeHTTP(w, r)
	})
}
