package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/model"
	"github.com/reloadedfiretvteam-hash/streamerstickprofinal-sub002/pkg/domain/service"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("write response body")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
		message = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidCheckout),
		errors.Is(err, service.ErrInvalidProduct),
		errors.Is(err, model.ErrProductNotPurchasable):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrOrderNotFound),
		errors.Is(err, model.ErrProductNotFound),
		errors.Is(err, service.ErrUsernameNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrInvalidFulfillment),
		errors.Is(err, model.ErrCredentialsSentIrrevocable),
		errors.Is(err, service.ErrNotDeviceOrder),
		errors.Is(err, service.ErrOrderNotPaid),
		errors.Is(err, service.ErrMissingBuyerEmail),
		errors.Is(err, service.ErrCredentialsUnavailable):
		return http.StatusConflict
	case errors.Is(err, model.ErrPaymentProcessor),
		errors.Is(err, service.ErrDeliveryFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
