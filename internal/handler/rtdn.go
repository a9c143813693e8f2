package handler

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/heimdall/internal/domain"
	"github.com/dukerupert/heimdall/internal/middleware"
	"github.com/dukerupert/heimdall/internal/service"
)

// RTDNHandler handles real-time developer notifications pushed by the
// Pub/Sub subscription.
type RTDNHandler struct {
	purchases *service.PurchaseService
	logger    *slog.Logger
}

// NewRTDNHandler creates a new RTDN webhook handler
func NewRTDNHandler(purchases *service.PurchaseService, logger *slog.Logger) *RTDNHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RTDNHandler{
		purchases: purchases,
		logger:    logger,
	}
}

// HandlePush handles POST /google/rtdn-webhook.
//
// Pub/Sub delivers at least once and redelivers on any non-2xx response,
// so the status code is a delivery instruction: 200 acknowledges the
// message, 400 rejects payloads that can never parse, 500 asks for
// redelivery of messages that failed transiently. Suspended subscriptions
// (on hold, paused) are acknowledged as well since redelivery would not
// change the outcome.
func (h *RTDNHandler) HandlePush(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context(), h.logger)

	var envelope domain.PubsubEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		ErrorResponse(w, r, domain.Invalid("rtdn.decode", "Request body is not a valid Pub/Sub push envelope"))
		return
	}

	payload, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		ErrorResponse(w, r, domain.Invalid("rtdn.decode", "Message data is not valid base64"))
		return
	}

	var notification domain.DeveloperNotification
	if err := json.Unmarshal(payload, &notification); err != nil {
		ErrorResponse(w, r, domain.Invalid("rtdn.decode", "Message data is not a valid developer notification"))
		return
	}

	logger.Info("notification received",
		"message_id", envelope.Message.MessageID,
		"package_name", notification.PackageName,
	)

	if err := h.purchases.ProcessNotification(r.Context(), &notification); err != nil {
		if domain.ErrorCode(err) == domain.EACCEPTED {
			// Acknowledge so Pub/Sub stops redelivering; the subscription
			// stays ungranted until a recovery notification arrives.
			logger.Info("notification acknowledged without grant",
				"message_id", envelope.Message.MessageID,
				"reason", domain.ErrorMessage(err),
			)
			RespondJSON(w, http.StatusOK, verifyResponse{Success: true})
			return
		}

		ErrorResponse(w, r, domain.Internal(err, "rtdn.process", "Notification processing failed"))
		return
	}

	RespondJSON(w, http.StatusOK, verifyResponse{Success: true})
}
