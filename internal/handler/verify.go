package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/heimdall/internal/domain"
	"github.com/dukerupert/heimdall/internal/middleware"
	"github.com/dukerupert/heimdall/internal/service"
)

// VerifyHandler handles synchronous purchase verification requests from
// the app backend.
type VerifyHandler struct {
	purchases *service.PurchaseService
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewVerifyHandler creates a new verification handler
func NewVerifyHandler(purchases *service.PurchaseService, logger *slog.Logger) *VerifyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VerifyHandler{
		purchases: purchases,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
}

// verifyResponse is the body returned when access was granted.
type verifyResponse struct {
	Success bool `json:"success"`
}

// HandleVerify handles POST /google/verify.
// Decodes and validates the request, runs the verification flow and maps
// the outcome onto HTTP status codes (409 for a token owned by another
// user, 202 for suspended subscriptions, 502 when Google is unreachable).
func (h *VerifyHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		ErrorResponse(w, r, domain.Invalid("verify.request", "Request body must be valid JSON"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		ErrorResponse(w, r, domain.Invalid("verify.request", "user_id, package_name, product_id and purchase_token are required"))
		return
	}

	logger := middleware.GetLogger(r.Context(), h.logger)
	logger.Info("verification requested",
		"user_id", req.UserID,
		"product_id", req.ProductID,
	)

	if err := h.purchases.Verify(r.Context(), req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, verifyResponse{Success: true})
}
