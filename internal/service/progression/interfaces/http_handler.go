// internal/service/progression/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"arcadia/internal/service/progression/application"
	"arcadia/internal/service/progression/domain"
)

// ProgressionHandler 封装了 progression 服务的 HTTP 处理器
type ProgressionHandler struct {
	service *application.ProgressionService
}

// NewProgressionHandler 创建一个新的 HTTP 处理器实例
func NewProgressionHandler(service *application.ProgressionService) *ProgressionHandler {
	return &ProgressionHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *ProgressionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/progression", h.handleGetProgression)
	mux.HandleFunc("/progression/grant_experience", h.handleGrantExperience)
	mux.HandleFunc("/progression/tick", h.handleTick)
	mux.HandleFunc("/progression/adjust_coins", h.handleAdjustCoins)
	mux.HandleFunc("/progression/reset", h.handleReset)
	mux.HandleFunc("/shop", h.handleListShop)
	mux.HandleFunc("/shop/purchase", h.handlePurchaseCoupon)
	mux.HandleFunc("/coupons", h.handleListCoupons)
	mux.HandleFunc("/coupons/use", h.handleUseCoupon)
}

func (h *ProgressionHandler) handleGetProgression(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	record, err := h.service.GetOrInitialize(ctx, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, application.ToProgressionResponse(record))
}

func (h *ProgressionHandler) handleGrantExperience(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.GrantExperienceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	before, err := h.service.GetOrInitialize(ctx, req.UserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	beforeLevel := before.Level

	record, err := h.service.GrantExperience(ctx, req.UserID, req.Amount)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	experienceGrantedTotal.WithLabelValues("manual").Add(float64(req.Amount))
	if record.Level > beforeLevel {
		levelUpsTotal.Add(float64(record.Level - beforeLevel))
	}
	writeJSON(w, application.ToProgressionResponse(record))
}

// handleTick 是客户端在线心跳：到点就发定时经验，没到点原样返回。
func (h *ProgressionHandler) handleTick(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	record, granted, err := h.service.GrantPeriodicExperienceIfDue(ctx, userID, time.Now().UTC())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if granted {
		experienceGrantedTotal.WithLabelValues("periodic").Add(float64(domain.PeriodicGrantAmount))
	}

	writeJSON(w, struct {
		Granted     bool                             `json:"granted"`
		Progression *application.ProgressionResponse `json:"progression"`
	}{Granted: granted, Progression: application.ToProgressionResponse(record)})
}

func (h *ProgressionHandler) handleAdjustCoins(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.AdjustCoinsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	record, err := h.service.AdjustCoins(ctx, req.UserID, req.Delta)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, application.ToProgressionResponse(record))
}

func (h *ProgressionHandler) handleReset(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	record, err := h.service.ResetProgression(ctx, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, application.ToProgressionResponse(record))
}

func (h *ProgressionHandler) handleListShop(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	offers, err := h.service.ListShop(ctx, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, offers)
}

func (h *ProgressionHandler) handlePurchaseCoupon(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.PurchaseCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	coupon, err := h.service.PurchaseCoupon(ctx, req.UserID, req.CouponID)
	if err != nil {
		// 根据错误类型返回不同的 HTTP 状态码
		var statusCode int
		switch {
		case errors.Is(err, domain.ErrCouponNotFound):
			statusCode = http.StatusNotFound
		case errors.Is(err, domain.ErrInsufficientFunds),
			errors.Is(err, domain.ErrAlreadyOwned):
			statusCode = http.StatusForbidden // 客户端请求有效，但服务器拒绝执行
		default:
			statusCode = http.StatusInternalServerError // 其他未知错误
		}
		couponPurchasesTotal.WithLabelValues("rejected").Inc()
		http.Error(w, err.Error(), statusCode)
		return
	}

	couponPurchasesTotal.WithLabelValues("success").Inc()
	writeJSON(w, application.ToCouponResponse(coupon))
}

func (h *ProgressionHandler) handleListCoupons(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	onlyUnused := r.URL.Query().Get("only_unused") == "true"

	coupons, err := h.service.ListCoupons(ctx, userID, onlyUnused)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := make([]*application.CouponResponse, len(coupons))
	for i, c := range coupons {
		resp[i] = application.ToCouponResponse(c)
	}
	writeJSON(w, resp)
}

func (h *ProgressionHandler) handleUseCoupon(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req application.UseCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.UseCoupon(ctx, req.UserID, req.PurchasedCouponID); err != nil {
		var statusCode int
		switch {
		case errors.Is(err, domain.ErrCouponNotFound):
			statusCode = http.StatusNotFound
		case errors.Is(err, domain.ErrAlreadyUsed):
			statusCode = http.StatusForbidden
		default:
			statusCode = http.StatusInternalServerError
		}
		couponRedemptionsTotal.WithLabelValues("rejected").Inc()
		http.Error(w, err.Error(), statusCode)
		return
	}

	couponRedemptionsTotal.WithLabelValues("success").Inc()
	writeJSON(w, struct {
		Status string `json:"status"`
	}{Status: "used"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
