package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/subledger/svc/subscription"
)

type ensureUserRequest struct {
	ChatID   int64  `json:"chat_id"`
	Username string `json:"username"`
}

func (a *API) ensureUser(r *http.Request, req ensureUserRequest) (int, any, error) {
	u, err := a.engine.EnsureUser(r.Context(), req.ChatID, req.Username)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, u, nil
}

func (a *API) userSnapshot(r *http.Request, _ noBody) (int, any, error) {
	chatID, err := chatIDParam(r)
	if err != nil {
		return 0, nil, err
	}
	snap, err := a.engine.GetUserSnapshot(r.Context(), chatID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, snap, nil
}

type purchaseRequest struct {
	ServiceID    string `json:"service_id"`
	DiscountCode string `json:"discount_code,omitempty"`
}

func (a *API) purchase(r *http.Request, req purchaseRequest) (int, any, error) {
	chatID, err := chatIDParam(r)
	if err != nil {
		return 0, nil, err
	}
	serviceID, err := parseUUID("service_id", req.ServiceID)
	if err != nil {
		return 0, nil, err
	}
	if err := a.admit(r.Context(), chatID); err != nil {
		return 0, nil, err
	}

	res, err := a.engine.Purchase(r.Context(), chatID, serviceID, discountOption(req.DiscountCode)...)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, res, nil
}

type renewRequest struct {
	DiscountCode string `json:"discount_code,omitempty"`
}

func (a *API) renew(r *http.Request, req renewRequest) (int, any, error) {
	chatID, err := chatIDParam(r)
	if err != nil {
		return 0, nil, err
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		return 0, nil, err
	}
	if err := a.admit(r.Context(), chatID); err != nil {
		return 0, nil, err
	}

	res, err := a.engine.ExtendOrRenew(r.Context(), chatID, id, discountOption(req.DiscountCode)...)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, res, nil
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type depositResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

func (a *API) recordDeposit(r *http.Request, req depositRequest) (int, any, error) {
	chatID, err := chatIDParam(r)
	if err != nil {
		return 0, nil, err
	}
	if err := a.admit(r.Context(), chatID); err != nil {
		return 0, nil, err
	}

	id, err := a.engine.RecordDeposit(r.Context(), chatID, req.Amount)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, depositResponse{TransactionID: id.String(), Status: "pending"}, nil
}

type applyDiscountRequest struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}

type applyDiscountResponse struct {
	Code  string          `json:"code"`
	Base  decimal.Decimal `json:"base"`
	Price decimal.Decimal `json:"price"`
}

func (a *API) applyDiscount(r *http.Request, req applyDiscountRequest) (int, any, error) {
	price, err := a.engine.ApplyDiscount(r.Context(), req.Code, req.Amount)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, applyDiscountResponse{Code: req.Code, Base: req.Amount, Price: price}, nil
}

func (a *API) listServices(r *http.Request, _ noBody) (int, any, error) {
	services, err := a.catalog.ListServices(r.Context())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, services, nil
}

func discountOption(code string) []subscription.PurchaseOption {
	if code == "" {
		return nil
	}
	return []subscription.PurchaseOption{subscription.WithDiscountCode(code)}
}
