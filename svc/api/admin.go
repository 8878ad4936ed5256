package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/svc/catalog"
	"github.com/dmitrymomot/subledger/svc/ledger"
	"github.com/dmitrymomot/subledger/svc/subscription"
)

func (a *API) listUsers(r *http.Request, _ noBody) (int, any, error) {
	users, err := a.engine.ListUsers(r.Context())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, users, nil
}

type broadcastRequest struct {
	Text string `json:"text"`
}

func (a *API) broadcast(r *http.Request, req broadcastRequest) (int, any, error) {
	report, err := a.engine.Broadcast(r.Context(), req.Text)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, report, nil
}

type usageRequest struct {
	UsedBytes int64 `json:"used_bytes"`
}

func (a *API) recordUsage(r *http.Request, req usageRequest) (int, any, error) {
	id, err := uuidParam(r, "id")
	if err != nil {
		return 0, nil, err
	}
	if err := a.engine.RecordUsage(r.Context(), id, req.UsedBytes); err != nil {
		return 0, nil, err
	}
	return http.StatusNoContent, nil, nil
}

func (a *API) listDiscounts(r *http.Request, _ noBody) (int, any, error) {
	codes, err := a.engine.ListDiscountCodes(r.Context())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, codes, nil
}

func (a *API) recentLogs(r *http.Request, _ noBody) (int, any, error) {
	limit, err := intQuery(r, "limit", subscription.DefaultLogLimit)
	if err != nil {
		return 0, nil, err
	}
	logs, err := a.engine.RecentLogs(r.Context(), limit)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, logs, nil
}

func (a *API) openDebts(r *http.Request, _ noBody) (int, any, error) {
	debts, err := a.engine.OpenReconciliationDebts(r.Context())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, debts, nil
}

func (a *API) resolveDebt(r *http.Request, _ noBody) (int, any, error) {
	id, err := uuidParam(r, "id")
	if err != nil {
		return 0, nil, err
	}
	if err := a.engine.ResolveReconciliationDebt(r.Context(), id); err != nil {
		return 0, nil, err
	}
	return http.StatusNoContent, nil, nil
}

func (a *API) pendingDeposits(r *http.Request, _ noBody) (int, any, error) {
	txs, err := a.engine.PendingDeposits(r.Context())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, txs, nil
}

func (a *API) approveDeposit(r *http.Request, _ noBody) (int, any, error) {
	id, err := uuidParam(r, "id")
	if err != nil {
		return 0, nil, err
	}
	tx, err := a.engine.ApproveDeposit(r.Context(), id)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, tx, nil
}

func (a *API) rejectDeposit(r *http.Request, _ noBody) (int, any, error) {
	id, err := uuidParam(r, "id")
	if err != nil {
		return 0, nil, err
	}
	tx, err := a.engine.RejectDeposit(r.Context(), id)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, tx, nil
}

type createDiscountRequest struct {
	Code      string              `json:"code"`
	Kind      ledger.DiscountKind `json:"type"`
	Magnitude decimal.Decimal     `json:"amount"`
}

func (a *API) createDiscount(r *http.Request, req createDiscountRequest) (int, any, error) {
	d, err := a.engine.CreateDiscountCode(r.Context(), req.Code, req.Kind, req.Magnitude)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, d, nil
}

type activeRequest struct {
	Active bool `json:"is_active"`
}

func (a *API) setDiscountActive(r *http.Request, req activeRequest) (int, any, error) {
	if err := a.engine.SetDiscountCodeActive(r.Context(), chi.URLParam(r, "code"), req.Active); err != nil {
		return 0, nil, err
	}
	return http.StatusNoContent, nil, nil
}

func (a *API) allServices(r *http.Request, _ noBody) (int, any, error) {
	services, err := a.catalog.AllServices(r.Context())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, services, nil
}

func (a *API) createService(r *http.Request, req catalog.ServiceInput) (int, any, error) {
	svc, err := a.catalog.CreateService(r.Context(), req)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, svc, nil
}

func (a *API) updateService(r *http.Request, req catalog.ServiceInput) (int, any, error) {
	id, err := uuidParam(r, "id")
	if err != nil {
		return 0, nil, err
	}
	svc, err := a.catalog.UpdateService(r.Context(), id, req)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, svc, nil
}

func (a *API) salesReport(r *http.Request, _ noBody) (int, any, error) {
	now := a.now()
	from, err := timeQuery(r, "from", now.Add(-a.cfg.ReportWindow))
	if err != nil {
		return 0, nil, err
	}
	to, err := timeQuery(r, "to", now)
	if err != nil {
		return 0, nil, err
	}
	report, err := a.engine.SalesReport(r.Context(), from, to)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, report, nil
}

func (a *API) listInbounds(r *http.Request, _ noBody) (int, any, error) {
	inbounds, err := a.prov.GetInbounds(r.Context())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, inbounds, nil
}

type inboundRequest struct {
	Enabled bool `json:"enable"`
}

func (a *API) setInboundEnabled(r *http.Request, req inboundRequest) (int, any, error) {
	id, err := intParam(r, "id")
	if err != nil {
		return 0, nil, err
	}
	if err := a.prov.SetInboundEnabled(r.Context(), id, req.Enabled); err != nil {
		return 0, nil, err
	}
	return http.StatusNoContent, nil, nil
}

func (a *API) listBackups(r *http.Request, _ noBody) (int, any, error) {
	rows, err := a.exporter.List(r.Context())
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, rows, nil
}

type backupRequest struct {
	Kind ledger.BackupKind `json:"type"`
}

func (a *API) createBackup(r *http.Request, req backupRequest) (int, any, error) {
	if req.Kind == "" {
		req.Kind = ledger.BackupFull
	}
	row, err := a.exporter.Create(r.Context(), req.Kind)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, row, nil
}

// downloadBackup streams the artifact of a completed backup.
func (a *API) downloadBackup(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	row, body, err := a.exporter.Open(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer func() { _ = body.Close() }()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+row.Filename+`"`)
	if row.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(row.Size, 10))
	}
	if _, err := io.Copy(w, body); err != nil {
		a.logger.WarnContext(r.Context(), "backup download interrupted", logger.Error(err))
	}
}
