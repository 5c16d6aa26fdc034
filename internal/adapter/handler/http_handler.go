package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/jobcard-erp/internal/core/domain"
)

const maxBodyBytes = 1 << 20

type InwardService interface {
	Create(ctx context.Context, idempotencyKey string, in domain.InwardInput) (int64, error)
	Update(ctx context.Context, id int64, in domain.InwardInput) error
	Delete(ctx context.Context, ids []int64) error
	List(ctx context.Context) ([]domain.Inward, error)
	Get(ctx context.Context, id int64) (*domain.Inward, error)
}

type ChallanService interface {
	Create(ctx context.Context, c domain.Challan) (domain.Challan, error)
	NextGRN(ctx context.Context) (string, error)
	List(ctx context.Context) ([]domain.Challan, error)
	Get(ctx context.Context, id int64) (*domain.Challan, error)
	Update(ctx context.Context, id int64, c domain.Challan) (domain.Challan, error)
	Delete(ctx context.Context, id int64) error
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type HTTPHandler struct {
	inwards  InwardService
	challans ChallanService
	db       Pinger
	validate *validator.Validate
	log      logrus.FieldLogger
}

type InwardHTTPRequest struct {
	InwardDate domain.Date       `json:"inward_date"`
	CustomerID int64             `json:"customer_id" validate:"required,gt=0"`
	Parts      []InwardPartInput `json:"parts" validate:"dive"`
}

type InwardPartInput struct {
	PartID int64           `json:"part_id" validate:"required,gt=0"`
	Qty    decimal.Decimal `json:"qty"`
}

type DeleteInwardsHTTPRequest struct {
	IDs []int64 `json:"ids"`
}

type ChallanHTTPRequest struct {
	GRNNo       string          `json:"grn_no" validate:"omitempty,max=16"`
	GRNDate     domain.Date     `json:"grn_date"`
	SupplierID  int64           `json:"supplier_id" validate:"required,gt=0"`
	ChallanNo   *string         `json:"challan_no" validate:"omitempty,max=64"`
	ChallanDate *domain.Date    `json:"challan_date"`
	ItemID      int64           `json:"item_id" validate:"required,gt=0"`
	ItemName    *string         `json:"item_name" validate:"omitempty,max=255"`
	ProcessID   *int64          `json:"process_id" validate:"omitempty,gt=0"`
	Qty         decimal.Decimal `json:"qty"`
}

type CreateInwardHTTPResponse struct {
	InwardID int64 `json:"inwardId"`
}

type MessageHTTPResponse struct {
	Message string `json:"message"`
}

type ErrorHTTPResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type NextGRNHTTPResponse struct {
	NextGRNNo string `json:"next_grn_no"`
}

func NewHTTPHandler(inwards InwardService, challans ChallanService, db Pinger, log logrus.FieldLogger) *HTTPHandler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &HTTPHandler{
		inwards:  inwards,
		challans: challans,
		db:       db,
		validate: v,
		log:      log.WithField("module", "http"),
	}
}

// Routes returns the REST surface wrapped in request-id, logging and recovery middleware.
func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("POST /inwards", h.CreateInward)
	mux.HandleFunc("GET /inwards", h.ListInwards)
	mux.HandleFunc("GET /inwards/{id}", h.GetInward)
	mux.HandleFunc("PUT /inwards/{id}", h.UpdateInward)
	mux.HandleFunc("DELETE /inwards", h.DeleteInwards)

	mux.HandleFunc("POST /inward-lc-challan", h.CreateChallan)
	mux.HandleFunc("GET /inward-lc-challan", h.ListChallans)
	mux.HandleFunc("GET /inward-lc-challan/next-grn", h.NextGRN)
	mux.HandleFunc("GET /inward-lc-challan/{id}", h.GetChallan)
	mux.HandleFunc("PUT /inward-lc-challan/{id}", h.UpdateChallan)
	mux.HandleFunc("DELETE /inward-lc-challan/{id}", h.DeleteChallan)

	return requestID(logRequests(h.log, recoverPanics(h.log, mux)))
}

func (h *HTTPHandler) CreateInward(w http.ResponseWriter, r *http.Request) {
	const op = "inward.create"

	var req InwardHTTPRequest
	if err := h.decode(w, r, op, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	id, err := h.inwards.Create(r.Context(), r.Header.Get("Idempotency-Key"), req.toInput())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateInwardHTTPResponse{InwardID: id})
}

func (h *HTTPHandler) ListInwards(w http.ResponseWriter, r *http.Request) {
	inwards, err := h.inwards.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, inwards)
}

func (h *HTTPHandler) GetInward(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "inward.get")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	inward, err := h.inwards.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, inward)
}

func (h *HTTPHandler) UpdateInward(w http.ResponseWriter, r *http.Request) {
	const op = "inward.update"

	id, err := pathID(r, op)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req InwardHTTPRequest
	if err := h.decode(w, r, op, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.inwards.Update(r.Context(), id, req.toInput()); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageHTTPResponse{Message: "inward updated successfully"})
}

func (h *HTTPHandler) DeleteInwards(w http.ResponseWriter, r *http.Request) {
	const op = "inward.delete"

	var req DeleteInwardsHTTPRequest
	if err := h.decode(w, r, op, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.inwards.Delete(r.Context(), req.IDs); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageHTTPResponse{Message: "inwards deleted successfully"})
}

func (h *HTTPHandler) CreateChallan(w http.ResponseWriter, r *http.Request) {
	const op = "challan.create"

	var req ChallanHTTPRequest
	if err := h.decode(w, r, op, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.challans.Create(r.Context(), req.toChallan())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *HTTPHandler) ListChallans(w http.ResponseWriter, r *http.Request) {
	challans, err := h.challans.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, challans)
}

func (h *HTTPHandler) NextGRN(w http.ResponseWriter, r *http.Request) {
	next, err := h.challans.NextGRN(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, NextGRNHTTPResponse{NextGRNNo: next})
}

func (h *HTTPHandler) GetChallan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "challan.get")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	c, err := h.challans.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (h *HTTPHandler) UpdateChallan(w http.ResponseWriter, r *http.Request) {
	const op = "challan.update"

	id, err := pathID(r, op)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req ChallanHTTPRequest
	if err := h.decode(w, r, op, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	updated, err := h.challans.Update(r.Context(), id, req.toChallan())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *HTTPHandler) DeleteChallan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "challan.delete")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.challans.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageHTTPResponse{Message: "challan deleted successfully"})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			h.log.WithError(err).Warn("health check: database unreachable")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (req InwardHTTPRequest) toInput() domain.InwardInput {
	lines := make([]domain.LineInput, 0, len(req.Parts))
	for _, p := range req.Parts {
		lines = append(lines, domain.LineInput{PartID: p.PartID, Qty: p.Qty})
	}
	return domain.InwardInput{
		Date:       req.InwardDate,
		CustomerID: req.CustomerID,
		Lines:      lines,
	}
}

func (req ChallanHTTPRequest) toChallan() domain.Challan {
	return domain.Challan{
		GRNNo:       req.GRNNo,
		GRNDate:     req.GRNDate,
		SupplierID:  req.SupplierID,
		ChallanNo:   req.ChallanNo,
		ChallanDate: req.ChallanDate,
		ItemID:      req.ItemID,
		ItemName:    req.ItemName,
		ProcessID:   req.ProcessID,
		Qty:         req.Qty,
	}
}

// decode reads a JSON body into dst and runs the struct validation tags.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, op string, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return domain.Validation(op, "invalid request body: %v", err)
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s: %s", fieldPath(fe), fe.Tag()))
			}
			return domain.Validation(op, "invalid fields: %s", strings.Join(fields, "; "))
		}
		return domain.Validation(op, "%v", err)
	}
	return nil
}

// fieldPath drops the request type name from the namespace: "InwardHTTPRequest.parts[0].part_id" -> "parts[0].part_id"
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func pathID(r *http.Request, op string) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validation(op, "invalid id %q", raw)
	}
	return id, nil
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConflict:
		status = http.StatusConflict
	}

	if status >= http.StatusInternalServerError {
		h.log.WithFields(logrus.Fields{
			"request_id": RequestIDFrom(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).WithError(err).Error("request failed")
	}

	writeJSON(w, status, ErrorHTTPResponse{
		Error:   kind.String(),
		Message: domain.DetailOf(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
