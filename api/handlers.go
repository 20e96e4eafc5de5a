/*
handlers.go - HTTP API handlers for the vacation engine

PURPOSE:
  Exposes vacation.Service via REST API. Handles HTTP request/response and
  JSON serialization, and delegates every decision to the service.

ENDPOINTS:
  Policies:
    GET    /api/policies                          List live policies
    POST   /api/policies                          Create policy (factory definition)
    GET    /api/policies/{id}                     Get policy
    DELETE /api/policies/{id}                     Delete policy, revoking its active grants
    POST   /api/policies/{id}/assignments         Assign policy to a user
    DELETE /api/policies/{id}/assignments/{user}  Unassign, revoking the user's active grants

  Grants:
    POST   /api/grants                            Manual grant
    GET    /api/grants/{id}                       Get grant
    GET    /api/grants/{id}/approvals             Approval chain of a grant
    POST   /api/grants/{id}/revoke|expire|exhaust Administrative transitions
    POST   /api/grants/{id}/cancel                Requester cancels a pending request

  Approval workflow:
    POST   /api/requests                          Request an ON_REQUEST grant
    GET    /api/approvals/pending                 Pending approvals of the caller
    POST   /api/approvals/{id}/approve            Approve one step
    POST   /api/approvals/{id}/reject             Reject with a reason

  Usages:
    POST   /api/usages                            Use vacation (FIFO allocation)
    GET    /api/usages/{id}                       Usage with its deductions
    PUT    /api/usages/{id}                       Replace a usage
    DELETE /api/usages/{id}                       Cancel a usage

  Users:
    GET    /api/users/{id}/grants                 All grants of a user
    GET    /api/users/{id}/usages                 All usages of a user
    GET    /api/users/{id}/balance?vacation_type=ANNUAL&at=2025-03-01

  Misc:
    GET    /api/time-types                        Multiplier table
    GET    /healthz

ACTOR:
  Requests, usages, approve, reject, cancel and the pending list act on
  behalf of the user named by the X-User-ID header. Authentication is out of scope; a gateway
  in front of the service is expected to set it.

ERROR HANDLING:
  - 400: Validation errors, malformed body or ids
  - 403: Permission denied (actor does not own the approval/grant)
  - 404: Entity not found
  - 409: Business rule violation, insufficient balance
  - 503: Lock timeout (retryable, Retry-After set)
  - 500: Consistency violations and anything unexpected

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/warp/vacation-engine/factory"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

// ActorHeader names the acting user.
const ActorHeader = "X-User-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service       *vacation.Service
	PolicyFactory *factory.PolicyFactory
	Logger        *slog.Logger

	now func() time.Time
}

// NewHandler creates a new handler over the given service.
func NewHandler(svc *vacation.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Service:       svc,
		PolicyFactory: factory.NewPolicyFactory(),
		Logger:        logger,
		now:           time.Now,
	}
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Service.ListPolicies(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]PolicyDTO, len(policies))
	for i, p := range policies {
		dtos[i] = toPolicyDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePolicy accepts a factory.PolicyDefinition; its assign_to users are
// assigned right away.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var def factory.PolicyDefinition
	if !h.decode(w, r, &def) {
		return
	}
	created, err := h.PolicyFactory.Seed(r.Context(), h.Service, []factory.PolicyDefinition{def})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPolicyDTO(created[0]))
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.Service.GetPolicy(r.Context(), vacation.PolicyID(id))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(*p))
}

// DeletePolicy returns the grants the cascade revoked.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	revoked, err := h.Service.DeletePolicy(r.Context(), vacation.PolicyID(id))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrantDTOs(revoked))
}

func (h *Handler) AssignPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req AssignRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := h.Service.AssignPolicy(r.Context(), vacation.UserID(req.UserID), vacation.PolicyID(id))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssignmentDTO(*a))
}

func (h *Handler) RevokeAssignment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	user := vacation.UserID(chi.URLParam(r, "user"))
	revoked, err := h.Service.RevokeAssignment(r.Context(), user, vacation.PolicyID(id))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrantDTOs(revoked))
}

// =============================================================================
// GRANT HANDLERS
// =============================================================================

func (h *Handler) CreateGrant(w http.ResponseWriter, r *http.Request) {
	var req ManualGrantRequest
	if !h.decode(w, r, &req) {
		return
	}
	grantDate, err := parseDateField("grant_date", req.GrantDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	expiryDate, err := parseDateField("expiry_date", req.ExpiryDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	in := vacation.ManualGrantInput{
		UserID:     vacation.UserID(req.UserID),
		PolicyID:   vacation.PolicyID(req.PolicyID),
		GrantDate:  grantDate,
		ExpiryDate: expiryDate,
		Desc:       req.Desc,
	}
	if req.Amount != nil {
		amt := generic.Days(*req.Amount)
		in.Amount = &amt
	}

	g, err := h.Service.GrantManually(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGrantDTO(*g))
}

func (h *Handler) GetGrant(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	g, err := h.Service.GetGrant(r.Context(), vacation.GrantID(id))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrantDTO(*g))
}

func (h *Handler) ListGrantApprovals(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	approvals, err := h.Service.ListApprovals(r.Context(), vacation.GrantID(id))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApprovalDTOs(approvals))
}

// grantTransition runs one of the administrative grant transitions.
func (h *Handler) grantTransition(w http.ResponseWriter, r *http.Request, apply func(context.Context, vacation.GrantID) (*vacation.Grant, error)) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	g, err := apply(r.Context(), vacation.GrantID(id))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrantDTO(*g))
}

func (h *Handler) RevokeGrant(w http.ResponseWriter, r *http.Request) {
	h.grantTransition(w, r, h.Service.RevokeGrant)
}

func (h *Handler) ExpireGrant(w http.ResponseWriter, r *http.Request) {
	h.grantTransition(w, r, h.Service.ExpireGrant)
}

func (h *Handler) ExhaustGrant(w http.ResponseWriter, r *http.Request) {
	h.grantTransition(w, r, h.Service.ExhaustGrant)
}

// CancelRequest lets the requester withdraw a grant still awaiting approval.
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	g, err := h.Service.CancelVacationRequest(r.Context(), vacation.GrantID(id), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrantDTO(*g))
}

// =============================================================================
// APPROVAL WORKFLOW HANDLERS
// =============================================================================

func (h *Handler) RequestVacation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req VacationRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := vacation.RequestInput{
		UserID:       actor,
		PolicyID:     vacation.PolicyID(req.PolicyID),
		Desc:         req.Desc,
		RequestStart: req.RequestStart,
		RequestEnd:   req.RequestEnd,
	}
	for _, id := range req.ApproverIDs {
		in.ApproverIDs = append(in.ApproverIDs, vacation.UserID(id))
	}
	if req.Amount != nil {
		amt := generic.Days(*req.Amount)
		in.Amount = &amt
	}

	res, err := h.Service.RequestVacation(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, RequestResultDTO{
		Grant:     toGrantDTO(*res.Grant),
		Approvals: toApprovalDTOs(res.Approvals),
	})
}

func (h *Handler) ListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	approvals, err := h.Service.PendingApprovals(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApprovalDTOs(approvals))
}

func (h *Handler) ApproveVacation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	g, err := h.Service.ApproveVacation(r.Context(), vacation.ApprovalID(id), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrantDTO(*g))
}

func (h *Handler) RejectVacation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req RejectRequest
	if !h.decode(w, r, &req) {
		return
	}
	g, err := h.Service.RejectVacation(r.Context(), vacation.ApprovalID(id), actor, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrantDTO(*g))
}

// =============================================================================
// USAGE HANDLERS
// =============================================================================

func (h *Handler) UseVacation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req UsageRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.Service.UseVacation(r.Context(), req.toInput(actor))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeUsage(w, r, http.StatusCreated, u.ID)
}

func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	h.writeUsage(w, r, http.StatusOK, vacation.UsageID(id))
}

func (h *Handler) UpdateUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req UsageRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.Service.UpdateUsage(r.Context(), vacation.UsageID(id), req.toInput(actor))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeUsage(w, r, http.StatusOK, u.ID)
}

func (h *Handler) CancelUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	u, err := h.Service.CancelUsage(r.Context(), vacation.UsageID(id), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUsageDTO(*u, nil))
}

// writeUsage re-reads the usage so the response carries its deductions.
func (h *Handler) writeUsage(w http.ResponseWriter, r *http.Request, status int, id vacation.UsageID) {
	u, ds, err := h.Service.GetUsage(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, toUsageDTO(*u, ds))
}

// =============================================================================
// USER VIEWS
// =============================================================================

func (h *Handler) ListUserGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.Service.ListGrants(r.Context(), vacation.UserID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrantDTOs(grants))
}

func (h *Handler) ListUserUsages(w http.ResponseWriter, r *http.Request) {
	usages, err := h.Service.ListUsages(r.Context(), vacation.UserID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]UsageDTO, len(usages))
	for i, u := range usages {
		dtos[i] = toUsageDTO(u, nil)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBalance takes vacation_type (required) and at (date, default today).
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "id")
	vt := strings.TrimSpace(r.URL.Query().Get("vacation_type"))
	if vt == "" {
		h.writeError(w, r, generic.Invalid("vacation_type", "query parameter is required"))
		return
	}
	at := generic.DateOf(h.now())
	if s := r.URL.Query().Get("at"); s != "" {
		d, err := parseDateField("at", s)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		at = d
	}

	bal, err := h.Service.Balance(r.Context(), vacation.UserID(user), vacation.VacationType(vt), at)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{UserID: user, VacationType: vt, At: at, Balance: bal.Value})
}

func (h *Handler) ListTimeTypes(w http.ResponseWriter, r *http.Request) {
	tt := h.Service.TimeTypes()
	dtos := make([]TimeTypeDTO, 0, len(tt))
	for name, rule := range tt {
		dtos = append(dtos, TimeTypeDTO{Name: string(name), Multiplier: rule.Multiplier, WholeDay: rule.WholeDay})
	}
	sort.Slice(dtos, func(i, j int) bool { return dtos[i].Name < dtos[j].Name })
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// statusFor maps the engine's error categories to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrConsistency):
		return http.StatusInternalServerError
	case errors.Is(err, generic.ErrLockTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, generic.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, generic.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, generic.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrBusinessRule):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: http.StatusText(status), Details: err.Error()}

	var short *generic.InsufficientBalanceError
	if errors.As(err, &short) {
		resp.Extra = map[string]any{
			"available": short.Available.Value,
			"requested": short.Requested.Value,
			"shortfall": short.Shortfall.Value,
		}
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	if status >= http.StatusInternalServerError {
		h.Logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body, answering 400 itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, r, generic.Invalid("body", "invalid JSON: %v", err))
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, r, generic.Invalid(name, "not a valid id: %q", raw))
		return 0, false
	}
	return id, true
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (vacation.UserID, bool) {
	actor := strings.TrimSpace(r.Header.Get(ActorHeader))
	if actor == "" {
		h.writeError(w, r, generic.Invalid(ActorHeader, "header is required"))
		return "", false
	}
	return vacation.UserID(actor), true
}

func parseDateField(field, s string) (time.Time, error) {
	d, err := generic.ParseDate(s)
	if err != nil {
		return time.Time{}, generic.Invalid(field, "expected YYYY-MM-DD, got %q", s)
	}
	return d, nil
}
