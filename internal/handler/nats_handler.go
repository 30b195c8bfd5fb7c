// Package handler exposes the proposal lifecycle over NATS request/reply.
// Callers (the proposals gateway) send JSON requests on proposals.rpc.*
// subjects; every subscription runs in the "proposals" queue group so
// multiple instances share the load.
package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pesio-ai/be-sales-proposals/internal/approval"
	"github.com/pesio-ai/be-sales-proposals/internal/domain"
	"github.com/pesio-ai/be-sales-proposals/internal/errors"
	"github.com/pesio-ai/be-sales-proposals/internal/logger"
	"github.com/pesio-ai/be-sales-proposals/internal/service"
)

const (
	queueGroup     = "proposals"
	requestTimeout = 30 * time.Second
)

// NATSHandler handles lifecycle requests received over NATS.
type NATSHandler struct {
	service *service.ProposalService
	log     *logger.Logger
}

// NewNATSHandler creates a new NATS handler.
func NewNATSHandler(svc *service.ProposalService, log *logger.Logger) *NATSHandler {
	return &NATSHandler{
		service: svc,
		log:     log,
	}
}

// Request is the JSON envelope of every lifecycle request.
type Request struct {
	Actor       Actor                      `json:"actor"`
	Kind        string                     `json:"kind"`
	DocumentID  string                     `json:"document_id,omitempty"`
	ParentKind  string                     `json:"parent_kind,omitempty"`
	ParentID    string                     `json:"parent_id,omitempty"`
	Fields      map[string]any             `json:"fields,omitempty"`
	Attachments []domain.AttachmentRef     `json:"attachments"`
	Operational *domain.OperationalDetails `json:"operational,omitempty"`
	Decision    string                     `json:"decision,omitempty"`
	Note        string                     `json:"note,omitempty"`
	Reason      string                     `json:"reason,omitempty"`
	Filter      *domain.AuditFilter        `json:"filter,omitempty"`
}

// Actor identifies the authenticated caller. Authentication happens at the
// gateway; this service trusts the roles it is handed.
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// Response is the JSON envelope of every reply.
type Response struct {
	Document *domain.Document     `json:"document,omitempty"`
	Lineage  *service.Lineage     `json:"lineage,omitempty"`
	Events   []*domain.AuditEvent `json:"events,omitempty"`
	Error    *ErrorPayload        `json:"error,omitempty"`
}

// ErrorPayload carries a coded error back to the caller.
type ErrorPayload struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	BlockingID string `json:"blocking_id,omitempty"`
}

// Register subscribes all lifecycle subjects on the given connection.
func (h *NATSHandler) Register(conn *nats.Conn) error {
	subjects := map[string]func(context.Context, *Request) *Response{
		"proposals.rpc.create":         h.create,
		"proposals.rpc.get":            h.get,
		"proposals.rpc.edit":           h.edit,
		"proposals.rpc.submit":         h.submit,
		"proposals.rpc.decide":         h.decide,
		"proposals.rpc.reset_approval": h.resetApproval,
		"proposals.rpc.delete":         h.remove,
		"proposals.rpc.audit":          h.audit,
	}

	for subject, handle := range subjects {
		handle := handle
		if _, err := conn.QueueSubscribe(subject, queueGroup, func(msg *nats.Msg) {
			h.serve(msg, handle)
		}); err != nil {
			return err
		}
	}

	h.log.Info().Int("subjects", len(subjects)).Msg("NATS lifecycle handler registered")
	return nil
}

func (h *NATSHandler) serve(msg *nats.Msg, handle func(context.Context, *Request) *Response) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var req Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		h.reply(msg, errorResponse(errors.InvalidInput("request", "malformed JSON request")))
		return
	}

	h.reply(msg, handle(ctx, &req))
}

func (h *NATSHandler) reply(msg *nats.Msg, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		h.log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to encode reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		h.log.Warn().Err(err).Str("subject", msg.Subject).Msg("Failed to send reply")
	}
}

func (h *NATSHandler) create(ctx context.Context, req *Request) *Response {
	kind := domain.Kind(req.Kind)
	if !kind.Valid() {
		return errorResponse(errors.InvalidInput("kind", "unknown document kind"))
	}

	parent := domain.Ref{}
	if req.ParentID != "" {
		parent = domain.Ref{Kind: domain.Kind(req.ParentKind), ID: req.ParentID}
	}

	doc, err := h.service.CreateFromParent(ctx, kind, parent, payload(req), actorOf(req))
	if err != nil {
		return errorResponse(err)
	}
	return &Response{Document: doc}
}

func (h *NATSHandler) get(ctx context.Context, req *Request) *Response {
	lin, err := h.service.GetWithLineage(ctx, domain.Kind(req.Kind), req.DocumentID)
	if err != nil {
		return errorResponse(err)
	}
	return &Response{Lineage: lin}
}

func (h *NATSHandler) edit(ctx context.Context, req *Request) *Response {
	doc, err := h.service.Edit(ctx, domain.Kind(req.Kind), req.DocumentID, payload(req), actorOf(req))
	if err != nil {
		return errorResponse(err)
	}
	return &Response{Document: doc}
}

func (h *NATSHandler) submit(ctx context.Context, req *Request) *Response {
	doc, err := h.service.RequestApproval(ctx, domain.Kind(req.Kind), req.DocumentID, actorOf(req), req.Note)
	if err != nil {
		return errorResponse(err)
	}
	return &Response{Document: doc}
}

func (h *NATSHandler) decide(ctx context.Context, req *Request) *Response {
	decision := approval.Decision(req.Decision)
	doc, err := h.service.Decide(ctx, domain.Kind(req.Kind), req.DocumentID, actorOf(req), decision, req.Note)
	if err != nil {
		return errorResponse(err)
	}
	return &Response{Document: doc}
}

func (h *NATSHandler) resetApproval(ctx context.Context, req *Request) *Response {
	doc, err := h.service.AdminResetApproval(ctx, domain.Kind(req.Kind), req.DocumentID, actorOf(req), req.Note)
	if err != nil {
		return errorResponse(err)
	}
	return &Response{Document: doc}
}

func (h *NATSHandler) remove(ctx context.Context, req *Request) *Response {
	if err := h.service.Delete(ctx, domain.Kind(req.Kind), req.DocumentID, actorOf(req), req.Reason); err != nil {
		return errorResponse(err)
	}
	return &Response{}
}

func (h *NATSHandler) audit(ctx context.Context, req *Request) *Response {
	filter := domain.AuditFilter{}
	if req.Filter != nil {
		filter = *req.Filter
	}
	events, err := h.service.ListAuditEvents(ctx, filter)
	if err != nil {
		return errorResponse(err)
	}
	return &Response{Events: events}
}

func payload(req *Request) service.Payload {
	return service.Payload{
		Fields:      req.Fields,
		Attachments: req.Attachments,
		Operational: req.Operational,
	}
}

func actorOf(req *Request) domain.Actor {
	return domain.Actor{ID: req.Actor.ID, Roles: req.Actor.Roles}
}

func errorResponse(err error) *Response {
	coded := errors.From(err)
	return &Response{Error: &ErrorPayload{
		Code:       string(coded.Code),
		Message:    coded.Message,
		BlockingID: coded.BlockingID,
	}}
}
