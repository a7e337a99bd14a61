package http

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"seald/internal/domain"
	"seald/internal/usecase"

	"github.com/gin-gonic/gin"
)

const routeDocumentsVerify = "documents:verify"

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type createShipmentRequest struct {
	SenderName    string  `json:"sender_name"`
	ReceiverName  string  `json:"receiver_name"`
	Origin        string  `json:"origin"`
	Destination   string  `json:"destination"`
	DeclaredValue float64 `json:"declared_value"`
}

type shipmentResponse struct {
	ID              string  `json:"id"`
	TrackingNumber  string  `json:"tracking_number"`
	SenderName      string  `json:"sender_name"`
	ReceiverName    string  `json:"receiver_name"`
	Origin          string  `json:"origin"`
	Destination     string  `json:"destination"`
	DeclaredValue   float64 `json:"declared_value"`
	TransportStatus string  `json:"transport_status"`
	CreatedAt       string  `json:"created_at"`
}

type shipmentSummaryResponse struct {
	shipmentResponse
	DocumentStatus string `json:"document_status,omitempty"`
	Digest         string `json:"digest,omitempty"`
}

type lineItemPayload struct {
	Grade     string  `json:"grade"`
	Qty       int     `json:"qty"`
	WeightKg  float64 `json:"weight_kg"`
	UnitPrice float64 `json:"unit_price,omitempty"`
}

type draftRequest struct {
	LineItems []lineItemPayload `json:"line_items"`
}

type documentResponse struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	LineItems []lineItemPayload `json:"line_items"`
	ByteRef   string            `json:"byte_ref,omitempty"`
	Digest    string            `json:"digest"`
	LockedAt  string            `json:"locked_at,omitempty"`
	UpdatedAt string            `json:"updated_at"`
}

type anchorResponse struct {
	TxID        string `json:"tx_id"`
	BlockNumber int64  `json:"block_number"`
	ChainID     string `json:"chain_id"`
}

type approveDocumentResponse struct {
	documentResponse
	Anchor *anchorResponse `json:"anchor,omitempty"`
}

type verifyBytesRequest struct {
	BytesBase64 string `json:"bytes_base64"`
}

type verificationResponse struct {
	DocumentID     string `json:"document_id"`
	Outcome        string `json:"outcome"`
	AnchoredDigest string `json:"anchored_digest,omitempty"`
	ComputedDigest string `json:"computed_digest,omitempty"`
	CheckedAt      string `json:"checked_at"`
}

type tamperResponse struct {
	DocumentID     string `json:"document_id"`
	TamperedRef    string `json:"tampered_ref"`
	AnchoredDigest string `json:"anchored_digest"`
	TamperedDigest string `json:"tampered_digest"`
}

type auditEventResponse struct {
	ID          string `json:"id"`
	EventType   string `json:"event_type"`
	ActorRole   string `json:"actor_role"`
	ActorIDHash string `json:"actor_id_hash"`
	TargetID    string `json:"target_id,omitempty"`
	Detail      string `json:"detail,omitempty"`
	Result      string `json:"result"`
	ErrorCode   string `json:"error_code,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func (s *Server) handleCreateShipment(c *gin.Context) {
	principal, ok := s.requireAuth(c, "shipment:create")
	if !ok {
		return
	}
	var req createShipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	shipment, err := s.shipments.Create(c.Request.Context(), usecase.CreateShipmentRequest{
		Actor:         principal,
		SenderName:    req.SenderName,
		ReceiverName:  req.ReceiverName,
		Origin:        req.Origin,
		Destination:   req.Destination,
		DeclaredValue: req.DeclaredValue,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildShipmentResponse(*shipment))
}

func (s *Server) handleListShipments(c *gin.Context) {
	if _, ok := s.requireAuth(c, ""); !ok {
		return
	}
	summaries, err := s.shipments.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]shipmentSummaryResponse, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, shipmentSummaryResponse{
			shipmentResponse: buildShipmentResponse(summary.Shipment),
			DocumentStatus:   string(summary.DocumentStatus),
			Digest:           summary.Digest,
		})
	}
	c.JSON(http.StatusOK, gin.H{"shipments": out})
}

func (s *Server) handleDispatchShipment(c *gin.Context) {
	principal, ok := s.requireAuth(c, "shipment:dispatch")
	if !ok {
		return
	}
	shipment, err := s.shipments.Dispatch(c.Request.Context(), c.Param("id"), principal)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildShipmentResponse(*shipment))
}

func (s *Server) handleConfirmDelivery(c *gin.Context) {
	principal, ok := s.requireAuth(c, "shipment:deliver")
	if !ok {
		return
	}
	shipment, err := s.shipments.ConfirmDelivery(c.Request.Context(), c.Param("id"), principal)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildShipmentResponse(*shipment))
}

func (s *Server) handleDraftDocument(c *gin.Context) {
	principal, ok := s.requireAuth(c, "document:draft")
	if !ok {
		return
	}
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	items := make([]domain.LineItem, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		items = append(items, domain.LineItem{
			Grade:     item.Grade,
			Qty:       item.Qty,
			WeightKg:  item.WeightKg,
			UnitPrice: item.UnitPrice,
		})
	}
	doc, err := s.lifecycle.CreateDraft(c.Request.Context(), usecase.CreateDraftRequest{
		DocumentID: c.Param("id"),
		Actor:      principal,
		LineItems:  items,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildDocumentResponse(*doc))
}

func (s *Server) handleApproveDocument(c *gin.Context) {
	principal, ok := s.requireAuth(c, "document:approve")
	if !ok {
		return
	}
	resp, err := s.lifecycle.Approve(c.Request.Context(), usecase.ApproveRequest{
		DocumentID: c.Param("id"),
		Actor:      principal,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	out := approveDocumentResponse{documentResponse: buildDocumentResponse(*resp.Document)}
	if resp.Confirmation != nil {
		out.Anchor = &anchorResponse{
			TxID:        resp.Confirmation.TxID,
			BlockNumber: resp.Confirmation.BlockNumber,
			ChainID:     resp.Confirmation.ChainID,
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleRejectDocument(c *gin.Context) {
	principal, ok := s.requireAuth(c, "document:reject")
	if !ok {
		return
	}
	doc, err := s.lifecycle.Reject(c.Request.Context(), usecase.RejectRequest{
		DocumentID: c.Param("id"),
		Actor:      principal,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildDocumentResponse(*doc))
}

func (s *Server) handleResetDocument(c *gin.Context) {
	principal, ok := s.requireAuth(c, "document:reset")
	if !ok {
		return
	}
	doc, err := s.lifecycle.Reset(c.Request.Context(), usecase.ResetRequest{
		DocumentID: c.Param("id"),
		Actor:      principal,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildDocumentResponse(*doc))
}

func (s *Server) handleVerifyDocument(c *gin.Context) {
	if !s.enforceRateLimit(c, routeDocumentsVerify) {
		return
	}
	result, err := s.verifier.Execute(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildVerificationResponse(result))
}

func (s *Server) handleVerifyDocumentBytes(c *gin.Context) {
	if !s.enforceRateLimit(c, routeDocumentsVerify) {
		return
	}
	var req verifyBytesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	candidate, err := base64.StdEncoding.DecodeString(req.BytesBase64)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ENCODING", "bytes_base64 is not valid base64")
		return
	}
	result, err := s.verifier.ExecuteBytes(c.Request.Context(), c.Param("id"), candidate)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildVerificationResponse(result))
}

func (s *Server) handleTamperDemo(c *gin.Context) {
	principal, ok := s.requireAuth(c, "demo:tamper")
	if !ok {
		return
	}
	result, err := s.demo.Tamper(c.Request.Context(), usecase.TamperRequest{
		DocumentID: c.Param("id"),
		Actor:      principal,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tamperResponse{
		DocumentID:     result.DocumentID,
		TamperedRef:    result.TamperedRef,
		AnchoredDigest: result.AnchoredDigest,
		TamperedDigest: result.TamperedDigest,
	})
}

func (s *Server) handleRestoreDemo(c *gin.Context) {
	principal, ok := s.requireAuth(c, "demo:tamper")
	if !ok {
		return
	}
	err := s.demo.Restore(c.Request.Context(), usecase.TamperRequest{
		DocumentID: c.Param("id"),
		Actor:      principal,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "restored"})
}

func (s *Server) handleListAudit(c *gin.Context) {
	if _, ok := s.requireAuth(c, "audit:read"); !ok {
		return
	}
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	events, err := s.audit.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]auditEventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, auditEventResponse{
			ID:          event.ID,
			EventType:   string(event.EventType),
			ActorRole:   event.ActorRole,
			ActorIDHash: event.ActorIDHash,
			TargetID:    event.TargetID,
			Detail:      event.Detail,
			Result:      string(event.Result),
			ErrorCode:   event.ErrorCode,
			CreatedAt:   event.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func buildShipmentResponse(shipment domain.Shipment) shipmentResponse {
	return shipmentResponse{
		ID:              shipment.ID,
		TrackingNumber:  shipment.TrackingNumber,
		SenderName:      shipment.SenderName,
		ReceiverName:    shipment.ReceiverName,
		Origin:          shipment.Origin,
		Destination:     shipment.Destination,
		DeclaredValue:   shipment.DeclaredValue,
		TransportStatus: string(shipment.TransportStatus),
		CreatedAt:       shipment.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func buildDocumentResponse(doc domain.ShipmentDocument) documentResponse {
	items := make([]lineItemPayload, 0, len(doc.LineItems))
	for _, item := range doc.LineItems {
		items = append(items, lineItemPayload{
			Grade:     item.Grade,
			Qty:       item.Qty,
			WeightKg:  item.WeightKg,
			UnitPrice: item.UnitPrice,
		})
	}
	out := documentResponse{
		ID:        doc.ID,
		Status:    string(doc.Status),
		LineItems: items,
		ByteRef:   doc.ByteRef,
		Digest:    doc.Digest,
		UpdatedAt: doc.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if doc.LockedAt != nil {
		out.LockedAt = doc.LockedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func buildVerificationResponse(result *domain.VerificationResult) verificationResponse {
	return verificationResponse{
		DocumentID:     result.DocumentID,
		Outcome:        string(result.Outcome),
		AnchoredDigest: result.AnchoredDigest,
		ComputedDigest: result.ComputedDigest,
		CheckedAt:      result.CheckedAt.UTC().Format(time.RFC3339),
	}
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status, code = http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidState):
		status, code = http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, domain.ErrLedgerUnavailable):
		status, code = http.StatusServiceUnavailable, "LEDGER_UNAVAILABLE"
	case errors.Is(err, domain.ErrLedgerRejected):
		status, code = http.StatusBadGateway, "LEDGER_REJECTED"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "FORBIDDEN"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{Code: code, Message: message})
}
