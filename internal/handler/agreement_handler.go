package handler

import (
	"net/http"
	"time"

	"agreement-service/internal/model"
	"agreement-service/internal/signing"
	"agreement-service/pkg/database"
	"agreement-service/pkg/jwtutil"
	"agreement-service/pkg/logger"
	"agreement-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// CreateAgreement handles agreement creation (draft status)
func CreateAgreement(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := c.Get("user").(*jwtutil.UserClaims)
	if !ok {
		log.Error("Failed to get user claims from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		DocumentType        string `json:"document_type"`
		ArrangerID          *uint  `json:"arranger_id"`
		IntroducerID        *uint  `json:"introducer_id"`
		CommercialPartnerID *uint  `json:"commercial_partner_id"`
		PDFURL              string `json:"pdf_url"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse agreement creation request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	pol, ok := signing.PolicyFor(req.DocumentType)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown document type"})
	}
	if req.PDFURL == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "pdf_url is required"})
	}

	db := database.GetDB()

	// Exactly one external counterparty, of the type the policy expects
	switch pol.DocumentType {
	case model.DocumentTypeIntroducer:
		if req.IntroducerID == nil || req.CommercialPartnerID != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "introducer agreements require exactly an introducer_id"})
		}
		var introducer model.Introducer
		if err := db.First(&introducer, *req.IntroducerID).Error; err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "introducer not found"})
		}
	case model.DocumentTypePlacement:
		if req.CommercialPartnerID == nil || req.IntroducerID != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "placement agreements require exactly a commercial_partner_id"})
		}
		var partner model.CommercialPartner
		if err := db.First(&partner, *req.CommercialPartnerID).Error; err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "commercial partner not found"})
		}
	}

	if req.ArrangerID != nil {
		var arranger model.Arranger
		if err := db.First(&arranger, *req.ArrangerID).Error; err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "arranger not found"})
		}
	}

	agreement := model.Agreement{
		DocumentType:        req.DocumentType,
		ArrangerID:          req.ArrangerID,
		IntroducerID:        req.IntroducerID,
		CommercialPartnerID: req.CommercialPartnerID,
		Status:              model.StatusDraft,
		PDFURL:              req.PDFURL,
		CreatedBy:           claims.UserID,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	if result := db.Create(&agreement); result.Error != nil {
		log.Error("Failed to create agreement", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "agreement creation failed"})
	}

	if prometheus.AgreementsCreatedCounter != nil {
		prometheus.AgreementsCreatedCounter.WithLabelValues(agreement.DocumentType).Inc()
	}

	log.Info("Agreement created",
		zap.String("id", agreement.ID),
		zap.String("document_type", agreement.DocumentType),
		zap.Uint("created_by", claims.UserID))

	return c.JSON(http.StatusCreated, agreement)
}

// GetAgreement retrieves agreement details
func GetAgreement(c echo.Context) error {
	log := logger.FromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())

	var agreement model.Agreement
	if err := database.GetDB().First(&agreement, "id = ?", c.Param("id")).Error; err != nil {
		log.Warn("Agreement not found", zap.String("id", c.Param("id")))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "agreement not found"})
	}

	return c.JSON(http.StatusOK, agreement)
}

// ListAgreements lists agreements, optionally filtered by status and document type
func ListAgreements(c echo.Context) error {
	log := logger.FromContext(c)

	query := database.GetDB().Model(&model.Agreement{})
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if documentType := c.QueryParam("document_type"); documentType != "" {
		query = query.Where("document_type = ?", documentType)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var agreements []model.Agreement
	if err := query.Order("created_at DESC").Find(&agreements).Error; err != nil {
		log.Error("Failed to list agreements", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list agreements"})
	}

	return c.JSON(http.StatusOK, echo.Map{"agreements": agreements})
}

// ApproveAgreement transitions a draft agreement to approved
func ApproveAgreement(c echo.Context) error {
	return transitionAgreement(c, []string{model.StatusDraft}, model.StatusApproved)
}

// RejectAgreement transitions any non-terminal agreement to rejected
func RejectAgreement(c echo.Context) error {
	return transitionAgreement(c, nonTerminalStatuses, model.StatusRejected)
}

// CancelAgreement transitions any non-terminal agreement to cancelled and
// cancels its pending signature requests
func CancelAgreement(c echo.Context) error {
	return transitionAgreement(c, nonTerminalStatuses, model.StatusCancelled)
}

var nonTerminalStatuses = []string{
	model.StatusDraft,
	model.StatusApproved,
	model.StatusPendingArrangerSignature,
	model.StatusPendingCEOSignature,
	model.StatusPendingIntroducerSignature,
	model.StatusPendingCPSignature,
}

// transitionAgreement performs a guarded status transition. The update is
// conditional on the current status so concurrent transitions cannot clobber
// each other.
func transitionAgreement(c echo.Context, fromStatuses []string, toStatus string) error {
	log := logger.FromContext(c)

	agreementID := c.Param("id")

	defer prometheus.TrackDBOperation("update")(time.Now())

	var agreement model.Agreement
	if err := database.GetDB().First(&agreement, "id = ?", agreementID).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "agreement not found"})
	}

	result := database.GetDB().Model(&model.Agreement{}).
		Where("id = ? AND status IN ?", agreementID, fromStatuses).
		Update("status", toStatus)
	if result.Error != nil {
		log.Error("Failed to transition agreement",
			zap.String("id", agreementID),
			zap.String("to_status", toStatus),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "agreement update failed"})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "agreement cannot move to " + toStatus + " from its current status",
		})
	}

	// Pending sessions die with the agreement; the rows stay for audit
	if toStatus == model.StatusCancelled || toStatus == model.StatusRejected {
		if err := signingManager.CancelPendingRequests(c.Request().Context(), agreementID); err != nil {
			log.Error("Failed to cancel pending signature requests",
				zap.String("id", agreementID),
				zap.Error(err))
		}
	}

	prometheus.RecordStatusTransition(agreement.DocumentType, toStatus)

	log.Info("Agreement status updated",
		zap.String("id", agreementID),
		zap.String("from_status", agreement.Status),
		zap.String("to_status", toStatus))

	agreement.Status = toStatus
	return c.JSON(http.StatusOK, agreement)
}
