package handler

import (
	"errors"
	"net/http"

	"agreement-service/internal/signing"
	"agreement-service/pkg/jwtutil"
	"agreement-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var signingManager *signing.Manager

// InitSigning wires the signing session manager into the handler package
func InitSigning(m *signing.Manager) {
	signingManager = m
}

// InitiateSigning handles POST /agreements/:id/sign: it returns a usable
// signing session for the acting user, reusing a live one when it exists.
func InitiateSigning(c echo.Context) error {
	log := logger.FromContext(c)

	claims, ok := c.Get("user").(*jwtutil.UserClaims)
	if !ok {
		log.Error("Failed to get user claims from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	agreementID := c.Param("id")
	if agreementID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "agreement id is required"})
	}

	actor := signing.Actor{
		UserID:   claims.UserID,
		Email:    claims.Email,
		FullName: claims.FullName,
	}

	result, err := signingManager.InitiateSigning(c.Request().Context(), agreementID, actor)
	if err != nil {
		log.Warn("Initiate signing denied",
			zap.String("agreement_id", agreementID),
			zap.Uint("user_id", claims.UserID),
			zap.Error(err))
		return signingError(c, err)
	}

	log.Info("Signing session issued",
		zap.String("agreement_id", agreementID),
		zap.String("signer_type", result.SignerType),
		zap.Uint("user_id", claims.UserID))

	return c.JSON(http.StatusOK, result)
}

// GetSigningSession handles GET /sign/:token for the signing UI. The token is
// the only credential.
func GetSigningSession(c echo.Context) error {
	view, err := signingManager.GetSession(c.Request().Context(), c.Param("token"))
	if err != nil {
		return signingError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// CompleteSigning handles POST /sign/:token/complete: it captures the
// signature image and advances the agreement to its next status.
func CompleteSigning(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		SignatureImage string `json:"signature_image"`
		SignedPDFURL   string `json:"signed_pdf_url"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse signing completion request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	result, err := signingManager.CompleteSigning(c.Request().Context(), c.Param("token"), req.SignatureImage, req.SignedPDFURL)
	if err != nil {
		return signingError(c, err)
	}

	log.Info("Signature completed",
		zap.String("agreement_id", result.AgreementID),
		zap.String("position", result.SignaturePosition),
		zap.String("agreement_status", result.AgreementStatus))

	return c.JSON(http.StatusOK, result)
}

// signingError maps engine error codes to HTTP responses. Store failures stay
// generic; the details were already logged where they happened.
func signingError(c echo.Context, err error) error {
	message := "internal error"
	var serr *signing.Error
	if errors.As(err, &serr) {
		message = serr.Message
	}

	var status int
	switch signing.CodeOf(err) {
	case signing.CodeNotFound:
		status = http.StatusNotFound
	case signing.CodeForbidden:
		status = http.StatusForbidden
	case signing.CodeInvalidState, signing.CodeSessionInconsistency:
		status = http.StatusBadRequest
	case signing.CodeConflict:
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
		message = "internal error"
	}

	return c.JSON(status, echo.Map{"error": message})
}
