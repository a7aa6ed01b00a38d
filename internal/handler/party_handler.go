package handler

import (
	"net/http"
	"time"

	"agreement-service/internal/model"
	"agreement-service/pkg/database"
	"agreement-service/pkg/logger"
	"agreement-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type partyRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CreateArranger handles arranger creation
func CreateArranger(c echo.Context) error {
	req, err := bindParty(c)
	if req == nil {
		return err
	}
	arranger := model.Arranger{Name: req.Name, Email: req.Email, IsActive: true}
	return createParty(c, &arranger, "arranger")
}

// CreateIntroducer handles introducer creation
func CreateIntroducer(c echo.Context) error {
	req, err := bindParty(c)
	if req == nil {
		return err
	}
	introducer := model.Introducer{Name: req.Name, Email: req.Email, IsActive: true}
	return createParty(c, &introducer, "introducer")
}

// CreateCommercialPartner handles commercial partner creation
func CreateCommercialPartner(c echo.Context) error {
	req, err := bindParty(c)
	if req == nil {
		return err
	}
	partner := model.CommercialPartner{Name: req.Name, Email: req.Email, IsActive: true}
	return createParty(c, &partner, "commercial_partner")
}

// ListArrangers lists active arrangers
func ListArrangers(c echo.Context) error {
	var arrangers []model.Arranger
	return listParties(c, &arrangers, "arrangers")
}

// ListIntroducers lists active introducers
func ListIntroducers(c echo.Context) error {
	var introducers []model.Introducer
	return listParties(c, &introducers, "introducers")
}

// ListCommercialPartners lists active commercial partners
func ListCommercialPartners(c echo.Context) error {
	var partners []model.CommercialPartner
	return listParties(c, &partners, "commercial_partners")
}

// bindParty parses and validates the shared party payload. A nil request
// means the error response has already been written.
func bindParty(c echo.Context) (*partyRequest, error) {
	log := logger.FromContext(c)

	var req partyRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse party request", zap.Error(err))
		return nil, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return nil, c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	return &req, nil
}

func createParty(c echo.Context, entity interface{}, kind string) error {
	log := logger.FromContext(c)

	defer prometheus.TrackDBOperation("insert")(time.Now())

	if result := database.GetDB().Create(entity); result.Error != nil {
		log.Error("Failed to create party", zap.String("kind", kind), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": kind + " creation failed"})
	}

	log.Info("Party created", zap.String("kind", kind))
	return c.JSON(http.StatusCreated, entity)
}

func listParties(c echo.Context, out interface{}, key string) error {
	log := logger.FromContext(c)

	defer prometheus.TrackDBOperation("query")(time.Now())

	if err := database.GetDB().Where("is_active = ?", true).Find(out).Error; err != nil {
		log.Error("Failed to list parties", zap.String("kind", key), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list " + key})
	}

	return c.JSON(http.StatusOK, echo.Map{key: out})
}
