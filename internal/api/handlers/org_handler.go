package handlers

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"praxis/internal/engine/metering"
	"praxis/internal/pkg/errors"
	"praxis/internal/pkg/validator"
	"praxis/internal/platform/auth"
	"praxis/internal/platform/database"
	"praxis/internal/platform/models"
	"praxis/internal/platform/repositories"
)

type OrgHandler struct {
	db       *sql.DB
	orgRepo  *repositories.OrganizationRepository
	userRepo *repositories.UserRepository
	metering *metering.Service
	tokenSvc *auth.TokenService
}

func NewOrgHandler(db *sql.DB, orgRepo *repositories.OrganizationRepository, userRepo *repositories.UserRepository, meter *metering.Service, tokenSvc *auth.TokenService) *OrgHandler {
	return &OrgHandler{
		db:       db,
		orgRepo:  orgRepo,
		userRepo: userRepo,
		metering: meter,
		tokenSvc: tokenSvc,
	}
}

func (h *OrgHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tenantFrom(r).Organization)
}

type CreateOrgRequest struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type CreateOrgResponse struct {
	Organization *models.Organization `json:"organization"`
	User         *models.User         `json:"user"`
	AccessToken  string               `json:"access_token"`
	RefreshToken string               `json:"refresh_token"`
}

// Create signs up a new organization with its owner. The organization
// starts on the implicit trial; no subscription record is written.
func (h *OrgHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrgRequest
	if !decode(w, r, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))

	if strings.TrimSpace(req.Name) == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "name is required", nil)
		return
	}
	for _, err := range []error{validator.Slug(req.Slug), validator.Email(req.Email), validator.Password(req.Password)} {
		if err != nil {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
			return
		}
	}

	ctx := r.Context()
	if existing, err := h.orgRepo.GetBySlug(ctx, req.Slug); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	} else if existing != nil {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Slug already taken", nil)
		return
	}
	if existing, err := h.userRepo.GetByEmail(ctx, req.Email); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	} else if existing != nil {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "User already exists", nil)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to hash password", nil)
		return
	}

	now := time.Now().UTC().Truncate(time.Second)
	org := &models.Organization{
		ID:        "org_" + uuid.NewString(),
		Slug:      req.Slug,
		Name:      strings.TrimSpace(req.Name),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	user := &models.User{
		ID:             "usr_" + uuid.NewString(),
		OrganizationID: org.ID,
		Email:          req.Email,
		PasswordHash:   string(hashedPassword),
		FullName:       req.FullName,
		Role:           models.RoleOwner,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = database.InTx(ctx, h.db, func(tx *sql.Tx) error {
		if err := h.orgRepo.CreateTx(ctx, tx, org); err != nil {
			return err
		}
		if err := h.userRepo.CreateTx(ctx, tx, user); err != nil {
			return err
		}
		return h.metering.Initialize(ctx, tx, org.ID, 1)
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Organization or user already exists", nil)
			return
		}
		log.Error().Err(err).Str("slug", req.Slug).Msg("signup failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create organization", nil)
		return
	}
	log.Info().Str("org_id", org.ID).Str("slug", org.Slug).Msg("organization created")

	accessToken, refreshToken, err := issueTokens(h.tokenSvc, user)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to generate token", nil)
		return
	}

	writeJSON(w, http.StatusCreated, CreateOrgResponse{
		Organization: org,
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

func issueTokens(tokenSvc *auth.TokenService, user *models.User) (string, string, error) {
	accessToken, err := tokenSvc.GenerateAccessToken(user.ID, user.OrganizationID, user.Role, user.Email)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := tokenSvc.GenerateRefreshToken(user.ID)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

