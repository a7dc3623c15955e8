package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/askatlas/navigation-assistant/internal/model"
	"github.com/askatlas/navigation-assistant/pkg/logger"
)

// Acknowledgement shown after settings are submitted.
const (
	SettingsSavedTitle       = "Settings Saved!"
	SettingsSavedDescription = "Your home and work addresses have been updated."
)

// AccountService serves the account page. Settings are acknowledged but not
// stored.
type AccountService struct {
	logger *logger.Logger
}

// NewAccountService creates an account service.
func NewAccountService(log *logger.Logger) *AccountService {
	return &AccountService{logger: log}
}

// Get returns the profile for user with empty settings.
func (s *AccountService) Get(ctx context.Context, user model.User) model.AccountResponse {
	return model.AccountResponse{User: user}
}

// SaveSettings acknowledges a settings submission.
func (s *AccountService) SaveSettings(ctx context.Context, user model.User, settings model.AccountSettings) model.SettingsSavedResponse {
	s.logger.Info("account settings submitted",
		zap.String("user_id", user.ID),
		zap.Bool("home_set", settings.HomeAddress != ""),
		zap.Bool("work_set", settings.WorkAddress != ""),
	)
	return model.SettingsSavedResponse{
		Title:       SettingsSavedTitle,
		Description: SettingsSavedDescription,
		Settings:    settings,
	}
}
