package settings

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Service provides settings business logic: typed reads with defaults applied
// and validated writes.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new settings service
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "settings").Logger(),
	}
}

// GetAll returns the effective settings: stored values where present,
// defaults everywhere else.
func (s *Service) GetAll() (Settings, error) {
	rate, err := s.repo.GetFloat(KeyAnnualRiskFreeRate, SettingDefaults[KeyAnnualRiskFreeRate])
	if err != nil {
		return Settings{}, err
	}
	periods, err := s.repo.GetInt(KeyPeriodsPerYear, int(SettingDefaults[KeyPeriodsPerYear]))
	if err != nil {
		return Settings{}, err
	}
	confidence, err := s.repo.GetFloat(KeyDefaultConfidenceLevel, SettingDefaults[KeyDefaultConfidenceLevel])
	if err != nil {
		return Settings{}, err
	}
	lookback, err := s.repo.GetInt(KeyLookbackDays, int(SettingDefaults[KeyLookbackDays]))
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		AnnualRiskFreeRate:     rate,
		PeriodsPerYear:         periods,
		DefaultConfidenceLevel: confidence,
		LookbackDays:           lookback,
	}, nil
}

// Update validates and persists the provided fields, then returns the new
// effective settings. Nothing is written if any provided value is invalid.
func (s *Service) Update(req UpdateRequest) (Settings, error) {
	if err := validateUpdate(req); err != nil {
		return Settings{}, err
	}

	if req.AnnualRiskFreeRate != nil {
		if err := s.repo.SetFloat(KeyAnnualRiskFreeRate, *req.AnnualRiskFreeRate); err != nil {
			return Settings{}, err
		}
	}
	if req.PeriodsPerYear != nil {
		if err := s.repo.SetInt(KeyPeriodsPerYear, *req.PeriodsPerYear); err != nil {
			return Settings{}, err
		}
	}
	if req.DefaultConfidenceLevel != nil {
		if err := s.repo.SetFloat(KeyDefaultConfidenceLevel, *req.DefaultConfidenceLevel); err != nil {
			return Settings{}, err
		}
	}
	if req.LookbackDays != nil {
		if err := s.repo.SetInt(KeyLookbackDays, *req.LookbackDays); err != nil {
			return Settings{}, err
		}
	}

	s.log.Info().Msg("Settings updated")
	return s.GetAll()
}

// validateUpdate checks every provided field before any write happens.
func validateUpdate(req UpdateRequest) error {
	if req.AnnualRiskFreeRate != nil && *req.AnnualRiskFreeRate <= -1 {
		return fmt.Errorf("annual_risk_free_rate must be greater than -1, got %v", *req.AnnualRiskFreeRate)
	}
	if req.PeriodsPerYear != nil && *req.PeriodsPerYear <= 0 {
		return fmt.Errorf("periods_per_year must be positive, got %d", *req.PeriodsPerYear)
	}
	if req.DefaultConfidenceLevel != nil {
		if *req.DefaultConfidenceLevel <= 0 || *req.DefaultConfidenceLevel >= 1 {
			return fmt.Errorf("default_confidence_level must be in (0, 1), got %v", *req.DefaultConfidenceLevel)
		}
	}
	if req.LookbackDays != nil && *req.LookbackDays <= 0 {
		return fmt.Errorf("lookback_days must be positive, got %d", *req.LookbackDays)
	}
	return nil
}
