package daemon

import (
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/GoVPN-Admin/GoVPN-Admin/internal/config"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/db/models"
)

// seed guarantees the configured super admin exists even before the first
// directory sync has run, so the instance is never locked out.
func seed(cfg *config.Config, db *gorm.DB) {
	username := cfg.Directory.SuperAdminUsername
	if username == "" {
		return
	}

	var count int64
	db.Model(&models.Identity{}).Where("username = ?", username).Count(&count)

	if count == 0 {
		err := db.Create(
			&models.Identity{
				Username:  username,
				Active:    true,
				Staff:     true,
				Superuser: true,
			},
		).Error
		if err != nil {
			log.Error().Err(err).Str("username", username).Msg("failed to seed super admin")
			return
		}

		log.Info().Str("username", username).Msg("seeded super admin identity")
	}
}
