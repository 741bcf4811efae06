// Command registry_seed creates a demo wallet and QR registry entries for local testing.
package main

import (
	"time"

	"qrpay/internal/config"
	"qrpay/internal/models"
	"qrpay/internal/repositories"
	"qrpay/internal/utils"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()

	payerID := config.GetEnv("SEED_PAYER_ID", "demo-payer")
	balance := models.Money(config.GetIntEnv("SEED_BALANCE", 100000))

	db, err := repositories.InitDB(cfg.DB)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer repositories.CloseDB(db)

	if err := repositories.AutoMigrate(db); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	fixed := models.Money(15000)
	err = db.Transaction(func(tx *gorm.DB) error {
		wallet := models.Wallet{UserID: payerID, Balance: balance, Currency: cfg.DefaultCurrency}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"balance", "currency", "updated_at"}),
		}).Create(&wallet).Error; err != nil {
			return err
		}

		entries := []models.QRRegistryEntry{
			{
				ID:           "qr-transport-demo",
				Kind:         models.RegistryKindTransport,
				OwnerID:      "driver-demo",
				RouteName:    "Blok M - Kota",
				VehicleType:  "angkot",
				PerRiderFare: 3500,
				Active:       true,
			},
			{
				ID:           "qr-merchant-demo",
				Kind:         models.RegistryKindMerchant,
				OwnerID:      "merchant-demo",
				BusinessName: "Warung Demo",
				FixedAmount:  &fixed,
				Active:       true,
			},
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&entries).Error
	})
	if err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	log.Infof("seeded wallet for %s with balance %s", payerID, balance)
	log.Info(`transport QR: {"type":"driver","driverId":"driver-demo","qrId":"qr-transport-demo"}`)
	log.Info(`merchant QR:  {"type":"merchant","merchantId":"merchant-demo"}`)

	if token, err := utils.GenerateToken(cfg.JWTSecret, payerID, 24*time.Hour); err == nil {
		log.Infof("bearer token: %s", token)
	} else {
		log.Warnf("could not sign demo token: %v", err)
	}
}
