package config

import (
	"os"
	"time"
)

type QRISConfig struct {
	MPMExpiry       time.Duration
	CPMExpiry       time.Duration
	CurrencyCode    string
	CountryCode     string
	MerchantCity    string
	InstitutionName string
	InstitutionBIC  string
	SettlementQueue string
	PayloadCacheTTL time.Duration
}

func LoadQRISConfig() *QRISConfig {
	return &QRISConfig{
		MPMExpiry:       getEnvAsDuration("QRIS_MPM_EXPIRY", 24*time.Hour),
		CPMExpiry:       getEnvAsDuration("QRIS_CPM_EXPIRY", 1*time.Minute),
		CurrencyCode:    getEnv("QRIS_CURRENCY_CODE", "360"),
		CountryCode:     getEnv("QRIS_COUNTRY_CODE", "ID"),
		MerchantCity:    getEnv("QRIS_MERCHANT_CITY", "Jakarta"),
		InstitutionName: getEnv("QRIS_INSTITUTION_NAME", "SakuBank"),
		InstitutionBIC:  getEnv("QRIS_INSTITUTION_BIC", "SAKUIDJA"),
		SettlementQueue: getEnv("QRIS_SETTLEMENT_QUEUE", "qris_settlement_queue"),
		PayloadCacheTTL: getEnvAsDuration("QRIS_PAYLOAD_CACHE_TTL", 24*time.Hour),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
