package config

import "time"

// AuthConfig holds token signing and password hashing settings.
type AuthConfig struct {
	JWTSecret  string        `mapstructure:"JWT_SECRET"  json:"-"           validate:"required,min=16"`
	TokenTTL   time.Duration `mapstructure:"TOKEN_TTL"   json:"token_ttl"   validate:"required,reasonable_duration"`
	RefreshTTL time.Duration `mapstructure:"REFRESH_TTL" json:"refresh_ttl" validate:"required"`
	BcryptCost int           `mapstructure:"BCRYPT_COST" json:"bcrypt_cost" validate:"required,min=4,max=31"`
}
