package config

// AIConfig holds settings for the item summary generator.
type AIConfig struct {
	Enabled   bool   `mapstructure:"ENABLED"    json:"enabled"`
	APIKey    string `mapstructure:"API_KEY"    json:"-"          validate:"required_if=Enabled true"`
	Model     string `mapstructure:"MODEL"      json:"model"      validate:"required_if=Enabled true"`
	MaxTokens int    `mapstructure:"MAX_TOKENS" json:"max_tokens" validate:"omitempty,min=1,max=32768"`
}
