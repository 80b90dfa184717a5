package config

// GeneralConfig holds service identity settings.
type GeneralConfig struct {
	Name        string `mapstructure:"NAME"        json:"name"        validate:"required,min=1,max=30"`
	Description string `mapstructure:"DESCRIPTION" json:"description" validate:"omitempty,max=200"`
	Contact     string `mapstructure:"CONTACT"     json:"contact"     validate:"omitempty,email"`
}
