package models

import "strings"

// CloudCredentials identifies a remote mirror.
type CloudCredentials struct {
	APIKey            string `json:"apiKey"`
	AuthDomain        string `json:"authDomain"`
	DatabaseURL       string `json:"databaseURL"`
	ProjectID         string `json:"projectId"`
	StorageBucket     string `json:"storageBucket"`
	MessagingSenderID string `json:"messagingSenderId"`
	AppID             string `json:"appId"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (c CloudCredentials) Trimmed() CloudCredentials {
	return CloudCredentials{
		APIKey:            strings.TrimSpace(c.APIKey),
		AuthDomain:        strings.TrimSpace(c.AuthDomain),
		DatabaseURL:       strings.TrimSpace(c.DatabaseURL),
		ProjectID:         strings.TrimSpace(c.ProjectID),
		StorageBucket:     strings.TrimSpace(c.StorageBucket),
		MessagingSenderID: strings.TrimSpace(c.MessagingSenderID),
		AppID:             strings.TrimSpace(c.AppID),
	}
}

// AppConfig is the process-wide settings singleton.
type AppConfig struct {
	AppName                string           `json:"appName"`
	CompanyName            string           `json:"companyName"`
	LogoURL                string           `json:"logoUrl,omitempty"`
	CloudEnabled           bool             `json:"cloudEnabled"`
	ScaleConnected         bool             `json:"scaleConnected"`
	PrinterConnected       bool             `json:"printerConnected"`
	DefaultFullCrateBatch  int              `json:"defaultFullCrateBatch"`
	DefaultEmptyCrateBatch int              `json:"defaultEmptyCrateBatch"`
	FirebaseConfig         CloudCredentials `json:"firebaseConfig"`
}

// DefaultAppConfig is seeded on first run.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		AppName:                "AVICONTROL PRO",
		CompanyName:            "AVÍCOLA BARSA S.A.C.",
		DefaultFullCrateBatch:  5,
		DefaultEmptyCrateBatch: 10,
	}
}

// DefaultUsers is the initial account list seeded on first run.
func DefaultUsers() []User {
	return []User{
		{ID: "1", Username: "admin", Password: "123", Name: "Administrador", Role: RoleAdmin},
	}
}
