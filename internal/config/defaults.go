package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"server": map[string]interface{}{
			"port":         "8080",
			"mode":         "debug",
			"cors_origins": []string{"http://localhost:3000"},
		},
		"admin": map[string]interface{}{
			"api_key":      "",
			"jwt_secret":   "",
			"token_issuer": "lms",
		},
		"database": map[string]interface{}{
			"driver":      "postgres",
			"url":         "",
			"host":        "",
			"user":        "",
			"password":    "",
			"name":        "",
			"port":        "5432",
			"ssl_mode":    "disable", // Default to disable for local development
			"sqlite_path": "workshops.db",
			"max_retries": 5,
			"retry_delay": "5s",
		},
		"email": map[string]interface{}{
			"api_key":    "",
			"host":       "https://api.sendgrid.com",
			"from_email": "",
			"from_name":  "LMS Platform",
		},
		"zoom": map[string]interface{}{
			"account_id":    "",
			"client_id":     "",
			"client_secret": "",
			"api_base":      "https://api.zoom.us/v2",
			"token_url":     "https://zoom.us/oauth/token",
		},
		"reminders": map[string]interface{}{
			"enabled":      true,
			"interval":     "15m",
			"send_timeout": "10s",
		},
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}
