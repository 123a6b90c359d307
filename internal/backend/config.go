package backend

import (
	"fmt"

	"ledgerbook/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	c := Config{
		SessionType: SessionBackendType(appConfig.SessionBackend),
		PostgresDSN: appConfig.PostgresDSN,
		MySQLDSN:    appConfig.MySQLDSN,

		ExportType:          ExportBackendType(appConfig.ExportBackend),
		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
		GoogleSheetName:     appConfig.GoogleSheetName,
		GoogleCredentials:   appConfig.ServiceAccountJSON,
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.SessionType.IsValid() {
		return fmt.Errorf("invalid session backend: %s", c.SessionType)
	}
	switch c.SessionType {
	case PostgresSessions:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres DSN is required for postgres session backend")
		}
	case MySQLSessions:
		if c.MySQLDSN == "" {
			return fmt.Errorf("mysql DSN is required for mysql session backend")
		}
	}

	if !c.ExportType.IsValid() {
		return fmt.Errorf("invalid export backend: %s", c.ExportType)
	}
	if c.ExportType == SheetsExports {
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets export backend")
		}
		if c.GoogleCredentials == nil {
			return fmt.Errorf("Google credentials are required for sheets export backend")
		}
	}
	return nil
}

// GetSessionBackendStrings returns all valid session backend names
func GetSessionBackendStrings() []string {
	types := []SessionBackendType{MemorySessions, SQLiteSessions, PostgresSessions, MySQLSessions}
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
