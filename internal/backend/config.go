package backend

import (
	"errors"
	"fmt"
	"strings"

	"steady/internal/config"
)

// FromAppConfig selects the journal backend named by DATA_BACKEND.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("backend: nil app config")
	}
	c := Config{
		Type:         BackendType(strings.ToLower(strings.TrimSpace(appConfig.DataBackend))),
		SQLiteDBPath: appConfig.SQLiteDBPath,
		SeedCSVPath:  appConfig.SeedCSVPath,
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if !c.Type.IsValid() {
		errs = append(errs, fmt.Errorf("unknown backend %q: want one of %s", c.Type, strings.Join(typeNames(), ", ")))
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		errs = append(errs, errors.New("sqlite backend needs SQLITE_DB_PATH"))
	}
	if c.Type == SQLiteBackend && c.SeedCSVPath != "" {
		errs = append(errs, errors.New("SEED_CSV only applies to the memory backend; import into sqlite with steady-import"))
	}
	return errors.Join(errs...)
}

func typeNames() []string {
	out := make([]string, len(backendTypes))
	for i, t := range backendTypes {
		out[i] = string(t)
	}
	return out
}
