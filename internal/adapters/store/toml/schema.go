package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version int          `toml:"version"`
	Users   []userSchema `toml:"users"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported accounts schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

func (s *fileSchema) user(id string) *userSchema {
	for i := range s.Users {
		if s.Users[i].ID == id {
			return &s.Users[i]
		}
	}
	return nil
}

type userSchema struct {
	ID       string          `toml:"id"`
	Accounts []accountSchema `toml:"accounts"`
}

func (u *userSchema) account(id string) *accountSchema {
	for i := range u.Accounts {
		if u.Accounts[i].ID == id {
			return &u.Accounts[i]
		}
	}
	return nil
}

type accountSchema struct {
	ID        string          `toml:"id"`
	Name      string          `toml:"name"`
	Price     string          `toml:"price"`
	StartDate string          `toml:"start_date"`
	Sessions  []sessionSchema `toml:"sessions,omitempty"`
}

type sessionSchema struct {
	ID        string `toml:"id"`
	StartTime string `toml:"start_time"`
	EndTime   string `toml:"end_time"`
}
