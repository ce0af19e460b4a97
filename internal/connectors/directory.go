// Package connectors resolves a user's links to external data
// providers and fetches normalized day-level data from them.
//
// A Connector is one configured link between a user and one provider
// for one data category. The directory only reads configuration — the
// core never persists connector credentials.
package connectors

import (
	"github.com/oaglazunova/HDT-agentic-interop-sub000/internal/gateerr"
)

// Category is a data category a connector can serve.
type Category string

const (
	CategoryWalk         Category = "walk"
	CategoryDiabetesGame Category = "diabetes-game"
)

// Connector identifies a user's link to one external provider.
type Connector struct {
	Application string `json:"application"`
	PlayerID    string `json:"external_player_id"`
	Token       string `json:"-"`
}

// Directory looks up the first configured connector for a user and
// category.
type Directory interface {
	// Lookup returns not_connected when the user has no connector for
	// the category, and missing_token when a connector exists but
	// carries no credential. When application is non-empty, only a
	// connector for that application matches.
	Lookup(userID int, cat Category, application string) (Connector, error)
}

// UserConnector is one configured link in the static directory.
type UserConnector struct {
	Category    Category
	Application string
	PlayerID    string
	Token       string
}

// StaticDirectory serves lookups from configuration loaded at startup.
type StaticDirectory map[int][]UserConnector

// Lookup implements Directory.
func (d StaticDirectory) Lookup(userID int, cat Category, application string) (Connector, error) {
	for _, uc := range d[userID] {
		if uc.Category != cat {
			continue
		}
		if application != "" && uc.Application != application {
			continue
		}
		if uc.Token == "" {
			return Connector{}, gateerr.New(gateerr.CodeMissingToken,
				"user %d has a %s connector for %s but no credential", userID, cat, uc.Application)
		}
		return Connector{Application: uc.Application, PlayerID: uc.PlayerID, Token: uc.Token}, nil
	}
	return Connector{}, gateerr.New(gateerr.CodeNotConnected,
		"user %d has no %s connector", userID, cat)
}
