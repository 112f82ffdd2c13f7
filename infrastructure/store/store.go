// Package store holds what the persistence backends share. The backends
// live in the memstore and pgstore subpackages and both implement
// ports.ConfigStore, ports.ParticipantStore and ports.AdminStore.
package store

import (
	"fmt"
	"strings"

	"github.com/ahrav/gavel-arena/internal/domain"
)

// Defaults seeds lazily created documents. Hashes are computed by the
// caller so that backends never see plaintext secrets.
type Defaults struct {
	// CompetitionSecretHash seeds CompetitionConfig.SecretHash.
	CompetitionSecretHash string

	// AdminSecretHash seeds the default admin account.
	AdminSecretHash string
}

// NormalizeUsername is the key under which participants are stored.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

// CheckNextVersion verifies the CAS contract: next must carry expected+1.
func CheckNextVersion(expected uint64, next domain.CompetitionConfig) error {
	if next.Version != expected+1 {
		return fmt.Errorf("%w: next version %d does not follow %d", domain.ErrVersionConflict, next.Version, expected)
	}
	return nil
}
