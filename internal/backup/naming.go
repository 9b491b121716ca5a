package backup

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mrgoonie/savedb/internal/platform"
)

const artifactTimeLayout = "20060102T150405"

// DeriveName produces a stable backup name from a connection URL when the
// request carries no explicit one. The database name wins, then the host.
func DeriveName(connectionURL string) string {
	u, err := url.Parse(connectionURL)
	if err == nil {
		if db := platform.SanitizeName(strings.TrimPrefix(u.Path, "/")); db != "" {
			return db
		}
		if host := platform.SanitizeName(u.Hostname()); host != "" {
			return host
		}
	}
	return "database"
}

// ArtifactName is the on-disk and object-store filename for one run:
// backup-<UTC timestamp>-<sanitized name>.dump.
func ArtifactName(now time.Time, name string) string {
	clean := platform.SanitizeName(name)
	if clean == "" {
		clean = "database"
	}
	return fmt.Sprintf("backup-%s-%s.dump", now.UTC().Format(artifactTimeLayout), clean)
}
