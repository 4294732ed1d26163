package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
)

// CheckCompatibility checks whether a tradlet built against tradletVersion can run on a host
// at hostVersion.
//
// Compatibility Rules:
//   - If either version is "main" (development build), the check is skipped
//   - An empty tradlet version means the tradlet declared nothing and is accepted
//   - Major and minor versions must match exactly
//   - Patch versions can differ (e.g., 1.2.0 is compatible with 1.2.5)
func CheckCompatibility(hostVersion, tradletVersion string) error {
	hostVersion = strings.TrimPrefix(hostVersion, "v")
	tradletVersion = strings.TrimPrefix(tradletVersion, "v")

	if hostVersion == "main" || tradletVersion == "main" || tradletVersion == "" {
		return nil
	}

	hostSemver, err := semver.NewVersion(hostVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid host version '%s'", hostVersion)
	}

	tradletSemver, err := semver.NewVersion(tradletVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid tradlet version '%s'", tradletVersion)
	}

	if hostSemver.Major() != tradletSemver.Major() {
		return errors.Newf(errors.ErrCodeVersionMismatch, "major version mismatch: host is %d.x.x but tradlet requires %d.x.x",
			hostSemver.Major(), tradletSemver.Major())
	}

	if hostSemver.Minor() != tradletSemver.Minor() {
		return errors.Newf(errors.ErrCodeVersionMismatch, "minor version mismatch: host is %d.%d.x but tradlet requires %d.%d.x",
			hostSemver.Major(), hostSemver.Minor(),
			tradletSemver.Major(), tradletSemver.Minor())
	}

	return nil
}
