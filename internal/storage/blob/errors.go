package blob

import (
	"fmt"
	"strings"

	"github.com/karsell/intake/internal/shared"
)

// ClassifyError maps raw object-store failures onto the service error
// taxonomy. The store does not expose structured codes consistently
// across S3-compatible backends, so classification goes by message
// content: bucket/404 problems are configuration, permission/403 are
// auth, everything else stays generic.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "bucket") || strings.Contains(msg, "404") || strings.Contains(msg, "nosuchbucket"):
		return fmt.Errorf("%w: %v", shared.ErrorBucketMissing, err)
	case strings.Contains(msg, "permission") || strings.Contains(msg, "403") || strings.Contains(msg, "accessdenied"):
		return fmt.Errorf("%w: %v", shared.ErrorStorageForbidden, err)
	default:
		return fmt.Errorf("upload failed: %w", err)
	}
}
