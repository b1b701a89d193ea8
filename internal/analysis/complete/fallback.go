package complete

import (
	"strings"

	"github.com/yungbote/persona-backend/internal/domain"
)

// DegradedMessage is the only text a client shows for a fallback analysis.
const DegradedMessage = "We couldn't fully complete your analysis. Showing available results."

// IsFallback reports whether a carries the static fallback markers.
func IsFallback(a *domain.PersonalityAnalysis) bool {
	if a == nil {
		return false
	}
	return a.CoreTraits.Primary == FallbackPrimary ||
		strings.HasPrefix(a.Overview, FallbackOverview)
}
