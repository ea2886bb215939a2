package service

import (
	"context"
	"slices"
	"strings"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
)

// RiskClassifier decides whether a password-verified login needs human
// approval. Implementations must be pure and fast: no I/O, no blocking.
type RiskClassifier interface {
	Classify(ctx context.Context, user domain.User, req domain.RequestContext) domain.RiskAssessment
}

// NoRisk never flags anything.
type NoRisk struct{}

func (NoRisk) Classify(context.Context, domain.User, domain.RequestContext) domain.RiskAssessment {
	return domain.RiskAssessment{}
}

// WatchlistClassifier flags logins for listed usernames or from listed
// client IPs.
type WatchlistClassifier struct {
	Usernames []string
	IPs       []string
}

func (w WatchlistClassifier) Classify(_ context.Context, user domain.User, req domain.RequestContext) domain.RiskAssessment {
	if slices.Contains(w.Usernames, user.Username) {
		return domain.RiskAssessment{Suspicious: true, Reason: "watched_user"}
	}
	if req.IP != "" && slices.Contains(w.IPs, strings.TrimSpace(req.IP)) {
		return domain.RiskAssessment{Suspicious: true, Reason: "watched_ip"}
	}
	return domain.RiskAssessment{}
}

// ChainClassifier reports the first suspicious verdict among its members.
type ChainClassifier []RiskClassifier

func (c ChainClassifier) Classify(ctx context.Context, user domain.User, req domain.RequestContext) domain.RiskAssessment {
	for _, rc := range c {
		if v := rc.Classify(ctx, user, req); v.Suspicious {
			return v
		}
	}
	return domain.RiskAssessment{}
}
