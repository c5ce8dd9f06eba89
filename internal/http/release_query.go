package httpx

import (
	"net/url"
	"strings"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/release"
)

const ticketParam = "ticket"

// parseReleaseQuery reads app=version pairs in the order they appear. The ticket
// parameter carries the ticket reference.
func parseReleaseQuery(rawQuery string) ([]release.Target, string, error) {
	var (
		targets []release.Target
		ticket  string
		seen    = map[string]struct{}{}
	)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, "", domain.InvalidArgument("malformed query parameter %q", rawKey)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, "", domain.InvalidArgument("malformed value of %q", key)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == ticketParam {
			ticket = strings.TrimSpace(value)
			continue
		}
		if key == "" {
			return nil, "", domain.InvalidArgument("empty app key in query")
		}
		if _, dup := seen[key]; dup {
			return nil, "", domain.InvalidArgument("app %s listed twice", key)
		}
		seen[key] = struct{}{}
		targets = append(targets, release.Target{AppKey: key, Version: value})
	}
	if len(targets) == 0 {
		return nil, "", domain.InvalidArgument("a release needs at least one app=version parameter")
	}
	return targets, ticket, nil
}
