package routing

import (
	"context"
	"fmt"
	"strings"

	"github.com/opentracing/opentracing-go"

	"github.com/imsportal/filingstack/dto"
	"github.com/imsportal/filingstack/interfaces"
	apperrors "github.com/imsportal/filingstack/internal/errors"
	"github.com/imsportal/filingstack/internal/tracing"
	"github.com/imsportal/filingstack/internal/utils"
)

type addressRouter struct {
	matchers []Matcher
}

// NewAddressRouter builds the matcher chain from cfg. Unknown matcher names
// are a configuration error.
func NewAddressRouter(cfg *Config, instances interfaces.InstanceRepository, configs interfaces.EmailConfigurationRepository) (interfaces.AddressRouter, error) {
	matchers, err := buildMatchers(cfg, lookups{instances: instances, configs: configs})
	if err != nil {
		return nil, err
	}
	return &addressRouter{matchers: matchers}, nil
}

func buildMatchers(cfg *Config, l lookups) ([]Matcher, error) {
	baseDomain := strings.ToLower(strings.TrimSpace(cfg.BaseDomain))
	subdomain := &subdomainMatcher{lookups: l, baseDomain: baseDomain}

	names := cfg.Matchers
	if len(names) == 0 {
		names = []string{MatcherSubdomain, MatcherCustomDomain, MatcherPlusAddress, MatcherLegacy}
	}

	matchers := make([]Matcher, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case MatcherSubdomain:
			matchers = append(matchers, subdomain)
		case MatcherCustomDomain:
			matchers = append(matchers, &customDomainMatcher{
				lookups:      l,
				portalDomain: strings.ToLower(strings.TrimSpace(cfg.PortalDomain)),
			})
		case MatcherPlusAddress:
			matchers = append(matchers, &plusAddressMatcher{
				subdomain:  subdomain,
				baseUser:   strings.ToLower(strings.TrimSpace(cfg.PlusBaseUser)),
				baseDomain: baseDomain,
			})
		case MatcherLegacy:
			matchers = append(matchers, &legacyMatcher{lookups: l})
		default:
			return nil, fmt.Errorf("unknown routing matcher %q: %w", name, apperrors.ErrConfiguration)
		}
	}

	return matchers, nil
}

func (r *addressRouter) Route(ctx context.Context, addresses []string) (*dto.RoutingResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "addressRouter.Route")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("addresses", strings.Join(addresses, ","))

	for _, address := range utils.UniqueAddresses(addresses) {
		for _, matcher := range r.matchers {
			result, err := matcher.Match(ctx, address)
			if err != nil {
				tracing.TraceErr(span, err)
				return nil, fmt.Errorf("%s matcher failed for %s: %w: %v", matcher.Name(), address, apperrors.ErrRoutingFailure, err)
			}
			if result != nil {
				span.SetTag("result.instance", result.Instance.ID)
				span.SetTag("result.configuration", result.Configuration.ID)
				span.SetTag("result.mode", result.AddressingMode.String())
				return result, nil
			}
		}
	}

	span.SetTag("result.unroutable", true)
	return nil, nil
}
