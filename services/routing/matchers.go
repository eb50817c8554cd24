package routing

import (
	"context"
	"strings"

	"github.com/imsportal/filingstack/dto"
	"github.com/imsportal/filingstack/interfaces"
	"github.com/imsportal/filingstack/internal/enum"
	"github.com/imsportal/filingstack/internal/models"
	"github.com/imsportal/filingstack/internal/utils"
)

// Matcher resolves one normalized address under a single addressing scheme.
// A nil result with a nil error means the scheme does not apply.
type Matcher interface {
	Name() string
	Match(ctx context.Context, address string) (*dto.RoutingResult, error)
}

type lookups struct {
	instances interfaces.InstanceRepository
	configs   interfaces.EmailConfigurationRepository
}

// resolvePrefix finds the configuration for prefix on an active instance.
// An empty prefix falls back to the instance default.
func (l lookups) resolvePrefix(ctx context.Context, instance *models.Instance, prefix string) (*models.EmailConfiguration, error) {
	if !instance.IsEmailActive() {
		return nil, nil
	}

	var (
		config *models.EmailConfiguration
		err    error
	)
	if prefix == "" {
		config, err = l.configs.GetDefaultForInstance(ctx, instance.ID)
	} else {
		config, err = l.configs.GetByInstanceAndPrefix(ctx, instance.ID, prefix)
	}
	if err != nil {
		return nil, err
	}
	if config == nil || !config.IsActive {
		return nil, nil
	}
	return config, nil
}

// resolveAddress finds a configuration by its stored address and loads its
// instance. Inactive instances or configurations do not match.
func (l lookups) resolveAddress(ctx context.Context, address string) (*models.EmailConfiguration, *models.Instance, error) {
	config, err := l.configs.GetByEmailAddress(ctx, address)
	if err != nil {
		return nil, nil, err
	}
	if config == nil || !config.IsActive {
		return nil, nil, nil
	}

	instance := config.Instance
	if instance == nil {
		instance, err = l.instances.GetByID(ctx, config.InstanceID)
		if err != nil {
			return nil, nil, err
		}
	}
	if !instance.IsEmailActive() {
		return nil, nil, nil
	}
	return config, instance, nil
}

// subdomainLabel returns the single label in front of base, or "".
func subdomainLabel(domain, base string) string {
	if base == "" || !strings.HasSuffix(domain, "."+base) {
		return ""
	}
	label := strings.TrimSuffix(domain, "."+base)
	if label == "" || strings.Contains(label, ".") {
		return ""
	}
	return label
}

type subdomainMatcher struct {
	lookups
	baseDomain string
}

func (m *subdomainMatcher) Name() string { return MatcherSubdomain }

func (m *subdomainMatcher) Match(ctx context.Context, address string) (*dto.RoutingResult, error) {
	local, domain, ok := utils.SplitAddress(address)
	if !ok {
		return nil, nil
	}
	subdomain := subdomainLabel(domain, m.baseDomain)
	if subdomain == "" {
		return nil, nil
	}
	return m.matchSubdomain(ctx, address, subdomain, local, enum.AddressingSubdomain)
}

func (m *subdomainMatcher) matchSubdomain(ctx context.Context, address, subdomain, prefix string, mode enum.AddressingMode) (*dto.RoutingResult, error) {
	instance, err := m.instances.GetBySubdomain(ctx, subdomain)
	if err != nil || instance == nil {
		return nil, err
	}
	config, err := m.resolvePrefix(ctx, instance, prefix)
	if err != nil || config == nil {
		return nil, err
	}
	return &dto.RoutingResult{
		Instance:         instance,
		Configuration:    config,
		AddressingMode:   mode,
		MatchedAddress:   address,
		MatchedPrefix:    prefix,
		MatchedSubdomain: subdomain,
	}, nil
}

type customDomainMatcher struct {
	lookups
	portalDomain string
}

func (m *customDomainMatcher) Name() string { return MatcherCustomDomain }

func (m *customDomainMatcher) Match(ctx context.Context, address string) (*dto.RoutingResult, error) {
	local, domain, ok := utils.SplitAddress(address)
	if !ok {
		return nil, nil
	}
	label := subdomainLabel(domain, m.portalDomain)
	if label == "" {
		return nil, nil
	}

	instance, err := m.instances.GetByCustomDomain(ctx, label)
	if err != nil || instance == nil {
		return nil, err
	}
	config, err := m.resolvePrefix(ctx, instance, local)
	if err != nil || config == nil {
		return nil, err
	}
	return &dto.RoutingResult{
		Instance:         instance,
		Configuration:    config,
		AddressingMode:   enum.AddressingCustomDomain,
		MatchedAddress:   address,
		MatchedPrefix:    local,
		MatchedSubdomain: label,
	}, nil
}

type plusAddressMatcher struct {
	subdomain  *subdomainMatcher
	baseUser   string
	baseDomain string
}

func (m *plusAddressMatcher) Name() string { return MatcherPlusAddress }

func (m *plusAddressMatcher) Match(ctx context.Context, address string) (*dto.RoutingResult, error) {
	local, domain, ok := utils.SplitAddress(address)
	if !ok || domain != m.baseDomain {
		return nil, nil
	}
	suffix, found := strings.CutPrefix(local, m.baseUser+"+")
	if !found || suffix == "" {
		return nil, nil
	}

	// <subdomain>-<prefix>, every split point left to right
	for i := 0; i < len(suffix); i++ {
		if suffix[i] != '-' || i == 0 || i == len(suffix)-1 {
			continue
		}
		result, err := m.subdomain.matchSubdomain(ctx, address, suffix[:i], suffix[i+1:], enum.AddressingPlusAddressLegacy)
		if err != nil || result != nil {
			return result, err
		}
	}

	config, instance, err := m.subdomain.resolveAddress(ctx, address)
	if err != nil || config == nil {
		return nil, err
	}
	return &dto.RoutingResult{
		Instance:       instance,
		Configuration:  config,
		AddressingMode: enum.AddressingPlusAddressCustom,
		MatchedAddress: address,
		MatchedPrefix:  suffix,
	}, nil
}

type legacyMatcher struct {
	lookups
}

func (m *legacyMatcher) Name() string { return MatcherLegacy }

func (m *legacyMatcher) Match(ctx context.Context, address string) (*dto.RoutingResult, error) {
	config, instance, err := m.resolveAddress(ctx, address)
	if err != nil || config == nil {
		return nil, err
	}
	local, _, _ := utils.SplitAddress(address)
	return &dto.RoutingResult{
		Instance:       instance,
		Configuration:  config,
		AddressingMode: enum.AddressingLegacy,
		MatchedAddress: address,
		MatchedPrefix:  local,
	}, nil
}
