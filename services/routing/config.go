package routing

const (
	MatcherSubdomain    = "subdomain"
	MatcherCustomDomain = "custom-domain"
	MatcherPlusAddress  = "plus-address"
	MatcherLegacy       = "legacy"
)

type Config struct {
	// Domain under which instances get <prefix>@<subdomain>.<base-domain>
	// and plus addresses <base-user>+<suffix>@<base-domain>.
	BaseDomain   string `env:"EMAIL_BASE_DOMAIN" envDefault:"ims-portal.com"`
	PortalDomain string `env:"EMAIL_PORTAL_DOMAIN" envDefault:""`
	PlusBaseUser string `env:"EMAIL_PLUS_BASE_USER" envDefault:"documents"`
	// Matchers run in this order.
	Matchers []string `env:"ROUTING_MATCHERS" envSeparator:"," envDefault:"subdomain,custom-domain,plus-address,legacy"`
}
