package validator

import (
	"net"
	"net/url"
	"strings"

	"github.com/hunabku/shorturl/internal/config"
	"github.com/hunabku/shorturl/internal/encoder"
	"github.com/hunabku/shorturl/internal/errors"
)

// maxCodeLength bounds accepted codes; EncodePair output for any
// realistic (bucket, sequence) is far shorter.
const maxCodeLength = 32

// URLValidator validates URL inputs
type URLValidator struct {
	maxLength       int
	allowedSchemes  []string
	blockedDomains  []string
	blockPrivateIPs bool
}

// NewURLValidator creates a validator with default settings
func NewURLValidator() *URLValidator {
	return &URLValidator{
		maxLength:       2048,
		allowedSchemes:  []string{"http", "https"},
		blockedDomains:  []string{},
		blockPrivateIPs: true,
	}
}

// New builds a validator from cfg, keeping defaults for unset fields
func New(cfg config.ValidatorConfig) *URLValidator {
	v := NewURLValidator().WithBlockedDomains(cfg.BlockedDomains...)
	if cfg.MaxURLLength > 0 {
		v.WithMaxLength(cfg.MaxURLLength)
	}
	if cfg.AllowPrivateIPs {
		v.WithAllowPrivateIPs()
	}
	return v
}

// ValidateURL validates a URL string
func (v *URLValidator) ValidateURL(rawURL string) *errors.AppError {
	// Check if empty
	if strings.TrimSpace(rawURL) == "" {
		return errors.MissingField("url")
	}

	// Check length
	if len(rawURL) > v.maxLength {
		return errors.InvalidURL("URL exceeds maximum length")
	}

	// Parse URL
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return errors.InvalidURL("URL could not be parsed")
	}

	// Check scheme
	if !v.isAllowedScheme(parsedURL.Scheme) {
		return errors.InvalidURL("URL must use http or https scheme")
	}

	// Check host exists
	host := parsedURL.Hostname()
	if host == "" {
		return errors.InvalidURL("URL must have a valid host")
	}

	// Check for private/local IPs
	if v.blockPrivateIPs && v.isPrivateHost(host) {
		return errors.InvalidURL("URLs pointing to private IPs are not allowed")
	}

	// Anything else needs a dotted domain name, e.g. "example.org"
	if !v.isPrivateHost(host) && net.ParseIP(host) == nil && !strings.Contains(strings.Trim(host, "."), ".") {
		return errors.InvalidURL("URL host must be a domain name or IP address")
	}

	// Check for blocked domains
	if v.isBlockedDomain(host) {
		return errors.InvalidURL("This domain is not allowed")
	}

	return nil
}

// ValidateShortCode reports whether code can have been issued: a non-empty
// base62 string of bounded length
func (v *URLValidator) ValidateShortCode(code string) bool {
	return len(code) <= maxCodeLength && encoder.Valid(code)
}

// ============================================================
// HELPER METHODS
// ============================================================

func (v *URLValidator) isAllowedScheme(scheme string) bool {
	scheme = strings.ToLower(scheme)
	for _, allowed := range v.allowedSchemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

func (v *URLValidator) isBlockedDomain(host string) bool {
	host = strings.ToLower(host)
	for _, blocked := range v.blockedDomains {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}

func (v *URLValidator) isPrivateHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast()
}

// ============================================================
// CONFIGURATION METHODS
// ============================================================

// WithMaxLength sets maximum URL length
func (v *URLValidator) WithMaxLength(length int) *URLValidator {
	v.maxLength = length
	return v
}

// WithBlockedDomains adds domains to block list
func (v *URLValidator) WithBlockedDomains(domains ...string) *URLValidator {
	for _, d := range domains {
		v.blockedDomains = append(v.blockedDomains, strings.ToLower(d))
	}
	return v
}

// WithAllowPrivateIPs allows private IP addresses
func (v *URLValidator) WithAllowPrivateIPs() *URLValidator {
	v.blockPrivateIPs = false
	return v
}
