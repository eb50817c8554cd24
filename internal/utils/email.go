package utils

import (
	"net/mail"
	"strings"
)

// NormalizeAddress reduces "Name <user@host>" and bare forms to a lower-cased
// user@host. The local part is kept as-is apart from case so plus suffixes
// and dashes survive. Returns "" when no address can be found.
func NormalizeAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if parsed, err := mail.ParseAddress(raw); err == nil {
		return strings.ToLower(parsed.Address)
	}

	if strings.Contains(raw, "<") && strings.Contains(raw, ">") {
		startIdx := strings.LastIndex(raw, "<") + 1
		endIdx := strings.LastIndex(raw, ">")
		if startIdx > 0 && endIdx > startIdx {
			raw = raw[startIdx:endIdx]
		}
	}

	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.Count(raw, "@") != 1 {
		return ""
	}
	return raw
}

// SplitAddress splits a normalized address into local part and domain.
func SplitAddress(address string) (string, string, bool) {
	at := strings.LastIndex(address, "@")
	if at <= 0 || at == len(address)-1 {
		return "", "", false
	}
	return address[:at], address[at+1:], true
}

// UniqueAddresses normalizes and deduplicates while keeping first-seen order.
func UniqueAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	unique := make([]string, 0, len(addresses))

	for _, raw := range addresses {
		address := NormalizeAddress(raw)
		if address == "" {
			continue
		}
		if _, exists := seen[address]; !exists {
			seen[address] = struct{}{}
			unique = append(unique, address)
		}
	}

	return unique
}
