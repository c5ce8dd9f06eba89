package httpx

import (
	"fmt"
	"strings"
)

// TicketRewriter turns ticket references of the form proto://rest into browsable URLs.
type TicketRewriter struct {
	protocols map[string]string
}

// ParseTicketProtocols parses "proto=prefix" pairs separated by commas.
func ParseTicketProtocols(spec string) (TicketRewriter, error) {
	protocols := map[string]string{}
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, prefix, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		prefix = strings.TrimSpace(prefix)
		if !ok || name == "" || prefix == "" {
			return TicketRewriter{}, fmt.Errorf("invalid ticket protocol %q, want name=prefix", pair)
		}
		protocols[name] = prefix
	}
	return TicketRewriter{protocols: protocols}, nil
}

// Rewrite replaces a configured protocol prefix of ref. Other references pass through.
func (t TicketRewriter) Rewrite(ref string) string {
	name, rest, ok := strings.Cut(ref, "://")
	if !ok {
		return ref
	}
	prefix, ok := t.protocols[name]
	if !ok {
		return ref
	}
	return prefix + rest
}
