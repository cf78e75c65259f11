package resolver

import (
	"regexp"
	"strings"
)

// TokenKind says which reference pattern matched.
type TokenKind string

const (
	TokenNone        TokenKind = ""
	TokenBuyer       TokenKind = "buyer"
	TokenStoryteller TokenKind = "storyteller"
	TokenBare        TokenKind = "bare"
)

const uuidPattern = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`

var (
	buyerTokenRe       = regexp.MustCompile(`(?i)\bby_(` + uuidPattern + `)`)
	storytellerTokenRe = regexp.MustCompile(`(?i)\bst_(` + uuidPattern + `)`)
	bareTokenRe        = regexp.MustCompile(`(` + uuidPattern + `)`)
)

// Token is a reference extracted from message text.
type Token struct {
	Kind    TokenKind
	TrialID string
}

// ExtractToken checks the patterns in priority order (buyer, storyteller, bare)
// and returns the first match only.
func ExtractToken(text string) Token {
	if text == "" {
		return Token{}
	}
	if m := buyerTokenRe.FindStringSubmatch(text); m != nil {
		return Token{Kind: TokenBuyer, TrialID: strings.ToLower(m[1])}
	}
	if m := storytellerTokenRe.FindStringSubmatch(text); m != nil {
		return Token{Kind: TokenStoryteller, TrialID: strings.ToLower(m[1])}
	}
	if m := bareTokenRe.FindStringSubmatch(text); m != nil {
		return Token{Kind: TokenBare, TrialID: strings.ToLower(m[1])}
	}
	return Token{}
}
