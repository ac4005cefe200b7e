package fingerprint

import (
	"regexp"
	"strings"
)

const uuidPattern = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`

var (
	uuidRe   = regexp.MustCompile(uuidPattern)
	intRe    = regexp.MustCompile(`\b\d+\b`)
	emailRe  = regexp.MustCompile(`[\w.%+-]+@[\w.-]+\.[A-Za-z]{2,}`)
	urlRe    = regexp.MustCompile(`\bhttps?://\S+`)
	pathRe   = regexp.MustCompile(`(?:/[\w<>.+~-]+)+/?`)
	quotedRe = regexp.MustCompile(`"[^"]*"|'[^']*'`)
	spaceRe  = regexp.MustCompile(`\s+`)

	sqlQuotedRe = regexp.MustCompile(`'[^']*'|"[^"]*"`)
	sqlNumberRe = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
	sqlMarkerRe = regexp.MustCompile(`[$:@]\w+`)

	subjectIDRe = regexp.MustCompile(`:(\d+|` + uuidPattern + `)$`)
	bareIDRe    = regexp.MustCompile(`^(\d+|` + uuidPattern + `)$`)
)

// NormalizeMessage rewrites the volatile parts of a free-text message
// with placeholder tokens so that repeated occurrences of the same
// logical message normalize to the same string. Replacement order is
// significant: UUIDs go before bare integers so UUID segments are not
// partially consumed by the integer rule, and URLs go before paths so
// a URL's path component is not rewritten on its own.
func NormalizeMessage(msg string) string {
	s := uuidRe.ReplaceAllString(msg, "<uuid>")
	s = intRe.ReplaceAllString(s, "<int>")
	s = emailRe.ReplaceAllString(s, "<email>")
	s = urlRe.ReplaceAllString(s, "<url>")
	s = pathRe.ReplaceAllString(s, "<path>")
	s = quotedRe.ReplaceAllString(s, "<quoted>")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// NormalizeQuery reduces a SQL text to its shape: whitespace collapsed,
// quoted and numeric literals and parameter markers replaced with "?",
// lowercased. Numeric replacement runs before marker replacement, so a
// positional marker like $1 normalizes to "$?" rather than "?"; $1 and
// $2 still normalize identically, which is what grouping needs.
func NormalizeQuery(sql string) string {
	s := spaceRe.ReplaceAllString(sql, " ")
	s = sqlQuotedRe.ReplaceAllString(s, "?")
	s = sqlNumberRe.ReplaceAllString(s, "?")
	s = sqlMarkerRe.ReplaceAllString(s, "?")
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeSubject rewrites the trailing identifier of an authorization
// subject ("Post:42", "Doc:550e8400-...") to ":[ID]", preserving the
// type prefix. A subject that is nothing but an identifier becomes
// "[ID]".
func NormalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	if bareIDRe.MatchString(s) {
		return "[ID]"
	}
	return subjectIDRe.ReplaceAllString(s, ":[ID]")
}
