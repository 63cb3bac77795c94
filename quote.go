package imap

import "strings"

// QuoteArg quotes s as an IMAP quoted-string argument, escaping backslash
// and double quote. A non-empty s already wrapped in "…" or (…) is returned
// as is, and so is one made only of letters, digits and the characters
// _!#$%&'*+,.:;<=>?^`|~- . The empty string becomes "".
func QuoteArg(s string) string {
	if s == "" {
		return `""`
	}
	if n := len(s); n >= 2 && (s[0] == '"' && s[n-1] == '"' || s[0] == '(' && s[n-1] == ')') {
		return s
	}
	if !needsQuoting(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}

func needsQuoting(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			continue
		}
		if strings.IndexByte("_!#$%&'*+,.:;<=>?^`|~-", c) < 0 {
			return true
		}
	}
	return false
}

// MailboxName quotes a mailbox name, which follows the same quoting rules
// as a regular argument. Names containing UTF-8 beyond ASCII must be
// encoded by the caller (modified UTF-7 for IMAP4rev1 servers, raw UTF-8
// under the UTF8=ACCEPT capability) before being passed here.
func MailboxName(name string) string {
	return QuoteArg(name)
}

// ParseFlags splits a parenthesized IMAP flag list, e.g. "(\\Seen \\Flagged)",
// into individual Flag values. An empty or malformed list yields nil.
func ParseFlags(s string) []Flag {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	if s == "" {
		return nil
	}
	fields := strings.Fields(s)
	flags := make([]Flag, len(fields))
	for i, f := range fields {
		flags[i] = Flag(f)
	}
	return flags
}

// JoinFlags renders flags as a parenthesized IMAP flag list.
func JoinFlags(flags []Flag) string {
	strs := make([]string, len(flags))
	for i, f := range flags {
		strs[i] = string(f)
	}
	return "(" + strings.Join(strs, " ") + ")"
}
