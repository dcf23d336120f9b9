package session

import "strings"

// AllowList is the set of administrator emails. Entries are trimmed and
// matched case-insensitively.
type AllowList struct {
	emails []string
	set    map[string]struct{}
}

func NewAllowList(emails []string) AllowList {
	a := AllowList{set: make(map[string]struct{}, len(emails))}
	for _, e := range emails {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		key := strings.ToLower(e)
		if _, dup := a.set[key]; dup {
			continue
		}
		a.set[key] = struct{}{}
		a.emails = append(a.emails, e)
	}
	return a
}

// Contains reports whether email is an administrator.
func (a AllowList) Contains(email string) bool {
	if email == "" {
		return false
	}
	_, ok := a.set[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// Emails returns the configured addresses in their original order.
func (a AllowList) Emails() []string {
	return append([]string(nil), a.emails...)
}
