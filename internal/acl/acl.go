package acl

import "strings"

// Policy decides how membership of an access control list is interpreted.
type Policy int

const (
	// Block denies listed candidates and permits everything else.
	Block Policy = iota
	// Allow permits listed candidates and denies everything else.
	Allow
)

func (p Policy) String() string {
	if p == Allow {
		return "allow"
	}
	return "block"
}

// List is a set of controlled values. Address lists match
// case-insensitively, media-type lists match exactly.
type List struct {
	fold    bool
	members map[string]struct{}
}

// NewAddressList returns a list with case-insensitive membership, suitable
// for email addresses.
func NewAddressList(members ...string) *List {
	l := &List{fold: true, members: map[string]struct{}{}}
	for _, m := range members {
		l.Add(m)
	}
	return l
}

// NewMediaTypeList returns a list with exact membership, suitable for MIME
// media-type strings.
func NewMediaTypeList(members ...string) *List {
	l := &List{members: map[string]struct{}{}}
	for _, m := range members {
		l.Add(m)
	}
	return l
}

// Add inserts a value into the list. Empty values are ignored.
func (l *List) Add(value string) {
	if value == "" {
		return
	}
	if l.fold {
		value = strings.ToLower(value)
	}
	l.members[value] = struct{}{}
}

// Contains reports whether value is a member of the list.
func (l *List) Contains(value string) bool {
	if l == nil {
		return false
	}
	if l.fold {
		value = strings.ToLower(value)
	}
	_, ok := l.members[value]
	return ok
}

// Len returns the number of members.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.members)
}

// Permitted evaluates candidate against the list under the given policy.
func Permitted(candidate string, list *List, policy Policy) bool {
	if list.Contains(candidate) {
		return policy == Allow
	}
	return policy == Block
}

// ValidPair reports whether the list/policy combination is usable. An Allow
// policy over an empty list would deny all traffic, so gateway start
// validation rejects it rather than silently dropping everything.
func ValidPair(list *List, policy Policy) bool {
	return policy != Allow || list.Len() > 0
}
