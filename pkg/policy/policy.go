// Package policy implements the zone's RBAC/ABAC access control: a role
// graph (group grants), a table of (subject, resource, action, effect)
// rules matched with regex patterns, and a two-factor enforcement check
// that intersects what the subject is allowed to do with what the calling
// app is allowed to do. This is a hand-rolled adaptation of buckyos's
// casbin-style model (no Go casbin implementation appears anywhere in the
// reference pack, so the matcher below is a direct, narrower
// reimplementation of the same semantics rather than a general policy
// engine).
package policy

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Effect is the outcome a rule grants on a match.
type Effect string

const (
	Allow Effect = "allow"
	Deny  Effect = "deny"
)

// Rule is one line of the access table.
type Rule struct {
	Subject  string
	Resource string
	Action   string
	Effect   Effect

	subjectRe  *regexp.Regexp
	resourceRe *regexp.Regexp
	actionRe   *regexp.Regexp
}

// Grant is a "g" role-grouping line: Member inherits every rule granted
// to Role, transitively.
type Grant struct {
	Member string
	Role   string
}

// Enforcer holds the compiled rule set and role graph for one factor
// (either the subject-id table or the app-id table).
type Enforcer struct {
	mu     sync.RWMutex
	rules  []*Rule
	grants map[string][]string // member -> directly granted roles
}

// NewEnforcer creates an empty Enforcer.
func NewEnforcer() *Enforcer {
	return &Enforcer{grants: make(map[string][]string)}
}

// AddRule compiles and installs a policy rule. Resource and action
// patterns use buckyos's keyMatch2 dialect translated to anchored regex:
// "*" matches any run of characters, "|" separates alternatives
// ("read|write"), and ":param" matches a single path segment. The last
// ":param" of a resource pattern must equal the requesting subject itself,
// so "dfs://homes/:userid" grants a user their own home only. A pattern
// that fails to compile is rejected outright rather
// than silently ignored, since a silently-dropped deny rule would open an
// access hole.
func (e *Enforcer) AddRule(subject, resource, action string, effect Effect) error {
	subjectRe, err := compilePattern(subject)
	if err != nil {
		return fmt.Errorf("policy: subject pattern %q: %w", subject, err)
	}
	resourceRe, err := compilePattern(resource)
	if err != nil {
		return fmt.Errorf("policy: resource pattern %q: %w", resource, err)
	}
	actionRe, err := compilePattern(action)
	if err != nil {
		return fmt.Errorf("policy: action pattern %q: %w", action, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, &Rule{
		Subject: subject, Resource: resource, Action: action, Effect: effect,
		subjectRe: subjectRe, resourceRe: resourceRe, actionRe: actionRe,
	})
	return nil
}

// AddGrant adds a role-grouping line: member inherits role's rules.
func (e *Enforcer) AddGrant(member, role string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.grants[member] = append(e.grants[member], role)
}

// roleClosure returns subject plus every role it transitively holds.
func (e *Enforcer) roleClosure(subject string) []string {
	seen := map[string]bool{subject: true}
	queue := []string{subject}
	out := []string{subject}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, role := range e.grants[cur] {
			if !seen[role] {
				seen[role] = true
				out = append(out, role)
				queue = append(queue, role)
			}
		}
	}
	return out
}

// allows evaluates whether subject is allowed to perform action on
// resource, using deny-override: if any matching rule denies, the result
// is denied regardless of allow matches.
func (e *Enforcer) allows(subject, resource, action string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	subjects := e.roleClosure(subject)
	matched := false
	for _, rule := range e.rules {
		subjectMatches := false
		for _, s := range subjects {
			if rule.subjectRe.MatchString(s) {
				subjectMatches = true
				break
			}
		}
		if !subjectMatches {
			continue
		}
		if !rule.actionRe.MatchString(action) {
			continue
		}
		m := rule.resourceRe.FindStringSubmatch(resource)
		if m == nil {
			continue
		}
		if len(m) > 1 && m[len(m)-1] != subject {
			continue
		}
		if rule.Effect == Deny {
			return false
		}
		matched = true
	}
	return matched
}

// TwoFactorEnforcer intersects a subject-identity policy table with an
// app-identity policy table: an operation is permitted only if both the
// calling user/device AND the calling app are independently granted it.
// This is buckyos's richer subject×app model, adopted over the simpler
// single-factor default per the spec's resolution of the two divergent
// models found in the original source.
type TwoFactorEnforcer struct {
	subjectPolicy *Enforcer
	appPolicy     *Enforcer
}

// NewTwoFactorEnforcer combines a subject-identity and an app-identity
// policy table.
func NewTwoFactorEnforcer(subjectPolicy, appPolicy *Enforcer) *TwoFactorEnforcer {
	return &TwoFactorEnforcer{subjectPolicy: subjectPolicy, appPolicy: appPolicy}
}

// Enforce reports whether (userID acting through appID) may perform action
// on resource. Both factors must independently allow it.
func (e *TwoFactorEnforcer) Enforce(userID, appID, resource, action string) bool {
	if !e.subjectPolicy.allows(userID, resource, action) {
		return false
	}
	return e.appPolicy.allows(appID, resource, action)
}

// compilePattern translates a keyMatch2-style pattern ("*" wildcard, "|"
// alternation, ":name" single-segment placeholder captured as a group)
// into an anchored Go regexp. A ':' with no name after it, as in "kv://",
// is a literal colon.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^(?:")
	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch c {
		case '*':
			b.WriteString(".*")
			i++
		case '|':
			b.WriteByte('|')
			i++
		case ':':
			j := i + 1
			for j < len(pattern) && pattern[j] != '/' {
				j++
			}
			if j == i+1 {
				b.WriteByte(':')
			} else {
				b.WriteString("([^/]+)")
			}
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	b.WriteString(")$")
	return regexp.Compile(b.String())
}

// DefaultPolicy returns the zone's built-in default subject-identity
// policy table, transcribed from buckyos's default RBAC configuration:
// the zone owner and sudo users get full read/write on kv:// and dfs://,
// kernel/frame services get read-only, regular users get read/write on
// their own home directory and the shared public directory, limited users
// get read-only on their home, app services get read-only on their own
// per-app home subdirectory, and guests get read-only on public.
func DefaultPolicy() (*Enforcer, error) {
	e := NewEnforcer()
	rules := []struct {
		subject, resource, action string
		effect                    Effect
	}{
		{"owner", "kv://*", "read|write", Allow},
		{"owner", "dfs://*", "read|write", Allow},
		{"kernel_service", "kv://*", "read", Allow},
		{"kernel_service", "dfs://*", "read", Allow},
		{"frame_service", "kv://*", "read", Allow},
		{"frame_service", "dfs://*", "read", Allow},
		{"sudo_user", "kv://*", "read|write", Allow},
		{"sudo_user", "dfs://*", "read|write", Allow},
		{"user", "dfs://homes/:userid", "read|write", Allow},
		{"user", "dfs://public", "read|write", Allow},
		{"app_service", "dfs://homes/:userid/:appid", "read", Allow},
		{"limit_user", "dfs://homes/:userid", "read", Allow},
		{"guest", "dfs://public", "read", Allow},
	}
	for _, r := range rules {
		if err := e.AddRule(r.subject, r.resource, r.action, r.effect); err != nil {
			return nil, err
		}
	}
	return e, nil
}
