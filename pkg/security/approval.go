// Package security implements the writable-tool confirmation gate used by
// the agent loop before fs_write/fs_apply_patch execute, including an
// optional session-scoped auto-approve whitelist grounded on the sibling
// agent SDK's approval queue shape.
package security

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Gate decides whether a writable tool call may proceed without prompting a
// human, and remembers a session's recent approval for a TTL so repeated
// writes in one turn (or a chatty back-and-forth) don't nag on every call.
type Gate struct {
	mu        sync.Mutex
	whitelist map[string]time.Time
	clock     func() time.Time
}

// NewGate constructs an empty Gate.
func NewGate() *Gate {
	return &Gate{
		whitelist: make(map[string]time.Time),
		clock:     time.Now,
	}
}

// IsWhitelisted reports whether sessionID currently has a live auto-approve
// window, evicting the entry if it has expired.
func (g *Gate) IsWhitelisted(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	expiry, ok := g.whitelist[sessionID]
	if !ok {
		return false
	}
	if g.clock().After(expiry) {
		delete(g.whitelist, sessionID)
		return false
	}
	return true
}

// Whitelist grants sessionID an auto-approve window of ttl starting now.
// A ttl <= 0 clears any existing whitelist entry.
func (g *Gate) Whitelist(sessionID string, ttl time.Duration) {
	trimmed := strings.TrimSpace(sessionID)
	if trimmed == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if ttl <= 0 {
		delete(g.whitelist, trimmed)
		return
	}
	g.whitelist[trimmed] = g.clock().Add(ttl)
}

// Decision captures how a writable tool call was resolved.
type Decision struct {
	Approved     bool
	AutoApproved bool
	Reason       string
}

// Confirm is the collaborator signature the agent loop calls to ask a human
// whether a writable tool call may proceed.
type Confirm func(question string) bool

// Evaluate runs the writable-tool gate for sessionID: if the session is
// currently whitelisted the call is auto-approved without invoking confirm;
// otherwise confirm is consulted, and on approval, when whitelistTTL > 0,
// the session is whitelisted for subsequent writes.
func (g *Gate) Evaluate(sessionID, toolName, question string, whitelistTTL time.Duration, confirm Confirm) Decision {
	if g.IsWhitelisted(sessionID) {
		return Decision{Approved: true, AutoApproved: true, Reason: fmt.Sprintf("session %s is whitelisted for writes", sessionID)}
	}
	if confirm == nil {
		return Decision{Approved: false, Reason: "no confirmation channel available"}
	}
	approved := confirm(question)
	if approved && whitelistTTL > 0 {
		g.Whitelist(sessionID, whitelistTTL)
	}
	reason := "denied by operator"
	if approved {
		reason = fmt.Sprintf("approved %s", toolName)
	}
	return Decision{Approved: approved, Reason: reason}
}
