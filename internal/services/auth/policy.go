package auth

import "sync"

// SignupPolicy decides whether new accounts may be created. In single-admin
// bootstrap mode the first successful signup flips the flag off, so the
// instance only ever gets one self-registered account.
type SignupPolicy struct {
	mu                sync.RWMutex
	allowed           bool
	disableAfterFirst bool
}

func NewSignupPolicy(disableAfterFirst bool) *SignupPolicy {
	return &SignupPolicy{
		allowed:           true,
		disableAfterFirst: disableAfterFirst,
	}
}

func (p *SignupPolicy) Allowed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.allowed
}

// RecordSignup notes a successful signup and, in bootstrap mode, disables
// further ones.
func (p *SignupPolicy) RecordSignup() {
	if !p.disableAfterFirst {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowed = false
}

// Disable turns signup off unconditionally. Used at startup when the store
// already holds users, or when the user count cannot be read.
func (p *SignupPolicy) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowed = false
}
