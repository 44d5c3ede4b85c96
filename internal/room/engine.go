package room

import (
	"context"
	"net/netip"
	"strings"
	"time"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/audit"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/auth"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/config"
	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/db/models"
)

// Outcome is the admission decision for one access attempt.
type Outcome string

const (
	OutcomeGranted     Outcome = "granted"
	OutcomeDenied      Outcome = "denied"
	OutcomeMFARequired Outcome = "mfa_required"
)

// AttemptInput carries everything a caller supplies with one access attempt.
type AttemptInput struct {
	SuppliedCode string
	SourceIP     string
	UserAgent    string
	MFACode      string // empty means not presented
}

// Decision is the engine's verdict on one attempt. It describes what must
// happen; the service applies it inside the room's transaction.
type Decision struct {
	Outcome Outcome
	// Gate names the admission check that decided. GateCode on grant means
	// every gate passed.
	Gate audit.Gate
	// ExpireRoom is set when the expiry gate fired: the room must transition
	// to EXPIRED before the denial is recorded.
	ExpireRoom bool
	// FirstUse is set on a grant against a never-used code.
	FirstUse bool
}

// MFAVerifier checks a presented MFA code against the room's enrolled phone.
// The SMS delivery side is a collaborator behind ChallengeSender.
type MFAVerifier interface {
	Verify(ctx context.Context, phone, code string) bool
}

// ChallengeSender delivers an MFA challenge out of band.
type ChallengeSender interface {
	Send(ctx context.Context, phone string) error
}

// Engine evaluates admission attempts. It is pure except for the MFA
// verifier: it never touches the database, so the gate ordering is testable
// without one.
type Engine struct {
	mfa MFAVerifier
}

// NewEngine creates an admission engine. A nil verifier means any MFA-enabled
// room denies with mfa_required until a verifier is wired.
func NewEngine(mfa MFAVerifier) *Engine {
	return &Engine{mfa: mfa}
}

// Evaluate runs the admission gates in their fixed order: status, expiry,
// IP allow-list, code, MFA. The order is load-bearing: a revoked or expired
// room must never leak whether the supplied code or IP would have passed, so
// the cheap pre-credential gates always fire first and every pre-credential
// denial is externally identical.
//
// Evaluate does not mutate the room. The service applies the returned
// Decision under the room's row lock.
func (e *Engine) Evaluate(ctx context.Context, room *models.ConferenceRoom, in AttemptInput, now time.Time) Decision {
	if room.Status != models.RoomActive {
		return Decision{Outcome: OutcomeDenied, Gate: audit.GateStatus}
	}

	if now.After(room.ExpiresAt) {
		return Decision{Outcome: OutcomeDenied, Gate: audit.GateExpiry, ExpireRoom: true}
	}

	if len(room.IPWhitelist) > 0 && !ipAllowed(room.IPWhitelist, in.SourceIP) {
		return Decision{Outcome: OutcomeDenied, Gate: audit.GateIP}
	}

	if !auth.VerifySecret(in.SuppliedCode, room.AccessCodeHash) {
		return Decision{Outcome: OutcomeDenied, Gate: audit.GateCode}
	}

	if room.MFAEnabled {
		phone := ""
		if room.MFAPhone != nil {
			phone = *room.MFAPhone
		}
		if in.MFACode == "" || e.mfa == nil || !e.mfa.Verify(ctx, phone, in.MFACode) {
			return Decision{Outcome: OutcomeMFARequired, Gate: audit.GateMFA}
		}
	}

	return Decision{Outcome: OutcomeGranted, Gate: audit.GateCode, FirstUse: !room.CodeUsed}
}

// ipAllowed reports whether sourceIP matches any allow-list entry. Entries
// are plain addresses or CIDR prefixes; a malformed entry never matches.
func ipAllowed(allowlist []string, sourceIP string) bool {
	addr, err := netip.ParseAddr(sourceIP)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, entry := range allowlist {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				continue
			}
			if prefix.Contains(addr) {
				return true
			}
			continue
		}
		allowed, err := netip.ParseAddr(entry)
		if err != nil {
			continue
		}
		if allowed.Unmap() == addr {
			return true
		}
	}
	return false
}

// SuspiciousVerdict is the result of one detection pass over a room's recent
// failed attempts.
type SuspiciousVerdict struct {
	Tripped      bool
	FailureCount int
	DistinctIPs  int
}

// DetectSuspicious evaluates a room's failed attempts within the tuning
// window. Either threshold trips independently: total failures, or failures
// from enough distinct source IPs. MFA-gate denials are excluded; a user who
// has the correct code but no second factor is not an enumeration attacker.
func DetectSuspicious(failures []*models.AuditLog, tuning config.SuspiciousConfig) SuspiciousVerdict {
	ips := map[string]struct{}{}
	count := 0
	for _, f := range failures {
		var p audit.AccessAttemptPayload
		if len(f.EventData) > 0 {
			if err := p.UnmarshalJSON(f.EventData); err == nil && p.Gate == audit.GateMFA {
				continue
			}
		}
		count++
		if f.ActorIP != nil && *f.ActorIP != "" {
			ips[*f.ActorIP] = struct{}{}
		}
	}

	v := SuspiciousVerdict{FailureCount: count, DistinctIPs: len(ips)}
	v.Tripped = count >= tuning.FailureThreshold ||
		(len(ips) >= tuning.DistinctIPThreshold && count > 0)
	return v
}
