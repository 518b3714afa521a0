package mpath

import (
	"testing"

	"github.com/vietddude/mpath/internal/core/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status domain.Status
		want   Action
	}{
		// Surfaced to the caller
		{"invalid opcode", domain.StatusInvalidOpcode, ActionComplete},
		{"invalid field", domain.StatusInvalidField, ActionComplete},
		{"invalid namespace", domain.StatusInvalidNS, ActionComplete},
		{"lba range", domain.StatusLBARange, ActionComplete},
		{"capacity exceeded", domain.StatusCapExceeded, ActionComplete},
		{"reservation conflict", domain.StatusReservationConflict, ActionComplete},
		{"bad attributes", domain.StatusBadAttributes, ActionComplete},
		{"invalid pi", domain.StatusInvalidPI, ActionComplete},
		{"read only", domain.StatusReadOnly, ActionComplete},
		{"oncs not supported", domain.StatusONCSNotSupported, ActionComplete},
		{"write fault", domain.StatusWriteFault, ActionComplete},
		{"read error", domain.StatusReadError, ActionComplete},
		{"guard check", domain.StatusGuardCheck, ActionComplete},
		{"app tag check", domain.StatusAppTagCheck, ActionComplete},
		{"ref tag check", domain.StatusRefTagCheck, ActionComplete},
		{"compare failed", domain.StatusCompareFailed, ActionComplete},
		{"access denied", domain.StatusAccessDenied, ActionComplete},
		{"unwritten block", domain.StatusUnwrittenBlock, ActionComplete},

		// Retried elsewhere
		{"host path error", domain.StatusHostPathError, ActionFailover},
		{"host aborted", domain.StatusHostAborted, ActionFailover},
		{"timeout", domain.StatusTimeout, ActionFailover},
		{"internal", domain.StatusInternal, ActionFailover},
		{"namespace not ready", domain.StatusNSNotReady, ActionFailover},
		{"abort request", domain.StatusAbortRequest, ActionFailover},
		{"unknown code", domain.Status(0x1ff), ActionFailover},

		// Flag bits are ignored
		{"read error with dnr", domain.StatusReadError | domain.StatusDNR, ActionComplete},
		{"path error with dnr", domain.StatusHostPathError | domain.StatusDNR, ActionFailover},
		{"lba range with more", domain.StatusLBARange | domain.StatusMore, ActionComplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.status); got != tt.want {
				t.Errorf("Classify(%#x) = %v, want %v", uint16(tt.status), got, tt.want)
			}
		})
	}
}

func TestNeedsFailover(t *testing.T) {
	routed := domain.NewBio(domain.OpRead, 0, nil, "nvme0n1", nil)
	routed.Flags |= domain.BioMultipath
	direct := domain.NewBio(domain.OpRead, 0, nil, "nvme0c1n1", nil)

	tests := []struct {
		name   string
		bio    *domain.Bio
		status domain.Status
		want   bool
	}{
		{"routed path error", routed, domain.StatusHostPathError, true},
		{"routed media error", routed, domain.StatusReadError, false},
		{"direct path error", direct, domain.StatusHostPathError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := domain.NewRequest(tt.bio)
			req.Status = tt.status
			if got := NeedsFailover(req); got != tt.want {
				t.Errorf("NeedsFailover() = %v, want %v", got, tt.want)
			}
		})
	}
}
