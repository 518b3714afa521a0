package domain

import "fmt"

// Status is a completion status reported by a controller for a request.
type Status uint16

// StatusMask strips the more and do-not-retry bits from a status.
const StatusMask Status = 0x7ff

const (
	StatusSuccess Status = 0x0

	// Generic command status.
	StatusInvalidOpcode       Status = 0x1
	StatusInvalidField        Status = 0x2
	StatusCmdIDConflict       Status = 0x3
	StatusDataXferError       Status = 0x4
	StatusPowerLoss           Status = 0x5
	StatusInternal            Status = 0x6
	StatusAbortRequest        Status = 0x7
	StatusAbortQueue          Status = 0x8
	StatusFusedFail           Status = 0x9
	StatusFusedMissing        Status = 0xa
	StatusInvalidNS           Status = 0xb
	StatusCmdSeqError         Status = 0xc
	StatusLBARange            Status = 0x80
	StatusCapExceeded         Status = 0x81
	StatusNSNotReady          Status = 0x82
	StatusReservationConflict Status = 0x83

	// Command set specific.
	StatusBadAttributes    Status = 0x180
	StatusInvalidPI        Status = 0x181
	StatusReadOnly         Status = 0x182
	StatusONCSNotSupported Status = 0x183

	// Media and data integrity errors.
	StatusWriteFault     Status = 0x280
	StatusReadError      Status = 0x281
	StatusGuardCheck     Status = 0x282
	StatusAppTagCheck    Status = 0x283
	StatusRefTagCheck    Status = 0x284
	StatusCompareFailed  Status = 0x285
	StatusAccessDenied   Status = 0x286
	StatusUnwrittenBlock Status = 0x287

	// Path related.
	StatusHostPathError Status = 0x370
	StatusHostAborted   Status = 0x371

	// StatusTimeout is reported by transports when a request expired
	// before the controller answered.
	StatusTimeout Status = 0x3ff

	StatusMore Status = 0x2000
	StatusDNR  Status = 0x4000
)

var statusNames = map[Status]string{
	StatusSuccess:             "success",
	StatusInvalidOpcode:       "invalid-opcode",
	StatusInvalidField:        "invalid-field",
	StatusCmdIDConflict:       "cmdid-conflict",
	StatusDataXferError:       "data-transfer-error",
	StatusPowerLoss:           "power-loss",
	StatusInternal:            "internal",
	StatusAbortRequest:        "abort-request",
	StatusAbortQueue:          "abort-queue",
	StatusFusedFail:           "fused-fail",
	StatusFusedMissing:        "fused-missing",
	StatusInvalidNS:           "invalid-namespace",
	StatusCmdSeqError:         "command-sequence-error",
	StatusLBARange:            "lba-out-of-range",
	StatusCapExceeded:         "capacity-exceeded",
	StatusNSNotReady:          "namespace-not-ready",
	StatusReservationConflict: "reservation-conflict",
	StatusBadAttributes:       "bad-attributes",
	StatusInvalidPI:           "invalid-protection-info",
	StatusReadOnly:            "read-only",
	StatusONCSNotSupported:    "command-set-unsupported",
	StatusWriteFault:          "write-fault",
	StatusReadError:           "read-error",
	StatusGuardCheck:          "guard-check",
	StatusAppTagCheck:         "apptag-check",
	StatusRefTagCheck:         "reftag-check",
	StatusCompareFailed:       "compare-failed",
	StatusAccessDenied:        "access-denied",
	StatusUnwrittenBlock:      "unwritten-block",
	StatusHostPathError:       "host-path-error",
	StatusHostAborted:         "host-aborted",
	StatusTimeout:             "timeout",
}

// Code returns the status with the more and do-not-retry bits cleared.
func (s Status) Code() Status {
	return s & StatusMask
}

func (s Status) String() string {
	if name, ok := statusNames[s.Code()]; ok {
		return name
	}
	return fmt.Sprintf("status-%#x", uint16(s.Code()))
}

// Err converts a status into an error, nil for success.
func (s Status) Err() error {
	if s.Code() == StatusSuccess {
		return nil
	}
	return &StatusError{Status: s}
}

// StatusError carries a controller status as an error.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("i/o failed: %s", e.Status)
}

// Unwrap lets errors.Is match ErrIO for every device status.
func (e *StatusError) Unwrap() error {
	return ErrIO
}
