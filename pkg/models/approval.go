package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Approval is the review state of a staged item. It is stored as a nullable
// boolean (NULL = pending) but handled in code as an explicit tri-state so
// every consumer has to deal with all three cases.
type Approval int

const (
	ApprovalPending Approval = iota
	ApprovalApproved
	ApprovalRejected
)

// ApprovalFromBool maps a reviewer's approve/reject decision to a state.
func ApprovalFromBool(approved bool) Approval {
	if approved {
		return ApprovalApproved
	}
	return ApprovalRejected
}

func (a Approval) String() string {
	switch a {
	case ApprovalApproved:
		return "approved"
	case ApprovalRejected:
		return "rejected"
	default:
		return "pending"
	}
}

func (a Approval) IsApproved() bool {
	return a == ApprovalApproved
}

func (a Approval) IsRejected() bool {
	return a == ApprovalRejected
}

func (a Approval) IsPending() bool {
	return a == ApprovalPending
}

// Value implements driver.Valuer, mapping the tri-state onto the nullable
// boolean column.
func (a Approval) Value() (driver.Value, error) {
	switch a {
	case ApprovalApproved:
		return true, nil
	case ApprovalRejected:
		return false, nil
	default:
		return nil, nil
	}
}

// Scan implements sql.Scanner for the nullable boolean column.
func (a *Approval) Scan(src any) error {
	if src == nil {
		*a = ApprovalPending
		return nil
	}
	switch v := src.(type) {
	case bool:
		*a = ApprovalFromBool(v)
		return nil
	case []byte:
		// some drivers hand booleans back as text
		switch string(v) {
		case "true", "t", "1":
			*a = ApprovalApproved
		case "false", "f", "0":
			*a = ApprovalRejected
		default:
			return fmt.Errorf("approval.Scan: unexpected value %q", string(v))
		}
		return nil
	default:
		return fmt.Errorf("approval.Scan: unexpected type %T", src)
	}
}

func (a Approval) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Approval) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "approved":
		*a = ApprovalApproved
	case "rejected":
		*a = ApprovalRejected
	case "pending", "":
		*a = ApprovalPending
	default:
		return fmt.Errorf("unknown approval state %q", s)
	}
	return nil
}
