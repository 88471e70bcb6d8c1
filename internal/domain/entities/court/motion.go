package court

import "time"

// Motion statuses as reported by the backend.
const (
	MotionPending  = "pending"
	MotionApproved = "approved"
	MotionDenied   = "denied"
)

type Motion struct {
	ID        string     `json:"id"`
	CaseID    string     `json:"caseId"`
	Type      string     `json:"type"` // adjournment, bail, injunction, ...
	Status    string     `json:"status"`
	FiledBy   string     `json:"filedBy"`
	Grounds   string     `json:"grounds,omitempty"`
	FiledAt   time.Time  `json:"filedAt"`
	DecidedAt *time.Time `json:"decidedAt,omitempty"`
	DecidedBy *string    `json:"decidedBy,omitempty"`
}

type Order struct {
	ID       string     `json:"id"`
	CaseID   string     `json:"caseId"`
	Title    string     `json:"title"`
	Body     string     `json:"body"`
	IssuedAt time.Time  `json:"issuedAt"`
	SignedBy *string    `json:"signedBy,omitempty"`
	SignedAt *time.Time `json:"signedAt,omitempty"`
}

type Document struct {
	ID         string    `json:"id"`
	CaseID     string    `json:"caseId"`
	Filename   string    `json:"filename"`
	MimeType   string    `json:"mimeType"`
	SizeBytes  int64     `json:"sizeBytes"`
	UploadedBy string    `json:"uploadedBy"`
	UploadedAt time.Time `json:"uploadedAt"`
}
