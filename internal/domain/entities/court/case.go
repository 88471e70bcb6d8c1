// Package court defines the application's core case-management domain entities.
package court

import (
	"fmt"
	"strings"
	"time"
)

// TempIDPrefix marks client-generated identifiers for entities created
// optimistically before the server has assigned a real id.
const TempIDPrefix = "TEMP-"

// NewTempID returns a client-side placeholder id. It exists only until the
// create call settles, at which point the server id replaces it everywhere.
func NewTempID(now time.Time) string {
	return fmt.Sprintf("%s%d", TempIDPrefix, now.UnixMilli())
}

// IsTempID reports whether an id is a client-generated placeholder.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

type Party struct {
	Name string `json:"name"`
	Role string `json:"role"` // plaintiff, defendant, counsel
}

type Case struct {
	ID            string     `json:"id"` // case number, e.g. KDH/2024/100
	Title         string     `json:"title"`
	Category      string     `json:"category"`
	Status        string     `json:"status"` // filed, assigned, hearing, adjourned, closed
	Parties       []Party    `json:"parties,omitempty"`
	AssignedJudge *string    `json:"assignedJudge,omitempty"`
	FiledAt       time.Time  `json:"filedAt"`
	NextHearing   *time.Time `json:"nextHearing,omitempty"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

type Hearing struct {
	ID          string    `json:"id"`
	CaseID      string    `json:"caseId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Courtroom   string    `json:"courtroom"`
	Purpose     string    `json:"purpose,omitempty"`
}
