package domain

// Committee identifies one of the three fixed reviewing bodies.
type Committee string

const (
	Committee1 Committee = "committee_1"
	Committee2 Committee = "committee_2"
	Committee3 Committee = "committee_3"
)

// Committees lists every committee in review order.
var Committees = []Committee{Committee1, Committee2, Committee3}

// QuestionCode is the unique code of a clarification question.
type QuestionCode string

// ClarificationStatus is the per-question status.
type ClarificationStatus string

const (
	ClarificationPending   ClarificationStatus = "pending"
	ClarificationCompleted ClarificationStatus = "completed"
)

// CommitteeStatus is the committee-level approval status.
type CommitteeStatus string

const (
	CommitteePending  CommitteeStatus = "Pending"
	CommitteeApproved CommitteeStatus = "Approved"
	CommitteeRejected CommitteeStatus = "Rejected"
)

// ClarificationItem is one question/answer/status triple as sent to the backend.
type ClarificationItem struct {
	UniqueCode QuestionCode        `json:"unique_code"`
	UserAnswer string              `json:"user_answer"`
	Status     ClarificationStatus `json:"status"`
}

// CommitteeStatusItem sets the approval status of one committee.
type CommitteeStatusItem struct {
	Committee Committee       `json:"committee"`
	Status    CommitteeStatus `json:"status"`
}
