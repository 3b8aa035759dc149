package clarification

import (
	"strings"

	"github.com/Vihanga22365/governance-analysis/pkg/domain"
)

var committeeCodes = map[domain.Committee][]domain.QuestionCode{
	domain.Committee1: {"core_business_impact", "internal_users_only", "tech_approved_org"},
	domain.Committee2: {"sensitive_data", "system_integration", "block_other_teams"},
	domain.Committee3: {"regulatory_compliance", "reputation_impact", "multi_business_scale"},
}

// CostCodes are the question codes of the cost clarification set.
var CostCodes = []domain.QuestionCode{"resource_count", "cost_per_resource", "project_duration", "licensed_software"}

// EnvironmentCodes are the question codes of the environment clarification set.
var EnvironmentCodes = []domain.QuestionCode{"prefer_environment", "pii_data", "technologies", "expected_user_count", "architecture_type"}

// ValidCodes returns the three question codes of committee. Unknown committees
// have no codes.
func ValidCodes(committee domain.Committee) []domain.QuestionCode {
	codes := committeeCodes[committee]
	out := make([]domain.QuestionCode, len(codes))
	copy(out, codes)
	return out
}

// IsCommittee reports whether committee is one of the three fixed committees.
func IsCommittee(committee domain.Committee) bool {
	_, ok := committeeCodes[committee]
	return ok
}

// Belongs reports whether code is a question of committee.
func Belongs(committee domain.Committee, code domain.QuestionCode) bool {
	return contains(committeeCodes[committee], code)
}

// CommitteeOf returns the committee owning code.
func CommitteeOf(code domain.QuestionCode) (domain.Committee, bool) {
	for _, committee := range domain.Committees {
		if contains(committeeCodes[committee], code) {
			return committee, true
		}
	}
	return "", false
}

// ValidateBatch checks a committee clarification update. It fails with
// UNKNOWN_COMMITTEE, CODE_NOT_IN_COMMITTEE, INVALID_STATUS or EMPTY_ANSWER and
// returns the accepted items with trimmed answers on success.
func ValidateBatch(committee domain.Committee, items []domain.ClarificationItem) ([]domain.ClarificationItem, error) {
	codes, ok := committeeCodes[committee]
	if !ok {
		return nil, domain.NewValidationError(domain.CodeUnknownCommittee, "committee",
			"committee must be one of %s, got %q", committeeList(), committee)
	}
	return validateItems(items, func(i int, code domain.QuestionCode) error {
		if contains(codes, code) {
			return nil
		}
		return domain.NewValidationError(domain.CodeNotInCommittee, itemField("clarifications", i, "unique_code"),
			"unique_code %q is not valid for %s, valid codes: %s", code, committee, joinCodes(codes))
	})
}

// ValidateCostBatch checks a cost clarification update.
func ValidateCostBatch(items []domain.ClarificationItem) ([]domain.ClarificationItem, error) {
	return validateItems(items, memberOf(CostCodes))
}

// ValidateEnvironmentBatch checks an environment clarification update.
func ValidateEnvironmentBatch(items []domain.ClarificationItem) ([]domain.ClarificationItem, error) {
	return validateItems(items, memberOf(EnvironmentCodes))
}

// ValidateCommitteeStatus checks a committee status batch. Duplicate committees
// are accepted; Reduce resolves them by last write.
func ValidateCommitteeStatus(items []domain.CommitteeStatusItem) ([]domain.CommitteeStatusItem, error) {
	if len(items) == 0 {
		return nil, domain.NewValidationError(domain.CodeEmptyCommitteeList, "committees",
			"at least one committee must be provided")
	}
	for i, item := range items {
		if !IsCommittee(item.Committee) {
			return nil, domain.NewValidationError(domain.CodeUnknownCommittee, itemField("committees", i, "committee"),
				"committee must be one of %s, got %q", committeeList(), item.Committee)
		}
		switch item.Status {
		case domain.CommitteePending, domain.CommitteeApproved, domain.CommitteeRejected:
		default:
			return nil, domain.NewValidationError(domain.CodeInvalidCommitteeStatus, itemField("committees", i, "status"),
				"status must be Approved, Rejected or Pending, got %q", item.Status)
		}
	}
	out := make([]domain.CommitteeStatusItem, len(items))
	copy(out, items)
	return out, nil
}

// Reduce collapses a validated status batch into one status per committee.
// The last item for a committee wins.
func Reduce(items []domain.CommitteeStatusItem) map[domain.Committee]domain.CommitteeStatus {
	statuses := make(map[domain.Committee]domain.CommitteeStatus, len(items))
	for _, item := range items {
		statuses[item.Committee] = item.Status
	}
	return statuses
}

func validateItems(items []domain.ClarificationItem, checkCode func(int, domain.QuestionCode) error) ([]domain.ClarificationItem, error) {
	if len(items) == 0 {
		return nil, domain.NewValidationError(domain.CodeEmptyBatch, "clarifications",
			"at least one clarification must be provided")
	}

	accepted := make([]domain.ClarificationItem, 0, len(items))
	for i, item := range items {
		if err := checkCode(i, item.UniqueCode); err != nil {
			return nil, err
		}
		if item.Status != domain.ClarificationPending && item.Status != domain.ClarificationCompleted {
			return nil, domain.NewValidationError(domain.CodeInvalidStatus, itemField("clarifications", i, "status"),
				"status must be either \"pending\" or \"completed\", got %q", item.Status)
		}
		answer := strings.TrimSpace(item.UserAnswer)
		if answer == "" && item.Status == domain.ClarificationCompleted {
			return nil, domain.NewValidationError(domain.CodeEmptyAnswer, itemField("clarifications", i, "user_answer"),
				"user_answer cannot be empty for a completed clarification")
		}
		item.UserAnswer = answer
		accepted = append(accepted, item)
	}
	return accepted, nil
}

func memberOf(codes []domain.QuestionCode) func(int, domain.QuestionCode) error {
	return func(i int, code domain.QuestionCode) error {
		if contains(codes, code) {
			return nil
		}
		return domain.NewValidationError(domain.CodeUnknownQuestion, itemField("clarifications", i, "unique_code"),
			"unique_code must be one of %s, got %q", joinCodes(codes), code)
	}
}

func contains(codes []domain.QuestionCode, code domain.QuestionCode) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
