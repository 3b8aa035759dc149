package clarification

import (
	"fmt"
	"strings"

	"github.com/Vihanga22365/governance-analysis/pkg/domain"
)

func itemField(list string, index int, name string) string {
	return fmt.Sprintf("%s[%d].%s", list, index, name)
}

func committeeList() string {
	names := make([]string, len(domain.Committees))
	for i, c := range domain.Committees {
		names[i] = string(c)
	}
	return "[" + strings.Join(names, ", ") + "]"
}

func joinCodes(codes []domain.QuestionCode) string {
	names := make([]string, len(codes))
	for i, c := range codes {
		names[i] = string(c)
	}
	return "[" + strings.Join(names, ", ") + "]"
}
