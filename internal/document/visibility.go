package document

import (
	"fmt"
	"strings"
)

// Visibility narrows queries to the documents a caller is allowed to see.
// Each non-empty identifier contributes one OR-combined predicate:
//
//   - OrganizationID matches organization-scoped documents of that org
//   - UserID matches user-scoped documents of that user
//   - ConversationID matches documents attached to that conversation,
//     whatever their scope
//
// The zero value is unrestricted: with no identifiers there is nothing to
// filter on, and every document qualifies.
type Visibility struct {
	UserID         string
	OrganizationID string
	ConversationID string
}

// Unrestricted reports whether v carries no identifiers at all.
func (v Visibility) Unrestricted() bool {
	return v.UserID == "" && v.OrganizationID == "" && v.ConversationID == ""
}

// clause renders the visibility predicate against table alias d, numbering
// placeholders from next. It returns an empty SQL string when unrestricted.
func (v Visibility) clause(next int) (string, []any) {
	var preds []string
	var args []any

	if v.OrganizationID != "" {
		preds = append(preds, fmt.Sprintf("(d.scope = 'organization' AND d.organization_id = $%d)", next))
		args = append(args, v.OrganizationID)
		next++
	}
	if v.UserID != "" {
		preds = append(preds, fmt.Sprintf("(d.scope = 'user' AND d.user_id = $%d)", next))
		args = append(args, v.UserID)
		next++
	}
	if v.ConversationID != "" {
		preds = append(preds, fmt.Sprintf("(d.conversation_id = $%d)", next))
		args = append(args, v.ConversationID)
		next++
	}

	if len(preds) == 0 {
		return "", nil
	}
	return "(" + strings.Join(preds, " OR ") + ")", args
}
