package document

import (
	"strings"
	"testing"
)

func TestVisibility_Unrestricted(t *testing.T) {
	if !(Visibility{}).Unrestricted() {
		t.Error("zero Visibility should be unrestricted")
	}
	if (Visibility{UserID: "alice"}).Unrestricted() {
		t.Error("Visibility with a user should not be unrestricted")
	}
}

func TestVisibility_Clause(t *testing.T) {
	tests := []struct {
		name     string
		vis      Visibility
		next     int
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "unrestricted",
			vis:     Visibility{},
			next:    1,
			wantSQL: "",
		},
		{
			name:     "org only",
			vis:      Visibility{OrganizationID: "acme"},
			next:     1,
			wantSQL:  "((d.scope = 'organization' AND d.organization_id = $1))",
			wantArgs: []any{"acme"},
		},
		{
			name:     "user only",
			vis:      Visibility{UserID: "alice"},
			next:     3,
			wantSQL:  "((d.scope = 'user' AND d.user_id = $3))",
			wantArgs: []any{"alice"},
		},
		{
			name:     "conversation only",
			vis:      Visibility{ConversationID: "c1"},
			next:     1,
			wantSQL:  "((d.conversation_id = $1))",
			wantArgs: []any{"c1"},
		},
		{
			name: "all identifiers OR-combined",
			vis:  Visibility{UserID: "alice", OrganizationID: "acme", ConversationID: "c1"},
			next: 4,
			wantSQL: "((d.scope = 'organization' AND d.organization_id = $4)" +
				" OR (d.scope = 'user' AND d.user_id = $5)" +
				" OR (d.conversation_id = $6))",
			wantArgs: []any{"acme", "alice", "c1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := tt.vis.clause(tt.next)
			if sql != tt.wantSQL {
				t.Errorf("clause() sql = %q, want %q", sql, tt.wantSQL)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("clause() args = %v, want %v", args, tt.wantArgs)
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Errorf("args[%d] = %v, want %v", i, args[i], tt.wantArgs[i])
				}
			}
		})
	}
}

// Identifier values must only ever travel as placeholders, never be spliced
// into the SQL text.
func TestVisibility_ClauseParameterized(t *testing.T) {
	vis := Visibility{UserID: "alice'; DROP TABLE documents; --"}
	sql, args := vis.clause(1)

	if strings.Contains(sql, "alice") {
		t.Errorf("identifier leaked into SQL text: %q", sql)
	}
	if len(args) != 1 || args[0] != vis.UserID {
		t.Errorf("args = %v, want the raw identifier as a bind parameter", args)
	}
}
