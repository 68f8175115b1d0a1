package api

import (
	"net/url"

	"github.com/docsmith-ai/docsmith/internal/document"
)

// identity is the caller information attached to a request. Identifiers are
// supplied by the fronting gateway; docsmith itself does not authenticate.
type identity struct {
	UserID         string
	OrganizationID string
	ConversationID string
	Role           string
}

// visibility converts the identity into the retrieval filter.
func (id identity) visibility() document.Visibility {
	return document.Visibility{
		UserID:         id.UserID,
		OrganizationID: id.OrganizationID,
		ConversationID: id.ConversationID,
	}
}

// identityFromValues reads the identity fields from query or form values.
func identityFromValues(values url.Values) identity {
	return identity{
		UserID:         values.Get("user_id"),
		OrganizationID: values.Get("organization_id"),
		ConversationID: values.Get("conversation_id"),
		Role:           values.Get("role"),
	}
}
