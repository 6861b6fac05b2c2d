// Package mailfetch loads email documents from a mail provider.
package mailfetch

import (
	"context"

	"github.com/henrikfb/mailsift/internal/model"
)

// Source fetches a single email by provider-specific ID on behalf of the
// user owning the access token.
type Source interface {
	GetEmail(ctx context.Context, accessToken, emailID string) (*model.EmailDocument, error)
}
