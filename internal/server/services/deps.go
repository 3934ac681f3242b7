// Package services implements the account use cases on top of the pure
// security rules: account management, login with lockout, password reset,
// export and first-administrator bootstrap.
//
// Every read-modify-write of an account or reset token runs inside
// dbx.WithTx and loads its rows with a FOR UPDATE variant, so concurrent
// logins against one account cannot lose a failure count.
package services

import (
	"context"
	"database/sql"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/cryptox"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/notify"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accountkeeper/internal/timex"
)

// Deps are the collaborators shared by every service.
type Deps struct {
	DB          *sql.DB
	RepoManager repomanager.RepositoryManager
	Hasher      cryptox.PasswordHasher
	Clock       timex.Clock
	Publisher   notify.Publisher
	Logger      logging.Logger
}

func (d Deps) withDefaults(module string) Deps {
	if d.Clock == nil {
		d.Clock = timex.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = logging.Nop{}
	}
	if d.Publisher == nil {
		d.Publisher = notify.NewLogPublisher(d.Logger)
	}
	d.Logger = d.Logger.With("module", module)
	return d
}

// publish delivers e and only logs failures: the state change it reports has
// already been committed.
func (d Deps) publish(ctx context.Context, e notify.Event) {
	if err := d.Publisher.Publish(ctx, e); err != nil {
		d.Logger.Error(ctx, "publish event failed", "type", e.Type, "account_id", e.AccountID, "error", err)
	}
}

// normalizeEmail trims and lower-cases an address and checks its syntax.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil || strings.ContainsAny(email, "<> ") {
		return "", common.ErrorValidation
	}
	return email, nil
}

func checkPasswordPolicy(password string) error {
	if utf8.RuneCountInString(password) < common.MinPasswordLength {
		return common.ErrWeakPassword
	}
	return nil
}
