package budgetsync

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"budgetsync/internal/domain/syncedtxn"
	"budgetsync/internal/infrastructure/splitwise"
	"budgetsync/internal/infrastructure/ynab"
)

const (
	memoCreatedAt       = "createdat"
	memoUpdatedAt       = "updatedat"
	memoUnknownCategory = "<unknown>"
	memoPrefix          = "swdescription:"
)

// buildMemo renders the audit memo of a budget transaction. The description
// is truncated first when the memo exceeds the YNAB limit.
func buildMemo(e splitwise.Expense, syncRecordID, label string, at time.Time) string {
	category := memoUnknownCategory
	if e.Category != nil {
		category = underscore(e.Category.Name)
	}

	suffix := fmt.Sprintf(":srid:%s:swid:%d:swcategory:%s:%s:%s",
		syncRecordID, e.ID, category, label, at.UTC().Format(syncedtxn.DateLayout))

	room := ynab.MaxMemoLength - utf8.RuneCountInString(memoPrefix) - utf8.RuneCountInString(suffix)
	memo := memoPrefix + truncateRunes(underscore(e.Description), max(room, 0)) + suffix
	return truncateRunes(memo, ynab.MaxMemoLength)
}

func underscore(s string) string {
	return strings.ReplaceAll(s, " ", "_")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// transactionDate is the expense date, falling back to its creation time.
func transactionDate(e splitwise.Expense) string {
	d := e.Date
	if d.IsZero() {
		d = e.CreatedAt
	}
	return d.UTC().Format(syncedtxn.DateLayout)
}

func payeeName(s splitwise.Share) string {
	if name := s.User.FullName(); name != "" {
		return name
	}
	return fmt.Sprintf("Splitwise user %d", s.UserID)
}
