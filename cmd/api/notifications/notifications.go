package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/library-service/cmd/api/library"
)

const (
	topicBorrowed = "/Books_borrowed"
	topicReturned = "/Books_returned"
)

// Ntfy publishes borrowing events to ntfy topics under baseURL.
type Ntfy struct {
	baseURL string
	enabled bool
	client  *http.Client
}

func NewNtfy(enableNotifications bool, notificationsBaseURL string, client *http.Client) *Ntfy {
	if client == nil {
		client = &http.Client{}
	}
	return &Ntfy{
		baseURL: strings.TrimSuffix(notificationsBaseURL, "/"),
		enabled: enableNotifications,
		client:  client,
	}
}

func (ntf *Ntfy) BooksBorrowed(ctx context.Context, userID uuid.UUID, borrowings []library.Borrowing) error {
	return ntf.publish(ctx, topicBorrowed, message("Books borrowed", userID, borrowings, true))
}

func (ntf *Ntfy) BooksReturned(ctx context.Context, userID uuid.UUID, borrowings []library.Borrowing) error {
	return ntf.publish(ctx, topicReturned, message("Books returned", userID, borrowings, false))
}

func message(title string, userID uuid.UUID, borrowings []library.Borrowing, withDueDate bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:\nUser: %s", title, userID)
	for _, b := range borrowings {
		fmt.Fprintf(&sb, "\nBook: %s", b.BookID)
		if withDueDate {
			fmt.Fprintf(&sb, " Due: %s", b.DueDate.Format("2006-01-02"))
		} else if b.IsOverdue {
			sb.WriteString(" (overdue)")
		}
	}
	return sb.String()
}

func (ntf *Ntfy) publish(ctx context.Context, topic, msg string) error {
	if !ntf.enabled {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ntf.baseURL+topic, strings.NewReader(msg))
	if err != nil {
		return fmt.Errorf("error delivering message to topic (%s): %w", ntf.baseURL+topic, err)
	}

	resp, err := ntf.client.Do(req)
	if err != nil {
		return fmt.Errorf("error delivering message to topic (%s): %w", ntf.baseURL+topic, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("error delivering message to topic (%s): status %d", ntf.baseURL+topic, resp.StatusCode)
	}
	return nil
}
