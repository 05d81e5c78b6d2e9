package mail

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

const timeLayout = "2006-01-02 15:04 MST"

// Renderer formats the four ticket notifications.
type Renderer struct {
	frontendURL string
	markdown    goldmark.Markdown
	policy      *bluemonday.Policy
}

// NewRenderer builds a renderer whose links point at frontendURL.
func NewRenderer(frontendURL string) *Renderer {
	return &Renderer{
		frontendURL: strings.TrimRight(frontendURL, "/"),
		markdown:    goldmark.New(),
		policy:      bluemonday.UGCPolicy(),
	}
}

// TicketURL returns the frontend link for a ticket.
func (r *Renderer) TicketURL(ticketID string) string {
	return fmt.Sprintf("%s/tickets/%s", r.frontendURL, ticketID)
}

// Subject returns the subject line for kind.
func Subject(kind domain.NotificationKind, title string) string {
	switch kind {
	case domain.NotificationAssigned:
		return "Ticket Assigned: " + title
	case domain.NotificationReassigned:
		return "Ticket Reassigned: " + title
	case domain.NotificationClosed:
		return "Ticket Closed: " + title
	case domain.NotificationOverdue:
		return "OVERDUE: " + title
	}
	return title
}

// Render produces the message for kind. The output depends only on its inputs.
func (r *Renderer) Render(kind domain.NotificationKind, to []string, ticket *domain.TicketDetails) (Message, error) {
	var heading string
	switch kind {
	case domain.NotificationAssigned:
		heading = "New Ticket Assigned to " + ticket.DepartmentName
	case domain.NotificationReassigned:
		heading = "Ticket Reassigned to " + ticket.DepartmentName
	case domain.NotificationClosed:
		heading = "Your Ticket Has Been Closed"
	case domain.NotificationOverdue:
		heading = "Ticket Overdue"
	default:
		return Message{}, fmt.Errorf("unknown notification kind %q", kind)
	}

	link := r.TicketURL(ticket.ID)
	fields := [][2]string{
		{"Ticket ID", "#" + ticket.ID},
		{"Title", ticket.Title},
		{"Status", string(ticket.Status)},
		{"Assigned Department", ticket.DepartmentName},
	}
	if kind == domain.NotificationClosed {
		closedAt := "N/A"
		if ticket.ClosedAt.Valid {
			closedAt = FormatTime(ticket.ClosedAt.Time)
		}
		fields = append(fields, [2]string{"Closed At", closedAt})
	} else {
		fields = append(fields, [2]string{"Deadline", FormatTime(ticket.Deadline)})
	}

	var htmlBody, plain strings.Builder
	if kind == domain.NotificationOverdue {
		fmt.Fprintf(&htmlBody, "<h2 style=\"color: red;\">%s</h2>\n", html.EscapeString(heading))
	} else {
		fmt.Fprintf(&htmlBody, "<h2>%s</h2>\n", html.EscapeString(heading))
	}
	plain.WriteString(heading + "\n\n")
	for _, f := range fields {
		fmt.Fprintf(&htmlBody, "<p><strong>%s:</strong> %s</p>\n", f[0], html.EscapeString(f[1]))
		fmt.Fprintf(&plain, "%s: %s\n", f[0], f[1])
	}

	if kind != domain.NotificationClosed {
		description, err := r.renderDescription(ticket.Description)
		if err != nil {
			return Message{}, err
		}
		htmlBody.WriteString("<p><strong>Description:</strong></p>\n")
		htmlBody.WriteString(description)
		fmt.Fprintf(&plain, "\nDescription:\n%s\n", ticket.Description)
	}
	if kind == domain.NotificationOverdue {
		const warning = "This ticket has passed its deadline and requires immediate attention."
		fmt.Fprintf(&htmlBody, "<p style=\"color: red;\"><strong>%s</strong></p>\n", warning)
		fmt.Fprintf(&plain, "\n%s\n", warning)
	}
	fmt.Fprintf(&htmlBody, "<p><a href=\"%s\">View Ticket</a></p>\n", html.EscapeString(link))
	fmt.Fprintf(&plain, "\nView ticket: %s\n", link)

	return Message{
		To:      to,
		Subject: Subject(kind, ticket.Title),
		HTML:    htmlBody.String(),
		Plain:   plain.String(),
	}, nil
}

func (r *Renderer) renderDescription(source string) (string, error) {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("render description: %w", err)
	}
	return r.policy.Sanitize(buf.String()), nil
}

// FormatTime renders t in the layout used by notification bodies.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
