package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"brokeradmin/core"
	"brokeradmin/service"

	"github.com/fatih/color"
)

// renderAdminsTable displays administrators in a formatted table
func renderAdminsTable(w io.Writer, users []*core.User, total int64, hasNext bool) {
	if len(users) == 0 {
		warningColor.Fprintln(w, "No administrators found")
		return
	}

	headerColor.Fprintln(w, "ADMINISTRATORS")
	headerColor.Fprintln(w, strings.Repeat("=", 110))
	fmt.Fprintf(w, "%-38s %-35s %-25s %-10s\n", "ID", "Email", "Name", "Created")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for _, user := range users {
		email := user.Email
		if len(email) > 34 {
			email = email[:31] + "..."
		}
		name := strings.TrimSpace(user.FirstName + " " + user.LastName)
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		fmt.Fprintf(w, "%-38s %-35s %-25s %-10s\n", user.ID, email, name, user.CreatedTime.Format("2006-01-02"))
	}

	fmt.Fprintln(w, strings.Repeat("=", 110))
	infoColor.Fprintf(w, "\nShowing %d of %d", len(users), total)
	if hasNext {
		infoColor.Fprint(w, " (more pages available)")
	}
	fmt.Fprintln(w)
}

// renderAdminDetails displays one administrator
func renderAdminDetails(w io.Writer, user *core.User) {
	headerColor.Fprintln(w, "═══════════════════════════════════════════════════════════════")
	headerColor.Fprintf(w, "  Administrator: %s\n", user.Email)
	headerColor.Fprintln(w, "═══════════════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	printSection(w, "Account")
	printField(w, "ID", user.ID.String())
	printField(w, "Email", user.Email)
	printField(w, "First Name", user.FirstName)
	printField(w, "Last Name", user.LastName)
	printField(w, "Authority", string(user.Authority))
	printField(w, "Created At", formatTime(user.CreatedTime))
	fmt.Fprintln(w)
}

// renderDeleteSummary reports the outcome of a cascading delete
func renderDeleteSummary(w io.Writer, user *core.User, summary *service.DeleteSummary) {
	successColor.Fprintf(w, "✓ Admin deleted: %s\n", user.Email)
	printField(w, "Sessions", fmt.Sprintf("%d", summary.Sessions))
	printField(w, "Disconnected", fmt.Sprintf("%d", summary.Disconnected))
	if summary.FailedDisconnects > 0 {
		warningColor.Fprintf(w, "  %d session(s) could not be disconnected\n", summary.FailedDisconnects)
	}
}

// renderSettings displays a settings record with its payload fields sorted by name
func renderSettings(w io.Writer, settings *core.AdminSettings) {
	headerColor.Fprintln(w, "═══════════════════════════════════════════════════════════════")
	headerColor.Fprintf(w, "  Settings: %s\n", settings.Key)
	headerColor.Fprintln(w, "═══════════════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	printField(w, "ID", settings.ID.String())
	printField(w, "Created At", formatTime(settings.CreatedTime))
	fmt.Fprintln(w)

	printSection(w, "Values")
	keys := make([]string, 0, len(settings.JSONValue))
	for k := range settings.JSONValue {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		printField(w, k, fmt.Sprintf("%v", settings.JSONValue[k]))
	}
	fmt.Fprintln(w)
}

// renderSecuritySettings displays the authentication policy
func renderSecuritySettings(w io.Writer, settings core.SecuritySettings) {
	policy := settings.PasswordPolicy

	printSection(w, "Password Policy")
	printField(w, "Minimum Length", fmt.Sprintf("%d", policy.MinimumLength))
	if policy.MaximumLength > 0 {
		printField(w, "Maximum Length", fmt.Sprintf("%d", policy.MaximumLength))
	}
	printField(w, "Uppercase Letters", fmt.Sprintf("%d", policy.MinimumUppercaseLetters))
	printField(w, "Lowercase Letters", fmt.Sprintf("%d", policy.MinimumLowercaseLetters))
	printField(w, "Digits", fmt.Sprintf("%d", policy.MinimumDigits))
	printField(w, "Special Characters", fmt.Sprintf("%d", policy.MinimumSpecialCharacters))
	printField(w, "Allow Whitespaces", formatBool(policy.AllowWhitespaces))
	fmt.Fprintln(w)

	printSection(w, "Lockout")
	printField(w, "Max Failed Attempts", fmt.Sprintf("%d", settings.MaxFailedLoginAttempts))
	printField(w, "Notification Email", settings.UserLockoutNotificationEmail)
	fmt.Fprintln(w)
}

// printSection prints a section header
func printSection(w io.Writer, title string) {
	headerColor.Fprintf(w, "  %s\n", title)
	headerColor.Fprintln(w, "  "+strings.Repeat("─", len(title)))
}

// printField prints a key-value field
func printField(w io.Writer, key, value string) {
	if value == "" {
		value = "(not set)"
	}
	fmt.Fprintf(w, "  %-25s %s\n", key+":", value)
}

// formatBool returns a colored yes/no
func formatBool(b bool) string {
	if b {
		return color.New(color.FgGreen).Sprint("Yes")
	}
	return color.New(color.FgRed).Sprint("No")
}

// formatTime formats a timestamp
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	return t.Format("2006-01-02 15:04:05")
}
