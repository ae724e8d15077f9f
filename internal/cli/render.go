package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/kacharaalert/internal/model"
	"github.com/kacharaalert/internal/repository"
)

func messageLine(m model.Message, selfID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", m.CreatedAt.Local().Format("Jan 02 15:04"))
	if m.SenderID == selfID {
		b.WriteString("you")
	} else {
		b.WriteString(m.SenderName)
	}
	if m.ReplyTo != nil {
		fmt.Fprintf(&b, " (re %s: %q)", m.ReplyTo.SenderName, clip(m.ReplyTo.Body, 40))
	}
	b.WriteString(": ")
	b.WriteString(m.Body)
	if m.EditedAt != nil && !m.IsDeleted {
		b.WriteString(" (edited)")
	}
	fmt.Fprintf(&b, "  #%s", m.ID)
	return b.String()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func printMessages(w io.Writer, msgs []model.Message, selfID string) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages yet.")
		return
	}
	for _, m := range msgs {
		fmt.Fprintln(w, messageLine(m, selfID))
	}
}

func printContacts(w io.Writer, contacts []model.Contact) {
	if len(contacts) == 0 {
		fmt.Fprintln(w, "No contacts.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROLE")
	for _, c := range contacts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Name, c.AccountType.Label())
	}
	tw.Flush()
}

func printInvoices(w io.Writer, invoices []model.Invoice, withUser bool) {
	if len(invoices) == 0 {
		fmt.Fprintln(w, "No invoices.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := "ID\tPERIOD\tAMOUNT\tDUE NOW\tSTATUS\tDUE DATE"
	if withUser {
		header += "\tUSER"
	}
	fmt.Fprintln(tw, header)
	for _, inv := range invoices {
		fmt.Fprintf(tw, "%s\t%s\tNPR %.2f\tNPR %.2f\t%s\t%s", inv.ID, inv.Period, inv.AmountNPR,
			repository.AmountDue(inv), inv.Status, inv.DueAt.Local().Format("2006-01-02"))
		if withUser {
			fmt.Fprintf(tw, "\t%s", inv.UserID)
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}

func printUser(w io.Writer, u *model.User) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", u.ID)
	fmt.Fprintf(tw, "Name\t%s\n", u.Name)
	fmt.Fprintf(tw, "Email\t%s\n", u.Email)
	fmt.Fprintf(tw, "Role\t%s\n", u.AccountType.Label())
	fmt.Fprintf(tw, "Phone\t%s\n", u.Phone)
	var address []string
	for _, part := range []string{u.Apartment, u.Building, u.Society} {
		if part != "" {
			address = append(address, part)
		}
	}
	fmt.Fprintf(tw, "Address\t%s\n", strings.Join(address, ", "))
	if u.ProfileImageURL != nil {
		fmt.Fprintf(tw, "Image\t%s\n", *u.ProfileImageURL)
	}
	if u.IsBanned {
		fmt.Fprintln(tw, "Status\tbanned")
	}
	if u.LateFeePercent > 0 {
		fmt.Fprintf(tw, "Late fee\t%.1f%%\n", u.LateFeePercent)
	}
	tw.Flush()
}

func printUsers(w io.Writer, users []model.User) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tROLE\tBANNED\tLATE FEE")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%.1f%%\n", u.ID, u.Name, u.Email, u.AccountType.Label(), u.IsBanned, u.LateFeePercent)
	}
	tw.Flush()
}
