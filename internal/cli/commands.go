package cli

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kacharaalert/internal/avatar"
	"github.com/kacharaalert/internal/model"
)

const avatarTTL = 24 * time.Hour

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: a.connected(func(cmd *cobra.Command, _ []string) error {
			u, err := a.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			printUser(cmd.OutOrStdout(), u)
			return nil
		}),
	}
}

func (a *app) contactsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contacts",
		Short: "List the people you can message",
		Args:  cobra.NoArgs,
		RunE: a.connected(func(cmd *cobra.Command, _ []string) error {
			contacts, err := a.client.Contacts(cmd.Context())
			if err != nil {
				return err
			}
			printContacts(cmd.OutOrStdout(), contacts)
			return nil
		}),
	}
}

func (a *app) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <contact-id>",
		Short: "Print the conversation with a contact",
		Args:  cobra.ExactArgs(1),
		RunE: a.connected(func(cmd *cobra.Command, args []string) error {
			msgs, err := a.client.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), msgs, a.user.ID)
			return nil
		}),
	}
}

func (a *app) sendCmd() *cobra.Command {
	var replyTo string
	cmd := &cobra.Command{
		Use:   "send <contact-id> <text>...",
		Short: "Send a message over REST",
		Args:  cobra.MinimumNArgs(2),
		RunE: a.connected(func(cmd *cobra.Command, args []string) error {
			msg, err := a.client.SendMessage(cmd.Context(), args[0], model.SendMessageRequest{
				Body:             strings.Join(args[1:], " "),
				ReplyToMessageID: replyTo,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), messageLine(*msg, a.user.ID))
			return nil
		}),
	}
	cmd.Flags().StringVar(&replyTo, "reply", "", "id of the message being answered")
	return cmd
}

func (a *app) editCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <contact-id> <message-id> <text>...",
		Short: "Edit one of your messages",
		Args:  cobra.MinimumNArgs(3),
		RunE: a.connected(func(cmd *cobra.Command, args []string) error {
			msg, err := a.client.EditMessage(cmd.Context(), args[0], args[1], strings.Join(args[2:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), messageLine(*msg, a.user.ID))
			return nil
		}),
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <contact-id> <message-id>",
		Short: "Delete one of your messages",
		Args:  cobra.ExactArgs(2),
		RunE: a.connected(func(cmd *cobra.Command, args []string) error {
			msg, err := a.client.DeleteMessage(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), messageLine(*msg, a.user.ID))
			return nil
		}),
	}
}

func (a *app) invoicesCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "invoices",
		Short: "List your invoices (--all lists every resident's, admin only)",
		Args:  cobra.NoArgs,
		RunE: a.connected(func(cmd *cobra.Command, _ []string) error {
			list, err := a.client.ListInvoices(cmd.Context(), all)
			if err != nil {
				return err
			}
			printInvoices(cmd.OutOrStdout(), list, all)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "list every resident's invoices")
	return cmd
}

func (a *app) payCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pay <invoice-id> <amount>",
		Short: "Pay an invoice",
		Args:  cobra.ExactArgs(2),
		RunE: a.connected(func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("amount %q is not a number", args[1])
			}
			inv, err := a.client.PayInvoice(cmd.Context(), args[0], amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Invoice %s (%s) is now %s.\n", inv.ID, inv.Period, inv.Status)
			return nil
		}),
	}
}

// invoiceAdminCmd groups the admin invoice operations.
func (a *app) invoiceAdminCmd() *cobra.Command {
	parent := &cobra.Command{
		Use:   "invoice",
		Short: "Create and adjust invoices (admin)",
	}

	var period string
	var amount, lateFee float64
	var dueIn int
	create := &cobra.Command{
		Use:   "create <user-id>",
		Short: "Issue an invoice to a resident",
		Args:  cobra.ExactArgs(1),
		RunE: a.connected(func(cmd *cobra.Command, args []string) error {
			inv, err := a.client.CreateInvoice(cmd.Context(), model.NewInvoice{
				UserID:         args[0],
				Period:         period,
				AmountNPR:      amount,
				DueAt:          time.Now().AddDate(0, 0, dueIn),
				LateFeePercent: lateFee,
			})
			if err != nil {
				return err
			}
			printInvoices(cmd.OutOrStdout(), []model.Invoice{*inv}, true)
			return nil
		}),
	}
	create.Flags().StringVar(&period, "period", time.Now().Format("January 2006"), "billing period label")
	create.Flags().Float64Var(&amount, "amount", 0, "amount in NPR")
	create.Flags().Float64Var(&lateFee, "late-fee", 0, "late fee percent")
	create.Flags().IntVar(&dueIn, "due-in", 15, "days until due")

	setAmount := &cobra.Command{
		Use:   "amount <invoice-id> <amount>",
		Short: "Change the amount of an unpaid invoice",
		Args:  cobra.ExactArgs(2),
		RunE: a.connected(func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("amount %q is not a number", args[1])
			}
			inv, err := a.client.UpdateInvoiceAmount(cmd.Context(), args[0], v)
			if err != nil {
				return err
			}
			printInvoices(cmd.OutOrStdout(), []model.Invoice{*inv}, true)
			return nil
		}),
	}

	setLateFee := &cobra.Command{
		Use:   "late-fee <invoice-id> <percent>",
		Short: "Change the late fee of an invoice",
		Args:  cobra.ExactArgs(2),
		RunE: a.connected(func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("late fee %q is not a number", args[1])
			}
			inv, err := a.client.UpdateInvoiceLateFee(cmd.Context(), args[0], v)
			if err != nil {
				return err
			}
			printInvoices(cmd.OutOrStdout(), []model.Invoice{*inv}, true)
			return nil
		}),
	}

	remove := &cobra.Command{
		Use:   "delete <invoice-id>",
		Short: "Delete an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: a.connected(func(cmd *cobra.Command, args []string) error {
			if err := a.client.DeleteInvoice(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Invoice %s deleted.\n", args[0])
			return nil
		}),
	}

	parent.AddCommand(create, setAmount, setLateFee, remove)
	return parent
}

func (a *app) ratingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rating",
		Short: "Show the service rating summary",
		Args:  cobra.NoArgs,
		RunE: a.connected(func(cmd *cobra.Command, _ []string) error {
			s, err := a.client.RatingSummary(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Average %.1f from %d ratings.\n", s.AverageScore, s.TotalRatings)
			if s.MyRating != nil {
				fmt.Fprintf(w, "Your rating: %d", s.MyRating.Score)
				if s.MyRating.Comment != "" {
					fmt.Fprintf(w, " (%q)", s.MyRating.Comment)
				}
				fmt.Fprintln(w)
			}
			return nil
		}),
	}
}

func (a *app) rateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rate <score 1-5> [comment]...",
		Short: "Rate the collection service",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.connected(func(cmd *cobra.Command, args []string) error {
			score, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("score %q is not a number", args[0])
			}
			res, err := a.client.SubmitRating(cmd.Context(), score, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Thanks! Average is now %.1f from %d ratings.\n", res.AverageScore, res.TotalRatings)
			return nil
		}),
	}
}

func (a *app) profileCmd() *cobra.Command {
	var name, phone, society, building, apartment, image string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update your profile; flags left unset keep their value",
		Args:  cobra.NoArgs,
		RunE: a.connected(func(cmd *cobra.Command, _ []string) error {
			var upd model.ProfileUpdate
			set := func(flag string, dst **string, v string) {
				if cmd.Flags().Changed(flag) {
					*dst = &v
				}
			}
			set("name", &upd.Name, name)
			set("phone", &upd.Phone, phone)
			set("society", &upd.Society, society)
			set("building", &upd.Building, building)
			set("apartment", &upd.Apartment, apartment)

			ctx := cmd.Context()
			if upd != (model.ProfileUpdate{}) {
				if _, err := a.client.UpdateProfile(ctx, upd); err != nil {
					return err
				}
			}
			if image != "" {
				data, err := os.ReadFile(image)
				if err != nil {
					return err
				}
				if err := a.client.UploadProfileImage(ctx, filepath.Base(image), mime.TypeByExtension(filepath.Ext(image)), data); err != nil {
					return err
				}
			}
			u, err := a.client.Me(ctx)
			if err != nil {
				return err
			}
			printUser(cmd.OutOrStdout(), u)
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "display name")
	f.StringVar(&phone, "phone", "", "phone number")
	f.StringVar(&society, "society", "", "society")
	f.StringVar(&building, "building", "", "building")
	f.StringVar(&apartment, "apartment", "", "apartment")
	f.StringVar(&image, "image", "", "path of a new profile image")
	return cmd
}

// usersCmd groups the admin account operations.
func (a *app) usersCmd() *cobra.Command {
	parent := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts (admin)",
		Args:  cobra.NoArgs,
		RunE: a.connected(func(cmd *cobra.Command, _ []string) error {
			users, err := a.client.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			printUsers(cmd.OutOrStdout(), users)
			return nil
		}),
	}

	show := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show one account",
		Args:  cobra.ExactArgs(1),
		RunE: a.connected(func(cmd *cobra.Command, args []string) error {
			u, err := a.client.GetUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printUser(cmd.OutOrStdout(), u)
			return nil
		}),
	}

	var nu model.NewUser
	var accountType, image string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: a.connected(func(cmd *cobra.Command, _ []string) error {
			nu.AccountType = model.AccountType(accountType)
			if image != "" {
				data, err := os.ReadFile(image)
				if err != nil {
					return err
				}
				nu.Image, nu.ImageName, nu.ImageType = data, filepath.Base(image), mime.TypeByExtension(filepath.Ext(image))
			}
			u, err := a.client.CreateUser(cmd.Context(), nu)
			if err != nil {
				return err
			}
			if u == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Account created.")
				return nil
			}
			printUser(cmd.OutOrStdout(), u)
			return nil
		}),
	}
	cf := create.Flags()
	cf.StringVar(&accountType, "type", string(model.AccountResident), "resident or admin_driver")
	cf.StringVar(&nu.Name, "name", "", "display name")
	cf.StringVar(&nu.Email, "new-email", "", "login email of the new account")
	cf.StringVar(&nu.Password, "new-password", "", "initial password")
	cf.StringVar(&nu.Phone, "phone", "", "phone number")
	cf.StringVar(&nu.Society, "society", "", "society")
	cf.StringVar(&nu.Building, "building", "", "building")
	cf.StringVar(&nu.Apartment, "apartment", "", "apartment")
	cf.StringVar(&image, "image", "", "path of a profile image")

	var ban, unban bool
	var lateFee float64
	status := &cobra.Command{
		Use:   "status <user-id>",
		Short: "Ban, unban or set the late fee of an account",
		Args:  cobra.ExactArgs(1),
		RunE: a.connected(func(cmd *cobra.Command, args []string) error {
			var upd model.UserStatusUpdate
			switch {
			case ban && unban:
				return errors.New("--ban and --unban are exclusive")
			case ban || unban:
				v := ban
				upd.IsBanned = &v
			}
			if cmd.Flags().Changed("late-fee") {
				upd.LateFeePercent = &lateFee
			}
			u, err := a.client.UpdateUserStatus(cmd.Context(), args[0], upd)
			if err != nil {
				return err
			}
			printUser(cmd.OutOrStdout(), u)
			return nil
		}),
	}
	status.Flags().BoolVar(&ban, "ban", false, "ban the account")
	status.Flags().BoolVar(&unban, "unban", false, "lift a ban")
	status.Flags().Float64Var(&lateFee, "late-fee", 0, "late fee percent (0-100)")

	remove := &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete an account with its invoices",
		Args:  cobra.ExactArgs(1),
		RunE: a.connected(func(cmd *cobra.Command, args []string) error {
			if err := a.client.DeleteUser(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s deleted.\n", args[0])
			return nil
		}),
	}

	parent.AddCommand(show, create, status, remove)
	return parent
}

// avatarCmd downloads a profile image through the avatar cache.
func (a *app) avatarCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "avatar <user-id|image-url>",
		Short: "Save a profile image to a file",
		Args:  cobra.ExactArgs(1),
		RunE: a.connected(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ref := args[0]
			if !strings.Contains(ref, "/") {
				u, err := a.lookupImage(cmd, ref)
				if err != nil {
					return err
				}
				ref = u
			}
			store, err := a.openStore(ctx, a.cfg.AvatarStore)
			if err != nil {
				return err
			}
			cache := avatar.New(a.client, store, avatarTTL)
			defer func() {
				if err := cache.Close(ctx); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "avatar cache: %v\n", err)
				}
			}()
			h, err := cache.Resolve(ctx, ref)
			if err != nil {
				return err
			}
			blob, err := cache.Open(ctx, h)
			if err != nil {
				return err
			}
			if out == "" {
				out = "avatar" + extensionFor(blob.ContentType)
			}
			if err := os.WriteFile(out, blob.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d bytes (%s) to %s.\n", len(blob.Data), blob.ContentType, out)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default avatar.<ext>)")
	return cmd
}

// lookupImage finds the image URL of userID among the caller, their contacts
// and, for admins, every account.
func (a *app) lookupImage(cmd *cobra.Command, userID string) (string, error) {
	ctx := cmd.Context()
	if userID == a.user.ID || userID == "me" {
		u, err := a.client.Me(ctx)
		if err != nil {
			return "", err
		}
		if u.ProfileImageURL == nil {
			return "", errors.New("you have no profile image")
		}
		return *u.ProfileImageURL, nil
	}
	contacts, err := a.client.Contacts(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range contacts {
		if c.ID == userID {
			if c.ProfileImageURL == nil {
				return "", fmt.Errorf("%s has no profile image", c.Name)
			}
			return *c.ProfileImageURL, nil
		}
	}
	if a.user.IsAdmin() {
		u, err := a.client.GetUser(ctx, userID)
		if err != nil {
			return "", err
		}
		if u.ProfileImageURL != nil {
			return *u.ProfileImageURL, nil
		}
	}
	return "", fmt.Errorf("no profile image for %s", userID)
}

func extensionFor(contentType string) string {
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".img"
}
