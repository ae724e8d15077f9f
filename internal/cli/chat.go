package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kacharaalert/internal/chat"
	"github.com/kacharaalert/internal/live"
	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/model"
)

const chatHelp = `Type a line to send it. Commands:
  /reply <id>    answer a message        /edit <id>   edit one of yours
  /delete <id>   delete one of yours     /cancel      drop reply or edit
  /open <id>     switch contact          /contacts    list contacts
  /history       reprint the thread      /quit        leave`

// chatCmd is the interactive messaging panel: live updates in, lines out.
func (a *app) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [contact-id]",
		Short: "Interactive conversation with live updates",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.connected(func(cmd *cobra.Command, args []string) error {
			contactID := ""
			if len(args) == 1 {
				contactID = args[0]
			}
			return a.runChat(cmd.Context(), cmd.OutOrStdout(), contactID)
		}),
	}
}

// lockedWriter serializes writes from the input loop and the observers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// printer writes panel changes as they happen, once per message version.
type printer struct {
	mu      sync.Mutex
	w       io.Writer
	selfID  string
	contact string
	shown   map[string]string
	lastErr string
}

func (p *printer) reset(contactID string) {
	p.mu.Lock()
	p.contact = contactID
	p.shown = make(map[string]string)
	p.mu.Unlock()
}

func (p *printer) render(v chat.View) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v.ContactID != p.contact || v.State != chat.StateReady {
		return
	}
	for _, m := range v.Messages {
		line := messageLine(m, p.selfID)
		if p.shown[m.ID] == line {
			continue
		}
		p.shown[m.ID] = line
		fmt.Fprintln(p.w, line)
	}
	if v.Error != p.lastErr {
		p.lastErr = v.Error
		if v.Error != "" {
			fmt.Fprintf(p.w, "! %s\n", v.Error)
		}
	}
}

func (a *app) runChat(ctx context.Context, w io.Writer, contactID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w = &lockedWriter{w: w}

	lc := live.New(live.Options{
		BaseURL:   a.client.BaseURL(),
		Session:   a.client.Session(),
		Config:    a.cfg.Live,
		Refresher: a.client,
	})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := lc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("live channel: %v", err)
		}
	}()
	defer wg.Wait()
	defer cancel()

	panel := chat.NewPanel(chat.Options{API: a.client, Live: lc, UserID: a.user.ID, SendTimeout: a.cfg.Live.SendTimeout})
	defer panel.Close()
	for _, event := range []string{model.EventMessageNew, model.EventMessageUpdated} {
		defer lc.On(event, panel.HandleEvent)()
	}

	out := &printer{w: w, selfID: a.user.ID}
	defer panel.Observe(out.render)()

	if err := panel.LoadContacts(ctx); err != nil {
		return err
	}
	if contactID == "" {
		contactID = panel.View().ContactID
	}
	if contactID == "" {
		fmt.Fprintln(w, "No contacts to chat with.")
		return nil
	}
	if err := a.open(ctx, w, panel, out, contactID); err != nil {
		return err
	}
	fmt.Fprintln(w, chatHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := a.in.ReadString('\n')
			if line = strings.TrimSpace(line); line != "" {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := a.chatLine(ctx, w, panel, out, line); quit {
				return nil
			}
		}
	}
}

func (a *app) open(ctx context.Context, w io.Writer, panel *chat.Panel, out *printer, contactID string) error {
	for _, c := range panel.View().Contacts {
		if c.ID == contactID {
			fmt.Fprintf(w, "== %s (%s) ==\n", c.Name, c.AccountType.Label())
		}
	}
	out.reset(contactID)
	if err := panel.SelectContact(ctx, contactID); err != nil {
		return err
	}
	v := panel.View()
	if len(v.Messages) == 0 {
		fmt.Fprintln(w, "No messages yet.")
	}
	out.render(v)
	return nil
}

// chatLine handles one input line and reports whether to leave.
func (a *app) chatLine(ctx context.Context, w io.Writer, panel *chat.Panel, out *printer, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	var err error
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(w, chatHelp)
	case "/reply":
		if err = panel.StartReply(arg); err == nil {
			fmt.Fprintf(w, "Replying to #%s; type your answer.\n", arg)
		}
	case "/edit":
		if err = panel.StartEdit(arg); err == nil {
			fmt.Fprintf(w, "Editing #%s: %q\nType the new text.\n", arg, panel.View().Draft)
		}
	case "/cancel":
		panel.CancelReply()
		panel.CancelEdit()
	case "/delete":
		err = panel.Delete(ctx, arg)
	case "/contacts":
		printContacts(w, panel.View().Contacts)
	case "/open":
		err = a.open(ctx, w, panel, out, arg)
	case "/history":
		v := panel.View()
		out.reset(v.ContactID)
		out.render(v)
	default:
		if strings.HasPrefix(cmd, "/") {
			fmt.Fprintf(w, "Unknown command %s; /help lists them.\n", cmd)
			return false
		}
		panel.SetDraft(line)
		_, err = panel.Send(ctx)
	}
	// Failures the panel keeps in its view are printed by the observer.
	if err != nil && !errors.Is(err, context.Canceled) && panel.View().Error == "" {
		fmt.Fprintf(w, "! %v\n", err)
	}
	return false
}
