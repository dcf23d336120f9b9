package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"tattoostudio/internal/appointments"
	"tattoostudio/internal/export"
	"tattoostudio/internal/google"
	"tattoostudio/internal/models"
	"tattoostudio/internal/views"
)

var errNotAdmin = errors.New("acesso restrito a administradores, use studioctl login")

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func credentials(name string, args []string) (string, string, error) {
	fs := newFlagSet(name)
	email := fs.String("email", "", "")
	password := fs.String("password", os.Getenv("STUDIO_PASSWORD"), "")
	if err := fs.Parse(args); err != nil {
		return "", "", fmt.Errorf("%w: %v", errUsage, err)
	}
	return *email, *password, nil
}

func (a *app) createAdmin(ctx context.Context, args []string, out io.Writer) error {
	email, password, err := credentials("create-admin", args)
	if err != nil {
		return err
	}
	if err := views.ValidateLogin(email, password); err != nil {
		return err
	}

	user, err := a.backend.CreateUser(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Conta criada: %s (%s)\n", user.Email, user.ID)
	if !a.manager.Admins().Contains(user.Email) {
		fmt.Fprintln(out, "Atenção: este e-mail não está em ADMIN_EMAILS e não terá acesso ao painel.")
	}
	return nil
}

func (a *app) login(ctx context.Context, args []string, out io.Writer) error {
	email, password, err := credentials("login", args)
	if err != nil {
		return err
	}

	view := views.NewLoginView(a.manager, a.logger)
	if err := view.Submit(ctx, email, password); err != nil {
		var verr *views.ValidationError
		if errors.As(err, &verr) {
			return verr
		}
		return errors.New(view.Error())
	}

	if view.Redirect() != views.AdminPath {
		fmt.Fprintf(out, "Login efetuado como %s, sem acesso administrativo.\n", a.manager.User().Email)
		return nil
	}
	fmt.Fprintf(out, "Login efetuado como %s (administrador).\n", a.manager.User().Email)
	return nil
}

func (a *app) logout(ctx context.Context, out io.Writer) error {
	if a.manager.User() == nil {
		fmt.Fprintln(out, "Nenhuma sessão ativa.")
		return nil
	}
	if err := a.manager.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Sessão encerrada.")
	return nil
}

func (a *app) whoami(out io.Writer) error {
	user := a.manager.User()
	if user == nil {
		fmt.Fprintln(out, "Nenhuma sessão ativa.")
		return nil
	}
	role := "cliente"
	if a.manager.IsAdmin() {
		role = "administrador"
	}
	fmt.Fprintf(out, "%s (%s)\n", user.Email, role)
	return nil
}

// adminView opens the admin panel for the current session.
func (a *app) adminView(ctx context.Context) (*views.AdminView, error) {
	view := views.NewAdminView(a.manager, a.hook, a.logger)
	if err := view.Open(ctx); err != nil {
		if errors.Is(err, views.ErrRedirect) {
			return nil, errNotAdmin
		}
		return nil, err
	}
	if msg := view.Error(); msg != "" {
		return nil, errors.New(msg)
	}
	return view, nil
}

func (a *app) list(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("list")
	status := fs.String("status", appointments.FilterAll, "")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	view, err := a.adminView(ctx)
	if err != nil {
		return err
	}
	if err := view.SetFilter(*status); err != nil {
		return err
	}

	stats := view.Stats()
	fmt.Fprintf(out, "Total: %d  Pendentes: %d  Aprovados: %d  Concluídos: %d\n\n",
		stats.Total, stats.Pending, stats.Approved, stats.Completed)

	items := view.Visible()
	if len(items) == 0 {
		fmt.Fprintln(out, view.EmptyMessage())
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCLIENTE\tTELEFONE\tDATA\tHORÁRIO\tSTATUS")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			item.ID, item.Name, item.Phone, item.Date, item.Time, views.StatusLabel(item.Status))
	}
	return tw.Flush()
}

func (a *app) transition(ctx context.Context, args []string, out io.Writer, to models.Status) error {
	if len(args) != 1 || args[0] == "" {
		return fmt.Errorf("%w: expected one appointment id", errUsage)
	}
	id := args[0]

	view, err := a.adminView(ctx)
	if err != nil {
		return err
	}

	switch to {
	case models.StatusApproved:
		err = view.Approve(ctx, id)
	case models.StatusRejected:
		err = view.Reject(ctx, id)
	default:
		err = view.Complete(ctx, id)
	}
	switch {
	case errors.Is(err, appointments.ErrUnknownAppointment):
		return fmt.Errorf("agendamento %s não encontrado", id)
	case errors.Is(err, appointments.ErrInvalidTransition):
		current, _ := a.hook.Get(id)
		return fmt.Errorf("não é possível passar de %s para %s",
			views.StatusLabel(current.Status), views.StatusLabel(to))
	case err != nil:
		if msg := view.Error(); msg != "" {
			return errors.New(msg)
		}
		return err
	}

	fmt.Fprintf(out, "Agendamento %s: %s\n", id, views.StatusLabel(to))
	return nil
}

func (a *app) export(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("export")
	output := fs.String("o", "", "")
	status := fs.String("status", appointments.FilterAll, "")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	view, err := a.adminView(ctx)
	if err != nil {
		return err
	}
	if err := view.SetFilter(*status); err != nil {
		return err
	}
	items := view.Visible()
	now := time.Now()

	path := *output
	if path == "" {
		path, err = export.SaveFile(a.cfg.Exports.Path, items, now)
		if err != nil {
			return err
		}
	} else {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		if err := export.Write(f, items, now); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "%d agendamento(s) exportado(s) para %s\n", len(items), path)
	return nil
}

func (a *app) sheetsSync(ctx context.Context, out io.Writer) error {
	if a.cfg.Google.GoogleCredentialsFile == "" || a.cfg.Google.AppointmentsSpreadSheetID == "" {
		return errors.New("google sheets não configurado")
	}

	view, err := a.adminView(ctx)
	if err != nil {
		return err
	}

	sheets, err := google.NewSheetsService(ctx, a.cfg.Google.GoogleCredentialsFile, a.cfg.Google.AppointmentsSpreadSheetID)
	if err != nil {
		return err
	}
	items := view.All()
	if err := sheets.ReplaceAppointments(ctx, items); err != nil {
		return err
	}
	fmt.Fprintf(out, "Planilha atualizada com %d agendamento(s).\n", len(items))
	return nil
}
