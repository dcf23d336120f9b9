package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"tattoostudio/internal/appointments"
	"tattoostudio/internal/database"
	"tattoostudio/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminEmail = "admin@oliveiratattoo.com"

func setupConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "studio.db")
	cfg := fmt.Sprintf(`
database:
  driver: sqlite
  path: %q
auth:
  admin_emails: [%q]
  session_file: %q
exports:
  path: %q
logging:
  level: error
`, dbPath, adminEmail, filepath.Join(dir, "session.json"), filepath.Join(dir, "exports"))

	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o644))
	t.Setenv("CONFIG_PATH", configPath)
	t.Setenv("ADMIN_EMAILS", "")
	t.Setenv("STUDIO_PASSWORD", "")
	return dbPath
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func seedAppointment(t *testing.T, dbPath string) string {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(dbPath, nil, &logger)
	require.NoError(t, err)
	defer db.Close()

	hook := appointments.NewHook(db, nil, nil)
	id, ok := hook.Create(context.Background(), models.Appointment{
		Name: "Ana Silva", Email: "ana@example.com", Phone: "11999998888",
		Date: "2026-10-20", Time: "10:00", Description: "Rosa realista no antebraço esquerdo",
	})
	require.True(t, ok)
	return id
}

func TestStudioctl_AdminWorkflow(t *testing.T) {
	dbPath := setupConfig(t)

	out, err := runCmd(t, "create-admin", "-email", adminEmail, "-password", "segredo1")
	require.NoError(t, err)
	assert.Contains(t, out, "Conta criada: "+adminEmail)
	assert.NotContains(t, out, "Atenção")

	out, err = runCmd(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Nenhuma sessão ativa.")

	_, err = runCmd(t, "list")
	assert.ErrorIs(t, err, errNotAdmin)

	_, err = runCmd(t, "login", "-email", adminEmail, "-password", "errada1")
	require.Error(t, err)
	assert.Equal(t, "Email ou senha incorretos. Tente novamente.", err.Error())

	out, err = runCmd(t, "login", "-email", adminEmail, "-password", "segredo1")
	require.NoError(t, err)
	assert.Contains(t, out, "(administrador)")

	out, err = runCmd(t, "whoami")
	require.NoError(t, err)
	assert.Equal(t, adminEmail+" (administrador)\n", out)

	out, err = runCmd(t, "list", "-status", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "Nenhum agendamento pendente encontrado.")

	id := seedAppointment(t, dbPath)

	out, err = runCmd(t, "list", "-status", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "Ana Silva")
	assert.Contains(t, out, "Pendentes: 1")

	out, err = runCmd(t, "approve", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Aprovado")

	_, err = runCmd(t, "reject", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "não é possível passar de Aprovado para Rejeitado")

	out, err = runCmd(t, "complete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Concluído")

	_, err = runCmd(t, "approve", "missing-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "não encontrado")

	xlsx := filepath.Join(t.TempDir(), "agenda.xlsx")
	out, err = runCmd(t, "export", "-o", xlsx)
	require.NoError(t, err)
	assert.Contains(t, out, "1 agendamento(s) exportado(s)")
	info, err := os.Stat(xlsx)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	out, err = runCmd(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Sessão encerrada.")

	_, err = runCmd(t, "list")
	assert.ErrorIs(t, err, errNotAdmin)
}

func TestStudioctl_NonAdminAccount(t *testing.T) {
	setupConfig(t)

	out, err := runCmd(t, "create-admin", "-email", "cliente@example.com", "-password", "segredo1")
	require.NoError(t, err)
	assert.Contains(t, out, "Atenção")

	out, err = runCmd(t, "login", "-email", "cliente@example.com", "-password", "segredo1")
	require.NoError(t, err)
	assert.Contains(t, out, "sem acesso administrativo")

	_, err = runCmd(t, "approve", "any")
	assert.ErrorIs(t, err, errNotAdmin)
}

func TestStudioctl_Usage(t *testing.T) {
	setupConfig(t)

	_, err := runCmd(t)
	assert.ErrorIs(t, err, errUsage)
	_, err = runCmd(t, "destroy")
	assert.ErrorIs(t, err, errUsage)
	_, err = runCmd(t, "approve")
	assert.ErrorIs(t, err, errUsage)
	_, err = runCmd(t, "create-admin", "-email", "x@y.z", "-password", "123")
	assert.Error(t, err)
	_, err = runCmd(t, "sheets-sync")
	assert.EqualError(t, err, "google sheets não configurado")
}
