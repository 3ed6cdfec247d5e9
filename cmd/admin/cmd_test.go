package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"exam-system/internal/apperr"
	"exam-system/internal/auth"
	"exam-system/internal/identity"
	"exam-system/internal/models"
	"exam-system/internal/testutil"
	"exam-system/pkg/logger"
)

func setup(t *testing.T, passwords ...string) *commandLine {
	t.Helper()
	db := testutil.NewDB(t)
	log := logger.Nop()

	orig := readPasswordFunc
	t.Cleanup(func() { readPasswordFunc = orig })
	readPasswordFunc = func(int) ([]byte, error) {
		if len(passwords) == 0 {
			return nil, nil
		}
		p := passwords[0]
		passwords = passwords[1:]
		return []byte(p), nil
	}

	svc := auth.NewService(auth.NewRepository(db), "secret", time.Hour, log)
	svc.SetHashCost(bcrypt.MinCost)
	return &commandLine{db: db, auth: svc, log: log}
}

func Test_commandLine_usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no command", []string{}},
		{"unknown command", []string{"dropdb"}},
		{"createadmin without username", []string{"createadmin", "-email", "root@example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli := setup(t, "correct-horse", "correct-horse")
			err := cli.run(append([]string{"admin"}, tt.args...))
			require.Equal(t, errHelp, err)
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)
	require.NoError(t, cli.run([]string{"admin", "migrate"}))
	require.NoError(t, cli.run([]string{"admin", "migrate"}))
}

func Test_commandLine_createadmin(t *testing.T) {
	cli := setup(t, "correct-horse", "correct-horse")
	require.NoError(t, cli.run([]string{"admin", "createadmin", "-username", "root", "-email", "root@example.com"}))

	var acc models.Account
	require.NoError(t, cli.db.Where("username = ?", "root").First(&acc).Error)
	require.Equal(t, identity.RoleAdmin, acc.Role)
	require.True(t, acc.IsActive)

	readPasswordFunc = func(int) ([]byte, error) { return []byte("correct-horse"), nil }
	err := cli.run([]string{"admin", "createadmin", "-username", "root", "-email", "other@example.com"})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func Test_commandLine_createadminMismatch(t *testing.T) {
	cli := setup(t, "correct-horse", "wrong-horse!")
	err := cli.run([]string{"admin", "createadmin", "-username", "root", "-email", "root@example.com"})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
