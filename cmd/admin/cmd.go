package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"
	"gorm.io/gorm"

	"exam-system/internal/auth"
	"exam-system/pkg/database"
	"exam-system/pkg/logger"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db   *gorm.DB
	auth *auth.Service
	log  *logger.Logger
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate - create or update the database schema")
	fmt.Println("  createadmin -username USERNAME -email EMAIL [-first NAME] [-last NAME] - create an admin account")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createAdminCmd := flag.NewFlagSet("createadmin", flag.ContinueOnError)
	username := createAdminCmd.String("username", "", "The admin's username. The password will be prompted next.")
	email := createAdminCmd.String("email", "", "The admin's email address.")
	first := createAdminCmd.String("first", "", "First name.")
	last := createAdminCmd.String("last", "", "Last name.")

	switch args[1] {
	case "migrate":
		if err := database.Migrate(cli.db); err != nil {
			return err
		}
		cli.log.Info("database migrated")
		return nil

	case "createadmin":
		if err := createAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *username == "" || *email == "" {
			createAdminCmd.Usage()
			return errHelp
		}
		pwd, err := cli.prompt("Enter password:")
		if err != nil {
			return err
		}
		confirm, err := cli.prompt("Confirm password:")
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			createAdminCmd.Usage()
			return errHelp
		}
		acc, err := cli.auth.CreateAdmin(context.Background(), auth.AccountInput{
			Username:  *username,
			Email:     *email,
			FirstName: *first,
			LastName:  *last,
			Password:  pwd,
			Password2: confirm,
		})
		if err != nil {
			return err
		}
		cli.log.Info("admin created", "account_id", acc.ID, "username", acc.Username)
		return nil

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) prompt(label string) (string, error) {
	fmt.Print(label)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	return string(pwd), err
}
