package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/meridian-edu/meridian/core/auth"
	"github.com/meridian-edu/meridian/core/event"
	"github.com/meridian-edu/meridian/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	usrSvc   user.Service
	eventSvc event.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  adduser -name NAME -username USERNAME -email EMAIL [-role admin|faculty|student] - create a user; the password will be prompted")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  allocate -event EVENT_ID -points POINTS -actor USERNAME|EMAIL - allocate event points to registered participants")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRole := addUserCmd.String("role", "admin", "The user's role: admin, faculty or student.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	allocateCmd := flag.NewFlagSet("allocate", flag.ExitOnError)
	allocateEvent := allocateCmd.String("event", "", "The event ID.")
	allocatePoints := allocateCmd.Int("points", 0, "Points to credit each registered participant.")
	allocateActor := allocateCmd.String("actor", "", "Username or email of the user running the allocation.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, *addUserRole, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "allocate":
		if err := allocateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *allocateEvent == "" || *allocatePoints <= 0 || *allocateActor == "" {
			allocateCmd.Usage()
			return errHelp
		}
		return cli.allocate(*allocateActor, *allocateEvent, *allocatePoints)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) addUser(name, uname, email, role, pwd string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	nu := user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Role:            auth.Role(role),
	}
	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return err
	}
	fmt.Printf("user %s created: %s\n", usr.Username, usr.ID)
	return nil
}

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	_, err = cli.usrSvc.Update(ctx, usr.ID, user.UpdateUser{Password: pwd, PasswordConfirm: pwd})
	return err
}

func (cli *commandLine) allocate(actorUname, eventID string, points int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	actor, err := cli.usrSvc.GetByUsernameOrEmail(ctx, actorUname)
	if err != nil {
		return err
	}
	res, err := cli.eventSvc.Allocate(ctx, actor, eventID, points)
	if err != nil {
		return err
	}
	fmt.Printf("event %s allocated: %d credited, %d skipped\n", res.EventID, res.Credited, res.Skipped)
	return nil
}
