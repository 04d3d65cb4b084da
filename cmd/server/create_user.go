package main

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"caterchat/internal/domain"
	"caterchat/internal/service"
)

type createUserFlags struct {
	Username string
	Password string
	FullName string
	Email    string
	Role     string
}

// NewCreateUserCommand provisions staff accounts, which cannot self-register.
func NewCreateUserCommand() *cobra.Command {
	f := &createUserFlags{}
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Creates a staff, admin or customer account.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			in := service.RegisterInput{
				Username: f.Username,
				FullName: f.FullName,
				Password: f.Password,
			}
			if f.Email != "" {
				in.Email = &f.Email
			}
			user, err := a.auth.CreateUser(context.Background(), in, domain.Role(f.Role))
			if err != nil {
				return errors.WithMessagef(err, "could not create user %q", f.Username)
			}
			log.WithFields(log.Fields{
				"id":   user.ID,
				"role": user.Role,
			}).Infof("created user %s", user.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&f.Username, "username", "", "Login name")
	cmd.Flags().StringVar(&f.Password, "password", "", "Password (at least 8 characters)")
	cmd.Flags().StringVar(&f.FullName, "full-name", "", "Display name")
	cmd.Flags().StringVar(&f.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&f.Role, "role", string(domain.RoleStaff), "customer, staff or admin")
	cmd.Flags().String("db-driver", "", "Database driver: postgres or sqlite")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
