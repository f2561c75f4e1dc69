package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/pagepub/internal/credentials"
)

// CredsCmd shows the stored credentials, or updates them when any of the
// update flags is set. The token itself is only ever reported as set/unset;
// it lives in the PAGEPUB_TOKEN environment variable and cannot be changed
// here.
type CredsCmd struct {
	Username   string `help:"Set the hosting account username"`
	Email      string `help:"Set the commit author email"`
	Repository string `help:"Set the repository-name override (empty keeps the current value)"`
}

func (cc *CredsCmd) Run(_ *Global, c *CLI) error {
	ctx := context.Background()
	a, err := newApp(ctx, c, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if cc.Username != "" || cc.Email != "" || cc.Repository != "" {
		err := a.orch.SaveCredentials(credentials.Partial{
			UserName:   cc.Username,
			Email:      cc.Email,
			Repository: cc.Repository,
		})
		if err != nil {
			return err
		}
		fmt.Println("Credentials updated.")
	}

	info := a.orch.CredentialInfo()
	fmt.Printf("Username:   %s\n", valueOrUnset(info.UserName))
	fmt.Printf("Email:      %s\n", valueOrUnset(info.Email))
	fmt.Printf("Repository: %s\n", a.orch.RepositoryName())
	if info.Token != "" {
		fmt.Printf("Token:      set (%s)\n", credentials.TokenEnvVar)
	} else {
		fmt.Printf("Token:      unset (export %s)\n", credentials.TokenEnvVar)
	}
	fmt.Printf("Valid:      %v\n", a.orch.IsCredentialValid())
	return nil
}

func valueOrUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}
