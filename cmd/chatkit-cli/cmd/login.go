package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tradepost/chatkit/internal/config"
	"github.com/tradepost/chatkit/internal/credentials"
	"github.com/tradepost/chatkit/internal/transport"
)

var (
	loginToken  string
	loginUserID string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save the API credential for later runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		token := loginToken
		if token == "" {
			token = cfg.Token
		}
		userID := loginUserID
		if userID == "" {
			userID = cfg.UserID
		}
		if token == "" || userID == "" {
			return fmt.Errorf("token and user id are required (flags or CHATKIT_TOKEN / CHATKIT_USER_ID)")
		}

		store := credentials.NewStore(afero.NewOsFs(), cfg.ConfigDir)
		if err := store.Save(transport.Credential{
			URL:    cfg.WSURL,
			Token:  token,
			UserID: userID,
		}); err != nil {
			return err
		}
		fmt.Printf("Credential saved for %s\n", userID)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "Bearer token")
	loginCmd.Flags().StringVar(&loginUserID, "user", "", "User id the token belongs to")
	rootCmd.AddCommand(loginCmd)
}
