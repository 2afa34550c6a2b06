package cli

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/jwt"
)

// NewTokenCommand creates the token command.
func NewTokenCommand(opts *RootOptions) *cobra.Command {
	var (
		role     string
		username string
		deviceID string
		userID   string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a device or an administrator",
		Example: `  fieldsync token --role device --username tech-7 --device tablet-7
  fieldsync token --role admin --username alice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if err := cfg.Validate(); err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			if userID == "" {
				userID = uuid.NewString()
			}

			tokens := jwt.NewService(cfg.Auth.Secret, cfg.Auth.TokenTTL)
			token, expiresIn, err := tokens.GenerateAccessToken(userID, models.Actor{
				Username: username,
				Role:     models.Role(role),
				DeviceID: deviceID,
			})
			if errors.Is(err, jwt.ErrInvalidClaims) {
				return WrapExitError(ExitCommandError, "cannot mint token", err)
			}
			if err != nil {
				return err
			}

			p := newPrinter(cmd.OutOrStdout(), opts.Format)
			if p.json() {
				return p.JSON(map[string]any{
					"access_token": token,
					"token_type":   "Bearer",
					"expires_in":   expiresIn,
				})
			}
			p.Line("%s", token)
			if p.tty {
				p.Line("expires %s", formatTime(time.Now().Add(time.Duration(expiresIn)*time.Second)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", string(models.RoleDevice), "admin, device or system")
	cmd.Flags().StringVar(&username, "username", "", "subject username")
	cmd.Flags().StringVar(&deviceID, "device", "", "device id, required for device tokens")
	cmd.Flags().StringVar(&userID, "user-id", "", "subject id (random when empty)")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}
