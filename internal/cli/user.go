package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lampstand/companion-gateway/internal/contextstore"
	"github.com/lampstand/companion-gateway/internal/prompt"
)

// user subcommands provision local accounts for the sqlite backend. The rest
// backend manages users in the external identity store.
var (
	userName      string
	userAbout     string
	userPremium   bool
	userStruggles []string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage local users (sqlite backend only)",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user and print a bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Store.Backend != "sqlite" {
			return fmt.Errorf("user create requires the sqlite backend, configured backend is %q", cfg.Store.Backend)
		}
		intake, err := intakeFromStruggles(userStruggles)
		if err != nil {
			return err
		}

		store, err := contextstore.NewSQLiteStore(cfg.Store.DBPath, cfg.Quota.DailyLimit)
		if err != nil {
			return fmt.Errorf("opening sqlite store: %w", err)
		}
		defer func() { _ = store.Close() }()

		ctx := context.Background()
		userID := uuid.New().String()
		token := uuid.New().String()

		if err := store.UpsertProfile(ctx, userID, userName, userAbout, intake, userPremium); err != nil {
			return fmt.Errorf("creating profile: %w", err)
		}
		if err := store.CreateToken(ctx, token, userID); err != nil {
			return fmt.Errorf("creating token: %w", err)
		}

		fmt.Printf("user_id: %s\ntoken:   %s\n", userID, token)
		return nil
	},
}

// intakeFromStruggles validates struggle codes against the prompt vocabulary
// and wraps them in an intake profile. Nil when no codes were given.
func intakeFromStruggles(codes []string) (*contextstore.IntakeProfile, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	valid := make(map[string]bool, len(prompt.StruggleCodes()))
	for _, c := range prompt.StruggleCodes() {
		valid[c] = true
	}
	for _, c := range codes {
		if !valid[c] {
			return nil, fmt.Errorf("unknown struggle code %q (valid codes: %s)", c, strings.Join(prompt.StruggleCodes(), ", "))
		}
	}
	return &contextstore.IntakeProfile{SpiritualStruggles: codes}, nil
}

func init() {
	userCreateCmd.Flags().StringVar(&userName, "name", "", "Display name")
	userCreateCmd.Flags().StringVar(&userAbout, "about", "", "Short free-text description")
	userCreateCmd.Flags().BoolVar(&userPremium, "premium", false, "Mark the user premium (unlimited quota)")
	userCreateCmd.Flags().StringSliceVar(&userStruggles, "struggles", nil, "Spiritual struggle codes for the intake profile (comma separated)")
	userCmd.AddCommand(userCreateCmd)
	RootCmd.AddCommand(userCmd)
}
