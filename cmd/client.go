package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jmehdipour/xl-gateway/internal/model"
	"github.com/jmehdipour/xl-gateway/internal/purchase"
	"github.com/jmehdipour/xl-gateway/internal/session"
	"github.com/spf13/cobra"
)

// Operator commands that talk to the carrier directly, without the HTTP
// server. They print the result as JSON.

var otpCmd = &cobra.Command{
	Use:   "otp",
	Short: "Request or submit a one-time code",
}

var otpRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Send an OTP to a subscriber number",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newSessionManager()
		if err != nil {
			return err
		}
		contact, _ := cmd.Flags().GetString("contact")
		ch, err := m.RequestOTP(cmd.Context(), contact)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), ch)
	},
}

var otpSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Exchange an OTP for tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newSessionManager()
		if err != nil {
			return err
		}
		contact, _ := cmd.Flags().GetString("contact")
		code, _ := cmd.Flags().GetString("code")
		tokens, err := m.SubmitOTP(cmd.Context(), apiKeyFlag(cmd), contact, code)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), tokens)
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage credential bundles",
}

var tokenRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Trade a refresh token for a new bundle",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newSessionManager()
		if err != nil {
			return err
		}
		rt, _ := cmd.Flags().GetString("refresh-token")
		tokens, err := m.RefreshToken(cmd.Context(), rt)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), tokens)
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Subscriber session helpers",
}

var sessionExtendCmd = &cobra.Command{
	Use:   "extend",
	Short: "Obtain an exchange code for a known subscriber",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newSessionManager()
		if err != nil {
			return err
		}
		sub, _ := cmd.Flags().GetString("subscriber-id")
		ext, err := m.ExtendSession(cmd.Context(), sub)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), ext)
	},
}

var qrisCmd = &cobra.Command{
	Use:   "qris",
	Short: "QRIS purchase helpers",
}

var qrisWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Poll a QRIS transaction until it settles or expires",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		o := purchase.NewOrchestrator(newRemoteClient(cfg), cfg.Remote.Paths, nil)

		txid, _ := cmd.Flags().GetString("transaction-id")
		idToken, _ := cmd.Flags().GetString("id-token")
		accessToken, _ := cmd.Flags().GetString("access-token")
		tokens := model.Tokens{IDToken: idToken, AccessToken: accessToken}
		apiKey := apiKeyFlag(cmd)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := purchase.PollSettlement(ctx, cfg.Poll, func(ctx context.Context) (model.SettlementResult, error) {
			return o.SettlementQris(ctx, apiKey, tokens, txid)
		})
		if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
			return perr
		}
		return err
	},
}

func init() {
	otpRequestCmd.Flags().String("contact", "", "subscriber number, e.g. 0812...")
	otpSubmitCmd.Flags().String("contact", "", "subscriber number")
	otpSubmitCmd.Flags().String("code", "", "one-time code")
	otpSubmitCmd.Flags().String("api-key", "", "carrier API key (default $XLGW_API_KEY)")
	otpCmd.AddCommand(otpRequestCmd, otpSubmitCmd)

	tokenRefreshCmd.Flags().String("refresh-token", "", "refresh token")
	tokenCmd.AddCommand(tokenRefreshCmd)

	sessionExtendCmd.Flags().String("subscriber-id", "", "subscriber id")
	sessionCmd.AddCommand(sessionExtendCmd)

	qrisWaitCmd.Flags().String("transaction-id", "", "transaction id from the QRIS submission")
	qrisWaitCmd.Flags().String("id-token", "", "id token")
	qrisWaitCmd.Flags().String("access-token", "", "access token")
	qrisWaitCmd.Flags().String("api-key", "", "carrier API key (default $XLGW_API_KEY)")
	qrisCmd.AddCommand(qrisWaitCmd)
}

func newSessionManager() (*session.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return session.NewManager(newRemoteClient(cfg), cfg.Remote.Paths, nil), nil
}

func apiKeyFlag(cmd *cobra.Command) string {
	if v, _ := cmd.Flags().GetString("api-key"); strings.TrimSpace(v) != "" {
		return v
	}
	return os.Getenv("XLGW_API_KEY")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
