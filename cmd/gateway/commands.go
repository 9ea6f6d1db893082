// File: cmd/gateway/commands.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/smartdevs17/ticket-gateway/internal/gateway"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/smartdevs17/ticket-gateway/internal/network"
	"github.com/smartdevs17/ticket-gateway/internal/qr"
)

// printJSON writes v to out as indented JSON
func printJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// failed reports a user-facing failure after its result was printed
func failed(message string) error {
	return errors.New(message)
}

func registerCommands(root *cobra.Command) {
	root.AddCommand(versionCmd, configCmd, networkCmd, eventsCmd, mintCmd, ticketsCmd, transferCmd, scanCmd)
	configCmd.AddCommand(validateConfigCmd)
	eventsCmd.AddCommand(eventsListCmd, eventsShowCmd, eventsCreateCmd)

	eventsCreateCmd.Flags().String("name", "", "event name")
	eventsCreateCmd.Flags().String("symbol", "", "ticket symbol")
	eventsCreateCmd.Flags().Int64("max-supply", 0, "maximum number of tickets")

	ticketsCmd.Flags().Bool("qr", false, "include QR payloads for each ticket")

	scanCmd.Flags().String("contract", "", "event contract used for ticket:<owner>:<id> codes")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Ticket Gateway %s\n", AppVersion)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and resolve the network",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		resolved, err := network.Resolve(network.SettingsFromConfig(cfg.Network))
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration is valid!\n")
		fmt.Fprintf(out, "Environment: %s\n", cfg.App.Environment)
		fmt.Fprintf(out, "Network: %s (chain %d)\n", resolved.Name, resolved.ChainID)
		fmt.Fprintf(out, "Registry: %s\n", resolved.RegistryAddress.Hex())
		fmt.Fprintf(out, "Wallet: %s\n", cfg.Wallet.Type)
		if cfg.Storage.Enabled {
			fmt.Fprintf(out, "Journal: %s\n", cfg.Storage.Type)
		} else {
			fmt.Fprintf(out, "Journal: disabled\n")
		}
		return nil
	},
}

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Show the bound network and wallet status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApplication(cmd, func(ctx context.Context, app *Application) error {
			cfg := app.gateway.Network()
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"name":             cfg.Name,
				"chain_id":         cfg.ChainID,
				"registry_address": cfg.RegistryAddress.Hex(),
				"wallet":           app.gateway.ProbeWallet(ctx),
			})
		})
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Browse and create events",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered event",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApplication(cmd, func(ctx context.Context, app *Application) error {
			view := app.gateway.LoadCatalog(ctx)
			if err := printJSON(cmd.OutOrStdout(), view); err != nil {
				return err
			}
			if view.State == gateway.StateError {
				return failed(view.Message)
			}
			return nil
		})
	},
}

var eventsShowCmd = &cobra.Command{
	Use:   "show <event-address>",
	Short: "Show one event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApplication(cmd, func(ctx context.Context, app *Application) error {
			view := app.gateway.LoadEvent(ctx, args[0])
			event, message := view.Snapshot()
			if err := printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"state":        view.State,
				"event":        event,
				"message":      message,
				"mint_enabled": view.MintEnabled(),
			}); err != nil {
				return err
			}
			if view.State == gateway.StateError {
				return failed(message)
			}
			return nil
		})
	},
}

var eventsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an event through the registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		symbol, _ := cmd.Flags().GetString("symbol")
		maxSupply, _ := cmd.Flags().GetInt64("max-supply")

		input := gateway.CreateEventInput{Name: name, Symbol: symbol, MaxSupply: maxSupply}
		if err := input.Validate(); err != nil {
			return err
		}

		return withApplication(cmd, func(ctx context.Context, app *Application) error {
			return printAction(cmd, app.gateway.CreateEvent(ctx, input))
		})
	},
}

var mintCmd = &cobra.Command{
	Use:   "mint <event-address>",
	Short: "Mint one ticket to the wallet account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApplication(cmd, func(ctx context.Context, app *Application) error {
			view := app.gateway.LoadEvent(ctx, args[0])
			if view.State == gateway.StateError {
				_, message := view.Snapshot()
				return failed(message)
			}
			return printAction(cmd, view.Mint(ctx))
		})
	},
}

func printAction(cmd *cobra.Command, result gateway.ActionResult) error {
	if err := printJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if !result.Success {
		return failed(result.Message)
	}
	return nil
}

var ticketsCmd = &cobra.Command{
	Use:   "tickets [owner-address]",
	Short: "List tickets held by an address, or by the wallet account",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		withQR, _ := cmd.Flags().GetBool("qr")

		return withApplication(cmd, func(ctx context.Context, app *Application) error {
			var view *gateway.TicketsView
			if len(args) == 1 {
				view = app.gateway.LoadOwnedTickets(ctx, args[0])
			} else {
				view = app.gateway.LoadMyTickets(ctx)
			}
			if view.State == gateway.StateError {
				printJSON(cmd.OutOrStdout(), view)
				return failed(view.Message)
			}

			if !withQR {
				return printJSON(cmd.OutOrStdout(), view)
			}

			tickets := view.Snapshot()
			detailed := make([]interface{}, 0, len(tickets))
			for _, t := range tickets {
				ticket, err := app.gateway.LoadTicket(ctx, t.ContractAddress, t.TokenID)
				if err != nil {
					return err
				}
				detailed = append(detailed, ticket)
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"owner":   view.Owner,
				"tickets": detailed,
			})
		})
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer <contract-address> <token-id> <recipient>",
	Short: "Transfer a ticket held by the wallet account",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokenID, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid token id %q", args[1])
		}

		return withApplication(cmd, func(ctx context.Context, app *Application) error {
			view := app.gateway.LoadMyTickets(ctx)
			if view.State == gateway.StateError {
				return failed(view.Message)
			}

			result := view.Transfer(ctx, args[0], tokenID, args[2])
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if result.Status != models.TransferSuccess {
				return failed(result.Message)
			}
			return nil
		})
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Verify scanned codes read line by line from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		contract, _ := cmd.Flags().GetString("contract")

		return withApplication(cmd, func(ctx context.Context, app *Application) error {
			scanner := qr.NewScanner(qr.NewLineSource(cmd.InOrStdin()), qr.TextDetector)
			scanner.Cooldown = app.config.Gateway.ScanCooldown
			if stdinIsTerminal(cmd.InOrStdin()) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Point the scanner at a ticket...")
			} else {
				scanner.Cooldown = 0
			}

			return scanner.Run(ctx, func(payload qr.Payload) {
				reportScan(cmd.OutOrStdout(), app.logger, app.gateway.VerifyScan(ctx, payload.Raw, contract))
			})
		})
	},
}

// reportScan prints one verification; scanning goes on when the output fails
func reportScan(out io.Writer, logger logrus.FieldLogger, verification models.Verification) {
	if err := printJSON(out, verification); err != nil {
		logger.WithError(err).WithField("token_id", verification.TokenID).Error("Failed to print scan result")
	}
}

// stdinIsTerminal reports whether r is an interactive terminal
func stdinIsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
